package resultdb

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) *ResultDB {
	db, err := NewResultDB(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "test-resultdb.sqlite"))
	require.NoError(t, err)
	return db
}

func TestAppendAndRead(t *testing.T) {
	db := createTestDB(t)

	now := time.Now()
	require.NoError(t, db.Append(&Record{ImageName: "a.jpg", ModelUsed: "Vials", VialCount: 7, Timestamp: dbh.MakeIntTime(now), Username: "jane@example.com"}))
	require.NoError(t, db.Append(&Record{ImageName: "b.jpg", ModelUsed: "PFS", PFSCount: 3, Timestamp: dbh.MakeIntTime(now), Username: "jane@example.com"}))

	records, err := db.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Insertion order is preserved
	require.Equal(t, "a.jpg", records[0].ImageName)
	require.Equal(t, "Vials", records[0].ModelUsed)
	require.Equal(t, 7, records[0].VialCount)
	require.Equal(t, 0, records[0].PFSCount)
	require.Equal(t, "b.jpg", records[1].ImageName)
	require.Equal(t, 3, records[1].PFSCount)
}

func TestImageNameTruncation(t *testing.T) {
	db := createTestDB(t)

	long := strings.Repeat("x", MaxImageNameLength+50) + ".jpg"
	require.NoError(t, db.Append(&Record{ImageName: long, ModelUsed: "Vials", Timestamp: dbh.MakeIntTime(time.Now())}))

	records, err := db.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].ImageName, MaxImageNameLength)
}

func TestPurge(t *testing.T) {
	db := createTestDB(t)

	require.NoError(t, db.Append(&Record{ImageName: "a.jpg", ModelUsed: "Vials", Timestamp: dbh.MakeIntTime(time.Now())}))
	require.NoError(t, db.Purge())

	records, err := db.Records()
	require.NoError(t, err)
	require.Empty(t, records)
}
