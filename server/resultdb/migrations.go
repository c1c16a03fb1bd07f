package resultdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE record(
			id INTEGER PRIMARY KEY,
			image_name TEXT NOT NULL,
			model_used TEXT NOT NULL,
			pfs_count INT NOT NULL,
			vial_count INT NOT NULL,
			timestamp INT NOT NULL,
			username TEXT NOT NULL
		);
		CREATE INDEX idx_record_timestamp ON record (timestamp);
	`))

	return migs
}
