package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestSaveAndOverwrite(t *testing.T) {
	store, err := NewStore(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(CategoryOriginal, "a.jpg", []byte("one")))
	data, err := store.Load(CategoryOriginal, "a.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), data)

	// Overwrite on collision is expected behavior, not an error
	require.NoError(t, store.Save(CategoryOriginal, "a.jpg", []byte("two")))
	data, err = store.Load(CategoryOriginal, "a.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "a.jpg", SanitizeName("a.jpg"))
	require.Equal(t, "_etc_passwd", SanitizeName("/etc/passwd"))
	require.Equal(t, "__evil.jpg", SanitizeName("../evil.jpg"))
	require.Equal(t, "a_b.jpg", SanitizeName("a\\b.jpg"))
	require.Equal(t, "_", SanitizeName(""))
}

func TestPurge(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(logs.NewTestingLog(t), root)
	require.NoError(t, err)

	require.NoError(t, store.Save(CategoryOriginal, "a.jpg", []byte("x")))
	require.NoError(t, store.Save(CategoryAnnotated, "a.jpg", []byte("y")))
	require.NoError(t, store.Save(CategoryCombined, "a.jpg", []byte("z")))
	require.NoError(t, store.Purge())

	for _, cat := range allCategories {
		entries, err := os.ReadDir(filepath.Dir(store.Filename(cat, "a.jpg")))
		require.NoError(t, err)
		require.Empty(t, entries)
		_, err = store.Load(cat, "a.jpg")
		require.Error(t, err)
	}
}
