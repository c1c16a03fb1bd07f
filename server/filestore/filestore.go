package filestore

// Package filestore is a flat save-by-name image store with three categories:
// the original upload, the annotated (winning) image, and the side-by-side
// combined image. Saving over an existing name overwrites it; image names are
// not unique and that's fine.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
)

type Category string

const (
	CategoryOriginal  Category = "original"
	CategoryAnnotated Category = "annotated"
	CategoryCombined  Category = "combined"
)

var allCategories = []Category{CategoryOriginal, CategoryAnnotated, CategoryCombined}

func IsValidCategory(c string) bool {
	for _, cat := range allCategories {
		if string(cat) == c {
			return true
		}
	}
	return false
}

type Store struct {
	log  logs.Log
	root string
}

// Open or create a file store rooted at 'root'
func NewStore(logger logs.Log, root string) (*Store, error) {
	root = filepath.Clean(root)
	for _, cat := range allCategories {
		if err := os.MkdirAll(filepath.Join(root, string(cat)), 0770); err != nil {
			return nil, fmt.Errorf("Failed to create file store path '%v': %w", root, err)
		}
	}
	return &Store{
		log:  logger,
		root: root,
	}, nil
}

// Save writes the file, overwriting any existing file of the same name.
func (s *Store) Save(cat Category, name string, data []byte) error {
	return os.WriteFile(s.Filename(cat, name), data, 0660)
}

func (s *Store) Load(cat Category, name string) ([]byte, error) {
	return os.ReadFile(s.Filename(cat, name))
}

// Filename returns the on-disk path for a stored image.
func (s *Store) Filename(cat Category, name string) string {
	return filepath.Join(s.root, string(cat), SanitizeName(name))
}

// Purge empties all categories. The directories themselves remain.
func (s *Store) Purge() error {
	var firstErr error
	for _, cat := range allCategories {
		dir := filepath.Join(s.root, string(cat))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Errorf("Error deleting %v: %v", path, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// SanitizeName flattens a client-provided image name so that it can't escape
// the store (or name a subdirectory).
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "_"
	}
	return name
}
