package resultdb

// Package resultdb is an append-only store of detection count records, one
// per processed image. Records are never updated or deleted individually;
// the only bulk operation is Purge, which wipes the table.

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

type ResultDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func NewResultDB(logger logs.Log, dbFilename string) (*ResultDB, error) {
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, err
	}
	return &ResultDB{
		Log: logger,
		DB:  db,
	}, nil
}

// Append adds one record. The image name is truncated to fit the column;
// long camera-generated names are not worth rejecting an otherwise good
// detection over.
func (r *ResultDB) Append(rec *Record) error {
	if len(rec.ImageName) > MaxImageNameLength {
		rec.ImageName = rec.ImageName[:MaxImageNameLength]
	}
	return r.DB.Create(rec).Error
}

// Records returns all records in insertion order.
func (r *ResultDB) Records() ([]Record, error) {
	records := []Record{}
	if err := r.DB.Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Purge deletes all records.
func (r *ResultDB) Purge() error {
	return r.DB.Exec("DELETE FROM record").Error
}
