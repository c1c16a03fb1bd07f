package resultdb

import "github.com/cyclopcam/dbh"

// MaxImageNameLength is the width of the image_name column. Names longer
// than this are truncated on insert.
const MaxImageNameLength = 100

type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Record is the outcome of running both detectors over one image and
// arbitrating between them. Only the winning model's count survives; the
// loser's column is zero.
type Record struct {
	BaseModel
	ImageName string     `json:"imageName"`
	ModelUsed string     `json:"modelUsed"` // Winning model, "Vials" or "PFS"
	PFSCount  int        `json:"pfsCount"`
	VialCount int        `json:"vialCount"`
	Timestamp dbh.IntTime `json:"timestamp"`
	Username  string     `json:"username"` // User who submitted the image
}

func (Record) TableName() string {
	return "record"
}
