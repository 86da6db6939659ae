package models

import (
	"time"
)

// CourtDateCSV records one court date import batch
type CourtDateCSV struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FileName  string    `gorm:"size:255" json:"file_name"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Scheduled int       `json:"scheduled"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the batch table name readable
func (CourtDateCSV) TableName() string {
	return "court_date_csvs"
}
