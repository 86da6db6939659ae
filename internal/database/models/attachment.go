package models

import (
	"time"
)

// Attachment is media carried by one message
type Attachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"index;not null" json:"message_id"`
	MediaURL    string    `gorm:"column:media_url;size:500" json:"media_url"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	FileSize    int64     `json:"file_size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FilePath    string    `gorm:"size:500" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsImage reports whether the attachment has image dimensions
func (a *Attachment) IsImage() bool {
	return a.Width > 0 && a.Height > 0
}
