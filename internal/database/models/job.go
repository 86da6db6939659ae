package models

import (
	"time"
)

// JobKind names a background job handler
type JobKind string

const (
	JobKindDeliverMessage    JobKind = "deliver_message"
	JobKindRedactMessage     JobKind = "redact_message"
	JobKindNotificationEmail JobKind = "message_notification_email"
)

// Job is a durable unit of background work
type Job struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Kind      JobKind    `gorm:"size:50;index;not null" json:"kind"`
	Payload   string     `gorm:"type:text" json:"payload"` // JSON
	RunAt     time.Time  `gorm:"index" json:"run_at"`
	Attempts  int        `json:"attempts"`
	LockedAt  *time.Time `gorm:"index" json:"locked_at"`
	LockedBy  string     `gorm:"size:64" json:"locked_by"`
	LastError string     `gorm:"type:text" json:"last_error"`
	FailedAt  *time.Time `gorm:"index" json:"failed_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
