package models

import (
	"time"
)

// User is a caseworker
type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Email             string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash      string    `gorm:"size:255;not null" json:"-"`
	FullName          string    `gorm:"size:100" json:"full_name"`
	PhoneNumber       string    `gorm:"size:20" json:"phone_number"`
	DepartmentID      *uint     `gorm:"index" json:"department_id"`
	Active            bool      `json:"active"`
	HasUnreadMessages bool      `json:"has_unread_messages"`
	EmailSubscribe    bool      `json:"email_subscribe"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Department *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}
