package models

import (
	"time"
)

// ClientStatus is a department-defined label such as "Active" or "Exited"
type ClientStatus struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	DepartmentID uint   `gorm:"index;not null" json:"department_id"`
	Name         string `gorm:"size:100;not null" json:"name"`
	// FollowupDays, when set, flags relationships not contacted within that many days.
	FollowupDays *int      `json:"followup_days"`
	IconColor    string    `gorm:"size:7" json:"icon_color"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
