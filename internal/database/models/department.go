package models

import (
	"time"
)

// Department groups caseworkers behind one provider phone number
type Department struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	PhoneNumber string `gorm:"size:20;index" json:"phone_number"`
	// UnclaimedUserID receives messages from clients no caseworker owns yet.
	UnclaimedUserID   *uint     `json:"unclaimed_user_id"`
	UnclaimedResponse string    `gorm:"type:text" json:"unclaimed_response"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsUnclaimedUser reports whether userID is the department's fallback user
func (d *Department) IsUnclaimedUser(userID uint) bool {
	return d != nil && d.UnclaimedUserID != nil && *d.UnclaimedUserID == userID
}
