package models

import (
	"fmt"
	"strings"
	"time"
)

// Client is a person being served
type Client struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	FirstName              string     `gorm:"size:100" json:"first_name"`
	LastName               string     `gorm:"size:100" json:"last_name"`
	PhoneNumber            string     `gorm:"uniqueIndex;size:20;not null" json:"phone_number"`
	IDNumber               string     `gorm:"column:id_number;size:50;index" json:"id_number"`
	NextCourtDateAt        *time.Time `json:"next_court_date_at"`
	NextCourtDateSetByUser bool       `json:"next_court_date_set_by_user"`
	Active                 bool       `json:"active"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// FullName returns "First Last"
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// DisplayPhoneNumber formats a +1 number as (415) 555-5550
func (c *Client) DisplayPhoneNumber() string {
	return DisplayPhone(c.PhoneNumber)
}

// DisplayPhone formats a North American E.164 number for humans.
// Anything else is returned unchanged.
func DisplayPhone(number string) string {
	digits := strings.TrimPrefix(number, "+1")
	if len(digits) != 10 || !strings.HasPrefix(number, "+1") {
		return number
	}
	return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:])
}
