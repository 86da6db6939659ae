package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// CategoryNone is the default category tag
const CategoryNone = "no_cat"

// Categories are the tags a caseworker can put on a relationship
var Categories = []string{CategoryNone, "cat_1", "cat_2", "cat_3", "cat_4", "cat_5", "cat_6"}

var (
	// ErrInvalidCategory indicates an unknown category tag
	ErrInvalidCategory = errors.New("invalid category")
	// ErrActiveRelationshipExists indicates the client already has an active
	// relationship with another caseworker in the same department
	ErrActiveRelationshipExists = errors.New("client already has an active relationship in this department")
)

// ReportingRelationship pairs one caseworker with one client
type ReportingRelationship struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"uniqueIndex:idx_rr_client_user;not null" json:"user_id"`
	ClientID          uint       `gorm:"uniqueIndex:idx_rr_client_user;not null" json:"client_id"`
	Active            bool       `gorm:"index" json:"active"`
	Category          string     `gorm:"size:20" json:"category"`
	Notes             string     `gorm:"type:text" json:"notes"`
	ClientStatusID    *uint      `json:"client_status_id"`
	LastContactedAt   *time.Time `json:"last_contacted_at"`
	HasUnreadMessages bool       `json:"has_unread_messages"`
	HasMessageError   bool       `json:"has_message_error"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Client       *Client       `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ClientStatus *ClientStatus `gorm:"foreignKey:ClientStatusID" json:"client_status,omitempty"`
}

// ValidCategory reports whether c is a known category tag
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// HasCategory reports whether a caseworker picked a category
func (rr *ReportingRelationship) HasCategory() bool {
	return rr.Category != "" && rr.Category != CategoryNone
}

// BeforeSave enforces the one-active-relationship-per-department rule
func (rr *ReportingRelationship) BeforeSave(tx *gorm.DB) error {
	if rr.Category == "" {
		rr.Category = CategoryNone
	}
	if !ValidCategory(rr.Category) {
		return ErrInvalidCategory
	}
	if !rr.Active {
		return nil
	}

	db := tx.Session(&gorm.Session{NewDB: true})
	var owner User
	if err := db.Select("id", "department_id").Take(&owner, rr.UserID).Error; err != nil {
		return err
	}

	// caseworkers without a department count as one shared department
	q := db.Table("reporting_relationships").
		Joins("JOIN users ON users.id = reporting_relationships.user_id").
		Where("reporting_relationships.client_id = ? AND reporting_relationships.active = ? AND reporting_relationships.id <> ?", rr.ClientID, true, rr.ID)
	if owner.DepartmentID == nil {
		q = q.Where("users.department_id IS NULL")
	} else {
		q = q.Where("users.department_id = ?", *owner.DepartmentID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrActiveRelationshipExists
	}
	return nil
}
