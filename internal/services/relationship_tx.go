package services

import (
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// scheduledTypes are the message types that can sit unsent in a timeline
var scheduledTypes = []models.MessageType{models.MessageTypeText, models.MessageTypeCourtReminder}

// lockRelationships takes row locks on the given relationships for the rest
// of the transaction. SQLite serializes writers on its own.
func lockRelationships(tx *gorm.DB, ids ...uint) error {
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	var rows []models.ReportingRelationship
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
}

// saveRelationship writes rr without touching its associations so the
// BeforeSave validation sees only the relationship row
func saveRelationship(tx *gorm.DB, rr *models.ReportingRelationship) error {
	return tx.Omit(clause.Associations).Save(rr).Error
}

// refreshUserUnread recomputes a caseworker's unread flag from their active relationships
func refreshUserUnread(tx *gorm.DB, userID uint) error {
	var count int64
	err := tx.Model(&models.ReportingRelationship{}).
		Where("user_id = ? AND active = ? AND has_unread_messages = ?", userID, true, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("has_unread_messages", count > 0).Error
}

// countScheduled counts a relationship's unsent messages that are still in the future
func countScheduled(tx *gorm.DB, rrID uint, now time.Time) (int64, error) {
	var count int64
	err := tx.Model(&models.Message{}).
		Where("reporting_relationship_id = ? AND sent = ? AND send_at > ? AND type IN ?", rrID, false, now, scheduledTypes).
		Count(&count).Error
	return count, err
}

// countConversation counts a relationship's messages, markers excluded
func countConversation(tx *gorm.DB, rrID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Message{}).
		Where("reporting_relationship_id = ? AND type NOT IN ?", rrID, models.MarkerTypes).
		Count(&count).Error
	return count, err
}

// newMarker builds a system timeline entry. Markers are never delivered.
func newMarker(rrID uint, typ models.MessageType, body string, at time.Time) *models.Message {
	return &models.Message{
		Type:                    typ,
		Body:                    body,
		Read:                    true,
		SendAt:                  at,
		ReportingRelationshipID: rrID,
	}
}

// copyMissingDetails fills category, notes and status on dst where dst has none
func copyMissingDetails(dst, src *models.ReportingRelationship) {
	if !dst.HasCategory() && src.HasCategory() {
		dst.Category = src.Category
	}
	if dst.Notes == "" {
		dst.Notes = src.Notes
	}
	if dst.ClientStatusID == nil {
		dst.ClientStatusID = src.ClientStatusID
	}
}

func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}
