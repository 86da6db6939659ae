package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"gorm.io/gorm"
)

// SendMessageInput is a caseworker's outbound message. A nil SendAt sends now.
type SendMessageInput struct {
	Body     string
	MediaURL string
	SendAt   *time.Time
}

// outboundMessage describes a message to create and queue for delivery
type outboundMessage struct {
	Body           string
	MediaURL       string
	SendAt         time.Time
	Type           models.MessageType
	CourtDateCSVID *uint
}

// MessageService creates, reschedules and lists a caseworker's messages
type MessageService struct {
	db          *gorm.DB
	queue       *JobQueue
	broadcaster Broadcaster
	now         func() time.Time
}

// NewMessageService creates a new MessageService
func NewMessageService(db *gorm.DB, queue *JobQueue, broadcaster Broadcaster) *MessageService {
	return &MessageService{
		db:          db,
		queue:       queue,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// createOutboundTx stores an outbound message for rr and queues its delivery.
// rr must have User.Department and Client loaded.
func createOutboundTx(tx *gorm.DB, queue *JobQueue, rr *models.ReportingRelationship, out outboundMessage) (*models.Message, error) {
	if rr.User == nil || rr.User.Department == nil {
		return nil, ErrDepartmentNotFound
	}
	if rr.Client == nil {
		return nil, ErrClientNotFound
	}
	if out.Type == "" {
		out.Type = models.MessageTypeText
	}

	msg := &models.Message{
		Type:                    out.Type,
		Body:                    out.Body,
		NumberFrom:              rr.User.Department.PhoneNumber,
		NumberTo:                rr.Client.PhoneNumber,
		Read:                    true,
		SendAt:                  out.SendAt,
		ReportingRelationshipID: rr.ID,
		CourtDateCSVID:          out.CourtDateCSVID,
	}
	if err := tx.Create(msg).Error; err != nil {
		return nil, err
	}
	if out.MediaURL != "" {
		attachment := models.Attachment{MessageID: msg.ID, MediaURL: out.MediaURL}
		if err := tx.Create(&attachment).Error; err != nil {
			return nil, err
		}
		msg.Attachments = []models.Attachment{attachment}
	}
	if _, err := queue.EnqueueTx(tx, models.JobKindDeliverMessage, JobPayload{MessageID: msg.ID}, out.SendAt); err != nil {
		return nil, err
	}
	return msg, nil
}

// loadOwnedRelationship loads an active relationship belonging to userID
// with its client and the caseworker's department
func loadOwnedRelationship(tx *gorm.DB, userID, rrID uint) (*models.ReportingRelationship, error) {
	var rr models.ReportingRelationship
	err := tx.Preload("User.Department").Preload("Client").
		Where("id = ? AND user_id = ?", rrID, userID).
		First(&rr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRelationshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

func (s *MessageService) validate(body, mediaURL string, sendAt *time.Time) error {
	if strings.TrimSpace(body) == "" && mediaURL == "" {
		return &ValidationError{Field: "body", Message: "message is empty"}
	}
	if sendAt != nil && sendAt.Before(s.now().Add(-time.Minute)) {
		return &ValidationError{Field: "send_at", Message: "must be in the future"}
	}
	return nil
}

// Send creates an outbound message in a conversation and queues it
func (s *MessageService) Send(ctx context.Context, userID, rrID uint, in SendMessageInput) (*models.Message, error) {
	if err := s.validate(in.Body, in.MediaURL, in.SendAt); err != nil {
		return nil, err
	}
	sendAt := s.now()
	if in.SendAt != nil {
		sendAt = *in.SendAt
	}

	var msg *models.Message
	var rr *models.ReportingRelationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rr, err = loadOwnedRelationship(tx, userID, rrID)
		if err != nil {
			return err
		}
		if !rr.Active {
			return ErrRelationshipNotFound
		}
		msg, err = createOutboundTx(tx, s.queue, rr, outboundMessage{Body: in.Body, MediaURL: in.MediaURL, SendAt: sendAt})
		return err
	})
	if err != nil {
		return nil, err
	}

	if msg.SendAt.After(s.now()) {
		s.publishScheduledCount(ctx, rr)
	}
	return msg, nil
}

// Reschedule changes the body and send time of a message that has not gone out
func (s *MessageService) Reschedule(ctx context.Context, userID, messageID uint, body string, sendAt time.Time) (*models.Message, error) {
	if err := s.validate(body, "", &sendAt); err != nil {
		return nil, err
	}

	var msg models.Message
	var rr *models.ReportingRelationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&msg, messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		var err error
		rr, err = loadOwnedRelationship(tx, userID, msg.ReportingRelationshipID)
		if err != nil {
			return ErrMessageNotFound
		}
		if msg.Sent || msg.IsMarker() {
			return ErrNotScheduled
		}

		err = tx.Model(&msg).Updates(map[string]interface{}{"body": body, "send_at": sendAt}).Error
		if err != nil {
			return err
		}
		// The earlier job is left to run and skip on the changed send time.
		_, err = s.queue.EnqueueTx(tx, models.JobKindDeliverMessage, JobPayload{MessageID: msg.ID}, sendAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishScheduledCount(ctx, rr)
	return &msg, nil
}

// DeleteScheduled removes a message that has not gone out
func (s *MessageService) DeleteScheduled(ctx context.Context, userID, messageID uint) error {
	var rr *models.ReportingRelationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		var err error
		rr, err = loadOwnedRelationship(tx, userID, msg.ReportingRelationshipID)
		if err != nil {
			return ErrMessageNotFound
		}
		if msg.Sent || msg.IsMarker() {
			return ErrNotScheduled
		}
		if err := tx.Where("message_id = ?", msg.ID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&msg).Error
	})
	if err != nil {
		return err
	}

	s.publishScheduledCount(ctx, rr)
	return nil
}

// List returns a conversation's timeline in send order
func (s *MessageService) List(ctx context.Context, userID, rrID uint) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadOwnedRelationship(db, userID, rrID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := db.Preload("Attachments").
		Where("reporting_relationship_id = ?", rrID).
		Order("send_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// ListScheduled returns a conversation's messages waiting to go out
func (s *MessageService) ListScheduled(ctx context.Context, userID, rrID uint) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadOwnedRelationship(db, userID, rrID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := db.Preload("Attachments").
		Where("reporting_relationship_id = ? AND sent = ? AND send_at > ? AND type IN ?", rrID, false, s.now(), scheduledTypes).
		Order("send_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

func (s *MessageService) publishScheduledCount(ctx context.Context, rr *models.ReportingRelationship) {
	count, err := countScheduled(s.db.WithContext(ctx), rr.ID, s.now())
	if err != nil {
		return
	}
	_ = s.broadcaster.Publish(ctx, ScheduledChannel(rr.UserID, rr.ClientID), Event{
		Type:       EventTypeScheduledCount,
		LinkTo:     fmt.Sprintf("/conversations/%d/scheduled", rr.ID),
		Properties: map[string]interface{}{"count": count},
	})
}
