package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clientcomm/core/internal/database/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService tells caseworkers about new client activity, in the
// browser and by email
type NotificationService struct {
	db          *gorm.DB
	broadcaster Broadcaster
	mailer      Mailer
	logger      *zap.Logger
	baseURL     string
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(db *gorm.DB, broadcaster Broadcaster, mailer Mailer, logger *zap.Logger, baseURL string) *NotificationService {
	return &NotificationService{
		db:          db,
		broadcaster: broadcaster,
		mailer:      mailer,
		logger:      logger,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

type unreadConversation struct {
	ID        uint
	FirstName string
	LastName  string
}

// NotifyUnread publishes an alert summarizing the caseworker's unread conversations
func (s *NotificationService) NotifyUnread(ctx context.Context, userID uint) error {
	var unread []unreadConversation
	err := s.db.WithContext(ctx).
		Table("reporting_relationships").
		Select("reporting_relationships.id, clients.first_name, clients.last_name").
		Joins("JOIN clients ON clients.id = reporting_relationships.client_id").
		Where("reporting_relationships.user_id = ? AND reporting_relationships.active = ? AND reporting_relationships.has_unread_messages = ?", userID, true, true).
		Order("reporting_relationships.last_contacted_at DESC").
		Scan(&unread).Error
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	event := Event{
		Type:       EventTypeNotification,
		Properties: map[string]interface{}{"unread_clients": len(unread)},
	}
	if len(unread) == 1 {
		name := strings.TrimSpace(unread[0].FirstName + " " + unread[0].LastName)
		event.Text = fmt.Sprintf("You have an unread message from %s", name)
		event.LinkTo = fmt.Sprintf("/conversations/%d", unread[0].ID)
	} else {
		event.Text = fmt.Sprintf("You have unread messages from %d clients", len(unread))
		event.LinkTo = "/clients"
	}
	return s.broadcaster.Publish(ctx, UserChannel(userID), event)
}

// NotifyTransfer tells the receiving caseworker a client was handed to them
func (s *NotificationService) NotifyTransfer(ctx context.Context, toUserID uint, fromName string, client *models.Client, rrID uint, note string) error {
	text := fmt.Sprintf("%s transferred %s to you", fromName, client.FullName())
	if note != "" {
		text += ": " + note
	}
	return s.broadcaster.Publish(ctx, UserChannel(toUserID), Event{
		Type:   EventTypeNotification,
		LinkTo: fmt.Sprintf("/conversations/%d", rrID),
		Text:   text,
	})
}

// SendMessageEmail emails the owning caseworker about an inbound message.
// Messages read before the job runs are skipped.
func (s *NotificationService) SendMessageEmail(ctx context.Context, messageID uint) error {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Preload("Attachments").
		Preload("ReportingRelationship.User").
		Preload("ReportingRelationship.Client").
		First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rr := msg.ReportingRelationship
	if msg.Read || rr == nil || rr.User == nil || rr.Client == nil {
		return nil
	}
	if !rr.User.EmailSubscribe || rr.User.Email == "" {
		return nil
	}

	name := rr.Client.FullName()
	var body strings.Builder
	fmt.Fprintf(&body, "%s sent you a message:\n\n", name)
	if msg.Body != "" {
		body.WriteString(msg.Body)
		body.WriteString("\n")
	}
	if len(msg.Attachments) > 0 {
		fmt.Fprintf(&body, "[%d attachment(s)]\n", len(msg.Attachments))
	}
	fmt.Fprintf(&body, "\nReply at %s/conversations/%d\n", s.baseURL, rr.ID)

	err = s.mailer.Send(ctx, Mail{
		To:      rr.User.Email,
		Subject: fmt.Sprintf("New message from %s", name),
		Body:    body.String(),
	})
	if err != nil {
		s.logger.Warn("notification email failed", zap.Uint("message_id", msg.ID), zap.Error(err))
		return err
	}
	return nil
}

// HandleEmailJob adapts SendMessageEmail to the dispatcher
func (s *NotificationService) HandleEmailJob(ctx context.Context, payload JobPayload) error {
	return s.SendMessageEmail(ctx, payload.MessageID)
}
