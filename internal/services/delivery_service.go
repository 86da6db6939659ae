package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/transport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageSender is the part of the provider used by the delivery pipeline
type MessageSender interface {
	Send(ctx context.Context, req transport.SendRequest) (transport.MessageInfo, error)
	Redact(ctx context.Context, sid string) (bool, error)
}

// DeliveryOutcome describes what a delivery run did
type DeliveryOutcome string

const (
	OutcomeSkipped     DeliveryOutcome = "skipped"
	OutcomeSent        DeliveryOutcome = "sent"
	OutcomeBlacklisted DeliveryOutcome = "blacklisted"
)

// DeliveryConfig tunes the delivery pipeline
type DeliveryConfig struct {
	StatusCallbackURL string
	RedactionDelay    time.Duration
	Policy            RetryPolicy
}

// DeliveryService sends due outbound messages and redacts them afterwards
type DeliveryService struct {
	db          *gorm.DB
	sender      MessageSender
	queue       *JobQueue
	broadcaster Broadcaster
	logService  *LogService
	logger      *zap.Logger
	cfg         DeliveryConfig
	now         func() time.Time
}

// NewDeliveryService creates a new DeliveryService
func NewDeliveryService(db *gorm.DB, sender MessageSender, queue *JobQueue, broadcaster Broadcaster, logService *LogService, logger *zap.Logger, cfg DeliveryConfig) *DeliveryService {
	if cfg.Policy.MaxRetries == 0 && cfg.Policy.Retryable == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	return &DeliveryService{
		db:          db,
		sender:      sender,
		queue:       queue,
		broadcaster: broadcaster,
		logService:  logService,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// HandleDeliverJob adapts Deliver to the dispatcher
func (s *DeliveryService) HandleDeliverJob(ctx context.Context, payload JobPayload) error {
	_, err := s.Deliver(ctx, payload.MessageID)
	return err
}

// HandleRedactJob adapts Redact to the dispatcher
func (s *DeliveryService) HandleRedactJob(ctx context.Context, payload JobPayload) error {
	return s.Redact(ctx, payload.MessageID)
}

// Deliver sends one message if it is still due. Running it again for a
// message that was already sent, deleted or rescheduled does nothing.
func (s *DeliveryService) Deliver(ctx context.Context, messageID uint) (DeliveryOutcome, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Preload("Attachments").
		Preload("ReportingRelationship.User.Department").
		Preload("ReportingRelationship.Client").
		First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug("message gone before delivery", zap.Uint("message_id", messageID))
		deliveriesTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}

	if msg.Sent || msg.IsMarker() || msg.SendAt.After(s.now()) {
		deliveriesTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}

	rr := msg.ReportingRelationship
	if rr != nil && rr.User != nil && rr.User.Department.IsUnclaimedUser(rr.UserID) {
		s.logger.Warn(fmt.Sprintf("Unclaimed user id: %d sent message id: %d", rr.UserID, msg.ID))
	}

	// a transfer or merge may have moved the message since it was written
	msg.NumberTo, msg.NumberFrom = currentAddresses(&msg)

	req := transport.SendRequest{
		To:             msg.NumberTo,
		From:           msg.NumberFrom,
		Body:           msg.Body,
		StatusCallback: s.cfg.StatusCallbackURL,
	}
	if len(msg.Attachments) > 0 {
		req.MediaURL = msg.Attachments[0].MediaURL
	}

	var info transport.MessageInfo
	sendErr := s.cfg.Policy.Do(ctx, func() error {
		var err error
		info, err = s.sender.Send(ctx, req)
		return err
	})

	switch {
	case sendErr == nil:
		return s.recordSent(ctx, &msg, info)
	case transport.IsBlacklisted(sendErr):
		return s.recordBlacklisted(ctx, &msg)
	default:
		deliveriesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("delivery failed", zap.Uint("message_id", msg.ID), zap.Error(sendErr))
		return "", fmt.Errorf("deliver message %d: %w", msg.ID, sendErr)
	}
}

// currentAddresses resolves the client's and department's numbers as they are
// now, falling back to what was stored on the message.
func currentAddresses(msg *models.Message) (to, from string) {
	to, from = msg.NumberTo, msg.NumberFrom
	rr := msg.ReportingRelationship
	if rr == nil {
		return to, from
	}
	if rr.Client != nil && rr.Client.PhoneNumber != "" {
		to = rr.Client.PhoneNumber
	}
	if rr.User != nil && rr.User.Department != nil && rr.User.Department.PhoneNumber != "" {
		from = rr.User.Department.PhoneNumber
	}
	return to, from
}

func (s *DeliveryService) recordSent(ctx context.Context, msg *models.Message, info transport.MessageInfo) (DeliveryOutcome, error) {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).
			Where("id = ? AND sent = ?", msg.ID, false).
			Updates(map[string]interface{}{
				"sent":          true,
				"number_to":     msg.NumberTo,
				"number_from":   msg.NumberFrom,
				"twilio_sid":    info.SID,
				"twilio_status": info.Status,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			s.logger.Warn("message marked sent by another worker", zap.Uint("message_id", msg.ID), zap.String("sid", info.SID))
			return nil
		}

		err := tx.Model(&models.ReportingRelationship{}).
			Where("id = ? AND (last_contacted_at IS NULL OR last_contacted_at < ?)", msg.ReportingRelationshipID, msg.SendAt).
			UpdateColumn("last_contacted_at", msg.SendAt).Error
		if err != nil {
			return err
		}

		_, err = s.queue.EnqueueTx(tx, models.JobKindRedactMessage, JobPayload{MessageID: msg.ID}, now.Add(s.cfg.RedactionDelay))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("record delivery of message %d: %w", msg.ID, err)
	}
	msg.Sent = true
	msg.TwilioSID = info.SID
	msg.TwilioStatus = info.Status

	deliveriesTotal.WithLabelValues(string(OutcomeSent)).Inc()
	s.publishDelivery(ctx, msg)

	var userID uint
	if msg.ReportingRelationship != nil {
		userID = msg.ReportingRelationship.UserID
	}
	s.logService.Track(userID, EventMessageSend, map[string]interface{}{
		"message_id":     msg.ID,
		"has_attachment": len(msg.Attachments) > 0,
		"type":           msg.Type,
	})
	return OutcomeSent, nil
}

func (s *DeliveryService) recordBlacklisted(ctx context.Context, msg *models.Message) (DeliveryOutcome, error) {
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{
			"sent":          true,
			"number_to":     msg.NumberTo,
			"number_from":   msg.NumberFrom,
			"twilio_sid":    "",
			"twilio_status": models.StatusBlacklisted,
		}).Error
	if err != nil {
		return "", err
	}
	msg.Sent = true
	msg.TwilioStatus = models.StatusBlacklisted

	deliveriesTotal.WithLabelValues(string(OutcomeBlacklisted)).Inc()
	s.logger.Info("recipient opted out", zap.Uint("message_id", msg.ID), zap.String("to", msg.NumberTo))
	s.publishDelivery(ctx, msg)
	return OutcomeBlacklisted, nil
}

func (s *DeliveryService) publishDelivery(ctx context.Context, msg *models.Message) {
	rr := msg.ReportingRelationship
	if rr == nil {
		return
	}
	_ = s.broadcaster.Publish(ctx, ConversationChannel(rr.UserID, rr.ClientID), Event{
		Type: EventTypeMessageStatus,
		Properties: map[string]interface{}{
			"message_id":    msg.ID,
			"twilio_status": msg.TwilioStatus,
		},
	})

	count, err := countScheduled(s.db.WithContext(ctx), rr.ID, s.now())
	if err != nil {
		s.logger.Warn("count scheduled messages", zap.Uint("rr_id", rr.ID), zap.Error(err))
		return
	}
	_ = s.broadcaster.Publish(ctx, ScheduledChannel(rr.UserID, rr.ClientID), Event{
		Type:       EventTypeScheduledCount,
		LinkTo:     fmt.Sprintf("/conversations/%d/scheduled", rr.ID),
		Properties: map[string]interface{}{"count": count},
	})
}

// Redact asks the provider to erase a sent message's body and media.
// A message the provider cannot redact yet is logged, not retried.
func (s *DeliveryService) Redact(ctx context.Context, messageID uint) error {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if msg.TwilioSID == "" {
		return nil
	}

	var redacted bool
	err = s.cfg.Policy.Do(ctx, func() error {
		var err error
		redacted, err = s.sender.Redact(ctx, msg.TwilioSID)
		return err
	})
	if err != nil {
		return fmt.Errorf("redact message %d: %w", msg.ID, err)
	}
	if !redacted {
		s.logger.Info("message not redacted", zap.Uint("message_id", msg.ID), zap.String("sid", msg.TwilioSID))
	}
	return nil
}
