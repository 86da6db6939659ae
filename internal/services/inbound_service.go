package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/functions/local"
	"github.com/clientcomm/core/internal/storage"
	"github.com/clientcomm/core/internal/transport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MediaFetcher downloads inbound media from the provider
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) (transport.Media, error)
}

// InboundSMS is a provider webhook for a received message
type InboundSMS struct {
	From      string
	To        string
	Body      string
	SID       string
	Status    string
	MediaURLs []string
}

// InboundService records received messages and delivery status callbacks
type InboundService struct {
	db            *gorm.DB
	fetcher       MediaFetcher
	media         *storage.Storage
	queue         *JobQueue
	broadcaster   Broadcaster
	notifications *NotificationService
	logService    *LogService
	logger        *zap.Logger
	now           func() time.Time
}

// NewInboundService creates a new InboundService
func NewInboundService(db *gorm.DB, fetcher MediaFetcher, media *storage.Storage, queue *JobQueue, broadcaster Broadcaster, notifications *NotificationService, logService *LogService, logger *zap.Logger) *InboundService {
	return &InboundService{
		db:            db,
		fetcher:       fetcher,
		media:         media,
		queue:         queue,
		broadcaster:   broadcaster,
		notifications: notifications,
		logService:    logService,
		logger:        logger,
		now:           time.Now,
	}
}

// inboundTarget is the resolved destination of a received message
type inboundTarget struct {
	rr         *models.ReportingRelationship
	department *models.Department
	created    bool
}

// resolveRelationship finds the conversation a message belongs to: the
// client is matched on From, the caseworker on their department's number
// matching To. Active relationships win, then the most recently used.
// A client no caseworker in the department owns goes to its unclaimed user.
func resolveRelationship(tx *gorm.DB, from, to string) (*inboundTarget, error) {
	var client models.Client
	err := tx.Where("phone_number = ?", from).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownSender
	}
	if err != nil {
		return nil, err
	}

	var department *models.Department
	var dept models.Department
	err = tx.Where("phone_number = ?", to).Order("id").First(&dept).Error
	switch {
	case err == nil:
		department = &dept
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	query := tx.Model(&models.ReportingRelationship{}).
		Select("reporting_relationships.*").
		Joins("JOIN users ON users.id = reporting_relationships.user_id").
		Where("reporting_relationships.client_id = ?", client.ID)
	if department != nil {
		query = query.Where("users.department_id = ?", department.ID)
	}

	var rr models.ReportingRelationship
	err = query.
		Order("reporting_relationships.active DESC").
		Order("COALESCE(reporting_relationships.last_contacted_at, reporting_relationships.created_at) DESC").
		Order("reporting_relationships.id DESC").
		First(&rr).Error
	if err == nil {
		rr.Client = &client
		return &inboundTarget{rr: &rr, department: department}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if department == nil || department.UnclaimedUserID == nil {
		return nil, ErrUnknownSender
	}
	rr = models.ReportingRelationship{
		UserID:   *department.UnclaimedUserID,
		ClientID: client.ID,
		Active:   true,
	}
	if err := saveRelationship(tx, &rr); err != nil {
		return nil, err
	}
	rr.Client = &client
	return &inboundTarget{rr: &rr, department: department, created: true}, nil
}

// ReceiveMessage stores an inbound message and notifies the owning caseworker.
// It returns ErrUnknownSender when no conversation can take the message.
func (s *InboundService) ReceiveMessage(ctx context.Context, in InboundSMS) (*models.Message, error) {
	now := s.now()
	var target *inboundTarget
	var msg *models.Message
	var user models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		target, err = resolveRelationship(tx, in.From, in.To)
		if err != nil {
			return err
		}
		rr := target.rr
		if err := lockRelationships(tx, rr.ID); err != nil {
			return err
		}

		msg = &models.Message{
			Type:                    models.MessageTypeText,
			Body:                    in.Body,
			NumberFrom:              in.From,
			NumberTo:                in.To,
			Inbound:                 true,
			Sent:                    true,
			SendAt:                  now,
			TwilioSID:               in.SID,
			TwilioStatus:            in.Status,
			ReportingRelationshipID: rr.ID,
		}
		if reaction, ok := local.DetectReaction(in.Body); ok {
			msg.LikeMessageID = findReactedMessage(tx, rr.ID, reaction)
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		rr.Active = true
		rr.LastContactedAt = &now
		rr.HasUnreadMessages = true
		rr.HasMessageError = false
		if err := saveRelationship(tx, rr); err != nil {
			return err
		}
		if err := tx.Model(&models.Client{}).Where("id = ?", rr.ClientID).UpdateColumn("active", true).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", rr.UserID).UpdateColumn("has_unread_messages", true).Error; err != nil {
			return err
		}
		return tx.First(&user, rr.UserID).Error
	})
	if errors.Is(err, ErrUnknownSender) {
		inboundMessagesTotal.WithLabelValues("unknown_sender").Inc()
		s.logger.Warn("message from unknown sender", zap.String("from", in.From), zap.String("to", in.To), zap.String("sid", in.SID))
		return nil, err
	}
	if err != nil {
		inboundMessagesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("receive message %s: %w", in.SID, err)
	}
	inboundMessagesTotal.WithLabelValues("stored").Inc()

	rr := target.rr
	msg.Attachments = s.storeAttachments(ctx, msg.ID, in.MediaURLs)

	_ = s.broadcaster.Publish(ctx, ConversationChannel(rr.UserID, rr.ClientID), Event{
		Type:   EventTypeMessage,
		LinkTo: fmt.Sprintf("/conversations/%d", rr.ID),
		Properties: map[string]interface{}{
			"message_id": msg.ID,
			"inbound":    true,
		},
	})
	if err := s.notifications.NotifyUnread(ctx, rr.UserID); err != nil {
		s.logger.Warn("unread notification failed", zap.Uint("user_id", rr.UserID), zap.Error(err))
	}
	if user.EmailSubscribe {
		if _, err := s.queue.Enqueue(ctx, models.JobKindNotificationEmail, JobPayload{MessageID: msg.ID}, now); err != nil {
			s.logger.Warn("queue notification email", zap.Uint("message_id", msg.ID), zap.Error(err))
		}
	}
	if target.created {
		s.sendUnclaimedResponse(ctx, target)
	}

	s.logService.Track(rr.UserID, EventMessageReceive, map[string]interface{}{
		"client_id":      rr.ClientID,
		"message_id":     msg.ID,
		"has_attachment": len(msg.Attachments) > 0,
		"unclaimed":      target.department.IsUnclaimedUser(rr.UserID),
	})
	return msg, nil
}

// findReactedMessage returns the newest outbound message the reaction quotes
func findReactedMessage(tx *gorm.DB, rrID uint, reaction local.Reaction) *uint {
	var recent []models.Message
	err := tx.Where("reporting_relationship_id = ? AND inbound = ? AND sent = ?", rrID, false, true).
		Order("send_at DESC, id DESC").
		Limit(50).
		Find(&recent).Error
	if err != nil {
		return nil
	}
	for _, candidate := range recent {
		if reaction.MatchesQuoted(candidate.Body) {
			id := candidate.ID
			return &id
		}
	}
	return nil
}

// storeAttachments downloads inbound media. A failed item is logged and skipped.
func (s *InboundService) storeAttachments(ctx context.Context, messageID uint, urls []string) []models.Attachment {
	var attachments []models.Attachment
	for _, mediaURL := range urls {
		media, err := s.fetcher.FetchMedia(ctx, mediaURL)
		if err != nil {
			s.logger.Warn("fetch media", zap.Uint("message_id", messageID), zap.String("url", mediaURL), zap.Error(err))
			continue
		}
		path, err := s.media.SaveMedia(messageID, media.ContentType, media.Data)
		if err != nil {
			s.logger.Warn("save media", zap.Uint("message_id", messageID), zap.Error(err))
			continue
		}

		attachment := models.Attachment{
			MessageID:   messageID,
			MediaURL:    mediaURL,
			ContentType: media.ContentType,
			FileSize:    int64(len(media.Data)),
			FilePath:    path,
		}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(media.Data)); err == nil {
			attachment.Width = cfg.Width
			attachment.Height = cfg.Height
		}
		if err := s.db.WithContext(ctx).Create(&attachment).Error; err != nil {
			s.logger.Warn("store attachment", zap.Uint("message_id", messageID), zap.Error(err))
			continue
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}

// sendUnclaimedResponse answers a client who reached a department with no
// caseworker, once, when the unclaimed conversation is opened
func (s *InboundService) sendUnclaimedResponse(ctx context.Context, target *inboundTarget) {
	if target.department == nil || target.department.UnclaimedResponse == "" {
		return
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rr, err := loadOwnedRelationship(tx, target.rr.UserID, target.rr.ID)
		if err != nil {
			return err
		}
		_, err = createOutboundTx(tx, s.queue, rr, outboundMessage{
			Body:   target.department.UnclaimedResponse,
			SendAt: s.now(),
		})
		return err
	})
	if err != nil {
		s.logger.Warn("queue unclaimed response", zap.Uint("rr_id", target.rr.ID), zap.Error(err))
	}
}

// UpdateStatus applies a provider delivery status callback. Unknown
// message ids are ignored.
func (s *InboundService) UpdateStatus(ctx context.Context, sid, status string) error {
	statusCallbacksTotal.WithLabelValues(status).Inc()

	var msg models.Message
	err := s.db.WithContext(ctx).Preload("ReportingRelationship").Where("twilio_sid = ?", sid).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug("status for unknown message", zap.String("sid", sid), zap.String("status", status))
		return nil
	}
	if err != nil {
		return err
	}
	// changed is decided by the conditional update, so only one of several
	// concurrent duplicate callbacks counts as the transition
	var changed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRelationships(tx, msg.ReportingRelationshipID); err != nil {
			return err
		}
		result := tx.Model(&models.Message{}).
			Where("id = ? AND twilio_status <> ?", msg.ID, status).
			UpdateColumn("twilio_status", status)
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		switch {
		case status == models.StatusDelivered:
			return tx.Model(&models.ReportingRelationship{}).Where("id = ?", msg.ReportingRelationshipID).
				UpdateColumn("has_message_error", false).Error
		case models.IsFailureStatus(status):
			return tx.Model(&models.ReportingRelationship{}).Where("id = ?", msg.ReportingRelationshipID).
				UpdateColumn("has_message_error", true).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update status of %s: %w", sid, err)
	}

	rr := msg.ReportingRelationship
	if rr == nil {
		return nil
	}
	_ = s.broadcaster.Publish(ctx, ConversationChannel(rr.UserID, rr.ClientID), Event{
		Type: EventTypeMessageStatus,
		Properties: map[string]interface{}{
			"message_id":    msg.ID,
			"twilio_status": status,
		},
	})
	if models.IsFailureStatus(status) && changed {
		s.logService.Track(rr.UserID, EventMessageSendFailed, map[string]interface{}{
			"message_id": msg.ID,
			"status":     status,
		})
	}
	return nil
}
