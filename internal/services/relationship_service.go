package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RelationshipService moves clients between caseworkers and retires conversations
type RelationshipService struct {
	db            *gorm.DB
	broadcaster   Broadcaster
	notifications *NotificationService
	media         mediaRemover
	logService    *LogService
	logger        *zap.Logger
	now           func() time.Time
}

type mediaRemover interface {
	DeleteMedia(messageID uint) error
}

// NewRelationshipService creates a new RelationshipService. media may be nil.
func NewRelationshipService(db *gorm.DB, broadcaster Broadcaster, notifications *NotificationService, media mediaRemover, logService *LogService, logger *zap.Logger) *RelationshipService {
	return &RelationshipService{
		db:            db,
		broadcaster:   broadcaster,
		notifications: notifications,
		media:         media,
		logService:    logService,
		logger:        logger,
		now:           time.Now,
	}
}

// TransferRequest hands a client from one caseworker to another
type TransferRequest struct {
	RelationshipID uint
	ToUserID       uint
	Note           string
}

// TransferResult reports both sides of a transfer
type TransferResult struct {
	From          *models.ReportingRelationship
	To            *models.ReportingRelationship
	MovedMessages int64
}

// MergeRequest folds one conversation into another. CopyName replaces the
// surviving client's name with the retired client's.
type MergeRequest struct {
	FromID   uint
	ToID     uint
	CopyName bool
}

// MergeResult reports the surviving conversation
type MergeResult struct {
	From          *models.ReportingRelationship
	To            *models.ReportingRelationship
	MovedMessages int64
}

// DeactivateResult reports what deactivation cleaned up
type DeactivateResult struct {
	Relationship     *models.ReportingRelationship
	MarkedRead       int64
	DeletedScheduled int64
}

func conflict(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConflictError{Op: op, Err: err}
}

func loadRelationship(tx *gorm.DB, id uint) (*models.ReportingRelationship, error) {
	var rr models.ReportingRelationship
	err := tx.Preload("User.Department").Preload("Client").First(&rr, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRelationshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

func sameDepartment(a, b *models.User) bool {
	return a.DepartmentID != nil && b.DepartmentID != nil && *a.DepartmentID == *b.DepartmentID
}

// Get returns a caseworker's relationship with its client loaded
func (s *RelationshipService) Get(ctx context.Context, userID, rrID uint) (*models.ReportingRelationship, error) {
	var rr models.ReportingRelationship
	err := s.db.WithContext(ctx).Preload("Client").Preload("ClientStatus").
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

// GetInDepartment returns a relationship held by userID or by a colleague in
// userID's department. Caseworkers without a department only see their own.
func (s *RelationshipService) GetInDepartment(ctx context.Context, userID, rrID uint) (*models.ReportingRelationship, error) {
	var rr models.ReportingRelationship
	err := s.db.WithContext(ctx).Preload("Client").Preload("ClientStatus").
		Joins("JOIN users ON users.id = reporting_relationships.user_id").
		Where("reporting_relationships.id = ?", rrID).
		Where("reporting_relationships.user_id = ? OR users.department_id = (?)",
			userID, s.db.Table("users").Select("department_id").Where("id = ?", userID)).
		First(&rr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRelationshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

// Transfer moves a client to another caseworker in the same department.
// Unsent messages follow the client; history stays with the old caseworker
// unless the old caseworker is the department's unclaimed user.
func (s *RelationshipService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	now := s.now()
	var from, to *models.ReportingRelationship
	var toUser models.User
	var moved int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRelationships(tx, req.RelationshipID); err != nil {
			return err
		}
		var err error
		from, err = loadRelationship(tx, req.RelationshipID)
		if err != nil {
			return err
		}
		if !from.Active {
			return &ValidationError{Field: "reporting_relationship", Message: "is not active"}
		}
		if err := tx.First(&toUser, req.ToUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if toUser.ID == from.UserID {
			return &ValidationError{Field: "user_id", Message: "client already belongs to this user"}
		}
		if !toUser.Active || !sameDepartment(from.User, &toUser) {
			return &ValidationError{Field: "user_id", Message: "must be an active user in the same department"}
		}
		unclaimed := from.User.Department.IsUnclaimedUser(from.UserID)

		from.Active = false
		if err := saveRelationship(tx, from); err != nil {
			return conflict("transfer", err)
		}

		var existing models.ReportingRelationship
		err = tx.Where("user_id = ? AND client_id = ?", toUser.ID, from.ClientID).First(&existing).Error
		switch {
		case err == nil:
			to = &existing
			if err := lockRelationships(tx, to.ID); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			to = &models.ReportingRelationship{UserID: toUser.ID, ClientID: from.ClientID}
		default:
			return err
		}
		to.Active = true
		copyMissingDetails(to, from)
		if unclaimed {
			to.LastContactedAt = laterOf(to.LastContactedAt, from.LastContactedAt)
			to.HasUnreadMessages = to.HasUnreadMessages || from.HasUnreadMessages
			from.HasUnreadMessages = false
			if err := saveRelationship(tx, from); err != nil {
				return conflict("transfer", err)
			}
		}
		if err := saveRelationship(tx, to); err != nil {
			return conflict("transfer", err)
		}

		query := tx.Model(&models.Message{}).Where("reporting_relationship_id = ?", from.ID)
		if unclaimed {
			query = query.Where("type NOT IN ?", models.MarkerTypes)
		} else {
			query = query.Where("sent = ? AND type IN ?", false, scheduledTypes)
		}
		result := query.UpdateColumn("reporting_relationship_id", to.ID)
		if result.Error != nil {
			return conflict("transfer", result.Error)
		}
		moved = result.RowsAffected

		clientName := from.Client.FullName()
		markers := []*models.Message{
			newMarker(from.ID, models.MessageTypeTransferMarker,
				fmt.Sprintf("%s was transferred to %s", clientName, toUser.FullName), now),
			newMarker(to.ID, models.MessageTypeTransferMarker,
				transferInBody(clientName, from.User.FullName, req.Note), now),
		}
		for _, marker := range markers {
			if err := tx.Create(marker).Error; err != nil {
				return conflict("transfer", err)
			}
		}

		if err := refreshUserUnread(tx, from.UserID); err != nil {
			return err
		}
		return refreshUserUnread(tx, toUser.ID)
	})
	if err != nil {
		return nil, err
	}

	s.publishRelationship(ctx, from, "transferred_out")
	s.publishRelationship(ctx, to, "transferred_in")
	if err := s.notifications.NotifyTransfer(ctx, toUser.ID, from.User.FullName, from.Client, to.ID, req.Note); err != nil {
		s.logger.Warn("transfer notification failed", zap.Uint("user_id", toUser.ID), zap.Error(err))
	}
	s.logService.Track(from.UserID, EventClientTransfer, map[string]interface{}{
		"client_id":      from.ClientID,
		"from_rr_id":     from.ID,
		"to_rr_id":       to.ID,
		"to_user_id":     toUser.ID,
		"moved_messages": moved,
		"has_note":       req.Note != "",
	})
	return &TransferResult{From: from, To: to, MovedMessages: moved}, nil
}

func transferInBody(clientName, fromName, note string) string {
	body := fmt.Sprintf("%s was transferred to you from %s", clientName, fromName)
	if note != "" {
		body += "\n" + note
	}
	return body
}

// Merge folds the from conversation into the to conversation. Every message
// moves, details missing on to are copied over and from is retired.
func (s *RelationshipService) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	now := s.now()
	var from, to *models.ReportingRelationship
	var moved int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.FromID == req.ToID {
			return &ValidationError{Field: "reporting_relationship", Message: "cannot merge a conversation into itself"}
		}
		if err := lockRelationships(tx, req.FromID, req.ToID); err != nil {
			return err
		}
		var err error
		if from, err = loadRelationship(tx, req.FromID); err != nil {
			return err
		}
		if to, err = loadRelationship(tx, req.ToID); err != nil {
			return err
		}
		if !sameDepartment(from.User, to.User) {
			return &ValidationError{Field: "reporting_relationship", Message: "conversations belong to different departments"}
		}

		result := tx.Model(&models.Message{}).
			Where("reporting_relationship_id = ?", from.ID).
			UpdateColumn("reporting_relationship_id", to.ID)
		if result.Error != nil {
			return conflict("merge", result.Error)
		}
		moved = result.RowsAffected

		err = tx.Model(&models.Message{}).
			Where("reporting_relationship_id = ? AND inbound = ? AND sent = ?", to.ID, false, false).
			UpdateColumn("number_to", to.Client.PhoneNumber).Error
		if err != nil {
			return conflict("merge", err)
		}

		to.LastContactedAt = laterOf(to.LastContactedAt, from.LastContactedAt)
		to.HasUnreadMessages = to.HasUnreadMessages || from.HasUnreadMessages
		copyMissingDetails(to, from)
		to.Active = true
		from.Active = false
		from.HasUnreadMessages = false

		if err := saveRelationship(tx, from); err != nil {
			return conflict("merge", err)
		}
		if err := saveRelationship(tx, to); err != nil {
			return conflict("merge", err)
		}

		fromName, fromPhone := from.Client.FullName(), from.Client.DisplayPhoneNumber()
		toName, toPhone := to.Client.FullName(), to.Client.DisplayPhoneNumber()
		markers := []*models.Message{
			newMarker(to.ID, models.MessageTypeConversationEndsMarker,
				fmt.Sprintf("Conversation with %s at %s ends here", fromName, fromPhone), now),
			newMarker(to.ID, models.MessageTypeMergeMarker,
				fmt.Sprintf("%s at %s was merged with %s at %s", fromName, fromPhone, toName, toPhone), now),
		}
		for _, marker := range markers {
			if err := tx.Create(marker).Error; err != nil {
				return conflict("merge", err)
			}
		}

		if req.CopyName && to.ClientID != from.ClientID {
			err := tx.Model(&models.Client{}).Where("id = ?", to.ClientID).
				Updates(map[string]interface{}{
					"first_name": from.Client.FirstName,
					"last_name":  from.Client.LastName,
				}).Error
			if err != nil {
				return conflict("merge", err)
			}
			to.Client.FirstName = from.Client.FirstName
			to.Client.LastName = from.Client.LastName
		}

		if err := refreshUserUnread(tx, to.UserID); err != nil {
			return err
		}
		if from.UserID != to.UserID {
			return refreshUserUnread(tx, from.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishRelationship(ctx, from, "merged_out")
	s.publishRelationship(ctx, to, "merged_in")
	s.logService.Track(to.UserID, EventClientMerge, map[string]interface{}{
		"from_rr_id":     from.ID,
		"to_rr_id":       to.ID,
		"moved_messages": moved,
		"copied_name":    req.CopyName,
	})
	return &MergeResult{From: from, To: to, MovedMessages: moved}, nil
}

// Deactivate retires a conversation: unread messages are marked read and
// messages still waiting to go out are deleted with their attachments
func (s *RelationshipService) Deactivate(ctx context.Context, rrID uint) (*DeactivateResult, error) {
	var rr *models.ReportingRelationship
	var markedRead, deleted int64
	var deletedIDs []uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRelationships(tx, rrID); err != nil {
			return err
		}
		var err error
		if rr, err = loadRelationship(tx, rrID); err != nil {
			return err
		}

		rr.Active = false
		rr.HasUnreadMessages = false
		if err := saveRelationship(tx, rr); err != nil {
			return conflict("deactivate", err)
		}

		result := tx.Model(&models.Message{}).
			Where("reporting_relationship_id = ? AND read = ?", rrID, false).
			UpdateColumn("read", true)
		if result.Error != nil {
			return result.Error
		}
		markedRead = result.RowsAffected

		err = tx.Model(&models.Message{}).
			Where("reporting_relationship_id = ? AND sent = ? AND type IN ?", rrID, false, scheduledTypes).
			Pluck("id", &deletedIDs).Error
		if err != nil {
			return err
		}
		if len(deletedIDs) > 0 {
			if err := tx.Where("message_id IN ?", deletedIDs).Delete(&models.Attachment{}).Error; err != nil {
				return err
			}
			result := tx.Where("id IN ?", deletedIDs).Delete(&models.Message{})
			if result.Error != nil {
				return result.Error
			}
			deleted = result.RowsAffected
		}

		return refreshUserUnread(tx, rr.UserID)
	})
	if err != nil {
		return nil, err
	}

	if s.media != nil {
		for _, id := range deletedIDs {
			if err := s.media.DeleteMedia(id); err != nil {
				s.logger.Warn("delete media", zap.Uint("message_id", id), zap.Error(err))
			}
		}
	}
	s.publishRelationship(ctx, rr, "deactivated")
	s.logService.Track(rr.UserID, EventClientDeactivate, map[string]interface{}{
		"rr_id":             rr.ID,
		"marked_read":       markedRead,
		"deleted_scheduled": deleted,
	})
	return &DeactivateResult{Relationship: rr, MarkedRead: markedRead, DeletedScheduled: deleted}, nil
}

// MarkMessagesRead clears a conversation's unread state. With updateUser the
// caseworker's own flag is recomputed as well.
func (s *RelationshipService) MarkMessagesRead(ctx context.Context, rrID uint, updateUser bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rr models.ReportingRelationship
		if err := tx.First(&rr, rrID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRelationshipNotFound
			}
			return err
		}
		err := tx.Model(&models.Message{}).
			Where("reporting_relationship_id = ? AND inbound = ? AND read = ?", rrID, true, false).
			UpdateColumn("read", true).Error
		if err != nil {
			return err
		}
		err = tx.Model(&models.ReportingRelationship{}).Where("id = ?", rrID).
			UpdateColumn("has_unread_messages", false).Error
		if err != nil {
			return err
		}
		if updateUser {
			return refreshUserUnread(tx, rr.UserID)
		}
		return nil
	})
}

// ListActive returns a caseworker's active conversations, unread first
func (s *RelationshipService) ListActive(ctx context.Context, userID uint) ([]models.ReportingRelationship, error) {
	var rrs []models.ReportingRelationship
	err := s.db.WithContext(ctx).
		Preload("Client").Preload("ClientStatus").
		Where("user_id = ? AND active = ?", userID, true).
		Order("has_unread_messages DESC").
		Order("COALESCE(last_contacted_at, created_at) DESC").
		Find(&rrs).Error
	return rrs, err
}

// DueForFollowUp returns active conversations whose status asks for contact
// every N days and that have gone quiet longer than that
func (s *RelationshipService) DueForFollowUp(ctx context.Context, userID uint) ([]models.ReportingRelationship, error) {
	var rrs []models.ReportingRelationship
	err := s.db.WithContext(ctx).
		Preload("Client").Preload("ClientStatus").
		Where("user_id = ? AND active = ? AND client_status_id IS NOT NULL", userID, true).
		Find(&rrs).Error
	if err != nil {
		return nil, err
	}

	now := s.now()
	var due []models.ReportingRelationship
	for _, rr := range rrs {
		if rr.ClientStatus == nil || rr.ClientStatus.FollowupDays == nil {
			continue
		}
		last := rr.CreatedAt
		if rr.LastContactedAt != nil {
			last = *rr.LastContactedAt
		}
		if last.Add(time.Duration(*rr.ClientStatus.FollowupDays) * 24 * time.Hour).Before(now) {
			due = append(due, rr)
		}
	}
	return due, nil
}

func (s *RelationshipService) publishRelationship(ctx context.Context, rr *models.ReportingRelationship, action string) {
	_ = s.broadcaster.Publish(ctx, UserChannel(rr.UserID), Event{
		Type:   EventTypeRelationship,
		LinkTo: fmt.Sprintf("/conversations/%d", rr.ID),
		Properties: map[string]interface{}{
			"action":    action,
			"client_id": rr.ClientID,
			"active":    rr.Active,
		},
	})
}
