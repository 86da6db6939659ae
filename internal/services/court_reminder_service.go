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

const courtReminderTemplate = "Reminder: you have court on %s at %s, room %s at %s. Reply to this message if you have questions."

// ImportRequest is one uploaded court date export
type ImportRequest struct {
	UserID    uint
	FileName  string
	Dates     []CourtDate
	Locations map[string]string
}

// ImportResult summarizes an import
type ImportResult struct {
	Batch     *models.CourtDateCSV
	Scheduled int
	Skipped   int
}

// CourtReminderService turns court date exports into reminder messages
type CourtReminderService struct {
	db          *gorm.DB
	queue       *JobQueue
	broadcaster Broadcaster
	logService  *LogService
	logger      *zap.Logger
	loc         *time.Location
	now         func() time.Time
}

// NewCourtReminderService creates a new CourtReminderService. Court dates are
// read in loc.
func NewCourtReminderService(db *gorm.DB, queue *JobQueue, broadcaster Broadcaster, logService *LogService, logger *zap.Logger, loc *time.Location) *CourtReminderService {
	if loc == nil {
		loc = time.UTC
	}
	return &CourtReminderService{
		db:          db,
		queue:       queue,
		broadcaster: broadcaster,
		logService:  logService,
		logger:      logger,
		loc:         loc,
		now:         time.Now,
	}
}

type parsedCourtDate struct {
	CourtDate
	At time.Time
}

// parseCourtDates validates every row before anything is written
func (s *CourtReminderService) parseCourtDates(dates []CourtDate) ([]parsedCourtDate, error) {
	parsed := make([]parsedCourtDate, 0, len(dates))
	for _, d := range dates {
		if d.PersonID == "" {
			continue
		}
		day, err := time.ParseInLocation("1/2/2006", d.Date, s.loc)
		if err != nil {
			return nil, &ImportValidationError{Row: d.Row, Field: colDate, Value: d.Date, Err: err}
		}
		clock, err := time.Parse("15:04", d.Time)
		if err != nil {
			return nil, &ImportValidationError{Row: d.Row, Field: colTime, Value: d.Time, Err: err}
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, s.loc)
		parsed = append(parsed, parsedCourtDate{CourtDate: d, At: at})
	}
	return parsed, nil
}

// Import replaces all pending court reminders with ones built from req.
// A malformed date or time aborts the import before any write.
func (s *CourtReminderService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	parsed, err := s.parseCourtDates(req.Dates)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &ImportResult{Skipped: len(req.Dates) - len(parsed)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []uint
		err := tx.Model(&models.Message{}).
			Where("type = ? AND sent = ? AND court_date_csv_id IS NOT NULL", models.MessageTypeCourtReminder, false).
			Pluck("id", &stale).Error
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			if err := tx.Where("message_id IN ?", stale).Delete(&models.Attachment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", stale).Delete(&models.Message{}).Error; err != nil {
				return err
			}
		}

		batch := &models.CourtDateCSV{FileName: req.FileName, UserID: req.UserID}
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		result.Batch = batch

		matches := make(map[string]*models.ReportingRelationship)
		for _, d := range parsed {
			sendAt := d.At.Add(-24 * time.Hour)
			if sendAt.Before(now) {
				result.Skipped++
				continue
			}

			rr, seen := matches[d.PersonID]
			if !seen {
				rr, err = pickRelationship(tx, d.PersonID)
				if err != nil {
					return err
				}
				matches[d.PersonID] = rr
			}
			// no department means no number to send from
			if rr == nil || rr.User == nil || rr.User.Department == nil {
				result.Skipped++
				continue
			}

			location, ok := req.Locations[d.CaseCode]
			if !ok {
				location = d.CaseCode
			}
			body := fmt.Sprintf(courtReminderTemplate, d.At.Format("1/2/2006"), d.At.Format("3:04pm"), d.Room, location)
			_, err := createOutboundTx(tx, s.queue, rr, outboundMessage{
				Body:           body,
				SendAt:         sendAt,
				Type:           models.MessageTypeCourtReminder,
				CourtDateCSVID: &batch.ID,
			})
			if err != nil {
				return err
			}

			err = tx.Model(&models.Client{}).
				Where("id = ? AND next_court_date_set_by_user = ?", rr.ClientID, false).
				UpdateColumn("next_court_date_at", d.At).Error
			if err != nil {
				return err
			}
			result.Scheduled++
		}

		batch.Scheduled = result.Scheduled
		return tx.Model(batch).UpdateColumn("scheduled", result.Scheduled).Error
	})
	if err != nil {
		return nil, fmt.Errorf("import court dates: %w", err)
	}

	courtRemindersScheduled.Add(float64(result.Scheduled))
	s.logger.Info("court dates imported",
		zap.String("file", req.FileName),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("skipped", result.Skipped))
	s.logService.Track(req.UserID, EventCourtReminderImport, map[string]interface{}{
		"batch_id":  result.Batch.ID,
		"scheduled": result.Scheduled,
		"skipped":   result.Skipped,
	})
	if req.UserID != 0 {
		_ = s.broadcaster.Publish(ctx, UserChannel(req.UserID), Event{
			Type:       EventTypeCourtImportReady,
			Text:       fmt.Sprintf("%d court reminders scheduled", result.Scheduled),
			Properties: map[string]interface{}{"batch_id": result.Batch.ID, "scheduled": result.Scheduled},
		})
	}
	return result, nil
}

// pickRelationship chooses the active relationship a court date belongs to:
// the one whose client was most recently in contact. Unread inbound messages
// and markers do not count as contact. Relationships without any contact
// lose to ones with contact; ties go to the oldest relationship.
func pickRelationship(tx *gorm.DB, personID string) (*models.ReportingRelationship, error) {
	var candidates []models.ReportingRelationship
	err := tx.Preload("User.Department").Preload("Client").
		Joins("JOIN clients ON clients.id = reporting_relationships.client_id").
		Joins("JOIN users ON users.id = reporting_relationships.user_id").
		Where("clients.id_number = ? AND reporting_relationships.active = ?", personID, true).
		Where("users.department_id IS NOT NULL").
		Order("reporting_relationships.id ASC").
		Find(&candidates).Error
	if err != nil || len(candidates) == 0 {
		return nil, err
	}

	var best *models.ReportingRelationship
	var bestAt time.Time
	for i := range candidates {
		var last models.Message
		err := tx.Where("reporting_relationship_id = ? AND sent = ? AND type NOT IN ?", candidates[i].ID, true, models.MarkerTypes).
			Where("NOT (inbound = ? AND read = ?)", true, false).
			Order("send_at DESC").
			Limit(1).
			Take(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if best == nil {
				best = &candidates[i]
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if best == nil || bestAt.IsZero() || last.SendAt.After(bestAt) {
			best = &candidates[i]
			bestAt = last.SendAt
		}
	}
	return best, nil
}
