package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/transport"
	"gorm.io/gorm"
)

// NumberNormalizer canonicalizes phone numbers with the provider
type NumberNormalizer interface {
	NormalizeNumber(ctx context.Context, raw string) (string, error)
}

// CreateOutcome says how a new client ended up in a caseload
type CreateOutcome string

const (
	OutcomeCreated        CreateOutcome = "created"
	OutcomeLinkedExisting CreateOutcome = "linked_existing"
	OutcomeReactivated    CreateOutcome = "reactivated"
)

// CreateClientInput is a caseworker's new client form
type CreateClientInput struct {
	FirstName      string
	LastName       string
	PhoneNumber    string
	IDNumber       string
	Notes          string
	ClientStatusID *uint
}

// CreateClientResult is the relationship the caseworker ends up with
type CreateClientResult struct {
	Relationship *models.ReportingRelationship
	Outcome      CreateOutcome
}

// ClientService adds clients to caseloads and edits client records
type ClientService struct {
	db         *gorm.DB
	normalizer NumberNormalizer
}

// NewClientService creates a new ClientService
func NewClientService(db *gorm.DB, normalizer NumberNormalizer) *ClientService {
	return &ClientService{db: db, normalizer: normalizer}
}

// CreateClient adds a client to the caseworker's caseload. A phone number
// already on file links the existing client, unless another caseworker in
// the department has them active.
func (s *ClientService) CreateClient(ctx context.Context, userID uint, in CreateClientInput) (*CreateClientResult, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" {
		return nil, &ValidationError{Field: "first_name", Message: "can't be blank"}
	}
	if in.LastName == "" {
		return nil, &ValidationError{Field: "last_name", Message: "can't be blank"}
	}
	phone, err := s.normalizer.NormalizeNumber(ctx, strings.TrimSpace(in.PhoneNumber))
	if errors.Is(err, transport.ErrNumberNotFound) {
		return nil, &ValidationError{Field: "phone_number", Message: "is not a valid phone number", Err: err}
	}
	if err != nil {
		return nil, err
	}

	var result CreateClientResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var client models.Client
		err := tx.Where("phone_number = ?", phone).First(&client).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			client = models.Client{
				FirstName:   in.FirstName,
				LastName:    in.LastName,
				PhoneNumber: phone,
				IDNumber:    in.IDNumber,
				Active:      true,
			}
			if err := tx.Create(&client).Error; err != nil {
				return err
			}
			rr := &models.ReportingRelationship{
				UserID:         userID,
				ClientID:       client.ID,
				Active:         true,
				Notes:          in.Notes,
				ClientStatusID: in.ClientStatusID,
			}
			if err := saveRelationship(tx, rr); err != nil {
				return conflict("create_client", err)
			}
			rr.Client = &client
			result = CreateClientResult{Relationship: rr, Outcome: OutcomeCreated}
			return nil
		}
		if err != nil {
			return err
		}

		var rr models.ReportingRelationship
		err = tx.Where("user_id = ? AND client_id = ?", userID, client.ID).First(&rr).Error
		switch {
		case err == nil && rr.Active:
			return &ValidationError{Field: "phone_number", Message: "client is already in your caseload"}
		case err == nil:
			rr.Active = true
			if rr.Notes == "" {
				rr.Notes = in.Notes
			}
			if err := saveRelationship(tx, &rr); err != nil {
				return conflict("create_client", err)
			}
			result = CreateClientResult{Relationship: &rr, Outcome: OutcomeReactivated}
		case errors.Is(err, gorm.ErrRecordNotFound):
			rr = models.ReportingRelationship{
				UserID:         userID,
				ClientID:       client.ID,
				Active:         true,
				Notes:          in.Notes,
				ClientStatusID: in.ClientStatusID,
			}
			if err := saveRelationship(tx, &rr); err != nil {
				return conflict("create_client", err)
			}
			result = CreateClientResult{Relationship: &rr, Outcome: OutcomeLinkedExisting}
		default:
			return err
		}

		if !client.Active {
			if err := tx.Model(&client).UpdateColumn("active", true).Error; err != nil {
				return err
			}
		}
		result.Relationship.Client = &client
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateDetailsInput edits a conversation's caseworker-owned fields. Nil fields are left alone.
type UpdateDetailsInput struct {
	Category       *string
	Notes          *string
	ClientStatusID *uint
}

// UpdateDetails edits category, notes and status on a caseworker's relationship
func (s *ClientService) UpdateDetails(ctx context.Context, userID, rrID uint, in UpdateDetailsInput) (*models.ReportingRelationship, error) {
	var rr models.ReportingRelationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND user_id = ?", rrID, userID).First(&rr).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRelationshipNotFound
		}
		if err != nil {
			return err
		}
		if in.Category != nil {
			if !models.ValidCategory(*in.Category) {
				return &ValidationError{Field: "category", Message: "is not a known category", Err: models.ErrInvalidCategory}
			}
			rr.Category = *in.Category
		}
		if in.Notes != nil {
			rr.Notes = *in.Notes
		}
		if in.ClientStatusID != nil {
			rr.ClientStatusID = in.ClientStatusID
		}
		return saveRelationship(tx, &rr)
	})
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

// SetCourtDate records a caseworker-entered court date. Imports no longer
// overwrite it. A nil date hands the field back to imports.
func (s *ClientService) SetCourtDate(ctx context.Context, userID, clientID uint, date *time.Time) error {
	db := s.db.WithContext(ctx)
	var count int64
	err := db.Model(&models.ReportingRelationship{}).
		Where("user_id = ? AND client_id = ?", userID, clientID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrClientNotFound
	}
	return db.Model(&models.Client{}).Where("id = ?", clientID).
		Updates(map[string]interface{}{
			"next_court_date_at":          date,
			"next_court_date_set_by_user": date != nil,
		}).Error
}
