package database

import (
	"path/filepath"
	"testing"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_MigratesSchema(t *testing.T) {
	db, err := Initialize(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)

	for _, model := range []interface{}{
		&models.Department{}, &models.User{}, &models.Client{}, &models.ClientStatus{},
		&models.ReportingRelationship{}, &models.Message{}, &models.Attachment{},
		&models.CourtDateCSV{}, &models.Job{}, &models.Log{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasIndex(&models.ReportingRelationship{}, "idx_rr_client_user"))
}

func TestInitialize_ColumnNames(t *testing.T) {
	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	columns := map[interface{}][]string{
		&models.Message{}: {
			"twilio_sid", "twilio_status", "number_to", "number_from", "send_at",
			"reporting_relationship_id", "original_reporting_relationship_id",
			"like_message_id", "court_date_csv_id",
		},
		&models.Client{}:                {"id_number", "phone_number", "next_court_date_at"},
		&models.Attachment{}:            {"media_url", "message_id"},
		&models.Department{}:            {"unclaimed_user_id", "phone_number"},
		&models.ReportingRelationship{}: {"has_unread_messages", "has_message_error", "last_contacted_at"},
	}
	for model, names := range columns {
		types, err := db.Migrator().ColumnTypes(model)
		require.NoError(t, err)
		have := make(map[string]bool, len(types))
		for _, ct := range types {
			have[ct.Name()] = true
		}
		for _, name := range names {
			assert.True(t, have[name], "%T is missing column %s", model, name)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle"})
	assert.Error(t, err)
}

func TestRelationshipValidation(t *testing.T) {
	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	dept := models.Department{Name: "Probation", PhoneNumber: "+14155550000"}
	require.NoError(t, db.Create(&dept).Error)
	other := models.Department{Name: "Parole", PhoneNumber: "+14155550001"}
	require.NoError(t, db.Create(&other).Error)

	alice := models.User{Email: "alice@example.org", PasswordHash: "x", DepartmentID: &dept.ID, Active: true}
	bob := models.User{Email: "bob@example.org", PasswordHash: "x", DepartmentID: &dept.ID, Active: true}
	carol := models.User{Email: "carol@example.org", PasswordHash: "x", DepartmentID: &other.ID, Active: true}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)
	require.NoError(t, db.Create(&carol).Error)

	client := models.Client{FirstName: "Jo", LastName: "Doe", PhoneNumber: "+14155551111"}
	require.NoError(t, db.Create(&client).Error)

	first := models.ReportingRelationship{UserID: alice.ID, ClientID: client.ID, Active: true}
	require.NoError(t, db.Create(&first).Error)
	assert.Equal(t, models.CategoryNone, first.Category)

	// same department, second active relationship
	second := models.ReportingRelationship{UserID: bob.ID, ClientID: client.ID, Active: true}
	assert.ErrorIs(t, db.Create(&second).Error, models.ErrActiveRelationshipExists)

	// inactive is allowed
	second.Active = false
	require.NoError(t, db.Create(&second).Error)

	// other department is allowed
	third := models.ReportingRelationship{UserID: carol.ID, ClientID: client.ID, Active: true}
	require.NoError(t, db.Create(&third).Error)

	// caseworkers without a department share one bucket
	dana := models.User{Email: "dana@example.org", PasswordHash: "x", Active: true}
	eli := models.User{Email: "eli@example.org", PasswordHash: "x", Active: true}
	require.NoError(t, db.Create(&dana).Error)
	require.NoError(t, db.Create(&eli).Error)
	loose := models.ReportingRelationship{UserID: dana.ID, ClientID: client.ID, Active: true}
	require.NoError(t, db.Create(&loose).Error)
	looser := models.ReportingRelationship{UserID: eli.ID, ClientID: client.ID, Active: true}
	assert.ErrorIs(t, db.Create(&looser).Error, models.ErrActiveRelationshipExists)

	bad := models.ReportingRelationship{ID: first.ID, UserID: alice.ID, ClientID: client.ID, Active: true, Category: "purple"}
	assert.ErrorIs(t, db.Save(&bad).Error, models.ErrInvalidCategory)
}
