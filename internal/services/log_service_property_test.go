package services

import (
	"testing"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// Feature: clientcomm, Property 3: audit log completeness
// For any tracked event, exactly one analytics row exists afterwards carrying
// the user id and event name. Audit entries below the configured level are
// dropped; analytics events never are.

func TestProperty_TrackRecordsEvent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	eventGen := gen.OneConstOf(EventMessageReceive, EventMessageSendFailed, EventClientTransfer, EventClientMerge)

	properties.Property("track_creates_one_row", prop.ForAll(
		func(userID uint, event string) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewLogService(db, zap.NewNop())
			service.Track(userID, event, map[string]interface{}{"k": "v"})

			var rows []models.Log
			if err := db.Find(&rows).Error; err != nil || len(rows) != 1 {
				return false
			}
			row := rows[0]
			count, err := service.CountEvents(event)
			return err == nil && count == 1 &&
				row.UserID == userID &&
				row.Action == event &&
				row.Module == string(models.LogModuleAnalytics) &&
				row.Details == `{"k":"v"}`
		},
		gen.UIntRange(1, 1000), eventGen,
	))

	properties.Property("entries_below_level_dropped", prop.ForAll(
		func(userID uint) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewLogServiceWithLevel(db, zap.NewNop(), "warn")
			if err := service.LogInfo(userID, models.LogModuleUser, "noise", "noise", nil); err != nil {
				return false
			}
			if err := service.LogWarn(userID, models.LogModuleUser, "signal", "signal", nil); err != nil {
				return false
			}

			service.Track(userID, EventClientMerge, nil)

			var audit, analytics int64
			db.Model(&models.Log{}).Where("module = ?", models.LogModuleUser).Count(&audit)
			db.Model(&models.Log{}).Where("module = ?", models.LogModuleAnalytics).Count(&analytics)
			return audit == 1 && analytics == 1
		},
		gen.UIntRange(1, 1000),
	))

	properties.TestingRun(t)
}
