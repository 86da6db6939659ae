package services

import (
	"encoding/json"

	"github.com/clientcomm/core/internal/database/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// Analytics event names
const (
	EventMessageReceive      = "message_receive"
	EventMessageSend         = "message_send"
	EventMessageSendFailed   = "message_send_failed"
	EventClientTransfer      = "client_transfer"
	EventClientMerge         = "client_merge"
	EventClientDeactivate    = "client_deactivate"
	EventCourtReminderImport = "court_reminder_import"
	EventLogin               = "login"
)

// LogService writes audit entries and analytics events to the logs table.
// Audit entries honour the configured level; analytics events are always kept.
type LogService struct {
	db     *gorm.DB
	logger *zap.Logger
	min    zapcore.Level
}

// NewLogService keeps audit entries at info and above
func NewLogService(db *gorm.DB, logger *zap.Logger) *LogService {
	return &LogService{db: db, logger: logger, min: zapcore.InfoLevel}
}

// NewLogServiceWithLevel uses the same level names as the zap logger.
// Unknown names fall back to info.
func NewLogServiceWithLevel(db *gorm.DB, logger *zap.Logger, level string) *LogService {
	s := NewLogService(db, logger)
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		s.min = lvl
	}
	return s
}

func (s *LogService) write(userID uint, level zapcore.Level, module models.LogModule, action, message string, details interface{}) error {
	row := &models.Log{
		UserID:  userID,
		Level:   level.String(),
		Module:  string(module),
		Action:  action,
		Message: message,
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			row.Details = string(raw)
		} else {
			s.logger.Debug("log details not serializable", zap.String("action", action), zap.Error(err))
		}
	}
	if err := s.db.Create(row).Error; err != nil {
		s.logger.Warn("failed to persist log entry", zap.String("module", row.Module), zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *LogService) audit(userID uint, level zapcore.Level, module models.LogModule, action, message string, details interface{}) error {
	if level < s.min {
		return nil
	}
	return s.write(userID, level, module, action, message, details)
}

// LogInfo records an info audit entry
func (s *LogService) LogInfo(userID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.audit(userID, zapcore.InfoLevel, module, action, message, details)
}

// LogWarn records a warn audit entry
func (s *LogService) LogWarn(userID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.audit(userID, zapcore.WarnLevel, module, action, message, details)
}

// LogError records an error audit entry
func (s *LogService) LogError(userID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.audit(userID, zapcore.ErrorLevel, module, action, message, details)
}

// Track records an analytics event. A failed write is logged and swallowed.
func (s *LogService) Track(userID uint, event string, details interface{}) {
	_ = s.write(userID, zapcore.InfoLevel, models.LogModuleAnalytics, event, event, details)
}

type loginDetails struct {
	Email    string `json:"email"`
	ClientIP string `json:"client_ip"`
	Error    string `json:"error,omitempty"`
}

// LogLogin records a sign-in attempt; failures are warnings
func (s *LogService) LogLogin(userID uint, email, clientIP string, success bool, err error) error {
	details := loginDetails{Email: email, ClientIP: clientIP}
	if err != nil {
		details.Error = err.Error()
	}
	if success {
		return s.LogInfo(userID, models.LogModuleAuth, EventLogin, "Login succeeded", details)
	}
	return s.LogWarn(userID, models.LogModuleAuth, EventLogin, "Login failed", details)
}

// CountEvents returns how many times an analytics event was recorded
func (s *LogService) CountEvents(event string) (int64, error) {
	var n int64
	err := s.db.Model(&models.Log{}).
		Where("module = ? AND action = ?", models.LogModuleAnalytics, event).
		Count(&n).Error
	return n, err
}
