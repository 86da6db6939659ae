package models

import "time"

// Log is one persisted audit entry or analytics event. Analytics rows use
// LogModuleAnalytics with the event name as Action.
type Log struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Level     string    `gorm:"size:10;index" json:"level"`
	Module    string    `gorm:"size:30;index:idx_logs_module_action" json:"module"`
	Action    string    `gorm:"size:60;index:idx_logs_module_action" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// LogModule names the area of the product that wrote a row
type LogModule string

const (
	LogModuleAuth         LogModule = "auth"
	LogModuleUser         LogModule = "user"
	LogModuleAnalytics    LogModule = "analytics"
	LogModuleDelivery     LogModule = "delivery"
	LogModuleInbound      LogModule = "inbound"
	LogModuleRelationship LogModule = "relationship"
	LogModuleCourt        LogModule = "court"
	LogModuleCLI          LogModule = "cli"
)
