package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Event types published to real-time subscribers
const (
	EventTypeMessage          = "message"
	EventTypeNotification     = "notification"
	EventTypeScheduledCount   = "scheduled_messages"
	EventTypeRelationship     = "relationship"
	EventTypeMessageStatus    = "message_status"
	EventTypeCourtImportReady = "court_import"
)

// Event is the payload carried on a broadcast channel
type Event struct {
	Type       string                 `json:"type"`
	LinkTo     string                 `json:"link_to,omitempty"`
	Text       string                 `json:"text,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Broadcaster fans events out to real-time subscribers
type Broadcaster interface {
	Publish(ctx context.Context, channel string, event Event) error
}

// UserChannel carries a caseworker's notifications
func UserChannel(userID uint) string {
	return fmt.Sprintf("events_%d", userID)
}

// ConversationChannel carries one relationship's timeline updates
func ConversationChannel(userID, clientID uint) string {
	return fmt.Sprintf("messages_%d_%d", userID, clientID)
}

// ScheduledChannel carries the scheduled message count for a conversation
func ScheduledChannel(userID, clientID uint) string {
	return fmt.Sprintf("scheduled_messages_%d_%d", userID, clientID)
}

// RedisBroadcaster publishes events with Redis PUBLISH
type RedisBroadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroadcaster creates a Redis-backed broadcaster
func NewRedisBroadcaster(client *redis.Client, logger *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, logger: logger}
}

// Publish sends event to every subscriber of channel
func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		b.logger.Warn("broadcast failed", zap.String("channel", channel), zap.String("type", event.Type), zap.Error(err))
		return err
	}
	return nil
}

// LogBroadcaster only logs events. Used when no Redis is configured.
type LogBroadcaster struct {
	logger *zap.Logger
}

// NewLogBroadcaster creates a broadcaster that writes events to the log
func NewLogBroadcaster(logger *zap.Logger) *LogBroadcaster {
	return &LogBroadcaster{logger: logger}
}

// Publish logs the event at debug level
func (b *LogBroadcaster) Publish(ctx context.Context, channel string, event Event) error {
	b.logger.Debug("broadcast", zap.String("channel", channel), zap.String("type", event.Type), zap.String("text", event.Text))
	return nil
}
