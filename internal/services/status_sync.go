package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/clientcomm/core/internal/database/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusLooker reads a message's current status from the provider
type StatusLooker interface {
	LookupStatus(ctx context.Context, sid string) (string, error)
}

// DefaultStatusSyncCron runs the sync every 15 minutes
const DefaultStatusSyncCron = "*/15 * * * *"

// StatusSyncScheduler catches up on status callbacks the provider never
// delivered: outbound messages stuck in a pending status for over an hour
// are looked up and fed through UpdateStatus.
type StatusSyncScheduler struct {
	db       *gorm.DB
	looker   StatusLooker
	inbound  *InboundService
	logger   *zap.Logger
	cronExpr string
	staleAge time.Duration
	batch    int

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewStatusSyncScheduler creates a new status sync scheduler. An empty cron
// expression uses DefaultStatusSyncCron.
func NewStatusSyncScheduler(db *gorm.DB, looker StatusLooker, inbound *InboundService, logger *zap.Logger, cronExpr string) (*StatusSyncScheduler, error) {
	if cronExpr == "" {
		cronExpr = DefaultStatusSyncCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid status sync cron expression: %s", cronExpr)
	}
	return &StatusSyncScheduler{
		db:       db,
		looker:   looker,
		inbound:  inbound,
		logger:   logger,
		cronExpr: cronExpr,
		staleAge: time.Hour,
		batch:    100,
	}, nil
}

// Start runs the sync on every cron tick until Stop
func (s *StatusSyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("status sync started", zap.String("cron", s.cronExpr))
}

// Stop halts the scheduler and waits for a running sync to finish
func (s *StatusSyncScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("status sync stopped")
}

func (s *StatusSyncScheduler) run(ctx context.Context) {
	defer close(s.done)
	for {
		next, err := gronx.NextTickAfter(s.cronExpr, time.Now(), false)
		if err != nil {
			s.logger.Error("status sync next tick", zap.String("cron", s.cronExpr), zap.Error(err))
			return
		}

		select {
		case <-time.After(time.Until(next)):
			if n, err := s.SyncOnce(ctx); err != nil {
				s.logger.Warn("status sync failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("status sync updated messages", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce looks up stale pending messages and returns how many changed status
func (s *StatusSyncScheduler) SyncOnce(ctx context.Context) (int, error) {
	var stale []models.Message
	err := s.db.WithContext(ctx).
		Where("inbound = ? AND sent = ? AND twilio_sid <> '' AND twilio_status IN ? AND send_at < ?",
			false, true, models.PendingStatuses, time.Now().Add(-s.staleAge)).
		Order("send_at ASC").
		Limit(s.batch).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, msg := range stale {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		status, err := s.looker.LookupStatus(ctx, msg.TwilioSID)
		if err != nil {
			s.logger.Warn("lookup status", zap.String("sid", msg.TwilioSID), zap.Error(err))
			continue
		}
		if status == msg.TwilioStatus {
			continue
		}
		if err := s.inbound.UpdateStatus(ctx, msg.TwilioSID, status); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}
