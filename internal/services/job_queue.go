package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"gorm.io/gorm"
)

// JobPayload is the JSON body of every job kind
type JobPayload struct {
	MessageID uint `json:"message_id"`
}

// JobQueue stores background jobs in the database so that they survive
// restarts and can be enqueued inside the transaction that creates their data
type JobQueue struct {
	db *gorm.DB
}

// NewJobQueue creates a new JobQueue
func NewJobQueue(db *gorm.DB) *JobQueue {
	return &JobQueue{db: db}
}

// Enqueue schedules a job to run at runAt
func (q *JobQueue) Enqueue(ctx context.Context, kind models.JobKind, payload JobPayload, runAt time.Time) (*models.Job, error) {
	return q.EnqueueTx(q.db.WithContext(ctx), kind, payload, runAt)
}

// EnqueueTx schedules a job using the caller's transaction
func (q *JobQueue) EnqueueTx(tx *gorm.DB, kind models.JobKind, payload JobPayload, runAt time.Time) (*models.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := &models.Job{Kind: kind, Payload: string(body), RunAt: runAt}
	if err := tx.Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// Due returns unclaimed jobs whose run time has arrived, oldest first
func (q *JobQueue) Due(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := q.db.WithContext(ctx).
		Where("run_at <= ? AND locked_at IS NULL AND failed_at IS NULL", now).
		Order("run_at ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Claim locks a job for one worker. It returns false if another worker got there first.
func (q *JobQueue) Claim(ctx context.Context, jobID uint, workerID string, now time.Time) (bool, error) {
	result := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND locked_at IS NULL", jobID).
		Updates(map[string]interface{}{
			"locked_at": now,
			"locked_by": workerID,
			"attempts":  gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Complete removes a finished job
func (q *JobQueue) Complete(ctx context.Context, jobID uint) error {
	return q.db.WithContext(ctx).Delete(&models.Job{}, jobID).Error
}

// Fail records a job failure. Failed jobs are kept for operators and never rerun.
func (q *JobQueue) Fail(ctx context.Context, jobID uint, jobErr error) error {
	now := time.Now()
	return q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"failed_at":  now,
			"last_error": jobErr.Error(),
		}).Error
}

// ReleaseStale unlocks jobs whose worker died mid-run
func (q *JobQueue) ReleaseStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	result := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("locked_at < ? AND failed_at IS NULL", lockedBefore).
		Updates(map[string]interface{}{"locked_at": nil, "locked_by": ""})
	return result.RowsAffected, result.Error
}

// Pending lists jobs of a kind that have not finished, failed ones included
func (q *JobQueue) Pending(ctx context.Context, kind models.JobKind) ([]models.Job, error) {
	var jobs []models.Job
	err := q.db.WithContext(ctx).Where("kind = ?", kind).Order("run_at ASC, id ASC").Find(&jobs).Error
	return jobs, err
}

// DecodePayload parses a job's payload
func DecodePayload(job models.Job) (JobPayload, error) {
	var payload JobPayload
	err := json.Unmarshal([]byte(job.Payload), &payload)
	return payload, err
}
