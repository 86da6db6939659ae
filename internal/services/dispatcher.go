package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	dispatchBatchSize = 50
	staleLockAfter    = time.Hour
)

// JobHandler runs one job
type JobHandler func(ctx context.Context, payload JobPayload) error

// Dispatcher polls the job queue and runs due jobs on a bounded worker pool
type Dispatcher struct {
	queue    *JobQueue
	logger   *zap.Logger
	handlers map[models.JobKind]JobHandler
	workers  int
	interval time.Duration
	workerID string

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	done     chan struct{}
	running  bool
	mu       sync.Mutex
	polling  sync.Mutex // keeps poll cycles from overlapping
}

// NewDispatcher creates a dispatcher with the given pool size and poll interval
func NewDispatcher(queue *JobQueue, logger *zap.Logger, workers int, interval time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:    queue,
		logger:   logger,
		handlers: make(map[models.JobKind]JobHandler),
		workers:  workers,
		interval: interval,
		workerID: uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register binds a handler to a job kind
func (d *Dispatcher) Register(kind models.JobKind, handler JobHandler) {
	d.handlers[kind] = handler
}

// Start begins polling in the background
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.logger.Info("job dispatcher starting", zap.Int("workers", d.workers), zap.Duration("interval", d.interval))

	go func() {
		defer close(d.done)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.RunDue(d.ctx)
			case <-d.stopChan:
				d.logger.Info("job dispatcher stopping")
				return
			}
		}
	}()
}

// Stop stops polling, cancels in-flight jobs, and waits for the loop to exit
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopChan)
	d.cancel()
	<-d.done
}

// RunDue runs every job that is due now and waits for them. It returns the
// number of jobs this call claimed.
func (d *Dispatcher) RunDue(ctx context.Context) int {
	if !d.polling.TryLock() {
		return 0
	}
	defer d.polling.Unlock()

	now := time.Now()
	if released, err := d.queue.ReleaseStale(ctx, now.Add(-staleLockAfter)); err != nil {
		d.logger.Warn("failed to release stale jobs", zap.Error(err))
	} else if released > 0 {
		d.logger.Warn("released stale job locks", zap.Int64("count", released))
	}

	jobs, err := d.queue.Due(ctx, now, dispatchBatchSize)
	if err != nil {
		d.logger.Error("failed to load due jobs", zap.Error(err))
		return 0
	}

	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	claimed := 0
	for _, job := range jobs {
		ok, err := d.queue.Claim(ctx, job.ID, d.workerID, now)
		if err != nil {
			d.logger.Error("failed to claim job", zap.Uint("job_id", job.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		claimed++

		sem <- struct{}{}
		wg.Add(1)
		go func(job models.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			d.run(ctx, job)
		}(job)
	}
	wg.Wait()

	return claimed
}

func (d *Dispatcher) run(ctx context.Context, job models.Job) {
	err := d.execute(ctx, job)
	if err == nil {
		jobsProcessedTotal.WithLabelValues(string(job.Kind), "ok").Inc()
		if err := d.queue.Complete(ctx, job.ID); err != nil {
			d.logger.Error("failed to complete job", zap.Uint("job_id", job.ID), zap.Error(err))
		}
		return
	}

	jobsProcessedTotal.WithLabelValues(string(job.Kind), "failed").Inc()
	d.logger.Error("job failed",
		zap.Uint("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempts", job.Attempts+1),
		zap.Error(err),
	)
	if ferr := d.queue.Fail(context.Background(), job.ID, err); ferr != nil {
		d.logger.Error("failed to record job failure", zap.Uint("job_id", job.ID), zap.Error(ferr))
	}
}

func (d *Dispatcher) execute(ctx context.Context, job models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	handler, ok := d.handlers[job.Kind]
	if !ok {
		return errors.New("no handler for job kind " + string(job.Kind))
	}
	payload, err := DecodePayload(job)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return handler(ctx, payload)
}
