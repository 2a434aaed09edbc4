package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/pillguide/internal/jobs"
)

const (
	// DefaultWorkers is the number of concurrent job handlers.
	DefaultWorkers = 5
	// DefaultBackoff is multiplied by the retry count before a failed job is
	// re-enqueued.
	DefaultBackoff = time.Second
)

// Queue is an in-memory job publisher and consumer backed by a buffered
// channel. Jobs are lost on restart, so it suits single-instance deployments.
type Queue struct {
	jobChan   chan *jobs.AnalyzePrescriptionJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff time.Duration
	log     zerolog.Logger
}

// NewQueue creates a queue holding up to bufferSize pending jobs. store may
// be nil.
func NewQueue(bufferSize int, store jobs.JobStore, log zerolog.Logger) *Queue {
	return &Queue{
		jobChan:   make(chan *jobs.AnalyzePrescriptionJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   DefaultWorkers,
		backoff:   DefaultBackoff,
		log:       log,
	}
}

// SetWorkers changes the worker count used by the next Start.
func (q *Queue) SetWorkers(n int) {
	if n > 0 {
		q.workers = n
	}
}

// SetBackoff changes the retry backoff unit.
func (q *Queue) SetBackoff(d time.Duration) {
	q.backoff = d
}

// PublishAnalyzePrescription implements jobs.Publisher. Missing ID, status,
// creation time and retry limit are filled in on job. Workers get their own
// copy, so the caller may keep reading job after it returns.
func (q *Queue) PublishAnalyzePrescription(ctx context.Context, job *jobs.AnalyzePrescriptionJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	q.save(ctx, job)

	select {
	case q.jobChan <- cloneJob(job):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements jobs.Consumer.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.workers).Msg("Job queue started")

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs the handler once and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, job *jobs.AnalyzePrescriptionJob, handler jobs.JobHandler) {
	log := q.log.With().
		Str("job_id", job.JobID).
		Str("prescription_id", job.PrescriptionID).
		Int("attempt", job.RetryCount+1).
		Logger()

	started := time.Now().UTC()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	job.CompletedAt = nil
	q.save(ctx, job)

	err := handler(ctx, job)

	completed := time.Now().UTC()
	job.CompletedAt = &completed

	var backoff time.Duration
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Dur("duration", completed.Sub(started)).Msg("Job completed")
	case job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		backoff = time.Duration(job.RetryCount) * q.backoff
		log.Warn().Err(err).Dur("backoff", backoff).Msg("Job failed, retrying")
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Msg("Job failed")
	}

	q.save(ctx, job)

	if job.Status != jobs.JobStatusRetrying {
		return
	}
	time.AfterFunc(backoff, func() { q.requeue(ctx, job) })
}

// requeue publishes a retrying job again. A job that cannot be re-enqueued,
// typically because the queue was stopped during the backoff, is marked
// failed so it does not stay in retrying.
func (q *Queue) requeue(ctx context.Context, job *jobs.AnalyzePrescriptionJob) {
	job.Status = jobs.JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil

	err := q.PublishAnalyzePrescription(ctx, job)
	if err == nil {
		return
	}
	q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to re-enqueue job, marking it failed")

	if q.store == nil {
		return
	}
	msg := fmt.Sprintf("%s (retry abandoned: %v)", job.Error, err)
	if err := q.store.UpdateJobStatus(context.WithoutCancel(ctx), job.JobID, jobs.JobStatusFailed, msg); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to mark job failed")
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.AnalyzePrescriptionJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop implements jobs.Consumer.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
