package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/pillguide/internal/domain"
)

// ErrJobNotFound is returned by a JobStore for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 3

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeAnalyzePrescription analyses an uploaded prescription image.
	JobTypeAnalyzePrescription JobType = "analyze_prescription"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ParseJobStatus returns the status named by s and whether it is known.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch st := JobStatus(s); st {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusRetrying:
		return st, true
	}
	return "", false
}

// AnalyzePrescriptionJob analyses one uploaded prescription in the
// background. The prescription ID is assigned at publish time so clients
// can poll for the result before it exists.
type AnalyzePrescriptionJob struct {
	JobID          string `json:"job_id"`
	PrescriptionID string `json:"prescription_id"`

	// Upload is the original request. It carries the full image and is never
	// serialized.
	Upload domain.PrescriptionCreate `json:"-"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *AnalyzePrescriptionJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *AnalyzePrescriptionJob) GetType() JobType {
	return JobTypeAnalyzePrescription
}

// GetStatus implements the Job interface.
func (j *AnalyzePrescriptionJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs for asynchronous processing.
type Publisher interface {
	PublishAnalyzePrescription(ctx context.Context, job *AnalyzePrescriptionJob) error
	Close() error
}

// Consumer runs a handler for every published job.
type Consumer interface {
	// Start begins consuming jobs. It returns immediately.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error makes the job eligible for
// retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state for status polling.
type JobStore interface {
	SaveJob(ctx context.Context, job *AnalyzePrescriptionJob) error
	GetJob(ctx context.Context, jobID string) (*AnalyzePrescriptionJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalyzePrescriptionJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	PrescriptionID string
	Status         JobStatus
	Limit          int
	Offset         int
}
