package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/pillguide/internal/jobs"
)

// Store is an in-memory JobStore. Jobs are copied on the way in and out.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.AnalyzePrescriptionJob
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.AnalyzePrescriptionJob),
	}
}

// SaveJob implements jobs.JobStore.
func (s *Store) SaveJob(ctx context.Context, job *jobs.AnalyzePrescriptionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalyzePrescriptionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return cloneJob(job), nil
}

// ListJobs implements jobs.JobStore. Results are ordered newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalyzePrescriptionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.AnalyzePrescriptionJob{}
	for _, job := range s.jobs {
		if filter.PrescriptionID != "" && job.PrescriptionID != filter.PrescriptionID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, cloneJob(job))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.AnalyzePrescriptionJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateJobStatus implements jobs.JobStore.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus %s: %w", jobID, jobs.ErrJobNotFound)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

// cloneJob copies the job including its time pointers.
func cloneJob(job *jobs.AnalyzePrescriptionJob) *jobs.AnalyzePrescriptionJob {
	c := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var _ jobs.JobStore = (*Store)(nil)
