// Package jobs holds the in-memory job registry, its progress reporter and
// the background reaper that evicts expired jobs. Nothing here survives a
// process restart.
package jobs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/svg-dedupe/backend/internal/models"
)

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned when a result is requested before completion.
	ErrNotReady = errors.New("job not completed")
	// ErrDuplicateID is returned when creating a job whose id already exists.
	ErrDuplicateID = errors.New("job id already exists")
	// ErrIllegalTransition wraps every rejected status change.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// Store is the job registry. A single mutex guards every read and write;
// callers only ever see copies.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
}

// Create registers a new pending job.
func (s *Store) Create(id string, filesCount int) (models.Job, error) {
	if id == "" {
		return models.Job{}, errors.New("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	job := models.NewJob(id, filesCount, s.now())
	s.jobs[id] = job
	return job.Clone(), nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.Clone(), nil
}

// Result returns the result of a completed job.
func (s *Store) Result(id string) (*models.Result, error) {
	job, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, job.Status)
	}
	return job.Result, nil
}

// List returns snapshots of all jobs, newest first.
func (s *Store) List() []models.Job {
	s.mu.Lock()
	list := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, job.Clone())
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Len is the number of registered jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Delete removes a job. It reports whether the job existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// Start moves a pending job to processing.
func (s *Store) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.transition(id, models.JobStatusProcessing)
	if err != nil {
		return err
	}
	now := s.now()
	job.StartedAt = &now
	return nil
}

// UpdateProgress records processed out of total pairs. processed is clamped
// into [0, total] and the percentage is always derived from the counts.
func (s *Store) UpdateProgress(id string, processed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	job.Progress = computeProgress(processed, total)
	return nil
}

// Finalize is the only way a job reaches completed or failed. A nil cause
// completes the job with result; otherwise the job fails with cause's
// message and no result.
func (s *Store) Finalize(id string, result *models.Result, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := models.JobStatusCompleted
	if cause != nil {
		next = models.JobStatusFailed
	} else if result == nil {
		return fmt.Errorf("job %s: completed without a result", id)
	}

	job, err := s.transition(id, next)
	if err != nil {
		return err
	}
	now := s.now()
	job.CompletedAt = &now
	if cause != nil {
		job.Error = cause.Error()
		job.Result = nil
		return nil
	}
	r := *result
	r.Duplicates = append([]models.DuplicateResult(nil), result.Duplicates...)
	job.Result = &r
	job.Error = ""
	return nil
}

// transition validates and applies a status change. Caller holds s.mu.
func (s *Store) transition(id string, next models.JobStatus) (*models.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !job.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %w", ErrIllegalTransition,
			&models.TransitionError{JobID: id, From: job.Status, To: next})
	}
	job.Status = next
	return job, nil
}

// removeOlderThan deletes every job created before cutoff and returns the
// removed ids.
func (s *Store) removeOlderThan(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func computeProgress(processed, total int) models.Progress {
	if total < 0 {
		total = 0
	}
	processed = max(0, min(processed, total))
	p := models.Progress{Processed: processed, Total: total}
	if total > 0 {
		p.Percentage = math.Round(float64(processed)/float64(total)*100*100) / 100
	}
	return p
}
