// mock_detector.go - In-memory job service for handler tests
package testutil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/svg-dedupe/backend/internal/jobs"
	"github.com/svg-dedupe/backend/internal/models"
)

// MockJobService implements api.JobService for testing. Submitted jobs stay
// pending until the test moves them with SetJob.
type MockJobService struct {
	jobs      map[string]models.Job
	submitted map[string]map[string][]byte
	mu        sync.RWMutex

	// SubmitErr, when set, is returned by Submit instead of creating a job.
	SubmitErr error
	// Statuses, when set for a job, is replayed one snapshot per GetStatus
	// call; the last entry repeats.
	Statuses map[string][]models.Job
	calls    map[string]int
}

// NewMockJobService creates an empty mock service
func NewMockJobService() *MockJobService {
	return &MockJobService{
		jobs:      make(map[string]models.Job),
		submitted: make(map[string]map[string][]byte),
		Statuses:  make(map[string][]models.Job),
		calls:     make(map[string]int),
	}
}

func (m *MockJobService) Submit(jobID string, files map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	if _, ok := m.jobs[jobID]; ok {
		return fmt.Errorf("%w: %s", jobs.ErrDuplicateID, jobID)
	}
	m.submitted[jobID] = files
	m.jobs[jobID] = *models.NewJob(jobID, len(files), time.Now())
	return nil
}

func (m *MockJobService) GetStatus(jobID string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq, ok := m.Statuses[jobID]; ok && len(seq) > 0 {
		i := min(m.calls[jobID], len(seq)-1)
		m.calls[jobID]++
		return seq[i], nil
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return job, nil
}

func (m *MockJobService) GetResult(jobID string) (*models.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	if job.Status != models.JobStatusCompleted || job.Result == nil {
		return nil, fmt.Errorf("%w: %s is %s", jobs.ErrNotReady, jobID, job.Status)
	}
	return job.Result, nil
}

func (m *MockJobService) ListJobs() []models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		list = append(list, job)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// SetJob stores or replaces a job
func (m *MockJobService) SetJob(job models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

// Submitted returns the files passed to Submit for a job
func (m *MockJobService) Submitted(jobID string) (map[string][]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files, ok := m.submitted[jobID]
	return files, ok
}

// SubmittedIDs returns every job id passed to Submit
func (m *MockJobService) SubmittedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.submitted))
	for id := range m.submitted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CompletedJob builds a completed job carrying result
func CompletedJob(id string, result *models.Result) models.Job {
	now := time.Now()
	job := *models.NewJob(id, result.TotalFiles, now.Add(-time.Second))
	job.Status = models.JobStatusCompleted
	job.StartedAt = &now
	job.CompletedAt = &now
	job.Result = result
	return job
}
