// Package models contains domain types for the SVG duplicate finder.
package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a detection job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// jobTransitions lists the legal next states for each status.
// Terminal states have no outgoing edges. Pending may go straight to failed
// only when a job never got a run slot before shutdown.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  nil,
	JobStatusFailed:     nil,
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: illegal status transition %s -> %s", e.JobID, e.From, e.To)
}

// Progress tracks how many candidate pairs a job has compared.
type Progress struct {
	Processed  int     `json:"processed" msgpack:"processed"`
	Total      int     `json:"total" msgpack:"total"`
	Percentage float64 `json:"percentage" msgpack:"percentage"` // 0-100
}

// Result is the payload of a completed job.
type Result struct {
	Message         string            `json:"message" msgpack:"message"`
	Duplicates      []DuplicateResult `json:"duplicates" msgpack:"duplicates"`
	TotalFiles      int               `json:"totalFiles" msgpack:"totalFiles"`
	DuplicatesFound int               `json:"duplicatesFound" msgpack:"duplicatesFound"`
	Truncated       bool              `json:"truncated,omitempty" msgpack:"truncated,omitempty"`
	SkippedPairs    int               `json:"skippedPairs,omitempty" msgpack:"skippedPairs,omitempty"`
}

// Job represents an asynchronous duplicate detection run.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	FilesCount  int        `json:"filesCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Progress    Progress   `json:"progress"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewJob creates a new Job in pending status.
func NewJob(id string, filesCount int, createdAt time.Time) *Job {
	return &Job{
		ID:         id,
		Status:     JobStatusPending,
		FilesCount: filesCount,
		CreatedAt:  createdAt,
	}
}

// Clone returns a deep copy so callers can read it without holding a lock.
func (j *Job) Clone() Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Duplicates = append([]DuplicateResult(nil), j.Result.Duplicates...)
		c.Result = &r
	}
	return c
}
