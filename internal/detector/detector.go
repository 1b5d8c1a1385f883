// Package detector is the entry point of the duplicate detection engine. It
// accepts a batch of SVG files, runs the hash and visual stages on a
// background goroutine and exposes the job's status and result.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/svg-dedupe/backend/internal/fingerprint"
	"github.com/svg-dedupe/backend/internal/jobs"
	"github.com/svg-dedupe/backend/internal/models"
	"github.com/svg-dedupe/backend/internal/scheduler"
)

var (
	// ErrIngestion is returned when a submission holds no usable SVG file.
	ErrIngestion = errors.New("no valid SVG files supplied")
	// ErrShuttingDown is returned by Submit once Shutdown has been called.
	ErrShuttingDown = errors.New("detector is shutting down")
)

const (
	msgDuplicatesFound   = "Duplicate images found."
	msgNoDuplicatesFound = "No duplicate images found."
)

// PairRunner runs the visual stage over the reduced file set.
type PairRunner interface {
	Run(ctx context.Context, files []models.SourceFile, reporter scheduler.Reporter) (scheduler.Outcome, error)
}

// Config tunes the detector.
type Config struct {
	// MaxConcurrentJobs caps how many jobs run their pipeline at once across
	// the process. Zero or less means no cap.
	MaxConcurrentJobs int
	// IncludeSources embeds each duplicate's SVG as a data URI in the result.
	IncludeSources bool
}

// Detector owns job submission and the per-job background runs.
type Detector struct {
	cfg    Config
	store  *jobs.Store
	runner PairRunner
	sem    *semaphore.Weighted
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Detector.
func New(cfg Config, store *jobs.Store, runner PairRunner, logger *zap.Logger) (*Detector, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Detector{
		cfg:    cfg,
		store:  store,
		runner: runner,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MaxConcurrentJobs > 0 {
		d.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs))
	}
	return d, nil
}

// NewJobID generates a fresh job id.
func NewJobID() string {
	return uuid.New().String()
}

// Submit validates files, registers a pending job and starts its run in the
// background. Invalid input is rejected with ErrIngestion before any job
// exists.
func (d *Detector) Submit(jobID string, files map[string][]byte) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is required")
	}
	accepted := d.acceptFiles(files)
	if len(accepted) == 0 {
		return fmt.Errorf("%w (received %d files)", ErrIngestion, len(files))
	}
	if d.ctx.Err() != nil {
		return ErrShuttingDown
	}

	if _, err := d.store.Create(jobID, len(accepted)); err != nil {
		return err
	}

	d.wg.Add(1)
	go d.run(jobID, accepted)

	d.logger.Info("job accepted", zap.String("job_id", jobID), zap.Int("files", len(accepted)))
	return nil
}

// GetStatus returns a snapshot of the job.
func (d *Detector) GetStatus(jobID string) (models.Job, error) {
	return d.store.Get(jobID)
}

// GetResult returns the result of a completed job.
func (d *Detector) GetResult(jobID string) (*models.Result, error) {
	return d.store.Result(jobID)
}

// ListJobs returns snapshots of every known job, newest first.
func (d *Detector) ListJobs() []models.Job {
	return d.store.List()
}

// Shutdown stops accepting work, asks running jobs to stop at their next
// batch boundary and waits for them until ctx expires.
func (d *Detector) Shutdown(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acceptFiles drops entries that cannot be SVG assets.
func (d *Detector) acceptFiles(files map[string][]byte) map[string][]byte {
	accepted := make(map[string][]byte, len(files))
	for name, content := range files {
		switch {
		case strings.TrimSpace(name) == "":
			d.logger.Debug("ignoring file without a name")
		case !strings.HasSuffix(strings.ToLower(name), ".svg"):
			d.logger.Debug("ignoring non-SVG file", zap.String("file", name))
		case len(bytes.TrimSpace(content)) == 0:
			d.logger.Warn("ignoring empty SVG file", zap.String("file", name))
		default:
			accepted[name] = content
		}
	}
	return accepted
}

func (d *Detector) run(jobID string, files map[string][]byte) {
	defer d.wg.Done()
	log := d.logger.With(zap.String("job_id", jobID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			d.fail(log, jobID, fmt.Errorf("unexpected error: %v", r))
		}
	}()

	if d.sem != nil {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.fail(log, jobID, fmt.Errorf("job not started: %w", err))
			return
		}
		defer d.sem.Release(1)
	}

	if err := d.store.Start(jobID); err != nil {
		log.Error("could not start job", zap.Error(err))
		return
	}

	result, err := d.detect(log, jobID, files)
	if err != nil {
		d.fail(log, jobID, err)
		return
	}
	if err := d.store.Finalize(jobID, result, nil); err != nil {
		log.Error("could not finalize job", zap.Error(err))
		return
	}
	log.Info("job completed",
		zap.Int("files", result.TotalFiles),
		zap.Int("duplicates", result.DuplicatesFound),
		zap.Bool("truncated", result.Truncated))
}

// detect runs the hash stage then the visual stage and merges the pairs,
// hash pairs first.
func (d *Detector) detect(log *zap.Logger, jobID string, files map[string][]byte) (*models.Result, error) {
	groups := fingerprint.Index(files)
	exact := groups.ExactPairs()
	reduced := groups.ReducedSet()
	log.Info("hash stage complete",
		zap.Int("files", groups.FileCount()),
		zap.Int("unique", len(reduced)),
		zap.Int("exact_pairs", len(exact)))

	outcome, err := d.runner.Run(d.ctx, reduced, d.store.Reporter(jobID, log))
	if err != nil {
		return nil, fmt.Errorf("visual comparison: %w", err)
	}

	duplicates := make([]models.DuplicateResult, 0, len(exact)+len(outcome.Duplicates))
	duplicates = append(duplicates, exact...)
	duplicates = append(duplicates, outcome.Duplicates...)
	if d.cfg.IncludeSources {
		for i := range duplicates {
			duplicates[i].SourceA = dataURI(files[duplicates[i].NameA])
			duplicates[i].SourceB = dataURI(files[duplicates[i].NameB])
		}
	}

	return &models.Result{
		Message:         message(len(duplicates), outcome),
		Duplicates:      duplicates,
		TotalFiles:      groups.FileCount(),
		DuplicatesFound: len(duplicates),
		Truncated:       outcome.TimedOut,
		SkippedPairs:    outcome.Skipped,
	}, nil
}

func (d *Detector) fail(log *zap.Logger, jobID string, cause error) {
	if err := d.store.Finalize(jobID, nil, cause); err != nil {
		log.Error("could not mark job failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	log.Warn("job failed", zap.Error(cause))
}

func message(found int, outcome scheduler.Outcome) string {
	msg := msgNoDuplicatesFound
	if found > 0 {
		msg = msgDuplicatesFound
	}
	if outcome.TimedOut {
		msg += fmt.Sprintf(" Comparison timed out: %d of %d candidate pairs were compared visually.",
			outcome.Processed, outcome.Total)
	}
	return msg
}

func dataURI(content []byte) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(content)
}
