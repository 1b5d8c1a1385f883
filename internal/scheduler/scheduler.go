// Package scheduler runs visual comparisons over candidate pairs in bounded
// batches, with a wall-clock budget checked between batches.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/svg-dedupe/backend/internal/models"
	"github.com/svg-dedupe/backend/internal/similarity"
)

// Renderer rasterises one source file.
type Renderer interface {
	Render(content []byte, width, height int) (image.Image, error)
}

// Scorer compares two bitmaps.
type Scorer interface {
	Score(a, b image.Image) (similarity.Verdict, similarity.Metrics, error)
	Size() int
}

// Reporter receives the processed/total pair counts after every batch.
type Reporter interface {
	Report(processed, total int)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(processed, total int)

// Report calls f.
func (f ReporterFunc) Report(processed, total int) { f(processed, total) }

// Clock supplies the current time. The scheduler only measures elapsed
// durations, so implementations should carry a monotonic reading.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Config controls batching, parallelism and the time budget.
type Config struct {
	BatchSize  int
	MaxWorkers int
	// Timeout bounds the run. Zero stops before the first batch; a negative
	// value disables the budget.
	Timeout time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 10, MaxWorkers: 4, Timeout: 5 * time.Minute}
}

// Pair is an unordered candidate pair, A before B in enumeration order.
type Pair struct {
	A, B models.SourceFile
}

// Outcome is what a run produced before it finished or was cut short.
type Outcome struct {
	Duplicates []models.DuplicateResult
	Processed  int
	Total      int
	Skipped    int
	TimedOut   bool
	Elapsed    time.Duration
}

// Scheduler owns the timeout clock and the batch checkpoint.
type Scheduler struct {
	cfg      Config
	renderer Renderer
	scorer   Scorer
	clock    Clock
	logger   *zap.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scheduler.
func New(cfg Config, renderer Renderer, scorer Scorer, opts ...Option) (*Scheduler, error) {
	if renderer == nil {
		return nil, errors.New("renderer is nil")
	}
	if scorer == nil {
		return nil, errors.New("scorer is nil")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be positive, got %d", cfg.MaxWorkers)
	}
	s := &Scheduler{
		cfg:      cfg,
		renderer: renderer,
		scorer:   scorer,
		clock:    RealClock,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Workers is the pool size: the configured cap bounded by available CPUs.
func (s *Scheduler) Workers() int {
	return min(s.cfg.MaxWorkers, runtime.NumCPU())
}

// Pairs enumerates every unordered pair of files in input order.
func Pairs(files []models.SourceFile) []Pair {
	if len(files) < 2 {
		return nil
	}
	pairs := make([]Pair, 0, len(files)*(len(files)-1)/2)
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			pairs = append(pairs, Pair{A: files[i], B: files[j]})
		}
	}
	return pairs
}

// Batches splits pairs into chunks of at most size.
func Batches(pairs []Pair, size int) [][]Pair {
	var batches [][]Pair
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		batches = append(batches, pairs[start:end])
	}
	return batches
}

// Run compares every pair of files. Per-pair failures are counted and
// skipped. The time budget and ctx are only consulted before a batch
// starts; a batch in flight always finishes. When ctx is cancelled the
// partial outcome is returned together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context, files []models.SourceFile, reporter Reporter) (Outcome, error) {
	start := s.clock.Now()
	pairs := Pairs(files)
	out := Outcome{Total: len(pairs)}
	if reporter == nil {
		reporter = ReporterFunc(func(int, int) {})
	}
	reporter.Report(0, out.Total)

	workers := s.Workers()
	var skipped atomic.Int64
	for i, batch := range Batches(pairs, s.cfg.BatchSize) {
		out.Elapsed = s.clock.Now().Sub(start)
		if s.cfg.Timeout >= 0 && out.Elapsed >= s.cfg.Timeout {
			out.TimedOut = true
			s.logger.Warn("comparison budget exhausted",
				zap.Duration("elapsed", out.Elapsed),
				zap.Int("processed", out.Processed),
				zap.Int("total", out.Total))
			break
		}
		if err := ctx.Err(); err != nil {
			out.Skipped = int(skipped.Load())
			return out, err
		}

		verdicts := make([]bool, len(batch))
		var g errgroup.Group
		g.SetLimit(workers)
		for j, pair := range batch {
			j, pair := j, pair
			g.Go(func() error {
				verdicts[j] = s.comparePair(pair, &skipped)
				return nil
			})
		}
		_ = g.Wait()

		for j, dup := range verdicts {
			if dup {
				out.Duplicates = append(out.Duplicates, models.DuplicateResult{
					NameA:  batch[j].A.Name,
					NameB:  batch[j].B.Name,
					Origin: models.OriginVisual,
				})
			}
		}
		out.Processed += len(batch)
		reporter.Report(out.Processed, out.Total)
		s.logger.Debug("batch complete", zap.Int("batch", i), zap.Int("processed", out.Processed), zap.Int("total", out.Total))
	}

	out.Elapsed = s.clock.Now().Sub(start)
	out.Skipped = int(skipped.Load())
	return out, nil
}

// comparePair renders and scores one pair, reporting whether it is a
// duplicate. Failures and panics are contained here.
func (s *Scheduler) comparePair(p Pair, skipped *atomic.Int64) (dup bool) {
	defer func() {
		if r := recover(); r != nil {
			skipped.Add(1)
			dup = false
			s.logger.Error("pair comparison panicked",
				zap.String("file_a", p.A.Name), zap.String("file_b", p.B.Name), zap.Any("panic", r))
		}
	}()

	// Identical content needs no rendering. Callers that collapsed exact
	// duplicates beforehand never hit this.
	if p.A.Fingerprint != (models.Fingerprint{}) && p.A.Fingerprint == p.B.Fingerprint {
		return true
	}

	size := s.scorer.Size()
	imgA, err := s.renderer.Render(p.A.Content, size, size)
	if err != nil {
		skipped.Add(1)
		s.logger.Warn("skipping pair, render failed", zap.String("file", p.A.Name), zap.String("other", p.B.Name), zap.Error(err))
		return false
	}
	imgB, err := s.renderer.Render(p.B.Content, size, size)
	if err != nil {
		skipped.Add(1)
		s.logger.Warn("skipping pair, render failed", zap.String("file", p.B.Name), zap.String("other", p.A.Name), zap.Error(err))
		return false
	}

	verdict, metrics, err := s.scorer.Score(imgA, imgB)
	if err != nil {
		skipped.Add(1)
		s.logger.Warn("skipping pair, comparison failed", zap.String("file_a", p.A.Name), zap.String("file_b", p.B.Name), zap.Error(err))
		return false
	}
	if verdict == similarity.Duplicate {
		s.logger.Debug("visual duplicate",
			zap.String("file_a", p.A.Name), zap.String("file_b", p.B.Name),
			zap.Float64("ssim", metrics.SSIM), zap.Float64("mse", metrics.MSE), zap.Float64("histogram", metrics.Histogram))
		return true
	}
	return false
}
