package detector

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svg-dedupe/backend/internal/jobs"
	"github.com/svg-dedupe/backend/internal/models"
	"github.com/svg-dedupe/backend/internal/render"
	"github.com/svg-dedupe/backend/internal/scheduler"
	"github.com/svg-dedupe/backend/internal/similarity"
)

const (
	squareSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
  <rect x="10" y="10" width="80" height="80" fill="black"/>
</svg>`
	// Same drawing as squareSVG with different bytes.
	squareSVGReformatted = `<svg viewBox="0 0 100 100" xmlns="http://www.w3.org/2000/svg">
	<rect width="80" height="80" x="10" y="10" fill="black" />
</svg>`
	circleSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
  <circle cx="50" cy="50" r="40" fill="black"/>
</svg>`
	brokenSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect x="10"`
)

// countingRenderer wraps the SVG renderer and records which contents were
// rasterised.
type countingRenderer struct {
	inner *render.SVGRenderer
	seen  chan string
}

func (r *countingRenderer) Render(content []byte, w, h int) (image.Image, error) {
	r.seen <- string(content)
	return r.inner.Render(content, w, h)
}

func newRealDetector(t *testing.T, timeout time.Duration, r scheduler.Renderer) (*Detector, *jobs.Store) {
	t.Helper()
	th := similarity.DefaultThresholds()
	th.Strict.Size = 96
	th.Fast.Size = 64
	scorer, err := similarity.NewScorer(similarity.ModeStrict, th)
	require.NoError(t, err)
	if r == nil {
		r = render.NewSVGRenderer()
	}
	sched, err := scheduler.New(scheduler.Config{BatchSize: 4, MaxWorkers: 4, Timeout: timeout}, r, scorer)
	require.NoError(t, err)

	store := jobs.NewStore()
	d, err := New(Config{MaxConcurrentJobs: 2, IncludeSources: true}, store, sched, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d, store
}

func waitForTerminal(t *testing.T, d *Detector, id string) models.Job {
	t.Helper()
	var job models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = d.GetStatus(id)
		return err == nil && job.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return job
}

func pairKeys(dups []models.DuplicateResult) map[[2]string]models.Origin {
	out := make(map[[2]string]models.Origin, len(dups))
	for _, d := range dups {
		out[d.Key()] = d.Origin
	}
	return out
}

func TestSubmit_ExactDuplicatesNeverRendered(t *testing.T) {
	seen := make(chan string, 64)
	d, _ := newRealDetector(t, -1, &countingRenderer{inner: render.NewSVGRenderer(), seen: seen})

	files := map[string][]byte{
		"1.svg": []byte(squareSVG),
		"2.svg": []byte(squareSVG),
		"3.svg": []byte(circleSVG),
	}
	require.NoError(t, d.Submit("job-1", files))
	job := waitForTerminal(t, d, "job-1")

	require.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Duplicates, 1)
	dup := job.Result.Duplicates[0]
	assert.Equal(t, "1.svg", dup.NameA)
	assert.Equal(t, "2.svg", dup.NameB)
	assert.Equal(t, models.OriginHash, dup.Origin)
	assert.True(t, strings.HasPrefix(dup.SourceA, "data:image/svg+xml;base64,"))
	assert.Equal(t, 3, job.Result.TotalFiles)
	assert.Equal(t, 1, job.Result.DuplicatesFound)
	assert.Equal(t, msgDuplicatesFound, job.Result.Message)

	// Only one visual pair (representative square vs circle) was rendered.
	close(seen)
	renders := 0
	for range seen {
		renders++
	}
	assert.Equal(t, 2, renders)
	assert.Equal(t, models.Progress{Processed: 1, Total: 1, Percentage: 100}, job.Progress)
}

func TestSubmit_CircleVersusSquareIsNotDuplicate(t *testing.T) {
	d, _ := newRealDetector(t, -1, nil)

	require.NoError(t, d.Submit("job-1", map[string][]byte{
		"circle.svg": []byte(circleSVG),
		"square.svg": []byte(squareSVG),
	}))
	job := waitForTerminal(t, d, "job-1")

	require.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Empty(t, job.Result.Duplicates)
	assert.Equal(t, msgNoDuplicatesFound, job.Result.Message)
}

func TestSubmit_VisualDuplicateWithDifferentBytes(t *testing.T) {
	d, _ := newRealDetector(t, -1, nil)

	require.NoError(t, d.Submit("job-1", map[string][]byte{
		"a.svg": []byte(squareSVG),
		"b.svg": []byte(squareSVGReformatted),
		"c.svg": []byte(circleSVG),
	}))
	job := waitForTerminal(t, d, "job-1")

	require.Equal(t, models.JobStatusCompleted, job.Status)
	require.Len(t, job.Result.Duplicates, 1)
	assert.Equal(t, models.OriginVisual, job.Result.Duplicates[0].Origin)
	assert.Equal(t, [2]string{"a.svg", "b.svg"}, job.Result.Duplicates[0].Key())
}

func TestSubmit_ZeroTimeoutKeepsHashResultsOnly(t *testing.T) {
	d, _ := newRealDetector(t, 0, nil)

	require.NoError(t, d.Submit("job-1", map[string][]byte{
		"a.svg": []byte(squareSVG),
		"b.svg": []byte(squareSVG),
		"c.svg": []byte(squareSVGReformatted),
		"d.svg": []byte(circleSVG),
	}))
	job := waitForTerminal(t, d, "job-1")

	require.Equal(t, models.JobStatusCompleted, job.Status)
	assert.True(t, job.Result.Truncated)
	assert.Equal(t, 1, job.Result.DuplicatesFound)
	assert.Equal(t, models.OriginHash, job.Result.Duplicates[0].Origin)
	assert.Contains(t, job.Result.Message, "timed out")
	assert.Equal(t, 0, job.Progress.Processed)
	assert.Equal(t, 3, job.Progress.Total)
}

func TestSubmit_MalformedFileIsSkipped(t *testing.T) {
	d, _ := newRealDetector(t, -1, nil)

	require.NoError(t, d.Submit("job-1", map[string][]byte{
		"a.svg":      []byte(squareSVG),
		"b.svg":      []byte(squareSVGReformatted),
		"broken.svg": []byte(brokenSVG),
		"c.svg":      []byte(circleSVG),
	}))
	job := waitForTerminal(t, d, "job-1")

	require.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Result.SkippedPairs)
	assert.Equal(t, 6, job.Progress.Processed)
	assert.Equal(t, map[[2]string]models.Origin{{"a.svg", "b.svg"}: models.OriginVisual}, pairKeys(job.Result.Duplicates))
}

func TestSubmit_IsDeterministicAsSet(t *testing.T) {
	d, _ := newRealDetector(t, -1, nil)
	files := map[string][]byte{
		"a.svg": []byte(squareSVG),
		"b.svg": []byte(squareSVG),
		"c.svg": []byte(squareSVGReformatted),
		"d.svg": []byte(circleSVG),
	}

	require.NoError(t, d.Submit("run-1", files))
	require.NoError(t, d.Submit("run-2", files))
	first := waitForTerminal(t, d, "run-1")
	second := waitForTerminal(t, d, "run-2")

	assert.Equal(t, pairKeys(first.Result.Duplicates), pairKeys(second.Result.Duplicates))
	// a/b by hash; the representative a vs c visually.
	assert.Len(t, first.Result.Duplicates, 2)
	assert.Equal(t, models.OriginHash, first.Result.Duplicates[0].Origin)
}

func TestSubmit_RejectsInvalidInputWithoutCreatingJob(t *testing.T) {
	d, store := newRealDetector(t, -1, nil)

	tests := map[string]map[string][]byte{
		"nil map":         nil,
		"only empty":      {"a.svg": []byte(""), "b.svg": []byte("  \n")},
		"wrong extension": {"a.png": []byte("png"), "notes.txt": []byte("hi")},
		"no name":         {"": []byte(squareSVG)},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			id := NewJobID()
			err := d.Submit(id, files)
			assert.ErrorIs(t, err, ErrIngestion)

			_, err = d.GetStatus(id)
			assert.ErrorIs(t, err, jobs.ErrNotFound)
		})
	}
	assert.Zero(t, store.Len())

	assert.Error(t, d.Submit("", map[string][]byte{"a.svg": []byte(squareSVG)}))
}

func TestSubmit_DuplicateJobID(t *testing.T) {
	d, _ := newRealDetector(t, -1, nil)
	files := map[string][]byte{"a.svg": []byte(squareSVG)}
	require.NoError(t, d.Submit("job-1", files))
	assert.ErrorIs(t, d.Submit("job-1", files), jobs.ErrDuplicateID)
}

func TestGetResult_NotFoundAndNotReady(t *testing.T) {
	release := make(chan struct{})
	runner := &blockingRunner{release: release}
	store := jobs.NewStore()
	d, err := New(Config{}, store, runner, nil)
	require.NoError(t, err)

	_, err = d.GetResult("missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	require.NoError(t, d.Submit("job-1", map[string][]byte{"a.svg": []byte(squareSVG), "b.svg": []byte(circleSVG)}))
	_, err = d.GetResult("job-1")
	assert.ErrorIs(t, err, jobs.ErrNotReady)

	close(release)
	job := waitForTerminal(t, d, "job-1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	result, err := d.GetResult("job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFiles)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestRun_UnexpectedErrorFailsJob(t *testing.T) {
	store := jobs.NewStore()
	d, err := New(Config{}, store, &failingRunner{err: errors.New("pool exploded")}, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit("job-1", map[string][]byte{"a.svg": []byte(squareSVG), "b.svg": []byte(squareSVG)}))
	job := waitForTerminal(t, d, "job-1")

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "pool exploded")
	assert.Nil(t, job.Result)
	require.NotNil(t, job.CompletedAt)
}

func TestRun_PanicFailsJob(t *testing.T) {
	store := jobs.NewStore()
	d, err := New(Config{}, store, &failingRunner{panics: true}, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit("job-1", map[string][]byte{"a.svg": []byte(squareSVG)}))
	job := waitForTerminal(t, d, "job-1")

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "unexpected error")
}

func TestRun_ConcurrentJobCap(t *testing.T) {
	release := make(chan struct{})
	runner := &blockingRunner{release: release}
	store := jobs.NewStore()
	d, err := New(Config{MaxConcurrentJobs: 1}, store, runner, nil)
	require.NoError(t, err)

	files := map[string][]byte{"a.svg": []byte(squareSVG)}
	require.NoError(t, d.Submit("first", files))
	require.Eventually(t, func() bool {
		job, _ := d.GetStatus("first")
		return job.Status == models.JobStatusProcessing
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Submit("second", files))
	time.Sleep(20 * time.Millisecond)
	second, _ := d.GetStatus("second")
	assert.Equal(t, models.JobStatusPending, second.Status)

	close(release)
	assert.Equal(t, models.JobStatusCompleted, waitForTerminal(t, d, "first").Status)
	assert.Equal(t, models.JobStatusCompleted, waitForTerminal(t, d, "second").Status)
}

func TestShutdown_FailsWaitingJobs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	runner := &blockingRunner{release: release}
	store := jobs.NewStore()
	d, err := New(Config{MaxConcurrentJobs: 1}, store, runner, nil)
	require.NoError(t, err)

	files := map[string][]byte{"a.svg": []byte(squareSVG)}
	require.NoError(t, d.Submit("first", files))
	require.NoError(t, d.Submit("second", files))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	for _, id := range []string{"first", "second"} {
		job, err := d.GetStatus(id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, job.Status, id)
	}
	assert.ErrorIs(t, d.Submit("third", files), ErrShuttingDown)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, msgNoDuplicatesFound, message(0, scheduler.Outcome{}))
	assert.Equal(t, msgDuplicatesFound, message(2, scheduler.Outcome{}))
	msg := message(1, scheduler.Outcome{TimedOut: true, Processed: 10, Total: 45})
	assert.True(t, strings.HasPrefix(msg, msgDuplicatesFound))
	assert.Contains(t, msg, "10 of 45")
}

// blockingRunner waits for release or cancellation before finishing with
// no visual duplicates.
type blockingRunner struct {
	release <-chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, files []models.SourceFile, reporter scheduler.Reporter) (scheduler.Outcome, error) {
	select {
	case <-r.release:
		return scheduler.Outcome{}, nil
	case <-ctx.Done():
		return scheduler.Outcome{}, ctx.Err()
	}
}

type failingRunner struct {
	err    error
	panics bool
}

func (r *failingRunner) Run(context.Context, []models.SourceFile, scheduler.Reporter) (scheduler.Outcome, error) {
	if r.panics {
		panic("runner exploded")
	}
	return scheduler.Outcome{}, r.err
}

func TestSubmit_ZeroTimeoutWithNothingToCompareIsNotTruncated(t *testing.T) {
	d, _ := newRealDetector(t, 0, nil)

	require.NoError(t, d.Submit("job-1", map[string][]byte{
		"a.svg": []byte(squareSVG),
		"b.svg": []byte(squareSVG),
		"c.svg": []byte(squareSVG),
	}))
	job := waitForTerminal(t, d, "job-1")

	require.Equal(t, models.JobStatusCompleted, job.Status)
	assert.False(t, job.Result.Truncated)
	assert.Equal(t, msgDuplicatesFound, job.Result.Message)
	assert.Len(t, job.Result.Duplicates, 3)
	assert.Equal(t, models.Progress{}, job.Progress)
}
