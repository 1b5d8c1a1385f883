package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically evicts jobs whose creation time is older than the
// retention window, whatever their status.
type Reaper struct {
	store     *Store
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewReaper creates a Reaper.
func NewReaper(store *Store, interval, retention time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(); err != nil {
				r.logger.Error("job cleanup sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep removes expired jobs once. A panic during the sweep is converted to
// an error so the loop keeps running.
func (r *Reaper) Sweep() (removed int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cleanup panicked: %v", rec)
		}
	}()

	cutoff := r.now().Add(-r.retention)
	ids := r.store.removeOlderThan(cutoff)
	for _, id := range ids {
		r.logger.Info("reaped expired job", zap.String("job_id", id))
	}
	return len(ids), nil
}
