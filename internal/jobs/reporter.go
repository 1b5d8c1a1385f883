package jobs

import "go.uber.org/zap"

// Reporter forwards scheduler progress for one job into the Store.
type Reporter struct {
	store  *Store
	jobID  string
	logger *zap.Logger
}

// Reporter returns a progress reporter bound to jobID.
func (s *Store) Reporter(jobID string, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{store: s, jobID: jobID, logger: logger}
}

// Report updates the job's progress counters.
func (r *Reporter) Report(processed, total int) {
	if err := r.store.UpdateProgress(r.jobID, processed, total); err != nil {
		// The reaper may have evicted the job mid-run.
		r.logger.Warn("progress update dropped", zap.String("job_id", r.jobID), zap.Error(err))
	}
}
