package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// StaleJobSweeper fails RUNNING jobs whose row has not moved within the threshold.
// A crash mid-job leaves such rows behind; nothing inside a running job polls for them.
type StaleJobSweeper struct {
	jobs      out.JobRepository
	threshold time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewStaleJobSweeper(jobs out.JobRepository, threshold time.Duration, log zerolog.Logger) *StaleJobSweeper {
	if threshold <= 0 {
		threshold = domain.DefaultStaleJobThreshold
	}
	return &StaleJobSweeper{jobs: jobs, threshold: threshold, log: log, now: time.Now}
}

// Sweep marks every stale job FAILED and returns how many were marked.
func (s *StaleJobSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.threshold)
	stale, err := s.jobs.ListStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	marked := 0
	for _, job := range stale {
		if !job.Status.CanTransitionTo(domain.JobStatusFailed) {
			continue
		}
		msg := fmt.Sprintf("abandoned: no progress since %s", job.UpdatedAt.UTC().Format(time.RFC3339))
		err := s.jobs.UpdateStatus(ctx, domain.JobStatusUpdate{
			JobID:  job.ID,
			Status: domain.JobStatusFailed,
			Error:  &msg,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("job_id", job.ID).Msg("stale_job_update_failed")
			continue
		}
		marked++
	}

	if marked > 0 {
		s.log.Info().Int("count", marked).Dur("threshold", s.threshold).Msg("stale_jobs_failed")
	}
	return marked, nil
}
