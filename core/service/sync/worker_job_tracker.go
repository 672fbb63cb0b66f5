package sync

import (
	"context"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// jobTracker owns the status writes for one job row.
// Without a job id every write is a no-op. Writes that would leave a terminal
// state are refused so the observed sequence stays PENDING, RUNNING, terminal.
type jobTracker struct {
	repo   out.JobRepository
	jobID  string
	status domain.JobStatus
	log    zerolog.Logger
}

func newJobTracker(ctx context.Context, repo out.JobRepository, jobID string, log zerolog.Logger) *jobTracker {
	t := &jobTracker{repo: repo, jobID: jobID, log: log}
	if t.enabled() {
		if job, err := repo.Get(ctx, jobID); err == nil && job != nil {
			t.status = job.Status
		} else if err != nil {
			log.Debug().Err(err).Str("job_id", jobID).Msg("job_lookup_failed")
		}
	}
	return t
}

func (t *jobTracker) enabled() bool {
	return t.repo != nil && t.jobID != ""
}

func (t *jobTracker) running(ctx context.Context, progress, total *int) {
	t.write(ctx, domain.JobStatusUpdate{Status: domain.JobStatusRunning, Progress: progress, TotalItems: total})
}

func (t *jobTracker) complete(ctx context.Context, progress, total *int) {
	t.write(ctx, domain.JobStatusUpdate{Status: domain.JobStatusCompleted, Progress: progress, TotalItems: total})
}

func (t *jobTracker) fail(ctx context.Context, errText string) {
	t.write(ctx, domain.JobStatusUpdate{Status: domain.JobStatusFailed, Error: &errText})
}

func (t *jobTracker) write(ctx context.Context, update domain.JobStatusUpdate) {
	if !t.enabled() {
		return
	}
	if !t.status.CanTransitionTo(update.Status) {
		t.log.Warn().
			Str("job_id", t.jobID).
			Str("from", string(t.status)).
			Str("to", string(update.Status)).
			Msg("job_transition_refused")
		return
	}

	update.JobID = t.jobID
	if err := t.repo.UpdateStatus(ctx, update); err != nil {
		t.log.Warn().Err(err).Str("job_id", t.jobID).Str("status", string(update.Status)).Msg("job_status_update_failed")
		return
	}
	t.status = update.Status
}
