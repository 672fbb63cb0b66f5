package in

import (
	"context"

	"mailsync_worker/core/domain"
)

// SyncUseCase runs one job to completion. Job failures are reported in the outcome, never returned.
type SyncUseCase interface {
	RunJob(ctx context.Context, req domain.JobRequest) domain.JobOutcome
}
