// Package pipeline drives single messages and threads through their processing stages.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailsync_worker/core/agent/llm"
	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// Run is the per-job context shared by every item processed within one job.
type Run struct {
	UserID        string
	JobID         string
	CorrelationID string
	Settings      *domain.Settings
	Mailbox       out.MailboxProvider
	Model         out.Model // nil when the user has no model credentials
}

// modelEnabled reports whether model calls may be made for this run.
func (r *Run) modelEnabled() bool {
	return r.Model != nil && r.Settings.HasModelCredentials()
}

// =============================================================================
// Processing trail
// =============================================================================

// Trail appends ProcessingLog entries. Write failures are logged and swallowed.
type Trail struct {
	repo out.ProcessingLogRepository
	log  zerolog.Logger
	now  func() time.Time
}

func NewTrail(repo out.ProcessingLogRepository, log zerolog.Logger) *Trail {
	return &Trail{repo: repo, log: log, now: time.Now}
}

func (t *Trail) Write(ctx context.Context, run *Run, level domain.LogLevel, message string, metadata map[string]any) {
	if t.repo == nil {
		return
	}
	entry := &domain.ProcessingLogEntry{
		ID:            uuid.NewString(),
		UserID:        run.UserID,
		JobID:         run.JobID,
		CorrelationID: run.CorrelationID,
		Level:         level,
		Message:       message,
		Metadata:      metadata,
		CreatedAt:     t.now().UTC(),
	}
	if err := t.repo.Append(ctx, entry); err != nil {
		t.log.Warn().Err(err).Str("user_id", run.UserID).Str("level", string(level)).Msg("processing_log_append_failed")
	}
}

// ModelFailure logs a classified model error and records it on the trail.
func (t *Trail) ModelFailure(ctx context.Context, run *Run, stage string, err error, extra map[string]any) {
	provider := ""
	if run.Model != nil {
		provider = run.Model.Provider()
	}
	me := llm.ClassifyError(err, provider)

	extra["user_id"] = run.UserID
	extra["job_id"] = run.JobID
	fields := me.LogFields(extra)
	t.log.Error().Fields(fields).Msg("llm_" + stage + "_error")

	t.Write(ctx, run, domain.LogLevelWarning, "Model "+stage+" failed: "+me.UserMessage(), map[string]any{
		"error_type": string(me.Type),
		"retryable":  me.Retryable,
		"stage":      stage,
	})
}
