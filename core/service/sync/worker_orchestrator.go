package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/in"
	"mailsync_worker/core/port/out"
	"mailsync_worker/core/service/pipeline"
	"mailsync_worker/pkg/apperr"
)

var _ in.SyncUseCase = (*Orchestrator)(nil)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Credentials out.CredentialStore
	Settings    out.SettingsStore
	Jobs        out.JobRepository
	Logs        out.ProcessingLogRepository
	Mailboxes   out.MailboxFactory
	Models      out.ModelFactory
	Messages    MessageRunner
	Threads     ThreadRunner
}

// Orchestrator runs one job at a time on the caller's goroutine.
// Items inside a job are processed sequentially.
type Orchestrator struct {
	credentials out.CredentialStore
	settings    out.SettingsStore
	jobs        out.JobRepository
	mailboxes   out.MailboxFactory
	models      out.ModelFactory
	messages    MessageRunner
	threads     ThreadRunner
	trail       *pipeline.Trail
	opts        Options
	log         zerolog.Logger
	now         func() time.Time
}

func NewOrchestrator(deps Deps, opts Options, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		credentials: deps.Credentials,
		settings:    deps.Settings,
		jobs:        deps.Jobs,
		mailboxes:   deps.Mailboxes,
		models:      deps.Models,
		messages:    deps.Messages,
		threads:     deps.Threads,
		trail:       pipeline.NewTrail(deps.Logs, log),
		opts:        opts.withDefaults(),
		log:         log,
		now:         time.Now,
	}
}

// jobContext is everything resolved once at job start.
type jobContext struct {
	req        domain.JobRequest
	tracker    *jobTracker
	credential *domain.Credential
	run        *pipeline.Run
	log        zerolog.Logger
}

// tally accumulates item outcomes for one id loop.
type tally struct {
	processed int
	failed    int
	skipped   int
	threadIDs []string
	seen      map[string]struct{}
}

func (t *tally) addThread(id string) {
	if id == "" {
		return
	}
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	if _, ok := t.seen[id]; ok {
		return
	}
	t.seen[id] = struct{}{}
	t.threadIDs = append(t.threadIDs, id)
}

// =============================================================================
// RunJob
// =============================================================================

// RunJob executes req to completion. Failures, panics included, end up in the
// returned outcome and on the job row; nothing is propagated to the caller.
func (o *Orchestrator) RunJob(ctx context.Context, req domain.JobRequest) (outcome domain.JobOutcome) {
	started := o.now()
	log := o.log.With().
		Str("user_id", req.UserID).
		Str("job_type", string(req.Type)).
		Str("job_id", req.JobID()).
		Str("correlation_id", req.CorrelationID).
		Logger()
	tracker := newJobTracker(ctx, o.jobs, req.JobID(), log)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error().Err(err).Str("stack", string(debug.Stack())).Msg("job_panicked")
			outcome = o.failJob(ctx, tracker, req, err)
		}
	}()

	log.Info().Msg("job_started")

	var err error
	switch req.Type {
	case domain.JobTypeBackfill:
		outcome, err = o.runBackfill(ctx, tracker, req, log)
	case domain.JobTypeIncremental:
		outcome, err = o.runIncremental(ctx, tracker, req, log)
	case domain.JobTypeProcessThread:
		outcome, err = o.runThread(ctx, tracker, req, log)
	case domain.JobTypeProcessMessage:
		outcome, err = o.runMessage(ctx, tracker, req, log)
	default:
		err = apperr.UnknownJobType(string(req.Type))
	}
	if err != nil {
		return o.failJob(ctx, tracker, req, err)
	}

	outcome.Status = domain.JobStatusCompleted
	outcome.CorrelationID = req.CorrelationID
	log.Info().
		Int("processed", outcome.Processed).
		Int("failed", outcome.Failed).
		Int("skipped", outcome.Skipped).
		Int("threads", outcome.Threads).
		Dur("duration", o.now().Sub(started)).
		Msg("job_completed")
	return outcome
}

func (o *Orchestrator) failJob(ctx context.Context, tracker *jobTracker, req domain.JobRequest, err error) domain.JobOutcome {
	// App errors are expected job-fatal conditions such as a missing credential.
	level := zerolog.ErrorLevel
	if apperr.IsAppError(err) {
		level = zerolog.WarnLevel
	}
	o.log.WithLevel(level).
		Err(err).
		Str("user_id", req.UserID).
		Str("job_type", string(req.Type)).
		Str("job_id", req.JobID()).
		Str("correlation_id", req.CorrelationID).
		Msg("job_failed")

	tracker.fail(ctx, err.Error())
	return domain.JobOutcome{
		Status:        domain.JobStatusFailed,
		CorrelationID: req.CorrelationID,
		Error:         err.Error(),
	}
}

// prepare resolves credential, settings, model and mailbox. Only a missing
// credential, invalid settings or an unusable mailbox are fatal; a model that
// cannot be built just disables model calls for this job.
func (o *Orchestrator) prepare(ctx context.Context, tracker *jobTracker, req domain.JobRequest, log zerolog.Logger) (*jobContext, error) {
	cred, err := o.credentials.GetCredential(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, apperr.MissingCredential(req.UserID)
	}

	raw, err := o.settings.GetSettings(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings, err := domain.NormalizeSettings(raw)
	if err != nil {
		return nil, apperr.InvalidSettings(err.Error())
	}

	var model out.Model
	if settings.HasModelCredentials() && o.models != nil {
		model, err = o.models.ForSettings(settings)
		if err != nil {
			log.Warn().Err(err).Str("provider", string(settings.ModelProvider)).Msg("model_unavailable")
			model = nil
		}
	}

	mailbox, err := o.mailboxes.ForCredential(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}

	return &jobContext{
		req:        req,
		tracker:    tracker,
		credential: cred,
		log:        log,
		run: &pipeline.Run{
			UserID:        req.UserID,
			JobID:         req.JobID(),
			CorrelationID: req.CorrelationID,
			Settings:      settings,
			Mailbox:       mailbox,
			Model:         model,
		},
	}, nil
}

// =============================================================================
// Backfill
// =============================================================================

func (o *Orchestrator) runBackfill(ctx context.Context, tracker *jobTracker, req domain.JobRequest, log zerolog.Logger) (domain.JobOutcome, error) {
	jc, err := o.prepare(ctx, tracker, req, log)
	if err != nil {
		return domain.JobOutcome{}, err
	}
	days, exclude := resolveBackfillWindow(req.Metadata, jc.run.Settings)
	return o.backfill(ctx, jc, days, exclude)
}

func (o *Orchestrator) backfill(ctx context.Context, jc *jobContext, days int, exclude []string) (domain.JobOutcome, error) {
	jc.tracker.running(ctx, nil, nil)
	o.trail.Write(ctx, jc.run, domain.LogLevelInfo, fmt.Sprintf("Starting backfill for %d days", days), map[string]any{
		"backfill_days":  days,
		"exclude_labels": exclude,
	})
	jc.log.Info().Int("backfill_days", days).Strs("exclude_labels", exclude).Msg("backfill_started")

	after := domain.BackfillWindowStart(o.now(), days)
	ids, err := jc.run.Mailbox.ListIDs(ctx, after, exclude, o.opts.BackfillMaxMessages)
	if err != nil {
		return domain.JobOutcome{}, fmt.Errorf("list messages: %w", err)
	}
	total := len(ids)
	jc.tracker.running(ctx, intPtr(0), intPtr(total))
	jc.log.Info().Int("total_items", total).Msg("backfill_listed")

	t := o.processItems(ctx, jc, ids, o.opts.BackfillCheckpoint, func(t *tally) {
		jc.tracker.running(ctx, intPtr(t.processed), nil)
	})
	threads := o.processThreads(ctx, jc, t.threadIDs)

	profile, err := jc.run.Mailbox.GetProfile(ctx)
	if err != nil {
		return domain.JobOutcome{}, fmt.Errorf("get profile: %w", err)
	}
	if profile != nil && profile.Cursor != "" {
		if err := o.storeCursor(ctx, jc.req.UserID, profile.Cursor); err != nil {
			return domain.JobOutcome{}, err
		}
	}

	jc.tracker.complete(ctx, intPtr(total), intPtr(total))
	o.trail.Write(ctx, jc.run, domain.LogLevelInfo,
		fmt.Sprintf("Backfill completed: %d messages, %d threads", t.processed, threads),
		map[string]any{
			"processed_messages": t.processed,
			"failed_messages":    t.failed,
			"processed_threads":  threads,
		})

	return domain.JobOutcome{
		Processed: t.processed,
		Failed:    t.failed,
		Skipped:   t.skipped,
		Threads:   threads,
	}, nil
}

// =============================================================================
// Incremental
// =============================================================================

func (o *Orchestrator) runIncremental(ctx context.Context, tracker *jobTracker, req domain.JobRequest, log zerolog.Logger) (domain.JobOutcome, error) {
	jc, err := o.prepare(ctx, tracker, req, log)
	if err != nil {
		return domain.JobOutcome{}, err
	}

	if !jc.credential.HasCursor() {
		log.Info().Msg("incremental_without_cursor_fallback_to_backfill")
		return o.staleBackfill(ctx, jc)
	}

	jc.tracker.running(ctx, nil, nil)
	diff, err := jc.run.Mailbox.DiffSince(ctx, *jc.credential.Cursor)
	if err != nil {
		return domain.JobOutcome{}, fmt.Errorf("diff history: %w", err)
	}
	if diff.IsStale() {
		log.Info().Str("cursor", *jc.credential.Cursor).Msg("stale_cursor_fallback_to_backfill")
		return o.staleBackfill(ctx, jc)
	}

	if len(diff.IDs) == 0 {
		if err := o.storeCursor(ctx, req.UserID, *diff.NewCursor); err != nil {
			return domain.JobOutcome{}, err
		}
		jc.tracker.complete(ctx, intPtr(0), intPtr(0))
		log.Info().Msg("incremental_no_changes")
		return domain.JobOutcome{}, nil
	}

	jc.tracker.running(ctx, intPtr(0), intPtr(len(diff.IDs)))
	t := o.processItems(ctx, jc, diff.IDs, o.opts.IncrementalCheckpoint, func(t *tally) {
		jc.tracker.running(ctx, intPtr(t.processed), intPtr(attemptedTotal(t)))
	})

	// Completed jobs report processed/processed so partial failures still read 100%.
	finalTotal := incrementalTotal(t)
	jc.tracker.running(ctx, intPtr(t.processed), intPtr(finalTotal))

	threads := o.processThreads(ctx, jc, t.threadIDs)

	if diff.NewCursor != nil {
		if err := o.storeCursor(ctx, req.UserID, *diff.NewCursor); err != nil {
			return domain.JobOutcome{}, err
		}
	} else {
		log.Warn().Msg("diff_returned_no_cursor")
	}

	jc.tracker.complete(ctx, intPtr(t.processed), intPtr(finalTotal))
	o.trail.Write(ctx, jc.run, domain.LogLevelInfo,
		fmt.Sprintf("Incremental sync completed: %d/%d messages processed", t.processed, len(diff.IDs)),
		map[string]any{
			"processed_messages": t.processed,
			"failed_messages":    t.failed,
			"skipped_messages":   t.skipped,
			"total_messages":     len(diff.IDs),
			"processed_threads":  threads,
		})

	return domain.JobOutcome{
		Processed: t.processed,
		Failed:    t.failed,
		Skipped:   t.skipped,
		Threads:   threads,
	}, nil
}

// staleBackfill hands the job to the backfill path with a short window.
func (o *Orchestrator) staleBackfill(ctx context.Context, jc *jobContext) (domain.JobOutcome, error) {
	return o.backfill(ctx, jc, domain.StaleCursorBackfillDays, append([]string(nil), jc.run.Settings.ExcludeLabels...))
}

// incrementalTotal is processed when anything succeeded, else processed+failed.
// storeCursor reports a credential row deleted mid-job as a missing credential.
func (o *Orchestrator) storeCursor(ctx context.Context, userID, cursor string) error {
	err := o.credentials.SetCursor(ctx, userID, cursor)
	switch {
	case err == nil:
		return nil
	case apperr.HasCode(err, apperr.CodeNotFound):
		return apperr.MissingCredential(userID).WithError(err)
	default:
		return fmt.Errorf("store cursor: %w", err)
	}
}

// attemptedTotal is the checkpoint total while the run is still going.
func attemptedTotal(t *tally) int {
	if n := t.processed + t.failed; n > 0 {
		return n
	}
	return t.processed
}

func incrementalTotal(t *tally) int {
	if t.processed > 0 {
		return t.processed
	}
	return t.processed + t.failed
}

// =============================================================================
// Single item jobs
// =============================================================================

func (o *Orchestrator) runThread(ctx context.Context, tracker *jobTracker, req domain.JobRequest, log zerolog.Logger) (domain.JobOutcome, error) {
	if req.Metadata.ThreadID == "" {
		return domain.JobOutcome{}, apperr.MissingMetadata("threadId")
	}
	jc, err := o.prepare(ctx, tracker, req, log)
	if err != nil {
		return domain.JobOutcome{}, err
	}

	jc.tracker.running(ctx, nil, nil)
	res := o.threads.Run(ctx, jc.run, req.Metadata.ThreadID)
	if res.Err != nil {
		return domain.JobOutcome{}, fmt.Errorf("process thread %s: %w", req.Metadata.ThreadID, res.Err)
	}

	jc.tracker.complete(ctx, intPtr(1), intPtr(1))
	return domain.JobOutcome{Threads: 1}, nil
}

func (o *Orchestrator) runMessage(ctx context.Context, tracker *jobTracker, req domain.JobRequest, log zerolog.Logger) (domain.JobOutcome, error) {
	if req.Metadata.MessageID == "" {
		return domain.JobOutcome{}, apperr.MissingMetadata("messageId")
	}
	jc, err := o.prepare(ctx, tracker, req, log)
	if err != nil {
		return domain.JobOutcome{}, err
	}

	jc.tracker.running(ctx, nil, nil)
	res := o.messages.Run(ctx, jc.run, req.Metadata.MessageID)
	if res.Err != nil {
		return domain.JobOutcome{}, fmt.Errorf("process message %s: %w", req.Metadata.MessageID, res.Err)
	}

	outcome := domain.JobOutcome{}
	if res.Processed {
		outcome.Processed = 1
		jc.tracker.complete(ctx, intPtr(1), intPtr(1))
	} else {
		outcome.Skipped = 1
		jc.tracker.complete(ctx, intPtr(0), intPtr(0))
	}
	return outcome, nil
}

// =============================================================================
// Item loops
// =============================================================================

// processItems runs ids through the message pipeline one at a time and calls
// checkpoint after every `every` successes.
func (o *Orchestrator) processItems(ctx context.Context, jc *jobContext, ids []string, every int, checkpoint func(*tally)) *tally {
	t := &tally{}
	for _, id := range ids {
		res := o.messages.Run(ctx, jc.run, id)
		switch {
		case res.Processed:
			t.processed++
			t.addThread(res.ThreadID)
			if every > 0 && t.processed%every == 0 {
				checkpoint(t)
			}
		case res.Err != nil:
			t.failed++
			jc.log.Debug().Err(res.Err).Str("message_id", id).Msg("message_failed")
		default:
			t.skipped++
		}
	}
	return t
}

// processThreads never aborts on a single thread; failures are logged and skipped.
// Each thread touches the job row so the stale job sweeper sees progress.
func (o *Orchestrator) processThreads(ctx context.Context, jc *jobContext, threadIDs []string) int {
	done := 0
	for _, id := range threadIDs {
		res := o.threads.Run(ctx, jc.run, id)
		jc.tracker.running(ctx, nil, nil)
		if res.Processed {
			done++
			continue
		}
		jc.log.Warn().Err(res.Err).Str("thread_id", id).Msg("thread_skipped")
	}
	return done
}
