// Package sync runs mailbox sync jobs: backfill, incremental diff and single-item reprocessing.
package sync

import (
	"context"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/service/pipeline"
)

// Options are the batch limits for one job.
type Options struct {
	// BackfillMaxMessages caps the ids listed by a single backfill.
	BackfillMaxMessages int
	// BackfillCheckpoint writes progress every N processed messages.
	BackfillCheckpoint int
	// IncrementalCheckpoint is the smaller checkpoint interval for incremental jobs.
	IncrementalCheckpoint int
}

func DefaultOptions() Options {
	return Options{
		BackfillMaxMessages:   5000,
		BackfillCheckpoint:    50,
		IncrementalCheckpoint: 10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BackfillMaxMessages <= 0 {
		o.BackfillMaxMessages = d.BackfillMaxMessages
	}
	if o.BackfillCheckpoint <= 0 {
		o.BackfillCheckpoint = d.BackfillCheckpoint
	}
	if o.IncrementalCheckpoint <= 0 {
		o.IncrementalCheckpoint = d.IncrementalCheckpoint
	}
	return o
}

// MessageRunner processes one message id.
type MessageRunner interface {
	Run(ctx context.Context, run *pipeline.Run, messageID string) pipeline.MessageResult
}

// ThreadRunner processes one conversation.
type ThreadRunner interface {
	Run(ctx context.Context, run *pipeline.Run, threadID string) pipeline.ThreadResult
}

// resolveBackfillWindow picks days and exclusions: metadata first, then settings, then defaults.
func resolveBackfillWindow(md domain.JobMetadata, settings *domain.Settings) (int, []string) {
	days := domain.DefaultBackfillDays
	if settings != nil && settings.BackfillDays > 0 {
		days = settings.BackfillDays
	}
	if md.BackfillDays != nil && *md.BackfillDays > 0 {
		days = *md.BackfillDays
	}

	exclude := domain.DefaultExcludeLabels
	if settings != nil && settings.ExcludeLabels != nil {
		exclude = settings.ExcludeLabels
	}
	if md.ExcludeLabels != nil {
		exclude = md.ExcludeLabels
	}
	return days, append([]string(nil), exclude...)
}

func intPtr(v int) *int { return &v }
