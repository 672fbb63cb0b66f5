package persistence

import (
	"context"
	"errors"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// LogFanout appends each entry to every configured sink (LOG_STORE=both).
// A failing sink does not stop the others.
type LogFanout struct {
	sinks []out.ProcessingLogRepository
}

func NewLogFanout(sinks ...out.ProcessingLogRepository) *LogFanout {
	kept := make([]out.ProcessingLogRepository, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &LogFanout{sinks: kept}
}

var _ out.ProcessingLogRepository = (*LogFanout)(nil)

func (f *LogFanout) Append(ctx context.Context, entry *domain.ProcessingLogEntry) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
