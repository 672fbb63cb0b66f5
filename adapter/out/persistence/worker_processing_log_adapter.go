package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// ProcessingLogAdapter appends to "ProcessingLog".
type ProcessingLogAdapter struct {
	db *sqlx.DB
}

func NewProcessingLogAdapter(db *sqlx.DB) *ProcessingLogAdapter {
	return &ProcessingLogAdapter{db: db}
}

var _ out.ProcessingLogRepository = (*ProcessingLogAdapter)(nil)

func (a *ProcessingLogAdapter) Append(ctx context.Context, e *domain.ProcessingLogEntry) error {
	var metadata any
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = jsonb(e.Metadata); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO "ProcessingLog" (id, "userId", "jobId", "correlationId", level, message, metadata, "createdAt")
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8)`

	_, err := a.db.ExecContext(ctx, query,
		e.ID, e.UserID, nullStr(e.JobID), nullStr(e.CorrelationID),
		string(e.Level), e.Message, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}
