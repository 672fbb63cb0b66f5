package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// =============================================================================
// JobAdapter - "SyncJob" rows
// =============================================================================

type JobAdapter struct {
	db *sqlx.DB
}

func NewJobAdapter(db *sqlx.DB) *JobAdapter {
	return &JobAdapter{db: db}
}

var (
	_ out.JobRepository = (*JobAdapter)(nil)
	_ out.JobCreator    = (*JobAdapter)(nil)
)

type jobRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"userId"`
	JobType     string         `db:"jobType"`
	Status      string         `db:"status"`
	Progress    sql.NullInt32  `db:"progress"`
	TotalItems  sql.NullInt32  `db:"totalItems"`
	Error       sql.NullString `db:"error"`
	CreatedAt   time.Time      `db:"createdAt"`
	StartedAt   sql.NullTime   `db:"startedAt"`
	CompletedAt sql.NullTime   `db:"completedAt"`
	UpdatedAt   time.Time      `db:"updatedAt"`
}

func (r *jobRow) toDomain() *domain.Job {
	j := &domain.Job{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      domain.JobType(r.JobType),
		Status:    domain.JobStatus(r.Status),
		Progress:  int(r.Progress.Int32),
		Error:     strPtr(r.Error),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.TotalItems.Valid {
		total := int(r.TotalItems.Int32)
		j.TotalItems = &total
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		j.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		j.CompletedAt = &t
	}
	return j
}

var terminalStatusList = fmt.Sprintf("'%s', '%s', '%s'",
	domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled)

const jobColumns = `id, "userId", "jobType", status, progress, "totalItems", error,
	"createdAt", "startedAt", "completedAt", "updatedAt"`

func (a *JobAdapter) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM "SyncJob" WHERE id = $1`
	if err := a.db.GetContext(ctx, &row, query, jobID); err != nil {
		return nil, notFound(err, "job "+jobID)
	}
	return row.toDomain(), nil
}

// UpdateStatus returns ErrJobClosed when the row is missing or already terminal,
// e.g. after the stale job sweeper failed it.
func (a *JobAdapter) UpdateStatus(ctx context.Context, update domain.JobStatusUpdate) error {
	query, args := buildJobUpdate(update)
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", update.JobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: %w", update.JobID, ErrJobClosed)
	}
	return nil
}

// buildJobUpdate renders the partial update. startedAt is only set on the first
// RUNNING write; terminal statuses stamp completedAt. Terminal rows are never matched.
func buildJobUpdate(u domain.JobStatusUpdate) (string, []any) {
	sets := []string{"status = $1", `"updatedAt" = NOW()`}
	args := []any{string(u.Status)}

	switch {
	case u.Status == domain.JobStatusRunning:
		sets = append(sets, `"startedAt" = COALESCE("startedAt", NOW())`)
	case u.Status.IsTerminal():
		sets = append(sets, `"completedAt" = NOW()`)
	}

	if u.Progress != nil {
		args = append(args, *u.Progress)
		sets = append(sets, fmt.Sprintf("progress = $%d", len(args)))
	}
	if u.TotalItems != nil {
		args = append(args, *u.TotalItems)
		sets = append(sets, fmt.Sprintf(`"totalItems" = $%d`, len(args)))
	}
	if u.Error != nil {
		args = append(args, *u.Error)
		sets = append(sets, fmt.Sprintf("error = $%d", len(args)))
	}

	args = append(args, u.JobID)
	query := fmt.Sprintf(`UPDATE "SyncJob" SET %s WHERE id = $%d AND status NOT IN (%s)`,
		strings.Join(sets, ", "), len(args), terminalStatusList)
	return query, args
}

// ListStale returns RUNNING jobs whose row has not been touched since olderThan.
func (a *JobAdapter) ListStale(ctx context.Context, olderThan time.Time) ([]*domain.Job, error) {
	var rows []jobRow
	query := `SELECT ` + jobColumns + ` FROM "SyncJob"
		WHERE status = $1 AND "updatedAt" < $2
		ORDER BY "updatedAt" ASC
		LIMIT 500`
	if err := a.db.SelectContext(ctx, &rows, query, string(domain.JobStatusRunning), olderThan); err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, nil
}

// Create inserts a PENDING row. metadata is stored as jsonb and must carry the jobId.
func (a *JobAdapter) Create(ctx context.Context, job *domain.Job, metadata map[string]any) error {
	if job == nil || job.ID == "" || job.UserID == "" {
		return ErrInvalidInput
	}
	md, err := jsonb(metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO "SyncJob" (id, "userId", "jobType", status, progress, "totalItems", metadata, "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, 0, 0, $5, NOW(), NOW())`
	if _, err := a.db.ExecContext(ctx, query, job.ID, job.UserID, string(job.Type), string(domain.JobStatusPending), md); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	job.Status = domain.JobStatusPending
	return nil
}
