package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
	"mailsync_worker/pkg/apperr"
)

// ThreadAdapter implements out.ThreadRepository over "Thread", and
// out.EmbeddingStore over its pgvector "embedding" column.
type ThreadAdapter struct {
	db *sqlx.DB
}

func NewThreadAdapter(db *sqlx.DB) *ThreadAdapter {
	return &ThreadAdapter{db: db}
}

var (
	_ out.ThreadRepository = (*ThreadAdapter)(nil)
	_ out.EmbeddingStore   = (*ThreadAdapter)(nil)
)

// Upsert inserts or refreshes the thread aggregate and returns its row id.
func (a *ThreadAdapter) Upsert(ctx context.Context, t *domain.Thread) (string, error) {
	if t == nil || t.UserID == "" || t.ProviderThreadID == "" {
		return "", ErrInvalidInput
	}

	priority := t.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	query := `
		INSERT INTO "Thread" (
			id, "userId", "gmailThreadId", subject, participants,
			"lastMessageAt", category, priority, summary, "summaryShort",
			"needsReply", "isRead", "isStarred", labels, "messageCount",
			"createdAt", "updatedAt", "processedAt"
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			NOW(), NOW(), NOW()
		)
		ON CONFLICT ("userId", "gmailThreadId") DO UPDATE SET
			subject = EXCLUDED.subject,
			participants = EXCLUDED.participants,
			"lastMessageAt" = EXCLUDED."lastMessageAt",
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			summary = EXCLUDED.summary,
			"summaryShort" = EXCLUDED."summaryShort",
			"needsReply" = EXCLUDED."needsReply",
			"isRead" = EXCLUDED."isRead",
			"isStarred" = EXCLUDED."isStarred",
			labels = EXCLUDED.labels,
			"messageCount" = EXCLUDED."messageCount",
			"updatedAt" = NOW(),
			"processedAt" = NOW()
		RETURNING id`

	var id string
	err := a.db.QueryRowxContext(ctx, query,
		t.UserID, t.ProviderThreadID, nullStr(t.Subject), pq.Array(nonNil(t.Participants)),
		nullTime(t.LastMessageAt), string(t.Category), string(priority), nullStr(t.Summary), nullStr(t.SummaryShort),
		t.NeedsReply, t.IsRead, t.IsStarred, pq.Array(nonNil(t.Labels)), t.MessageCount,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert thread %s: %w", t.ProviderThreadID, err)
	}
	t.ID = id
	return id, nil
}

// ResolveID returns "" with no error when the thread has not been stored yet.
func (a *ThreadAdapter) ResolveID(ctx context.Context, userID, providerThreadID string) (string, error) {
	var id string
	query := `SELECT id FROM "Thread" WHERE "userId" = $1 AND "gmailThreadId" = $2`
	if err := a.db.GetContext(ctx, &id, query, userID, providerThreadID); err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolve thread: %w", err)
	}
	return id, nil
}

// GetSummary returns the stored full summary, "" when absent.
func (a *ThreadAdapter) GetSummary(ctx context.Context, userID, providerThreadID string) (string, error) {
	var summary sql.NullString
	query := `SELECT summary FROM "Thread" WHERE "userId" = $1 AND "gmailThreadId" = $2`
	if err := a.db.GetContext(ctx, &summary, query, userID, providerThreadID); err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("get thread summary: %w", err)
	}
	return summary.String, nil
}

// SetThreadEmbedding writes the vector onto the already-stored thread row.
func (a *ThreadAdapter) SetThreadEmbedding(ctx context.Context, userID, threadRowID, _ string, embedding []float32) error {
	if threadRowID == "" || len(embedding) == 0 {
		return ErrInvalidInput
	}
	query := `UPDATE "Thread" SET embedding = $1::vector WHERE id = $2 AND "userId" = $3`
	res, err := a.db.ExecContext(ctx, query, vectorLiteral(embedding), threadRowID, userID)
	if err != nil {
		return fmt.Errorf("update thread embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("thread " + threadRowID).WithError(ErrNotFound)
	}
	return nil
}
