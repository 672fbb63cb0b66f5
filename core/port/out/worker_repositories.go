package out

import (
	"context"
	"time"

	"mailsync_worker/core/domain"
)

// CredentialStore reads the user's provider credential and owns the sync cursor.
type CredentialStore interface {
	// GetCredential returns nil, nil when the user has no credential.
	GetCredential(ctx context.Context, userID string) (*domain.Credential, error)
	SetCursor(ctx context.Context, userID, cursor string) error
}

// SettingsStore reads user preferences.
type SettingsStore interface {
	// GetSettings returns nil, nil when the user has no preference row.
	GetSettings(ctx context.Context, userID string) (*domain.RawSettings, error)
}

// MessageRepository upserts messages keyed by (userID, providerMessageID).
type MessageRepository interface {
	Upsert(ctx context.Context, msg *domain.Message) error

	// ListByThread returns stored members ordered by date ascending, bodies still encrypted.
	ListByThread(ctx context.Context, userID, providerThreadID string) ([]*StoredMember, error)
}

// StoredMember is a thread member as read back from storage.
type StoredMember struct {
	ProviderMessageID string
	FromAddress       string
	Date              time.Time
	Subject           string
	Snippet           string
	BodyTextEnc       *string
	Labels            []string
	Category          domain.Category
	NeedsReply        bool
}

// ThreadRepository upserts threads keyed by (userID, providerThreadID).
type ThreadRepository interface {
	// Upsert returns the stored row id.
	Upsert(ctx context.Context, thread *domain.Thread) (string, error)
	ResolveID(ctx context.Context, userID, providerThreadID string) (string, error)
	GetSummary(ctx context.Context, userID, providerThreadID string) (string, error)
}

// EmbeddingStore attaches a thread embedding after the thread row exists.
type EmbeddingStore interface {
	SetThreadEmbedding(ctx context.Context, userID, threadRowID, providerThreadID string, embedding []float32) error
}

// JobRepository tracks job rows.
type JobRepository interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateStatus(ctx context.Context, update domain.JobStatusUpdate) error
	ListStale(ctx context.Context, olderThan time.Time) ([]*domain.Job, error)
}

// JobCreator inserts PENDING job rows for queued triggers.
type JobCreator interface {
	Create(ctx context.Context, job *domain.Job, metadata map[string]any) error
}

// ProcessingLogRepository appends audit entries.
type ProcessingLogRepository interface {
	Append(ctx context.Context, entry *domain.ProcessingLogEntry) error
}
