package out

import (
	"context"

	"mailsync_worker/core/domain"
)

// =============================================================================
// Model Port
// =============================================================================

type ClassifyInput struct {
	Subject     string
	From        string
	Labels      []string
	Snippet     string
	BodyPreview string // already redacted per settings
}

type SummaryMessage struct {
	From string
	Date string
	Body string
}

type SummarizeInput struct {
	Subject         string
	Messages        []SummaryMessage
	PreviousSummary string
}

type ExtractInput struct {
	Subject string
	Body    string // already redacted per settings
}

// Model is one model vendor behind a common task surface.
// Adapters return raw vendor errors; callers run them through the model error policy.
type Model interface {
	Provider() string
	Classify(ctx context.Context, in ClassifyInput) (*domain.Classification, error)
	Summarize(ctx context.Context, in SummarizeInput) (*domain.ThreadSummary, error)
	Extract(ctx context.Context, in ExtractInput) (*domain.Extraction, error)

	// SupportsEmbedding must be checked before Embed.
	SupportsEmbedding() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelFactory builds the model for a user's validated settings.
type ModelFactory interface {
	ForSettings(settings *domain.Settings) (Model, error)
}
