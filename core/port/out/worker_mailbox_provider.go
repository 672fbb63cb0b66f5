package out

import (
	"context"
	"errors"
	"time"

	"mailsync_worker/core/domain"
)

// =============================================================================
// Mailbox Provider Port
// =============================================================================

// ErrItemNotFound is returned by FetchItem when the message no longer exists remotely.
var ErrItemNotFound = errors.New("mailbox item not found")

// HistoryDiff is the result of diffing the change log from a cursor.
// A stale cursor is reported as IDs == nil and NewCursor == nil.
type HistoryDiff struct {
	IDs       []string
	NewCursor *string
}

// IsStale reports the stale-cursor signal.
func (d *HistoryDiff) IsStale() bool {
	return d == nil || (d.NewCursor == nil && len(d.IDs) == 0)
}

type MailboxProfile struct {
	EmailAddress string
	Cursor       string
}

// MailboxProvider is an authenticated view of one user's mailbox.
type MailboxProvider interface {
	// ListIDs pages through message ids newer than after, skipping excluded labels, stopping at max.
	ListIDs(ctx context.Context, after time.Time, excludeLabels []string, max int) ([]string, error)

	// DiffSince collects ids touched by additions and label changes since cursor, deduplicated.
	DiffSince(ctx context.Context, cursor string) (*HistoryDiff, error)

	// FetchItem returns the full envelope, or ErrItemNotFound.
	FetchItem(ctx context.Context, id string) (*domain.Envelope, error)

	// GetProfile returns the mailbox's current cursor.
	GetProfile(ctx context.Context) (*MailboxProfile, error)
}

// MailboxFactory builds a provider from a stored credential.
type MailboxFactory interface {
	ForCredential(ctx context.Context, cred *domain.Credential) (MailboxProvider, error)
}

// =============================================================================
// Provider Errors
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrCircuitOpen  ProviderErrorCode = "circuit_open"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
