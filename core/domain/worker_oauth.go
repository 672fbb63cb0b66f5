package domain

import "time"

type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
)

// Credential is the user's stored provider credential. Tokens are encrypted at rest.
// Cursor is the provider history id used by incremental sync; nil until the first backfill completes.
type Credential struct {
	UserID          string
	Provider        OAuthProvider
	AccessTokenEnc  string
	RefreshTokenEnc string
	Scope           string
	Expiry          *time.Time
	Cursor          *string
}

// HasCursor reports whether an incremental diff can be attempted.
func (c *Credential) HasCursor() bool {
	return c != nil && c.Cursor != nil && *c.Cursor != ""
}
