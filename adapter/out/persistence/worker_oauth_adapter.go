// Package persistence provides PostgreSQL adapters for the worker's outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
	"mailsync_worker/pkg/apperr"
)

// CredentialAdapter implements out.CredentialStore over "OAuthToken".
// Tokens stay encrypted here; the mailbox factory decrypts them.
type CredentialAdapter struct {
	db *sqlx.DB
}

func NewCredentialAdapter(db *sqlx.DB) *CredentialAdapter {
	return &CredentialAdapter{db: db}
}

var _ out.CredentialStore = (*CredentialAdapter)(nil)

type credentialRow struct {
	UserID          string         `db:"userId"`
	Provider        string         `db:"provider"`
	AccessTokenEnc  string         `db:"accessTokenEnc"`
	RefreshTokenEnc sql.NullString `db:"refreshTokenEnc"`
	Scope           sql.NullString `db:"scope"`
	Expiry          sql.NullTime   `db:"expiry"`
	HistoryID       sql.NullString `db:"historyId"`
}

func (r *credentialRow) toDomain() *domain.Credential {
	c := &domain.Credential{
		UserID:          r.UserID,
		Provider:        domain.OAuthProvider(r.Provider),
		AccessTokenEnc:  r.AccessTokenEnc,
		RefreshTokenEnc: r.RefreshTokenEnc.String,
		Scope:           r.Scope.String,
		Cursor:          strPtr(r.HistoryID),
	}
	if r.Expiry.Valid {
		t := r.Expiry.Time
		c.Expiry = &t
	}
	return c
}

// GetCredential returns nil, nil when the user has not connected Google.
func (a *CredentialAdapter) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	var row credentialRow
	query := `
		SELECT "userId", provider, "accessTokenEnc", "refreshTokenEnc", scope, expiry, "historyId"::text AS "historyId"
		FROM "OAuthToken"
		WHERE "userId" = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, string(domain.ProviderGoogle)); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get oauth token: %w", err)
	}
	return row.toDomain(), nil
}

func (a *CredentialAdapter) SetCursor(ctx context.Context, userID, cursor string) error {
	query := `
		UPDATE "OAuthToken"
		SET "historyId" = $1, "updatedAt" = NOW()
		WHERE "userId" = $2 AND provider = $3`

	res, err := a.db.ExecContext(ctx, query, cursor, userID, string(domain.ProviderGoogle))
	if err != nil {
		return fmt.Errorf("set history id: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("oauth token").WithError(ErrNotFound)
	}
	return nil
}
