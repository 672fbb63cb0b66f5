package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// SettingsAdapter implements out.SettingsStore over "UserSettings".
type SettingsAdapter struct {
	db *sqlx.DB
}

func NewSettingsAdapter(db *sqlx.DB) *SettingsAdapter {
	return &SettingsAdapter{db: db}
}

var _ out.SettingsStore = (*SettingsAdapter)(nil)

type settingsRow struct {
	LLMProvider   sql.NullString `db:"llmProvider"`
	LLMModel      sql.NullString `db:"llmModel"`
	LLMBaseURL    sql.NullString `db:"llmBaseUrl"`
	LLMAPIKeyEnc  sql.NullString `db:"llmApiKeyEnc"`
	RedactionMode sql.NullString `db:"redactionMode"`
	IncludeLabels pq.StringArray `db:"includeLabels"`
	ExcludeLabels pq.StringArray `db:"excludeLabels"`
	BackfillDays  sql.NullInt32  `db:"backfillDays"`
}

func (r *settingsRow) toRaw() *domain.RawSettings {
	raw := &domain.RawSettings{
		ModelProvider:  r.LLMProvider.String,
		ModelName:      r.LLMModel.String,
		ModelBaseURL:   r.LLMBaseURL.String,
		ModelAPIKeyEnc: r.LLMAPIKeyEnc.String,
		RedactionMode:  r.RedactionMode.String,
		BackfillDays:   int(r.BackfillDays.Int32),
	}
	if r.IncludeLabels != nil {
		raw.IncludeLabels = []string(r.IncludeLabels)
	}
	if r.ExcludeLabels != nil {
		raw.ExcludeLabels = []string(r.ExcludeLabels)
	}
	return raw
}

// GetSettings returns nil, nil when the user has no settings row.
func (a *SettingsAdapter) GetSettings(ctx context.Context, userID string) (*domain.RawSettings, error) {
	var row settingsRow
	query := `
		SELECT "llmProvider", "llmModel", "llmBaseUrl", "llmApiKeyEnc", "redactionMode",
		       "includeLabels", "excludeLabels", "backfillDays"
		FROM "UserSettings"
		WHERE "userId" = $1`

	if err := a.db.GetContext(ctx, &row, query, userID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	return row.toRaw(), nil
}
