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

// MessageAdapter implements out.MessageRepository over "Message".
// Rows are keyed by ("userId", "gmailMessageId"); re-processing overwrites content in place.
type MessageAdapter struct {
	db *sqlx.DB
}

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

var _ out.MessageRepository = (*MessageAdapter)(nil)

// Upsert inserts or refreshes the message and sets msg.ID to the stored row id.
// "threadId" links to the Thread row when it already exists.
func (a *MessageAdapter) Upsert(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.UserID == "" || msg.ProviderMessageID == "" {
		return ErrInvalidInput
	}

	extracted, err := jsonb(msg.Extracted)
	if err != nil {
		return err
	}
	var attachments any
	if len(msg.Attachments) > 0 {
		if attachments, err = jsonb(msg.Attachments); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO "Message" (
			id, "userId", "gmailMessageId", "gmailThreadId", "threadId",
			"fromAddress", "fromName", "toAddresses", "ccAddresses", "bccAddresses",
			date, subject, snippet, "bodyTextEnc", "bodyHtmlEnc", "bodyHash",
			labels, category, priority, "needsReply", "spamScore", "sensitiveFlags", extracted,
			"isRead", "isStarred", "hasAttachments", attachments,
			"createdAt", "updatedAt", "processedAt"
		) VALUES (
			gen_random_uuid(), $1, $2, $3,
			(SELECT id FROM "Thread" WHERE "userId" = $1 AND "gmailThreadId" = $3),
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25,
			NOW(), NOW(), NOW()
		)
		ON CONFLICT ("userId", "gmailMessageId") DO UPDATE SET
			"threadId" = COALESCE(EXCLUDED."threadId", "Message"."threadId"),
			"fromAddress" = EXCLUDED."fromAddress",
			"fromName" = EXCLUDED."fromName",
			"toAddresses" = EXCLUDED."toAddresses",
			"ccAddresses" = EXCLUDED."ccAddresses",
			"bccAddresses" = EXCLUDED."bccAddresses",
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			"bodyTextEnc" = EXCLUDED."bodyTextEnc",
			"bodyHtmlEnc" = EXCLUDED."bodyHtmlEnc",
			"bodyHash" = EXCLUDED."bodyHash",
			labels = EXCLUDED.labels,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			"needsReply" = EXCLUDED."needsReply",
			"spamScore" = EXCLUDED."spamScore",
			"sensitiveFlags" = EXCLUDED."sensitiveFlags",
			extracted = EXCLUDED.extracted,
			"isRead" = EXCLUDED."isRead",
			"isStarred" = EXCLUDED."isStarred",
			"hasAttachments" = EXCLUDED."hasAttachments",
			attachments = EXCLUDED.attachments,
			"updatedAt" = NOW(),
			"processedAt" = NOW()
		RETURNING id`

	err = a.db.QueryRowxContext(ctx, query,
		msg.UserID, msg.ProviderMessageID, msg.ProviderThreadID,
		msg.FromAddress, nullStr(msg.FromName), pq.Array(nonNil(msg.ToAddresses)), pq.Array(nonNil(msg.CcAddresses)), pq.Array(nonNil(msg.BccAddresses)),
		nullTime(msg.Date), nullStr(msg.Subject), nullStr(msg.Snippet), nullStrPtr(msg.BodyTextEnc), nullStrPtr(msg.BodyHTMLEnc), nullStrPtr(msg.BodyHash),
		pq.Array(nonNil(msg.Labels)), string(msg.Category), string(msg.Priority), msg.NeedsReply, msg.SpamScore, pq.Array(nonNil(msg.SensitiveFlags)), extracted,
		msg.IsRead, msg.IsStarred, msg.HasAttachments, attachments,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", msg.ProviderMessageID, err)
	}
	return nil
}

type memberRow struct {
	GmailMessageID string         `db:"gmailMessageId"`
	FromAddress    sql.NullString `db:"fromAddress"`
	Date           sql.NullTime   `db:"date"`
	Subject        sql.NullString `db:"subject"`
	Snippet        sql.NullString `db:"snippet"`
	BodyTextEnc    sql.NullString `db:"bodyTextEnc"`
	Labels         pq.StringArray `db:"labels"`
	Category       sql.NullString `db:"category"`
	NeedsReply     sql.NullBool   `db:"needsReply"`
}

// ListByThread returns stored members ordered by date ascending, bodies still encrypted.
func (a *MessageAdapter) ListByThread(ctx context.Context, userID, providerThreadID string) ([]*out.StoredMember, error) {
	var rows []memberRow
	query := `
		SELECT "gmailMessageId", "fromAddress", date, subject, snippet, "bodyTextEnc",
		       labels, category, "needsReply"
		FROM "Message"
		WHERE "userId" = $1 AND "gmailThreadId" = $2
		ORDER BY date ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID, providerThreadID); err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}

	members := make([]*out.StoredMember, 0, len(rows))
	for _, r := range rows {
		m := &out.StoredMember{
			ProviderMessageID: r.GmailMessageID,
			FromAddress:       r.FromAddress.String,
			Subject:           r.Subject.String,
			Snippet:           r.Snippet.String,
			BodyTextEnc:       strPtr(r.BodyTextEnc),
			Labels:            []string(r.Labels),
			Category:          domain.Category(r.Category.String),
			NeedsReply:        r.NeedsReply.Bool,
		}
		if r.Date.Valid {
			m.Date = r.Date.Time.UTC()
		}
		members = append(members, m)
	}
	return members, nil
}

// nonNil keeps text[] columns NOT NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
