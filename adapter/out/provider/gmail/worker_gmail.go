// Package gmail provides the Gmail mailbox client used by sync jobs.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

const (
	providerName = "gmail"
	userID       = "me"

	// listPageSize is the largest page messages.list accepts.
	listPageSize = 500
)

// Client is an authenticated view of one user's Gmail mailbox.
type Client struct {
	svc     *gmail.Service
	breaker *Breaker
	log     zerolog.Logger
}

func NewClient(svc *gmail.Service, breaker *Breaker, log zerolog.Logger) *Client {
	if breaker == nil {
		breaker = NewBreaker(log)
	}
	return &Client{svc: svc, breaker: breaker, log: log}
}

var _ out.MailboxProvider = (*Client)(nil)

// =============================================================================
// Listing
// =============================================================================

// ListIDs pages through messages newer than after, skipping excluded labels, until max ids are collected.
func (c *Client) ListIDs(ctx context.Context, after time.Time, excludeLabels []string, max int) ([]string, error) {
	query := BuildListQuery(after, excludeLabels)

	var ids []string
	pageToken := ""
	for {
		size := listPageSize
		if remaining := max - len(ids); remaining < size {
			size = remaining
		}
		if size <= 0 {
			break
		}

		var resp *gmail.ListMessagesResponse
		err := c.breaker.Execute(ctx, "ListMessages", func() error {
			call := c.svc.Users.Messages.List(userID).Q(query).MaxResults(int64(size)).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, wrapError(err, "failed to list messages")
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || len(ids) >= max {
			break
		}
	}

	if len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

// BuildListQuery renders the messages.list search query.
func BuildListQuery(after time.Time, excludeLabels []string) string {
	parts := []string{fmt.Sprintf("after:%d", after.Unix())}
	for _, label := range excludeLabels {
		if label = strings.TrimSpace(label); label != "" {
			parts = append(parts, "-label:"+label)
		}
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// History
// =============================================================================

// DiffSince collects ids touched since cursor. A cursor Gmail no longer knows
// about yields an empty diff with a nil NewCursor.
func (c *Client) DiffSince(ctx context.Context, cursor string) (*out.HistoryDiff, error) {
	start, err := strconv.ParseUint(strings.TrimSpace(cursor), 10, 64)
	if err != nil {
		c.log.Warn().Str("cursor", cursor).Msg("unparseable_history_cursor")
		return &out.HistoryDiff{}, nil
	}

	types := make([]string, 0, len(domain.TrackedChangeTypes))
	for _, t := range domain.TrackedChangeTypes {
		types = append(types, string(t))
	}

	seen := make(map[string]struct{})
	var ids []string
	add := func(m *gmail.Message) {
		if m == nil || m.Id == "" {
			return
		}
		if _, ok := seen[m.Id]; ok {
			return
		}
		seen[m.Id] = struct{}{}
		ids = append(ids, m.Id)
	}

	var newCursor uint64
	pageToken := ""
	for {
		var resp *gmail.ListHistoryResponse
		err := c.breaker.Execute(ctx, "ListHistory", func() error {
			call := c.svc.Users.History.List(userID).StartHistoryId(start).HistoryTypes(types...).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			// 404 means the cursor fell out of retained history; a 400 is a real failure.
			if isStatus(err, 404) {
				c.log.Info().Str("cursor", cursor).Msg("history_cursor_expired")
				return &out.HistoryDiff{}, nil
			}
			return nil, wrapError(err, "failed to list history")
		}

		newCursor = resp.HistoryId
		for _, h := range resp.History {
			for _, a := range h.MessagesAdded {
				add(a.Message)
			}
			for _, l := range h.LabelsAdded {
				add(l.Message)
			}
			for _, l := range h.LabelsRemoved {
				add(l.Message)
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	next := strconv.FormatUint(newCursor, 10)
	return &out.HistoryDiff{IDs: ids, NewCursor: &next}, nil
}

// =============================================================================
// Messages & Profile
// =============================================================================

// FetchItem returns the full message, or out.ErrItemNotFound.
func (c *Client) FetchItem(ctx context.Context, id string) (*domain.Envelope, error) {
	var msg *gmail.Message
	err := c.breaker.Execute(ctx, "GetMessage", func() error {
		var err error
		msg, err = c.svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		if isStatus(err, 404) {
			return nil, out.ErrItemNotFound
		}
		return nil, wrapError(err, "failed to fetch message "+id)
	}
	return ToEnvelope(msg), nil
}

func (c *Client) GetProfile(ctx context.Context) (*out.MailboxProfile, error) {
	var profile *gmail.Profile
	err := c.breaker.Execute(ctx, "GetProfile", func() error {
		var err error
		profile, err = c.svc.Users.GetProfile(userID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapError(err, "failed to get profile")
	}
	return &out.MailboxProfile{
		EmailAddress: profile.EmailAddress,
		Cursor:       strconv.FormatUint(profile.HistoryId, 10),
	}, nil
}

// =============================================================================
// Conversion
// =============================================================================

// ToEnvelope converts the Gmail wire message into the provider-neutral envelope.
func ToEnvelope(m *gmail.Message) *domain.Envelope {
	if m == nil {
		return nil
	}
	return &domain.Envelope{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		LabelIDs:     m.LabelIds,
		Snippet:      m.Snippet,
		InternalDate: m.InternalDate,
		Payload:      toPart(m.Payload),
	}
}

func toPart(p *gmail.MessagePart) *domain.EnvelopePart {
	if p == nil {
		return nil
	}
	part := &domain.EnvelopePart{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		if h != nil {
			part.Headers = append(part.Headers, domain.EnvelopeHeader{Name: h.Name, Value: h.Value})
		}
	}
	if p.Body != nil {
		part.BodyData = p.Body.Data
		part.BodySize = p.Body.Size
		part.AttachmentID = p.Body.AttachmentId
	}
	for _, child := range p.Parts {
		if c := toPart(child); c != nil {
			part.Parts = append(part.Parts, c)
		}
	}
	return part
}

// =============================================================================
// Errors
// =============================================================================

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCircuitOpen) {
		return out.NewProviderError(providerName, out.ProviderErrCircuitOpen, "Gmail API unavailable", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400:
			return out.NewProviderError(providerName, out.ProviderErrInvalidInput, "Invalid request", err, false)
		case 401:
			return out.NewProviderError(providerName, out.ProviderErrAuth, "Token expired or revoked", err, false)
		case 403:
			if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
				return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerName, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(providerName, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503, 504:
			return out.NewProviderError(providerName, out.ProviderErrServer, "Server error", err, true)
		}
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return out.NewProviderError(providerName, out.ProviderErrNetwork, defaultMsg, err, true)
	}
	return out.NewProviderError(providerName, out.ProviderErrServer, defaultMsg, err, true)
}
