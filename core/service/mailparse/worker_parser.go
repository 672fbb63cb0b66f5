// Package mailparse turns a provider envelope into a structured message.
package mailparse

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"mailsync_worker/core/domain"
)

var ErrEmptyEnvelope = errors.New("envelope has no id or payload")

// Parse extracts addresses, date, bodies and attachment metadata from env.
func Parse(env *domain.Envelope) (*domain.ParsedMessage, error) {
	if env == nil || env.ID == "" || env.Payload == nil {
		return nil, ErrEmptyEnvelope
	}

	payload := env.Payload
	from := ParseAddress(payload.Header("From"))

	text, html, err := extractBody(payload)
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", env.ID, err)
	}
	if text == "" && html != "" {
		text = HTMLToText(html)
	}

	attachments := extractAttachments(payload)

	return &domain.ParsedMessage{
		ProviderMessageID: env.ID,
		ProviderThreadID:  env.ThreadID,
		From:              from,
		To:                ParseAddressList(payload.Header("To")),
		Cc:                ParseAddressList(payload.Header("Cc")),
		Bcc:               ParseAddressList(payload.Header("Bcc")),
		Date:              messageDate(payload.Header("Date"), env.InternalDate),
		Subject:           payload.Header("Subject"),
		Snippet:           env.Snippet,
		BodyText:          text,
		BodyHTML:          html,
		Labels:            append([]string{}, env.LabelIDs...),
		Attachments:       attachments,
		HasAttachments:    len(attachments) > 0,
	}, nil
}

// messageDate prefers the Date header and falls back to the provider's internal timestamp.
func messageDate(header string, internalMillis int64) time.Time {
	if header != "" {
		if t, err := mail.ParseDate(header); err == nil {
			return t.UTC()
		}
	}
	return time.UnixMilli(internalMillis).UTC()
}

// =============================================================================
// Addresses
// =============================================================================

var looseAddress = regexp.MustCompile(`^(?:"?([^"]*)"?\s)?<?([^>]+@[^>]+)>?$`)

// ParseAddress parses a single RFC 5322 address, tolerating malformed quoted display names.
func ParseAddress(value string) domain.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Address{}
	}

	if addr, err := mail.ParseAddress(value); err == nil {
		return domain.Address{Name: addr.Name, Email: addr.Address}
	}

	if m := looseAddress.FindStringSubmatch(value); m != nil {
		return domain.Address{Name: strings.TrimSpace(m[1]), Email: strings.TrimSpace(m[2])}
	}

	return domain.Address{Email: value}
}

// ParseAddressList parses a comma separated header value.
func ParseAddressList(value string) []domain.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return []domain.Address{}
	}

	if list, err := mail.ParseAddressList(value); err == nil {
		out := make([]domain.Address, 0, len(list))
		for _, a := range list {
			out = append(out, domain.Address{Name: a.Name, Email: a.Address})
		}
		return out
	}

	parts := strings.Split(value, ",")
	out := make([]domain.Address, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, ParseAddress(p))
	}
	return out
}

// =============================================================================
// Body & Attachments
// =============================================================================

func decodeBodyData(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

// extractBody walks the MIME tree; the first text/plain and text/html parts win.
// Parts carrying a filename are attachments, not bodies.
func extractBody(part *domain.EnvelopePart) (text, html string, err error) {
	if part == nil {
		return "", "", nil
	}

	if part.BodyData != "" && part.Filename == "" {
		mimeType := strings.ToLower(part.MimeType)
		if mimeType == "text/plain" || mimeType == "text/html" {
			data, decodeErr := decodeBodyData(part.BodyData)
			if decodeErr != nil {
				return "", "", fmt.Errorf("decode %s part: %w", mimeType, decodeErr)
			}
			if mimeType == "text/plain" {
				text = strings.ToValidUTF8(string(data), "�")
			} else {
				html = strings.ToValidUTF8(string(data), "�")
			}
		}
	}

	for _, sub := range part.Parts {
		t, h, subErr := extractBody(sub)
		if subErr != nil {
			return "", "", subErr
		}
		if text == "" {
			text = t
		}
		if html == "" {
			html = h
		}
	}

	return text, html, nil
}

func extractAttachments(part *domain.EnvelopePart) []domain.Attachment {
	attachments := []domain.Attachment{}
	var walk func(p *domain.EnvelopePart)
	walk = func(p *domain.EnvelopePart) {
		if p == nil {
			return
		}
		if p.Filename != "" && p.AttachmentID != "" {
			mimeType := p.MimeType
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			attachments = append(attachments, domain.Attachment{
				Filename:     p.Filename,
				MimeType:     mimeType,
				Size:         p.BodySize,
				AttachmentID: p.AttachmentID,
			})
		}
		for _, sub := range p.Parts {
			walk(sub)
		}
	}
	walk(part)
	return attachments
}
