package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Envelope - provider wire shape of a single message
// =============================================================================

// Envelope mirrors the Gmail "full" message format. Body data is base64url encoded.
type Envelope struct {
	ID           string        `json:"id"`
	ThreadID     string        `json:"threadId"`
	LabelIDs     []string      `json:"labelIds,omitempty"`
	Snippet      string        `json:"snippet,omitempty"`
	InternalDate int64         `json:"internalDate,omitempty"` // unix millis
	Payload      *EnvelopePart `json:"payload,omitempty"`
}

type EnvelopePart struct {
	PartID       string           `json:"partId,omitempty"`
	MimeType     string           `json:"mimeType,omitempty"`
	Filename     string           `json:"filename,omitempty"`
	Headers      []EnvelopeHeader `json:"headers,omitempty"`
	BodyData     string           `json:"data,omitempty"`
	BodySize     int64            `json:"size,omitempty"`
	AttachmentID string           `json:"attachmentId,omitempty"`
	Parts        []*EnvelopePart  `json:"parts,omitempty"`
}

type EnvelopeHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header returns the first header value matching name, case-insensitively.
func (p *EnvelopePart) Header(name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// =============================================================================
// Parsed Message
// =============================================================================

type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	AttachmentID string `json:"attachment_id"`
}

// ParsedMessage is the structured form produced by the parse stage.
type ParsedMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	From              Address
	To                []Address
	Cc                []Address
	Bcc               []Address
	Date              time.Time
	Subject           string
	Snippet           string
	BodyText          string
	BodyHTML          string
	Labels            []string
	Attachments       []Attachment
	HasAttachments    bool
}

// Well-known label ids
const (
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
)

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsUnread reports whether the UNREAD label is present.
func (m *ParsedMessage) IsUnread() bool { return hasLabel(m.Labels, LabelUnread) }

// IsStarred reports whether the STARRED label is present.
func (m *ParsedMessage) IsStarred() bool { return hasLabel(m.Labels, LabelStarred) }

// =============================================================================
// Message - persisted row, unique on (UserID, ProviderMessageID)
// =============================================================================

type Message struct {
	ID                string
	UserID            string
	ProviderMessageID string
	ProviderThreadID  string
	FromAddress       string
	FromName          string
	ToAddresses       []string
	CcAddresses       []string
	BccAddresses      []string
	Date              time.Time
	Subject           string
	Snippet           string
	BodyTextEnc       *string
	BodyHTMLEnc       *string
	BodyHash          *string
	Labels            []string
	Category          Category
	Priority          Priority
	NeedsReply        bool
	SpamScore         float64
	SensitiveFlags    []string
	Extracted         *Extraction
	IsRead            bool
	IsStarred         bool
	HasAttachments    bool
	Attachments       []Attachment
}

// AddressEmails flattens addresses to their email part.
func AddressEmails(addrs []Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Email != "" {
			out = append(out, a.Email)
		}
	}
	return out
}
