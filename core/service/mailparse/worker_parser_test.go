package mailparse

import (
	"encoding/base64"
	"reflect"
	"testing"
	"time"

	"mailsync_worker/core/domain"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.Address
	}{
		{"bare", "jane@example.com", domain.Address{Email: "jane@example.com"}},
		{"display name", "Jane Doe <jane@example.com>", domain.Address{Name: "Jane Doe", Email: "jane@example.com"}},
		{"quoted with comma", `"Doe, Jane" <jane@example.com>`, domain.Address{Name: "Doe, Jane", Email: "jane@example.com"}},
		{"unbalanced quote", `"Jane Doe <jane@example.com>`, domain.Address{Name: "Jane Doe", Email: "jane@example.com"}},
		{"garbage", "not an address", domain.Address{Email: "not an address"}},
		{"empty", "", domain.Address{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseAddress(tt.input); got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseAddressList(t *testing.T) {
	got := ParseAddressList(`"Doe, Jane" <jane@example.com>, bob@example.com`)
	want := []domain.Address{
		{Name: "Doe, Jane", Email: "jane@example.com"},
		{Email: "bob@example.com"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseAddressList() = %+v, want %+v", got, want)
	}

	if got := ParseAddressList(""); len(got) != 0 {
		t.Errorf("ParseAddressList(\"\") = %v, want empty", got)
	}
}

func TestHTMLToText(t *testing.T) {
	in := `<html><style>p{color:red}</style><p>Hello&nbsp;<b>World</b></p><div>Line&amp;2</div><script>track()</script></html>`
	want := "Hello World\n\nLine&2"
	if got := HTMLToText(in); got != want {
		t.Errorf("HTMLToText() = %q, want %q", got, want)
	}

	if got := HTMLToText("a<br/>b<BR>c"); got != "a\nb\nc" {
		t.Errorf("HTMLToText(br) = %q", got)
	}
}

func TestParse_Multipart(t *testing.T) {
	env := &domain.Envelope{
		ID:       "m1",
		ThreadID: "t1",
		LabelIDs: []string{"INBOX", "UNREAD"},
		Snippet:  "Your order shipped",
		Payload: &domain.EnvelopePart{
			MimeType: "multipart/mixed",
			Headers: []domain.EnvelopeHeader{
				{Name: "From", Value: "Shop <orders@shop.example>"},
				{Name: "to", Value: "me@example.com"},
				{Name: "Subject", Value: "Order shipped"},
				{Name: "Date", Value: "Mon, 02 Jan 2006 15:04:05 -0700"},
			},
			Parts: []*domain.EnvelopePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*domain.EnvelopePart{
						{MimeType: "text/plain", BodyData: b64("plain body")},
						{MimeType: "text/html", BodyData: b64("<p>html body</p>")},
					},
				},
				{MimeType: "application/pdf", Filename: "label.pdf", AttachmentID: "att-1", BodySize: 2048},
				{MimeType: "text/plain", Filename: "notes.txt", BodyData: b64("attachment text")},
			},
		},
	}

	got, err := Parse(env)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got.From != (domain.Address{Name: "Shop", Email: "orders@shop.example"}) {
		t.Errorf("From = %+v", got.From)
	}
	if len(got.To) != 1 || got.To[0].Email != "me@example.com" {
		t.Errorf("To = %+v", got.To)
	}
	if got.BodyText != "plain body" {
		t.Errorf("BodyText = %q, want plain body", got.BodyText)
	}
	if got.BodyHTML != "<p>html body</p>" {
		t.Errorf("BodyHTML = %q", got.BodyHTML)
	}
	wantDate := time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)
	if !got.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", got.Date, wantDate)
	}
	if !got.HasAttachments || len(got.Attachments) != 1 {
		t.Fatalf("Attachments = %+v", got.Attachments)
	}
	if got.Attachments[0] != (domain.Attachment{Filename: "label.pdf", MimeType: "application/pdf", Size: 2048, AttachmentID: "att-1"}) {
		t.Errorf("Attachment = %+v", got.Attachments[0])
	}
	if !got.IsUnread() || got.IsStarred() {
		t.Errorf("IsUnread/IsStarred = %v/%v", got.IsUnread(), got.IsStarred())
	}
}

func TestParse_HTMLOnlyAndInternalDate(t *testing.T) {
	env := &domain.Envelope{
		ID:           "m2",
		ThreadID:     "t2",
		InternalDate: 1700000000000,
		Payload: &domain.EnvelopePart{
			MimeType: "text/html",
			Headers:  []domain.EnvelopeHeader{{Name: "Date", Value: "not a date"}},
			BodyData: b64("<div>Hi &lt;there&gt;</div>"),
		},
	}

	got, err := Parse(env)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.BodyText != "Hi <there>" {
		t.Errorf("BodyText = %q, want derived from HTML", got.BodyText)
	}
	if !got.Date.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Date = %v, want internal date", got.Date)
	}
	if got.HasAttachments {
		t.Error("HasAttachments = true, want false")
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Error("Parse(nil) error = nil")
	}
	if _, err := Parse(&domain.Envelope{ID: "x"}); err == nil {
		t.Error("Parse(no payload) error = nil")
	}

	bad := &domain.Envelope{ID: "x", Payload: &domain.EnvelopePart{MimeType: "text/plain", BodyData: "***"}}
	if _, err := Parse(bad); err == nil {
		t.Error("Parse(bad base64) error = nil")
	}
}
