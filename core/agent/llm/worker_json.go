package llm

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"mailsync_worker/core/domain"
)

// stripCodeFence removes a ```json ... ``` wrapper some models add around JSON mode output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeJSON(raw string, v any) error {
	body := stripCodeFence(raw)
	if body == "" {
		return fmt.Errorf("empty model response")
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

// =============================================================================
// Wire shapes
// =============================================================================

type classificationJSON struct {
	Category       string   `json:"category"`
	Priority       string   `json:"priority"`
	NeedsReply     bool     `json:"needs_reply"`
	SpamScore      float64  `json:"spam_score"`
	SensitiveFlags []string `json:"sensitive_flags"`
	Confidence     float64  `json:"confidence"`
}

func parseClassification(raw string) (*domain.Classification, error) {
	var c classificationJSON
	if err := decodeJSON(raw, &c); err != nil {
		return nil, err
	}
	flags := c.SensitiveFlags
	if flags == nil {
		flags = []string{}
	}
	return &domain.Classification{
		Category:       domain.NormalizeCategory(strings.ToLower(strings.TrimSpace(c.Category))),
		Priority:       domain.NormalizePriority(strings.ToUpper(strings.TrimSpace(c.Priority))),
		NeedsReply:     c.NeedsReply,
		SpamScore:      c.SpamScore,
		SensitiveFlags: flags,
		Confidence:     c.Confidence,
		Source:         domain.SourceModel,
	}, nil
}

func parseSummary(raw string) (*domain.ThreadSummary, error) {
	var s domain.ThreadSummary
	if err := decodeJSON(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseExtraction(raw string) (*domain.Extraction, error) {
	e := domain.EmptyExtraction()
	if err := decodeJSON(raw, e); err != nil {
		return nil, err
	}
	if e.Tasks == nil {
		e.Tasks = []domain.ExtractedTask{}
	}
	if e.Deadlines == nil {
		e.Deadlines = []domain.ExtractedDeadline{}
	}
	if e.Entities == nil {
		e.Entities = map[string][]string{}
	}
	if e.KeyFacts == nil {
		e.KeyFacts = []string{}
	}
	return e, nil
}
