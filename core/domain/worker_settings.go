package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Model Provider
// =============================================================================

type ModelProvider string

const (
	ModelProviderGemini ModelProvider = "gemini"
	ModelProviderOpenAI ModelProvider = "openai"
	ModelProviderOllama ModelProvider = "ollama"
	ModelProviderCustom ModelProvider = "custom" // OpenAI-compatible endpoint
)

const DefaultGeminiModel = "gemini-2.5-flash"

// ParseModelProvider maps stored provider strings to a provider and an implied model.
// Legacy rows store a model name (e.g. "gemini-2.5-flash") in the provider column.
func ParseModelProvider(s string) (ModelProvider, string) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "":
		return ModelProviderGemini, ""
	case v == string(ModelProviderOpenAI), strings.HasPrefix(v, "gpt-"):
		if v == string(ModelProviderOpenAI) {
			return ModelProviderOpenAI, ""
		}
		return ModelProviderOpenAI, v
	case v == string(ModelProviderOllama):
		return ModelProviderOllama, ""
	case v == string(ModelProviderCustom), v == "openai-compatible":
		return ModelProviderCustom, ""
	case v == string(ModelProviderGemini):
		return ModelProviderGemini, ""
	case strings.HasPrefix(v, "gemini"):
		return ModelProviderGemini, v
	default:
		return ModelProviderGemini, ""
	}
}

// =============================================================================
// Redaction Mode
// =============================================================================

type RedactionMode string

const (
	RedactionOff           RedactionMode = "OFF"
	RedactionBeforeLLM     RedactionMode = "REDACT_BEFORE_LLM"
	RedactionSummariesOnly RedactionMode = "SUMMARIES_ONLY"
)

func ParseRedactionMode(s string) (RedactionMode, error) {
	switch m := RedactionMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return RedactionOff, nil
	case RedactionOff, RedactionBeforeLLM, RedactionSummariesOnly:
		return m, nil
	default:
		return "", fmt.Errorf("unknown redaction mode: %s", s)
	}
}

// =============================================================================
// Settings
// =============================================================================

const DefaultBackfillDays = 30

var DefaultExcludeLabels = []string{"SPAM", "TRASH"}

// RawSettings is the user preference row as stored.
type RawSettings struct {
	ModelProvider  string
	ModelName      string
	ModelBaseURL   string
	ModelAPIKeyEnc string
	RedactionMode  string
	IncludeLabels  []string
	ExcludeLabels  []string
	BackfillDays   int
}

// Settings is the validated per-job configuration.
type Settings struct {
	ModelProvider  ModelProvider
	ModelName      string
	ModelBaseURL   string
	ModelAPIKeyEnc string
	RedactionMode  RedactionMode
	IncludeLabels  []string
	ExcludeLabels  []string
	BackfillDays   int
}

// DefaultSettings is used when the user has no preference row.
func DefaultSettings() *Settings {
	return &Settings{
		ModelProvider: ModelProviderGemini,
		RedactionMode: RedactionOff,
		ExcludeLabels: append([]string(nil), DefaultExcludeLabels...),
		BackfillDays:  DefaultBackfillDays,
	}
}

// NormalizeSettings validates raw preferences once at job start.
func NormalizeSettings(raw *RawSettings) (*Settings, error) {
	if raw == nil {
		return DefaultSettings(), nil
	}

	mode, err := ParseRedactionMode(raw.RedactionMode)
	if err != nil {
		return nil, err
	}

	provider, impliedModel := ParseModelProvider(raw.ModelProvider)
	modelName := strings.TrimSpace(raw.ModelName)
	if modelName == "" {
		modelName = impliedModel
	}

	if provider == ModelProviderCustom && raw.ModelBaseURL == "" {
		return nil, fmt.Errorf("custom model provider requires a base URL")
	}

	s := &Settings{
		ModelProvider:  provider,
		ModelName:      modelName,
		ModelBaseURL:   strings.TrimSpace(raw.ModelBaseURL),
		ModelAPIKeyEnc: raw.ModelAPIKeyEnc,
		RedactionMode:  mode,
		IncludeLabels:  raw.IncludeLabels,
		ExcludeLabels:  raw.ExcludeLabels,
		BackfillDays:   raw.BackfillDays,
	}
	if s.ExcludeLabels == nil {
		s.ExcludeLabels = append([]string(nil), DefaultExcludeLabels...)
	}
	if s.BackfillDays <= 0 {
		s.BackfillDays = DefaultBackfillDays
	}
	return s, nil
}

// HasModelCredentials reports whether model calls may be made at all.
// Ollama runs locally and needs no key.
func (s *Settings) HasModelCredentials() bool {
	if s == nil {
		return false
	}
	if s.ModelProvider == ModelProviderOllama {
		return true
	}
	return s.ModelAPIKeyEnc != ""
}
