package llm

import (
	"context"
	"net/http"
	"strings"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3"
	ollamaProvider       = "ollama"
)

// OllamaModel talks to a local Ollama server. It needs no API key.
type OllamaModel struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type OllamaConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func NewOllamaModel(cfg OllamaConfig) *OllamaModel {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaModel{httpClient: client, baseURL: baseURL, model: model}
}

var _ out.Model = (*OllamaModel)(nil)

func (m *OllamaModel) Provider() string { return ollamaProvider }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (m *OllamaModel) generateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := ollamaGenerateRequest{
		Model:  m.model,
		System: systemPrompt,
		Prompt: userPrompt,
		Format: "json",
		Stream: false,
		Options: map[string]any{
			"temperature": Temperature,
			"num_predict": MaxTokens,
		},
	}

	var resp ollamaGenerateResponse
	if err := postJSON(ctx, m.httpClient, ollamaProvider, m.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (m *OllamaModel) Classify(ctx context.Context, in out.ClassifyInput) (*domain.Classification, error) {
	raw, err := m.generateJSON(ctx, classifySystemPrompt, classifyUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseClassification(raw)
}

func (m *OllamaModel) Summarize(ctx context.Context, in out.SummarizeInput) (*domain.ThreadSummary, error) {
	raw, err := m.generateJSON(ctx, summarizeSystemPrompt, summarizeUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseSummary(raw)
}

func (m *OllamaModel) Extract(ctx context.Context, in out.ExtractInput) (*domain.Extraction, error) {
	raw, err := m.generateJSON(ctx, extractSystemPrompt, extractUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseExtraction(raw)
}

func (m *OllamaModel) SupportsEmbedding() bool { return false }

func (m *OllamaModel) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingUnsupported
}
