package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

const (
	DefaultGeminiBaseURL  = "https://generativelanguage.googleapis.com"
	GeminiEmbeddingModel  = "text-embedding-004"
	geminiProvider        = "gemini"
	geminiAPIKeyHeader    = "x-goog-api-key"
	geminiJSONContentType = "application/json"
)

// geminiModelAliases pins short model names to the versions actually served.
var geminiModelAliases = map[string]string{
	"gemini-2.5-flash": "gemini-2.5-flash-preview-05-20",
	"gemini-2.5-pro":   "gemini-2.5-pro-preview-05-06",
	"gemini-2.0-flash": "gemini-2.0-flash",
}

// ResolveGeminiModel maps a configured name to the served model, defaulting to flash.
func ResolveGeminiModel(name string) string {
	if name == "" {
		name = domain.DefaultGeminiModel
	}
	if resolved, ok := geminiModelAliases[name]; ok {
		return resolved
	}
	if strings.HasPrefix(name, "gemini-") {
		return name
	}
	return geminiModelAliases[domain.DefaultGeminiModel]
}

// GeminiModel talks to the Generative Language REST API.
type GeminiModel struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewGeminiModel(cfg GeminiConfig) *GeminiModel {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiModel{
		httpClient: client,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      ResolveGeminiModel(cfg.Model),
	}
}

var _ out.Model = (*GeminiModel)(nil)

func (m *GeminiModel) Provider() string { return geminiProvider }

// =============================================================================
// Wire types
// =============================================================================

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (m *GeminiModel) headers() map[string]string {
	return map[string]string{geminiAPIKeyHeader: m.apiKey}
}

func (m *GeminiModel) generateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := geminiGenerateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      Temperature,
			MaxOutputTokens:  MaxTokens,
			ResponseMimeType: geminiJSONContentType,
		},
	}

	var resp geminiGenerateResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", m.baseURL, m.model)
	if err := postJSON(ctx, m.httpClient, geminiProvider, url, m.headers(), req, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (m *GeminiModel) Classify(ctx context.Context, in out.ClassifyInput) (*domain.Classification, error) {
	raw, err := m.generateJSON(ctx, classifySystemPrompt, classifyUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseClassification(raw)
}

func (m *GeminiModel) Summarize(ctx context.Context, in out.SummarizeInput) (*domain.ThreadSummary, error) {
	raw, err := m.generateJSON(ctx, summarizeSystemPrompt, summarizeUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseSummary(raw)
}

func (m *GeminiModel) Extract(ctx context.Context, in out.ExtractInput) (*domain.Extraction, error) {
	raw, err := m.generateJSON(ctx, extractSystemPrompt, extractUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseExtraction(raw)
}

func (m *GeminiModel) SupportsEmbedding() bool { return true }

func (m *GeminiModel) Embed(ctx context.Context, text string) ([]float32, error) {
	req := geminiEmbedRequest{
		Model:   "models/" + GeminiEmbeddingModel,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}

	var resp geminiEmbedResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent", m.baseURL, GeminiEmbeddingModel)
	if err := postJSON(ctx, m.httpClient, geminiProvider, url, m.headers(), req, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding.Values, nil
}
