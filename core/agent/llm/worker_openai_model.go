package llm

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIModel serves both the OpenAI provider and OpenAI-compatible custom endpoints.
type OpenAIModel struct {
	client    *openai.Client
	provider  domain.ModelProvider
	model     string
	embedding bool
}

type OpenAIConfig struct {
	Provider   domain.ModelProvider
	APIKey     string
	Model      string
	BaseURL    string // set for custom endpoints
	HTTPClient *http.Client
}

func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	provider := cfg.Provider
	if provider == "" {
		provider = domain.ModelProviderOpenAI
	}

	return &OpenAIModel{
		client:    openai.NewClientWithConfig(clientCfg),
		provider:  provider,
		model:     model,
		embedding: provider == domain.ModelProviderOpenAI,
	}
}

var _ out.Model = (*OpenAIModel)(nil)

func (m *OpenAIModel) Provider() string { return string(m.provider) }

func (m *OpenAIModel) completeJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (m *OpenAIModel) Classify(ctx context.Context, in out.ClassifyInput) (*domain.Classification, error) {
	raw, err := m.completeJSON(ctx, classifySystemPrompt, classifyUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseClassification(raw)
}

func (m *OpenAIModel) Summarize(ctx context.Context, in out.SummarizeInput) (*domain.ThreadSummary, error) {
	raw, err := m.completeJSON(ctx, summarizeSystemPrompt, summarizeUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseSummary(raw)
}

func (m *OpenAIModel) Extract(ctx context.Context, in out.ExtractInput) (*domain.Extraction, error) {
	raw, err := m.completeJSON(ctx, extractSystemPrompt, extractUserPrompt(in))
	if err != nil {
		return nil, err
	}
	return parseExtraction(raw)
}

// SupportsEmbedding is false for custom endpoints; their embedding models are unknown.
func (m *OpenAIModel) SupportsEmbedding() bool { return m.embedding }

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.AdaEmbeddingV2,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return resp.Data[0].Embedding, nil
}
