// Package llm adapts model vendors to the model port and classifies their failures.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
	"mailsync_worker/pkg/httputil"
)

var (
	ErrEmbeddingUnsupported = errors.New("embedding not supported by this provider")
	ErrNoCredentials        = errors.New("no model credentials configured")
)

type FactoryConfig struct {
	GeminiBaseURL string
	OllamaBaseURL string
	DefaultModel  string // used when settings name no model, gemini only
	Timeout       time.Duration
}

// ModelFactory builds a Model from validated settings, decrypting the stored key.
type ModelFactory struct {
	cfg        FactoryConfig
	encryptor  out.Encryptor
	httpClient *http.Client
}

func NewModelFactory(cfg FactoryConfig, encryptor out.Encryptor) *ModelFactory {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ModelFactory{
		cfg:        cfg,
		encryptor:  encryptor,
		httpClient: httputil.NewClient(httputil.ModelClientConfig(timeout)),
	}
}

var _ out.ModelFactory = (*ModelFactory)(nil)

func (f *ModelFactory) ForSettings(settings *domain.Settings) (out.Model, error) {
	if !settings.HasModelCredentials() {
		return nil, ErrNoCredentials
	}

	if settings.ModelProvider == domain.ModelProviderOllama {
		baseURL := settings.ModelBaseURL
		if baseURL == "" {
			baseURL = f.cfg.OllamaBaseURL
		}
		return NewOllamaModel(OllamaConfig{
			BaseURL:    baseURL,
			Model:      settings.ModelName,
			HTTPClient: f.httpClient,
		}), nil
	}

	apiKey, err := f.encryptor.Decrypt(settings.ModelAPIKeyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt model api key: %w", err)
	}

	switch settings.ModelProvider {
	case domain.ModelProviderOpenAI, domain.ModelProviderCustom:
		return NewOpenAIModel(OpenAIConfig{
			Provider:   settings.ModelProvider,
			APIKey:     apiKey,
			Model:      settings.ModelName,
			BaseURL:    settings.ModelBaseURL,
			HTTPClient: f.httpClient,
		}), nil
	case domain.ModelProviderGemini:
		model := settings.ModelName
		if model == "" {
			model = f.cfg.DefaultModel
		}
		return NewGeminiModel(GeminiConfig{
			APIKey:     apiKey,
			Model:      model,
			BaseURL:    f.cfg.GeminiBaseURL,
			HTTPClient: f.httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", settings.ModelProvider)
	}
}
