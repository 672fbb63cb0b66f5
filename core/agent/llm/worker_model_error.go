package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Model Error Policy
// =============================================================================

type ErrorType string

const (
	ErrorRateLimit      ErrorType = "RATE_LIMIT"
	ErrorInvalidAPIKey  ErrorType = "INVALID_API_KEY"
	ErrorQuotaExceeded  ErrorType = "QUOTA_EXCEEDED"
	ErrorProviderOutage ErrorType = "PROVIDER_OUTAGE"
	ErrorNetwork        ErrorType = "NETWORK_ERROR"
	ErrorInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrorUnknown        ErrorType = "UNKNOWN"
)

// Default waits per retryable error type.
const (
	DefaultRateLimitWait = 60 * time.Second
	ProviderOutageWait   = 300 * time.Second
	NetworkErrorWait     = 30 * time.Second
	UnknownErrorWait     = 60 * time.Second
)

// ModelError is a classified model failure.
type ModelError struct {
	Type       ErrorType
	Provider   string
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ModelError) Error() string {
	return e.Message
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// StatusError is returned by the REST adapters for non-2xx responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

var retryAfterHint = regexp.MustCompile(`(?i)retry[- ]after[:\s]+(\d+)`)

// ClassifyError maps a raw provider failure onto the error taxonomy.
// Matching runs over the error text in a fixed priority order.
func ClassifyError(err error, provider string) *ModelError {
	if err == nil {
		return nil
	}

	var me *ModelError
	if errors.As(err, &me) {
		return me
	}

	raw := err.Error()
	text := raw
	if code := statusCode(err); code != 0 {
		text = strconv.Itoa(code) + " " + raw
	}
	lower := strings.ToLower(text)

	switch {
	case containsAny(text, "429") || containsAny(lower, "rate limit", "too many requests"):
		wait := retryAfter(err, raw)
		if wait <= 0 {
			wait = DefaultRateLimitWait
		}
		return &ModelError{
			Type:       ErrorRateLimit,
			Provider:   provider,
			Message:    fmt.Sprintf("Rate limit exceeded for %s. Please wait before retrying.", provider),
			Retryable:  true,
			RetryAfter: wait,
			Err:        err,
		}

	case containsAny(text, "401") || containsAny(lower, "unauthorized", "invalid api key", "authentication"):
		return &ModelError{
			Type:     ErrorInvalidAPIKey,
			Provider: provider,
			Message:  fmt.Sprintf("Invalid API key for %s. Please check your API key in Settings.", provider),
			Err:      err,
		}

	case containsAny(lower, "quota", "billing", "payment"):
		return &ModelError{
			Type:     ErrorQuotaExceeded,
			Provider: provider,
			Message:  fmt.Sprintf("API quota exceeded for %s. Please check your billing or upgrade your plan.", provider),
			Err:      err,
		}

	case containsAny(text, "500", "502", "503", "504"):
		return &ModelError{
			Type:       ErrorProviderOutage,
			Provider:   provider,
			Message:    fmt.Sprintf("%s is experiencing issues. Please try again later.", provider),
			Retryable:  true,
			RetryAfter: ProviderOutageWait,
			Err:        err,
		}

	case containsAny(lower, "connection", "timeout", "network"):
		return &ModelError{
			Type:       ErrorNetwork,
			Provider:   provider,
			Message:    fmt.Sprintf("Network error connecting to %s. Please check your internet connection.", provider),
			Retryable:  true,
			RetryAfter: NetworkErrorWait,
			Err:        err,
		}

	case containsAny(text, "400") || containsAny(lower, "bad request"):
		return &ModelError{
			Type:     ErrorInvalidRequest,
			Provider: provider,
			Message:  fmt.Sprintf("Invalid request to %s. This may be a configuration issue.", provider),
			Err:      err,
		}

	default:
		return &ModelError{
			Type:       ErrorUnknown,
			Provider:   provider,
			Message:    fmt.Sprintf("Unexpected error with %s: %s", provider, raw),
			Retryable:  true,
			RetryAfter: UnknownErrorWait,
			Err:        err,
		}
	}
}

// UserMessage is the text shown to the mailbox owner.
func (e *ModelError) UserMessage() string {
	switch e.Type {
	case ErrorRateLimit:
		return fmt.Sprintf("Your API rate limit has been reached. Processing will resume automatically. Please wait %d seconds.", int(e.RetryAfter.Seconds()))
	case ErrorInvalidAPIKey:
		return "Your API key is invalid or expired. Please update it in Settings → LLM Configuration."
	case ErrorQuotaExceeded:
		return "Your API quota has been exceeded. Please check your billing or upgrade your plan with your provider."
	case ErrorProviderOutage:
		return fmt.Sprintf("%s is currently experiencing issues. We'll retry automatically when the service is back online.", e.Provider)
	case ErrorNetwork:
		return "Network connection issue. We'll retry automatically."
	case ErrorInvalidRequest:
		return "There's a configuration issue with your API key. Please check your provider settings."
	default:
		return fmt.Sprintf("An unexpected error occurred with %s. Please try again or contact support if the issue persists.", e.Provider)
	}
}

// LogFields is the support-facing view of the error, merged with extra context.
func (e *ModelError) LogFields(extra map[string]any) map[string]any {
	fields := map[string]any{
		"error_type":     string(e.Type),
		"provider":       e.Provider,
		"message":        e.Message,
		"retryable":      e.Retryable,
		"retry_after":    nil,
		"original_error": nil,
	}
	if e.Retryable {
		fields["retry_after"] = int(e.RetryAfter.Seconds())
	}
	if e.Err != nil {
		fields["original_error"] = e.Err.Error()
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func retryAfter(err error, text string) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	if m := retryAfterHint.FindStringSubmatch(text); m != nil {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
