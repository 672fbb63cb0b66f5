package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
		wantWait      time.Duration
	}{
		{"429 text", errors.New("429 Too Many Requests"), ErrorRateLimit, true, 60 * time.Second},
		{"rate limit phrase", errors.New("Rate limit reached, retry after: 5"), ErrorRateLimit, true, 5 * time.Second},
		{"status error with hint", &StatusError{Provider: "gemini", StatusCode: 429, RetryAfter: 12 * time.Second}, ErrorRateLimit, true, 12 * time.Second},
		{"401", errors.New("error, status code: 401, message: Incorrect API key provided"), ErrorInvalidAPIKey, false, 0},
		{"authentication", errors.New("authentication failed"), ErrorInvalidAPIKey, false, 0},
		{"quota", errors.New("You exceeded your current quota"), ErrorQuotaExceeded, false, 0},
		{"503", errors.New("503 Service Unavailable"), ErrorProviderOutage, true, 300 * time.Second},
		{"outage beats network", errors.New("502 bad gateway: connection reset"), ErrorProviderOutage, true, 300 * time.Second},
		{"network", errors.New("dial tcp: connection refused"), ErrorNetwork, true, 30 * time.Second},
		{"timeout", fmt.Errorf("wrapped: %w", errors.New("context deadline exceeded (Client.Timeout exceeded)")), ErrorNetwork, true, 30 * time.Second},
		{"400", errors.New("400 Bad Request"), ErrorInvalidRequest, false, 0},
		{"unknown", errors.New("something odd"), ErrorUnknown, true, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err, "openai")
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if got.RetryAfter != tt.wantWait {
				t.Errorf("RetryAfter = %v, want %v", got.RetryAfter, tt.wantWait)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error does not wrap the original")
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := ClassifyError(nil, "openai"); got != nil {
		t.Errorf("ClassifyError(nil) = %v, want nil", got)
	}
}

func TestModelError_UserMessage(t *testing.T) {
	rl := ClassifyError(errors.New("429"), "gemini")
	want := "Your API rate limit has been reached. Processing will resume automatically. Please wait 60 seconds."
	if got := rl.UserMessage(); got != want {
		t.Errorf("UserMessage() = %q, want %q", got, want)
	}

	outage := ClassifyError(errors.New("503"), "gemini")
	want = "gemini is currently experiencing issues. We'll retry automatically when the service is back online."
	if got := outage.UserMessage(); got != want {
		t.Errorf("UserMessage() = %q, want %q", got, want)
	}
}

func TestModelError_LogFields(t *testing.T) {
	me := ClassifyError(errors.New("401 unauthorized"), "openai")
	fields := me.LogFields(map[string]any{"message_id": "m1"})

	if fields["error_type"] != "INVALID_API_KEY" {
		t.Errorf("error_type = %v", fields["error_type"])
	}
	if fields["retry_after"] != nil {
		t.Errorf("retry_after = %v, want nil", fields["retry_after"])
	}
	if fields["original_error"] != "401 unauthorized" {
		t.Errorf("original_error = %v", fields["original_error"])
	}
	if fields["message_id"] != "m1" {
		t.Errorf("message_id = %v", fields["message_id"])
	}
}
