package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Wrapping(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("load credential: %w", DatabaseError(base))

	if !IsAppError(err) {
		t.Fatal("IsAppError() = false, want true")
	}
	if !errors.Is(err, base) {
		t.Error("errors.Is(err, base) = false, want true")
	}
	if got := StatusOf(err); got != http.StatusInternalServerError {
		t.Errorf("StatusOf() = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"missing credential", MissingCredential("u1"), CodeMissingCredential, true},
		{"missing metadata", MissingMetadata("threadId"), CodeMissingField, true},
		{"wrong code", UnknownJobType("NOPE"), CodeMissingField, false},
		{"plain error", errors.New("x"), CodeNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCode(tt.err, tt.code); got != tt.want {
				t.Errorf("HasCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMissingMetadata_Message(t *testing.T) {
	err := MissingMetadata("messageId")
	if err.Message != "messageId required in metadata" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["field"] != "messageId" {
		t.Errorf("Details[field] = %v, want messageId", err.Details["field"])
	}
}
