package domain

import "time"

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// ProcessingLogEntry is an append-only audit record. Never mutated once written.
type ProcessingLogEntry struct {
	ID            string         `json:"id" bson:"_id"`
	UserID        string         `json:"user_id" bson:"user_id"`
	JobID         string         `json:"job_id,omitempty" bson:"job_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	Level         LogLevel       `json:"level" bson:"level"`
	Message       string         `json:"message" bson:"message"`
	Metadata      map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
}
