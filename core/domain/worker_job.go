package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Job Type & Status
// =============================================================================

type JobType string

const (
	JobTypeBackfill       JobType = "BACKFILL"
	JobTypeIncremental    JobType = "INCREMENTAL"
	JobTypeProcessThread  JobType = "PROCESS_THREAD"
	JobTypeProcessMessage JobType = "PROCESS_MESSAGE"
)

// ParseJobType validates a job type string coming off the wire.
func ParseJobType(s string) (JobType, error) {
	switch t := JobType(strings.ToUpper(strings.TrimSpace(s))); t {
	case JobTypeBackfill, JobTypeIncremental, JobTypeProcessThread, JobTypeProcessMessage:
		return t, nil
	default:
		return "", fmt.Errorf("unknown job type: %s", s)
	}
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo enforces PENDING -> RUNNING -> terminal.
// RUNNING -> RUNNING is allowed so progress checkpoints can be written.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case "", JobStatusPending:
		return next == JobStatusRunning || next.IsTerminal()
	case JobStatusRunning:
		return next == JobStatusRunning || next.IsTerminal()
	default:
		return false
	}
}

// =============================================================================
// Job
// =============================================================================

type Job struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Type        JobType    `json:"job_type" db:"job_type"`
	Status      JobStatus  `json:"status" db:"status"`
	Progress    int        `json:"progress" db:"progress"`
	TotalItems  *int       `json:"total_items,omitempty" db:"total_items"`
	Error       *string    `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// JobStatusUpdate is a partial update; nil fields are left untouched.
type JobStatusUpdate struct {
	JobID      string
	Status     JobStatus
	Progress   *int
	TotalItems *int
	Error      *string
}

// =============================================================================
// Job Request / Outcome
// =============================================================================

// JobMetadata is the typed form of the loose metadata map on a trigger payload.
type JobMetadata struct {
	JobID         string   `json:"jobId,omitempty"`
	BackfillDays  *int     `json:"backfillDays,omitempty"`
	ExcludeLabels []string `json:"excludeLabels,omitempty"`
	ThreadID      string   `json:"threadId,omitempty"`
	MessageID     string   `json:"messageId,omitempty"`
}

// JobMetadataFromMap decodes the loosely-typed metadata map.
// Numbers may arrive as float64 (JSON) or int, label lists as []any or []string.
func JobMetadataFromMap(m map[string]any) JobMetadata {
	var md JobMetadata
	if m == nil {
		return md
	}

	if v, ok := m["jobId"].(string); ok {
		md.JobID = v
	}
	if v, ok := m["threadId"].(string); ok {
		md.ThreadID = v
	}
	if v, ok := m["messageId"].(string); ok {
		md.MessageID = v
	}

	switch v := m["backfillDays"].(type) {
	case float64:
		days := int(v)
		md.BackfillDays = &days
	case int:
		days := v
		md.BackfillDays = &days
	case int64:
		days := int(v)
		md.BackfillDays = &days
	}

	switch v := m["excludeLabels"].(type) {
	case []string:
		md.ExcludeLabels = append([]string(nil), v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				md.ExcludeLabels = append(md.ExcludeLabels, s)
			}
		}
	}

	return md
}

type JobRequest struct {
	UserID        string      `json:"userId"`
	Type          JobType     `json:"jobType"`
	CorrelationID string      `json:"correlationId"`
	Metadata      JobMetadata `json:"metadata"`
}

// JobID returns the job row id, empty when the caller did not create one.
func (r JobRequest) JobID() string {
	return r.Metadata.JobID
}

// JobOutcome is what the orchestrator reports back. Failures are carried here, never returned.
type JobOutcome struct {
	Status        JobStatus `json:"status"`
	CorrelationID string    `json:"correlationId"`
	Error         string    `json:"error,omitempty"`
	Processed     int       `json:"processed"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	Threads       int       `json:"threads"`
}

// =============================================================================
// Job Trigger (wire payload)
// =============================================================================

// ErrMissingUserID rejects a trigger that names no user.
var ErrMissingUserID = errors.New("userId is required")

// JobTrigger is the payload accepted by the HTTP trigger and carried on the job stream.
type JobTrigger struct {
	UserID        string         `json:"userId"`
	JobType       string         `json:"jobType"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ToRequest validates the trigger and types its metadata.
func (t JobTrigger) ToRequest() (JobRequest, error) {
	if strings.TrimSpace(t.UserID) == "" {
		return JobRequest{}, ErrMissingUserID
	}
	jobType, err := ParseJobType(t.JobType)
	if err != nil {
		return JobRequest{}, err
	}
	return JobRequest{
		UserID:        t.UserID,
		Type:          jobType,
		CorrelationID: t.CorrelationID,
		Metadata:      JobMetadataFromMap(t.Metadata),
	}, nil
}
