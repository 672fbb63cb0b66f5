// Package messaging carries sync job triggers over a Redis Stream.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mailsync_worker/core/domain"
)

const (
	DefaultJobStream = "mailsync:jobs"

	dataField        = "data"
	deadLetterPrefix = "dlq:"

	// approximate cap on stream length; acked entries are trimmed first
	streamMaxLen = 100_000
)

var errMissingData = errors.New("invalid message format: missing data field")

// JobMessage is the stream entry body.
type JobMessage struct {
	ID         string            `json:"id"`
	Trigger    domain.JobTrigger `json:"trigger"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// EncodeJob renders the message for the stream's data field.
func EncodeJob(m *JobMessage) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return string(data), nil
}

// DecodeJob reads a message back out of a stream entry's values.
func DecodeJob(values map[string]any) (*JobMessage, error) {
	raw, ok := values[dataField]
	if !ok {
		return nil, errMissingData
	}
	data, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: data is %T, not a string", raw)
	}

	var m JobMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &m, nil
}

// Producer publishes job triggers to the job stream.
type Producer struct {
	client *redis.Client
	stream string
	now    func() time.Time
}

func NewProducer(client *redis.Client, stream string) *Producer {
	if stream == "" {
		stream = DefaultJobStream
	}
	return &Producer{client: client, stream: stream, now: time.Now}
}

// Enqueue publishes the trigger and returns the message as written.
func (p *Producer) Enqueue(ctx context.Context, trigger domain.JobTrigger) (*JobMessage, error) {
	m := &JobMessage{
		ID:         uuid.NewString(),
		Trigger:    trigger,
		EnqueuedAt: p.now().UTC(),
	}
	data, err := EncodeJob(m)
	if err != nil {
		return nil, err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{dataField: data},
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to publish to %s: %w", p.stream, err)
	}
	return m, nil
}
