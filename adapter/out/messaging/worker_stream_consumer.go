package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Delivery is one stream entry handed to the handler.
type Delivery struct {
	Stream    string
	EntryID   string
	Job       *JobMessage
	Redeliver bool

	ack func(ctx context.Context) error
}

// Ack removes the entry from the group's pending list.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// JobHandler takes ownership of a delivery. A nil error means the handler will
// Ack once the job is done; an error leaves the entry pending for reclaim.
type JobHandler interface {
	Handle(ctx context.Context, d *Delivery) error
}

// Consumer consumes job messages from a Redis Stream consumer group.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	stream   string
	handler  JobHandler
	log      zerolog.Logger

	batchSize            int64
	block                time.Duration
	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Stream   string
	Handler  JobHandler
	Logger   zerolog.Logger

	// Optional
	BatchSize            int
	Block                time.Duration
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		stream:               cfg.Stream,
		handler:              cfg.Handler,
		log:                  cfg.Logger.With().Str("component", "job_consumer").Logger(),
		batchSize:            int64(cfg.BatchSize),
		block:                cfg.Block,
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           cfg.MaxRetries,
	}
	if c.stream == "" {
		c.stream = DefaultJobStream
	}
	if c.batchSize <= 0 {
		c.batchSize = 10
	}
	if c.block <= 0 {
		c.block = 5 * time.Second
	}
	if c.pendingCheckInterval <= 0 {
		c.pendingCheckInterval = time.Minute
	}
	// a running job holds its entry pending; reclaim only well after the job timeout
	if c.pendingIdleTime <= 0 {
		c.pendingIdleTime = 45 * time.Minute
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	return c
}

// Run reads the stream until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Str("stream", c.stream).
		Msg("starting consumer")

	if err := c.createConsumerGroup(ctx); err != nil {
		return err
	}

	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    c.batchSize,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("error reading from stream")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.dispatch(ctx, msg, false)
			}
		}
	}
}

// dispatch decodes and hands off one entry. Undecodable entries go straight to the DLQ.
func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage, redeliver bool) {
	job, err := DecodeJob(msg.Values)
	if err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("poison message")
		c.deadLetter(ctx, msg, err.Error())
		return
	}

	d := &Delivery{
		Stream:    c.stream,
		EntryID:   msg.ID,
		Job:       job,
		Redeliver: redeliver,
		ack: func(ctx context.Context) error {
			return c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
		},
	}
	if err := c.handler.Handle(ctx, d); err != nil {
		c.log.Warn().Err(err).Str("id", msg.ID).Str("job_id", job.ID).Msg("handler rejected message, left pending")
	}
}

// processPendingMessages periodically reclaims entries left pending by a dead consumer.
func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   c.pendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Msg("error getting pending messages")
		}
		return
	}

	for _, p := range pending {
		if p.Idle < c.pendingIdleTime {
			continue
		}

		if exceedsRetries(p.RetryCount, c.maxRetries) {
			c.log.Warn().
				Str("id", p.ID).
				Int64("retries", p.RetryCount).
				Msg("message exceeded max retries, moving to DLQ")

			msgs, err := c.client.XRange(ctx, c.stream, p.ID, p.ID).Result()
			if err != nil || len(msgs) == 0 {
				c.log.Error().Err(err).Str("id", p.ID).Msg("pending message vanished, acknowledging")
				c.client.XAck(ctx, c.stream, c.group, p.ID)
				continue
			}
			c.deadLetter(ctx, msgs[0], fmt.Sprintf("exceeded %d deliveries", c.maxRetries))
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.pendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}

		for _, msg := range claimed {
			c.log.Info().Str("id", msg.ID).Str("previous_consumer", p.Consumer).Msg("reclaimed pending message")
			c.dispatch(ctx, msg, true)
		}
	}
}

func exceedsRetries(deliveries int64, maxRetries int) bool {
	return int(deliveries) > maxRetries
}

// createConsumerGroup creates the group (and stream) unless it already exists.
func (c *Consumer) createConsumerGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// deadLetter copies the entry to dlq:<stream> and acknowledges the original.
func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	dlqStream := deadLetterPrefix + c.stream

	values := deadLetterValues(c.stream, c.group, c.consumer, msg, reason, time.Now())
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: dlqStream, Values: values}).Err(); err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error moving message to DLQ")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error acknowledging dead-lettered message")
	}

	c.log.Info().
		Str("dlq_stream", dlqStream).
		Str("original_id", msg.ID).
		Str("reason", reason).
		Msg("message moved to DLQ")
}

func deadLetterValues(stream, group, consumer string, msg redis.XMessage, reason string, now time.Time) map[string]any {
	values := map[string]any{
		"original_stream": stream,
		"original_id":     msg.ID,
		"failed_at":       now.UTC().Format(time.RFC3339),
		"consumer":        consumer,
		"group":           group,
		"reason":          reason,
	}
	for k, v := range msg.Values {
		values["original_"+k] = v
	}
	return values
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NewDelivery builds a delivery outside the consumer loop, e.g. for a direct trigger.
func NewDelivery(stream, entryID string, job *JobMessage, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Stream: stream, EntryID: entryID, Job: job, ack: ack}
}
