// Package worker runs queued sync jobs on a bounded go-pkgz/pool worker group.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"mailsync_worker/adapter/out/messaging"
	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/in"
	"mailsync_worker/pkg/metrics"
)

var errPoolStopped = errors.New("worker pool is not running")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Concurrency int           // jobs running at once
	JobTimeout  time.Duration // per-job deadline
	AckTimeout  time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency: 4,
		JobTimeout:  30 * time.Minute,
		AckTimeout:  5 * time.Second,
	}
}

// PoolMetrics holds pool counters.
type PoolMetrics struct {
	JobsCompleted int64
	JobsFailed    int64
	JobsRejected  int64
	Running       int64
}

// Pool feeds stream deliveries to the sync use case. Each job occupies one slot
// until it finishes, so the consumer blocks instead of over-reading the stream.
type Pool struct {
	sync   in.SyncUseCase
	config PoolConfig
	log    zerolog.Logger

	group  *pool.WorkerGroup[*messaging.Delivery]
	slots  chan struct{}
	cancel context.CancelFunc

	metrics PoolMetrics
	latency *metrics.LatencyRegistry

	started bool
	mu      sync.Mutex
}

var _ messaging.JobHandler = (*Pool)(nil)

// jobWorker implements pool.Worker for deliveries.
type jobWorker struct {
	pool *Pool
}

func (w *jobWorker) Do(ctx context.Context, d *messaging.Delivery) error {
	return w.pool.processJob(ctx, d)
}

func NewPool(syncUC in.SyncUseCase, config PoolConfig, log zerolog.Logger) *Pool {
	def := DefaultPoolConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = def.AckTimeout
	}

	return &Pool{
		sync:    syncUC,
		config:  config,
		log:     log.With().Str("component", "worker_pool").Logger(),
		slots:   make(chan struct{}, config.Concurrency),
		latency: metrics.NewLatencyRegistry(500),
	}
}

// Start starts the worker group. Jobs run on their own context so that a
// shutdown lets them finish; Stop bounds the wait.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	// batch size 1: a queued job must reach a worker immediately
	p.group = pool.New[*messaging.Delivery](p.config.Concurrency, &jobWorker{pool: p}).
		WithBatchSize(1).
		WithWorkerChanSize(1).
		WithContinueOnError()

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.group.Go(ctx); err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.started = true

	p.log.Info().
		Int("concurrency", p.config.Concurrency).
		Dur("job_timeout", p.config.JobTimeout).
		Msg("worker pool started")
	return nil
}

// Handle waits for a free slot, then queues the delivery.
func (p *Pool) Handle(ctx context.Context, d *messaging.Delivery) error {
	p.mu.Lock()
	started, group := p.started, p.group
	p.mu.Unlock()
	if !started {
		atomic.AddInt64(&p.metrics.JobsRejected, 1)
		return errPoolStopped
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		atomic.AddInt64(&p.metrics.JobsRejected, 1)
		return ctx.Err()
	}

	group.Submit(d)
	return nil
}

// processJob runs one job. The delivery is acknowledged whatever the outcome:
// failures are recorded on the job row, so redelivery would only repeat them.
func (p *Pool) processJob(ctx context.Context, d *messaging.Delivery) error {
	defer func() { <-p.slots }()
	atomic.AddInt64(&p.metrics.Running, 1)
	defer atomic.AddInt64(&p.metrics.Running, -1)

	log := p.log.With().Str("message_id", d.Job.ID).Str("entry_id", d.EntryID).Logger()

	req, err := d.Job.Trigger.ToRequest()
	if err != nil {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		log.Error().Err(err).Msg("invalid job trigger, dropping")
		p.ack(d, log)
		return nil
	}
	if req.CorrelationID == "" {
		req.CorrelationID = d.Job.ID
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	start := time.Now()
	outcome := p.sync.RunJob(jobCtx, req)
	elapsed := time.Since(start)
	p.latency.Record(string(req.Type), elapsed)

	event := log.Info()
	if outcome.Status == domain.JobStatusFailed {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		event = log.Warn().Str("error", outcome.Error)
	} else {
		atomic.AddInt64(&p.metrics.JobsCompleted, 1)
	}
	event.
		Str("user_id", req.UserID).
		Str("job_type", string(req.Type)).
		Str("job_id", req.JobID()).
		Str("correlation_id", outcome.CorrelationID).
		Str("status", string(outcome.Status)).
		Int("processed", outcome.Processed).
		Int("failed", outcome.Failed).
		Int("skipped", outcome.Skipped).
		Int("threads", outcome.Threads).
		Bool("redelivered", d.Redeliver).
		Dur("elapsed", elapsed).
		Msg("job finished")

	p.ack(d, log)
	return nil
}

func (p *Pool) ack(d *messaging.Delivery, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.AckTimeout)
	defer cancel()
	if err := d.Ack(ctx); err != nil {
		log.Error().Err(err).Msg("error acknowledging message")
	}
}

// Stop waits for running jobs, bounded by ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	group, cancel := p.group, p.cancel
	p.mu.Unlock()

	err := group.Close(ctx)
	cancel()
	p.log.Info().
		Int64("completed", atomic.LoadInt64(&p.metrics.JobsCompleted)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
	return err
}

// GetMetrics returns current pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsCompleted: atomic.LoadInt64(&p.metrics.JobsCompleted),
		JobsFailed:    atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsRejected:  atomic.LoadInt64(&p.metrics.JobsRejected),
		Running:       atomic.LoadInt64(&p.metrics.Running),
	}
}

// LatencyStats returns job durations per job type.
func (p *Pool) LatencyStats() map[string]metrics.LatencyStats {
	return p.latency.AllStats()
}
