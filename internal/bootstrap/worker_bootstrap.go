package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailsync_worker/adapter/in/worker"
	"mailsync_worker/adapter/out/messaging"
	"mailsync_worker/config"
	"mailsync_worker/pkg/logger"
	"mailsync_worker/pkg/metrics"
)

var errNoRedis = errors.New("worker mode requires REDIS_URL")

// Worker consumes the job stream and runs jobs on the pool.
type Worker struct {
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.StaleJobScheduler
	deps      *Dependencies
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) (*Worker, error) {
	if deps.Redis == nil {
		return nil, errNoRedis
	}

	zlog := logger.WithComponent("worker")

	pool := worker.NewPool(deps.Orchestrator, worker.PoolConfig{
		Concurrency: cfg.WorkerConcurrency,
		JobTimeout:  cfg.JobTimeout,
	}, zlog)

	consumer := messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                cfg.JobGroup,
		Consumer:             cfg.WorkerID,
		Stream:               cfg.JobStream,
		Handler:              pool,
		Logger:               logger.WithComponent("consumer"),
		BatchSize:            cfg.ConsumerBatchSize,
		Block:                durationMS(cfg.ConsumerBlockMS),
		PendingCheckInterval: durationSec(cfg.ConsumerPendingCheckSec),
		PendingIdleTime:      durationSec(cfg.ConsumerPendingIdleSec),
		MaxRetries:           cfg.ConsumerMaxRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:      pool,
		consumer:  consumer,
		scheduler: worker.NewStaleJobScheduler(deps.Sweeper, cfg.StaleJobInterval, zlog),
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		zlog:      zlog,
	}
	logger.Info("Redis Stream Consumer configured for %s (group %s, consumer %s)", cfg.JobStream, cfg.JobGroup, cfg.WorkerID)

	return w, nil
}

// Start starts the pool, the stream consumer and the stale job scheduler. It does not block.
func (w *Worker) Start() error {
	if err := w.pool.Start(); err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Msg("Starting Redis Stream Consumer...")
		if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
		}
	}()

	w.scheduler.Start()
	return nil
}

// Stop stops reading new jobs, then waits for running ones, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	w.wg.Wait()
	w.scheduler.Stop()
	return w.pool.Stop(ctx)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) LatencyStats() map[string]metrics.LatencyStats {
	return w.pool.LatencyStats()
}

func durationMS(ms int) time.Duration   { return time.Duration(ms) * time.Millisecond }
func durationSec(sec int) time.Duration { return time.Duration(sec) * time.Second }
