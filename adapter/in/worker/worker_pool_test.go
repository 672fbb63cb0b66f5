package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailsync_worker/adapter/out/messaging"
	"mailsync_worker/core/domain"
)

type fakeSync struct {
	mu   sync.Mutex
	reqs []domain.JobRequest
	out  domain.JobStatus
}

func (f *fakeSync) RunJob(_ context.Context, req domain.JobRequest) domain.JobOutcome {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	status := f.out
	if status == "" {
		status = domain.JobStatusCompleted
	}
	return domain.JobOutcome{Status: status, CorrelationID: req.CorrelationID}
}

func (f *fakeSync) requests() []domain.JobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.JobRequest(nil), f.reqs...)
}

func delivery(id string, trigger domain.JobTrigger, acks *int32) *messaging.Delivery {
	job := &messaging.JobMessage{ID: id, Trigger: trigger}
	return messaging.NewDelivery("jobs", id+"-0", job, func(context.Context) error {
		atomic.AddInt32(acks, 1)
		return nil
	})
}

func TestPoolRunsAndAcksEveryDelivery(t *testing.T) {
	fs := &fakeSync{}
	p := NewPool(fs, PoolConfig{Concurrency: 2}, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var acks int32
	ctx := context.Background()
	triggers := []domain.JobTrigger{
		{UserID: "u1", JobType: "INCREMENTAL", CorrelationID: "c1"},
		{UserID: "u2", JobType: "BACKFILL"},
		{UserID: "u3", JobType: "REINDEX"},
	}
	for i, tr := range triggers {
		if err := p.Handle(ctx, delivery(string(rune('a'+i)), tr, &acks)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := atomic.LoadInt32(&acks); got != 3 {
		t.Errorf("acks = %d, want 3", got)
	}
	reqs := fs.requests()
	if len(reqs) != 2 {
		t.Fatalf("RunJob calls = %d, want 2 (invalid trigger dropped)", len(reqs))
	}
	for _, r := range reqs {
		if r.CorrelationID == "" {
			t.Errorf("correlation id should default to the message id: %+v", r)
		}
	}

	m := p.GetMetrics()
	if m.JobsCompleted != 2 || m.JobsFailed != 1 || m.Running != 0 {
		t.Errorf("metrics = %+v", m)
	}

	lat := p.LatencyStats()
	for _, jt := range []string{"INCREMENTAL", "BACKFILL"} {
		if lat[jt].Count != 1 {
			t.Errorf("latency[%s].Count = %d, want 1", jt, lat[jt].Count)
		}
	}
	if _, ok := lat["REINDEX"]; ok {
		t.Errorf("dropped trigger should not record latency")
	}
}

func TestPoolHandleBeforeStart(t *testing.T) {
	p := NewPool(&fakeSync{}, PoolConfig{}, zerolog.Nop())
	var acks int32
	err := p.Handle(context.Background(), delivery("a", domain.JobTrigger{UserID: "u1", JobType: "BACKFILL"}, &acks))
	if !errors.Is(err, errPoolStopped) {
		t.Errorf("Handle() error = %v, want errPoolStopped", err)
	}
	if p.config.Concurrency != 4 || p.config.JobTimeout != 30*time.Minute {
		t.Errorf("defaults = %+v", p.config)
	}
}

func TestPoolHandleRespectsContext(t *testing.T) {
	p := NewPool(&fakeSync{}, PoolConfig{Concurrency: 1}, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop(context.Background())

	// occupy the only slot without submitting
	p.slots <- struct{}{}
	defer func() { <-p.slots }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var acks int32
	err := p.Handle(ctx, delivery("a", domain.JobTrigger{UserID: "u1", JobType: "BACKFILL"}, &acks))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Handle() error = %v, want context.Canceled", err)
	}
}

type countingSweeper struct{ n int32 }

func (s *countingSweeper) Sweep(context.Context) (int, error) {
	atomic.AddInt32(&s.n, 1)
	return 0, nil
}

func TestStaleJobSchedulerSweepsOnStart(t *testing.T) {
	sw := &countingSweeper{}
	s := NewStaleJobScheduler(sw, time.Hour, zerolog.Nop())
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&sw.n) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if got := atomic.LoadInt32(&sw.n); got != 1 {
		t.Errorf("sweeps = %d, want 1", got)
	}
}
