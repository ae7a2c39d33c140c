package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ========================================
// New Tests
// ========================================

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)

	if p.concurrency != 2 {
		t.Errorf("concurrency = %d, want 2 (default)", p.concurrency)
	}
	if cap(p.queue) != 256 {
		t.Errorf("queue size = %d, want 256 (default)", cap(p.queue))
	}
	if p.logger == nil {
		t.Error("logger should be set to default")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	p := New(Config{Concurrency: 8, QueueSize: 4}, testLogger())

	if p.concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", p.concurrency)
	}
	if cap(p.queue) != 4 {
		t.Errorf("queue size = %d, want 4", cap(p.queue))
	}
}

// ========================================
// Submit / Stop Tests
// ========================================

func TestPool_RunsAllJobsBeforeStop(t *testing.T) {
	p := New(Config{Concurrency: 3, QueueSize: 50}, testLogger())
	p.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		ok := p.Submit(Job{Name: "count", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
		if !ok {
			t.Fatalf("Submit(%d) rejected", i)
		}
	}
	p.Stop()

	if ran.Load() != 50 {
		t.Errorf("ran = %d, want 50", ran.Load())
	}
	if p.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", p.Pending())
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := New(Config{Concurrency: 1, QueueSize: 1}, testLogger())
	noop := Job{Name: "noop", Run: func(context.Context) error { return nil }}

	if !p.Submit(noop) {
		t.Fatal("first Submit should be accepted")
	}
	if p.Submit(noop) {
		t.Error("second Submit should be rejected while the queue is full")
	}
	if p.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", p.Pending())
	}

	p.Start(context.Background())
	p.Stop()
	if p.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", p.Pending())
	}
}

func TestPool_FailingAndPanickingJobs(t *testing.T) {
	p := New(Config{Concurrency: 1, QueueSize: 4}, testLogger())
	p.Start(context.Background())

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	p.Submit(Job{Name: "fail", Run: func(context.Context) error {
		record("fail")
		return errors.New("boom")
	}})
	p.Submit(Job{Name: "panic", Run: func(context.Context) error {
		record("panic")
		panic("bad job")
	}})
	p.Submit(Job{Name: "ok", Run: func(context.Context) error {
		record("ok")
		return nil
	}})
	p.Stop()

	if len(order) != 3 || order[2] != "ok" {
		t.Errorf("order = %v, want all three jobs with ok last", order)
	}
}

func TestPool_JobContextSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{Concurrency: 1, QueueSize: 1}, testLogger())
	p.Start(ctx)
	cancel()

	var ctxErr error
	p.Submit(Job{Name: "ctx", Run: func(jobCtx context.Context) error {
		ctxErr = jobCtx.Err()
		return nil
	}})
	p.Stop()

	if ctxErr != nil {
		t.Errorf("job ctx error = %v, want nil", ctxErr)
	}
}

func TestPool_StopTwice(t *testing.T) {
	p := New(Config{}, testLogger())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
