// Package worker runs background jobs on a fixed pool of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Job is a unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool processes submitted jobs.
type Pool struct {
	queue       chan Job
	concurrency int
	pending     atomic.Int64
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// Config holds pool configuration.
type Config struct {
	Concurrency int
	QueueSize   int
}

// New creates a new pool. Jobs can be submitted before Start.
func New(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:       make(chan Job, cfg.QueueSize),
		concurrency: cfg.Concurrency,
		stop:        make(chan struct{}),
		logger:      logger.With("component", "worker"),
	}
}

// Start begins processing jobs. Jobs run detached from ctx cancellation so a
// delivery in progress is not cut short by request teardown.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting", "concurrency", p.concurrency)

	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(runCtx, i)
	}
}

// Stop stops the workers after the queued jobs have run.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping", "pending", p.pending.Load())
		close(p.stop)
		p.wg.Wait()
		p.logger.Info("stopped")
	})
}

// Submit queues a job without blocking. It reports false when the queue is
// full.
func (p *Pool) Submit(job Job) bool {
	p.pending.Add(1)
	select {
	case p.queue <- job:
		return true
	default:
		p.pending.Add(-1)
		return false
	}
}

// Pending returns the number of queued and running jobs.
func (p *Pool) Pending() int64 {
	return p.pending.Load()
}

func (p *Pool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.queue:
			p.process(ctx, workerID, job)
		case <-p.stop:
			p.drain(ctx, workerID)
			return
		}
	}
}

func (p *Pool) drain(ctx context.Context, workerID int) {
	for {
		select {
		case job := <-p.queue:
			p.process(ctx, workerID, job)
		default:
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	defer p.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "worker_id", workerID, "job", job.Name, "panic", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		p.logger.Warn("job failed", "worker_id", workerID, "job", job.Name, "error", err)
	}
}
