// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/infra/metrics"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Task is a unit of fire-and-forget work. It is a plain func type so the pool
// satisfies usecase.Dispatcher without an adapter.
type Task = func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Stop drains the
// queue before returning so accepted work is not lost on shutdown.
type Pool struct {
	name        string
	n           int
	taskTimeout time.Duration
	log         *zerolog.Logger

	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}

	mu      sync.RWMutex
	stopped bool
}

func NewPool(name string, workers, queue int, taskTimeout time.Duration, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	pl := logger.With().Str("component", "WorkerPool").Str("pool", name).Logger()
	return &Pool{
		name:        name,
		n:           workers,
		taskTimeout: taskTimeout,
		log:         &pl,
		jobs:        make(chan Task, queue),
		quit:        make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case task := <-p.jobs:
					p.run(base, id, task)
				case <-p.quit:
					p.drain(base, id)
					return
				}
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Msg("worker pool started")
}

func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	metrics.SetWorkerQueueDepth(p.name, len(p.jobs))
	taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
			metrics.IncWorkerTask(p.name, "failed")
		}
	}()
	if err := task(taskCtx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("task error")
		metrics.IncWorkerTask(p.name, "failed")
		return
	}
	metrics.IncWorkerTask(p.name, "completed")
}

// Stop rejects new submissions, runs what is already queued and waits.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()
	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		metrics.IncWorkerTask(p.name, "rejected")
		return ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		metrics.SetWorkerQueueDepth(p.name, len(p.jobs))
		return nil
	default:
		// drop when saturated to avoid back-pressure on the request path
		metrics.IncWorkerTask(p.name, "rejected")
		return ErrQueueFull
	}
}
