// Package worker runs projection jobs off the queue on a fixed pool of
// goroutines and publishes one Result per job.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

const (
	defaultMaxAttempts  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = model.Job

// Projector computes one projection. Implementations must be safe for
// concurrent use and must not share mutable state between calls.
type Projector interface {
	Project(ctx context.Context, j Job) (model.Projection, error)
}

// ProjectorFunc adapts a function to Projector.
type ProjectorFunc func(ctx context.Context, j Job) (model.Projection, error)

// Project calls f.
func (f ProjectorFunc) Project(ctx context.Context, j Job) (model.Projection, error) {
	return f(ctx, j)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Result is the outcome of one job. Exactly one of Projection and Err is meaningful.
type Result struct {
	Job        Job
	Projection model.Projection
	Err        error
	Attempts   int
}

// InMemoryWorker pulls jobs from a queue and publishes results.
type InMemoryWorker struct {
	queue       Queue
	projector   Projector
	results     chan<- Result
	name        string
	maxAttempts int

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Projector, results chan<- Result, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		projector:   p,
		results:     results,
		name:        "worker",
		maxAttempts: defaultMaxAttempts,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			r := w.process(ctx, j)
			select {
			case w.results <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process runs one job, retrying errors of kind KindRetry.
func (w *InMemoryWorker) process(ctx context.Context, j Job) Result {
	r := Result{Job: j}
	for r.Attempts < w.maxAttempts {
		r.Attempts++
		start := time.Now()
		r.Projection, r.Err = w.safeProject(ctx, j)
		metrics.RecordComposeLatency(float64(time.Since(start).Microseconds()) / 1000)

		if r.Err == nil || model.KindOf(r.Err) != model.KindRetry {
			break
		}
		w.logger.Debug(ctx, "retrying projection",
			logger.String("key", j.Key().String()),
			logger.Int("attempt", r.Attempts),
			logger.Error(r.Err),
		)
	}

	if r.Err != nil {
		metrics.RecordProjectionFailed(model.Reason(r.Err))
		w.logger.Debug(ctx, "projection failed",
			logger.String("key", j.Key().String()),
			logger.String("kind", model.KindOf(r.Err).String()),
			logger.Error(r.Err),
		)
		return r
	}
	kind := "skater"
	if j.Goalie {
		kind = "goalie"
	}
	metrics.RecordProjectionComputed(kind)
	return r
}

// safeProject turns a panic inside the projector into a per-unit error.
func (w *InMemoryWorker) safeProject(ctx context.Context, j Job) (p model.Projection, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			err = model.Skip(j.PlayerID, j.GameID, fmt.Errorf("%w: panic: %v", model.ErrImplausibleResult, rec))
		}
	}()
	return w.projector.Project(ctx, j)
}

// Pool manages a fixed set of workers sharing one results channel.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	results chan Result
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a worker pool. workerCount < 1 means runtime.NumCPU().
func NewPool(workerCount int, q Queue, p Projector, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		results: make(chan Result, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, p, pool.results, wopts...)
	}
	return pool
}

// Results returns the channel every worker publishes to. It is closed once
// all workers have stopped.
func (p *Pool) Results() <-chan Result { return p.results }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	go func() {
		p.wg.Wait()
		metrics.UpdateWorkerActiveCount(0)
		close(p.results)
	}()
}

// Shutdown closes the queue, if it can be closed, and waits for workers to
// drain it. Results must still be consumed while it waits.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}
	return nil
}
