package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/baharkarakas/welfare-backend/internal/metrics"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("worker pool stopped")

type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines. Tasks receive the pool's
// context, which is cancelled by Stop once the queue has drained.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan Task
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewPool(n int, log *zap.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{jobs: make(chan Task, 1024), log: log, ctx: ctx, cancel: cancel}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker task panicked", zap.Any("panic", rec))
		}
	}()
	job(p.ctx)
}

// Submit enqueues f, blocking while the queue is full. It fails once Stop
// has been called or ctx is done.
func (p *Pool) Submit(ctx context.Context, f Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains queued tasks and waits for workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}
