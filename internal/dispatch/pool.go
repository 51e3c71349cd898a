package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Pool runs submitted funcs on a fixed set of worker goroutines. Container
// streaming jobs execute here so they never block the serial queue.
type Pool struct {
	name    string
	workers int
	tasks   chan func()
	logger  *slog.Logger

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool creates a pool with the given worker count and starts its
// workers. depth bounds the task backlog; submitters block while full.
func NewPool(name string, workers, depth int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = workers * 8
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		name:    name,
		workers: workers,
		tasks:   make(chan func(), depth),
		logger:  logger,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		task()
		p.completed.Add(1)
	}
}

// Submit enqueues fn for execution on a worker. It blocks while the
// backlog is full and returns ErrClosed after Close.
func (p *Pool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return ErrClosed
	}

	p.tasks <- fn
	p.submitted.Add(1)
	return nil
}

// Close stops accepting tasks, lets the backlog drain, and returns once
// every worker has exited. Safe to call multiple times.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()

		submitted, completed, rejected := p.Stats()
		p.logger.Debug("pool_closed",
			"pool", p.name,
			"workers", p.workers,
			"submitted", submitted,
			"completed", completed,
			"rejected", rejected)
	})
}

// Stats returns counts of submitted, completed, and rejected tasks.
func (p *Pool) Stats() (submitted, completed, rejected int64) {
	return p.submitted.Load(), p.completed.Load(), p.rejected.Load()
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Len returns the number of tasks waiting for a worker.
func (p *Pool) Len() int {
	return len(p.tasks)
}

// Name returns the pool's name as used in logs.
func (p *Pool) Name() string {
	return p.name
}
