// Package dispatch provides the execution primitives the demux layer runs
// on: a serial queue owning all coordinator mutation, and a bounded worker
// pool for container streaming jobs.
//
// The pool is a handle passed to each Reader rather than a package-level
// singleton, so independent readers never share or contend on a hidden
// global queue.
package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: closed")

// SerialQueue executes submitted funcs one at a time, in FIFO order, on a
// single goroutine. All demux state mutation funnels through one of these,
// which is what makes the coordinator's mutations totally ordered.
type SerialQueue struct {
	name   string
	tasks  chan func()
	logger *slog.Logger

	submitted atomic.Int64
	executed  atomic.Int64
	rejected  atomic.Int64

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSerialQueue creates a queue and starts its goroutine. depth bounds the
// number of pending tasks; submitters block while the queue is full.
func NewSerialQueue(name string, depth int, logger *slog.Logger) *SerialQueue {
	if depth < 1 {
		depth = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &SerialQueue{
		name:   name,
		tasks:  make(chan func(), depth),
		logger: logger,
		done:   make(chan struct{}),
	}

	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer close(q.done)

	for task := range q.tasks {
		task()
		q.executed.Add(1)
	}
}

// Submit enqueues fn for execution on the queue's goroutine. It blocks
// while the queue is full and returns ErrClosed after Close.
func (q *SerialQueue) Submit(fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected.Add(1)
		return ErrClosed
	}

	q.tasks <- fn
	q.submitted.Add(1)
	return nil
}

// Close stops accepting tasks, runs everything already queued, and returns
// once the queue goroutine has exited. Safe to call multiple times.
func (q *SerialQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.tasks)
		q.mu.Unlock()

		<-q.done

		submitted, executed, rejected := q.Stats()
		q.logger.Debug("serial_queue_closed",
			"queue", q.name,
			"submitted", submitted,
			"executed", executed,
			"rejected", rejected)
	})
}

// Stats returns counts of submitted, executed, and rejected tasks.
func (q *SerialQueue) Stats() (submitted, executed, rejected int64) {
	return q.submitted.Load(), q.executed.Load(), q.rejected.Load()
}

// Len returns the number of tasks currently queued.
func (q *SerialQueue) Len() int {
	return len(q.tasks)
}

// Name returns the queue's name as used in logs.
func (q *SerialQueue) Name() string {
	return q.name
}
