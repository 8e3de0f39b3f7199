// Package worker provides a bounded pool for background tasks that must
// not block the caller. Handlers acknowledge the user synchronously and
// hand the slow persistence work to the pool; the pool keeps the work
// observable so shutdown can wait for it to finish.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nsafonov/proofdesk/internal/logging"
)

// Task is a unit of background work. The context passed to it is the
// pool's lifetime context, not the submitting request's.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of goroutines with a bounded queue.
type Pool struct {
	queue    chan Task
	inFlight atomic.Int64
	wg       sync.WaitGroup
	log      logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines draining a queue of queueSize.
func NewPool(workers, queueSize int, log logging.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		queue: make(chan Task, queueSize),
		log:   log,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	ctx := context.Background()
	for task := range p.queue {
		p.safeRun(ctx, task)
		p.inFlight.Add(-1)
	}
}

func (p *Pool) safeRun(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error(ctx, "background task panicked", "panic", r)
		}
	}()
	task(ctx)
}

// Submit enqueues a task. It returns false when the queue is full or
// the pool is draining; the caller decides whether that is fatal.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- task:
		p.inFlight.Add(1)
		return true
	default:
		return false
	}
}

// InFlight reports the number of tasks queued or currently running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Drain stops accepting new tasks and waits for the ones already
// submitted to finish, or for ctx to expire, whichever happens first.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
