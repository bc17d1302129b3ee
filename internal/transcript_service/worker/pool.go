package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// Task is one unit of queued work. It receives the pool's context so a
// shutdown cancels in-flight work.
type Task func(ctx context.Context)

// Pool runs queued tasks on a fixed set of workers over a bounded queue.
// A full queue pushes back on producers instead of growing without limit.
type Pool struct {
	queue   chan Task
	workers int
	wg      sync.WaitGroup
	log     *logger.Logger
}

// NewPool creates a Pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &Pool{
		queue:   make(chan Task, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. They run until ctx ends; tasks still queued
// at that point are dropped, which is safe because every queued document is
// rediscoverable from its processing state.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-p.queue:
					task(ctx)
				}
			}
		}()
	}
	p.log.Info(fmt.Sprintf("Started %d workers with queue capacity %d", p.workers, cap(p.queue)))
}

// Submit enqueues a task, blocking while the queue is full so a slow pool
// throttles its producers. It fails only when ctx ends first.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues a task without blocking and reports whether it fit.
func (p *Pool) TrySubmit(task Task) bool {
	select {
	case p.queue <- task:
		return true
	default:
		return false
	}
}

// Wait blocks until every worker has exited. Call after the Start context
// is cancelled to drain in-flight work.
func (p *Pool) Wait() {
	p.wg.Wait()
}
