// Package pool provides a bounded worker pool for background tasks.
package pool

import (
	"context"
	"sync"
)

// WorkerPool caps concurrent background work, keeping webhook fan-out
// from spawning an unbounded number of goroutines.
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
}

func NewWorkerPool(maxWorkers, queueSize int) *WorkerPool {
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
	}
}

// Start launches the workers. They run until Stop is called or the
// context is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit enqueues a task, blocking if the queue is full.
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// TrySubmit enqueues a task if the queue has room.
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks.
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			func() {
				defer func() {
					_ = recover()
				}()
				task()
			}()
		}
	}
}
