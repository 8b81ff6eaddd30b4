package pools

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work
type Task func()

// WorkerPool runs request/response cycles off the event loop.
type WorkerPool struct {
	numWorkers int
	tasks      chan Task
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	stats struct {
		submitted atomic.Uint64
		completed atomic.Uint64
		overflow  atomic.Uint64
	}
}

// NewWorkerPool starts numWorkers goroutines; numWorkers <= 0 means one per CPU.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	p := &WorkerPool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, numWorkers*64),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.run()
	}

	return p
}

func (p *WorkerPool) run() {
	defer p.wg.Done()

	for task := range p.tasks {
		task()
		p.stats.completed.Add(1)
	}
}

// Submit queues task and never blocks: when the queue is full the task gets a
// goroutine of its own, which Close also waits for. It returns false once the
// pool is closed.
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	p.stats.submitted.Add(1)

	select {
	case p.tasks <- task:
	default:
		p.stats.overflow.Add(1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			task()
			p.stats.completed.Add(1)
		}()
	}
	return true
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	submitted := p.stats.submitted.Load()
	completed := p.stats.completed.Load()
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPending:   submitted - completed,
		TasksOverflow:  p.stats.overflow.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPending   uint64
	TasksOverflow  uint64
}
