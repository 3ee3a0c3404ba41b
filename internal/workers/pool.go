// Package workers provides a bounded worker pool for background ledger work.
package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is a unit of background work.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines with a bounded queue.
type Pool struct {
	name    string
	workers int
	logger  zerolog.Logger

	mu        sync.RWMutex
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool

	tasksTotal    atomic.Uint64
	tasksDone     atomic.Uint64
	tasksPanicked atomic.Uint64
	tasksRejected atomic.Uint64
}

// NewPool creates a pool. If workers is 0, it defaults to runtime.NumCPU();
// if queueSize is 0, the queue holds 100 tasks per worker.
func NewPool(name string, workers, queueSize int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 100
	}
	return &Pool{
		name:      name,
		workers:   workers,
		logger:    logger.With().Str("pool", name).Logger(),
		taskQueue: make(chan Task, queueSize),
	}
}

// Start starts the workers. Tasks receive a context derived from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.tasksPanicked.Add(1)
			p.logger.Error().Interface("panic", r).Msg("Worker task panicked")
		}
		p.tasksDone.Add(1)
	}()
	task(p.ctx)
}

// Submit queues a task without blocking.
// Returns false if the pool is not running or the queue is full.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		p.tasksRejected.Add(1)
		return false
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	default:
		p.tasksRejected.Add(1)
		return false
	}
}

// SubmitWait submits a task and waits for it to complete.
func (p *Pool) SubmitWait(task Task) bool {
	done := make(chan struct{})
	if !p.Submit(func(ctx context.Context) {
		defer close(done)
		task(ctx)
	}) {
		return false
	}
	<-done
	return true
}

// Stop drains queued tasks and waits for the workers to exit. The task
// context is cancelled once the queue is empty.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	return PoolStats{
		Name:          p.name,
		Workers:       p.workers,
		Running:       running,
		TasksTotal:    p.tasksTotal.Load(),
		TasksDone:     p.tasksDone.Load(),
		TasksPanicked: p.tasksPanicked.Load(),
		TasksRejected: p.tasksRejected.Load(),
		QueueLen:      len(p.taskQueue),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name          string `json:"name"`
	Workers       int    `json:"workers"`
	Running       bool   `json:"running"`
	TasksTotal    uint64 `json:"tasks_total"`
	TasksDone     uint64 `json:"tasks_done"`
	TasksPanicked uint64 `json:"tasks_panicked"`
	TasksRejected uint64 `json:"tasks_rejected"`
	QueueLen      int    `json:"queue_len"`
}
