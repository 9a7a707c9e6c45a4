package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

// Task is one unit of background work.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// Queue runs tasks one at a time in FIFO order, pausing between tasks.
// A failing or panicking task is logged and the queue moves on.
type Queue struct {
	mu      sync.Mutex
	tasks   []Task
	busy    bool
	waiters []chan struct{}
	wake    chan struct{}

	limiter   *rate.Limiter
	processed atomic.Int64
	failed    atomic.Int64
	logger    *slog.Logger
}

// NewQueue creates a queue that waits at least delay between task starts.
func NewQueue(delay time.Duration, logger *slog.Logger) *Queue {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Queue{
		wake:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Enqueue appends a task and returns its ID without waiting for it to run.
func (q *Queue) Enqueue(name string, run func(ctx context.Context) error) string {
	id := uuid.NewString()

	q.mu.Lock()
	q.tasks = append(q.tasks, Task{ID: id, Name: name, Run: run})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id
}

// Run processes tasks until ctx is cancelled. It must be called exactly once.
func (q *Queue) Run(ctx context.Context) {
	for {
		task, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		if err := q.limiter.Wait(ctx); err != nil {
			q.putBack(task)
			return
		}
		q.execute(ctx, task)
	}
}

// Drain blocks until the queue is empty and no task is running.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if len(q.tasks) == 0 && !q.busy {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain queue: %w", ctx.Err())
	}
}

// Stats reports the queue depth and task outcomes so far.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.QueueStats{
		Pending:   len(q.tasks),
		Busy:      q.busy,
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
	}
}

// next pops the head task and marks the queue busy. When the queue is
// empty it marks it idle and releases Drain callers.
func (q *Queue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		q.busy = false
		for _, ch := range q.waiters {
			close(ch)
		}
		q.waiters = nil
		return Task{}, false
	}

	t := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	q.busy = true
	return t, true
}

func (q *Queue) putBack(t Task) {
	q.mu.Lock()
	q.tasks = append([]Task{t}, q.tasks...)
	q.busy = false
	q.mu.Unlock()
}

func (q *Queue) execute(ctx context.Context, t Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("background task panicked", "task", t.Name, "task_id", t.ID, "panic", r)
		}
	}()

	if err := t.Run(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("background task failed", "task", t.Name, "task_id", t.ID, "error", err)
		return
	}
	q.processed.Add(1)
	q.logger.Debug("background task done", "task", t.Name, "task_id", t.ID,
		"duration_ms", time.Since(start).Milliseconds())
}
