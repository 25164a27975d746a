package mediaview

import (
	"context"
	"sync"
	"sync/atomic"
)

// taskQueue is an unbounded FIFO of tasks drained by a single goroutine.
// post never blocks, so resources and timers can enqueue while the caller
// holds its own locks.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	signal chan struct{}
	busy   atomic.Bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{signal: make(chan struct{}, 1)}
}

func (q *taskQueue) post(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// inTask reports whether a task is executing. A task calling it always
// sees true; another goroutine sees true only while a task is running.
func (q *taskQueue) inTask() bool {
	return q.busy.Load()
}

func (q *taskQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

// run executes tasks in order until ctx is done. Tasks still queued at that
// point are dropped.
func (q *taskQueue) run(ctx context.Context) {
	for {
		for _, task := range q.drain() {
			if ctx.Err() != nil {
				return
			}
			q.busy.Store(true)
			task()
			q.busy.Store(false)
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return
		}
	}
}
