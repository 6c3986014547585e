package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("queue is closed")

// Task is one product page waiting for detail collection. Label carries the
// search provenance so the merged record keeps it.
type Task struct {
	ID        string
	URL       string
	Label     string
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is the FIFO task queue of a single run: the search phase
// pushes cards in result order, Close marks the end of input, and the detail
// phase pops until ErrQueueClosed. Tasks come out in the order they went in,
// which preserves the search-result ordering.
type InMemoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []*Task
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	q := &InMemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return nil
}

// Pop blocks until a task is available, the queue is closed and drained, or
// ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Cancellation has to wake the wait loop; the broadcast takes the lock so
	// it cannot race a waiter re-acquiring it.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for len(q.tasks) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q.tasks) == 0 {
		return nil, ErrQueueClosed
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting pushes. Queued tasks can still be popped; once they
// are drained Pop returns ErrQueueClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
	return nil
}
