package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed indicates an operation hit a closed queue.
var ErrQueueClosed = errors.New("task queue closed")

const memoryQueueBuffer = 1000

// MemoryQueue is a channel-backed TaskQueue for tests and single-process
// deployments.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan *Task
	closed bool
}

var _ TaskQueue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an in-memory task queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		queues: make(map[string]chan *Task),
	}
}

func (q *MemoryQueue) channel(queueName string) (chan *Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	ch, ok := q.queues[queueName]
	if !ok {
		ch = make(chan *Task, memoryQueueBuffer)
		q.queues[queueName] = ch
	}

	return ch, nil
}

// Enqueue appends a task to the named queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, queueName string, task *Task) error {
	ch, err := q.channel(queueName)
	if err != nil {
		return err
	}

	task.Queue = queueName

	select {
	case ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a task arrives on the named queue or the context is
// cancelled.
func (q *MemoryQueue) Dequeue(ctx context.Context, queueName string) (*Task, error) {
	ch, err := q.channel(queueName)
	if err != nil {
		return nil, err
	}

	select {
	case task, ok := <-ch:
		if !ok {
			return nil, ErrQueueClosed
		}

		return task, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes all queues. Pending tasks are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true

	for _, ch := range q.queues {
		close(ch)
	}

	return nil
}
