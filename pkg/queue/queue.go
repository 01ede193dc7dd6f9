// Package queue provides the task queue abstraction that routes partitioned
// action work to workers.
package queue

import (
	"context"
	"time"

	"github.com/tidewater/conveyor/pkg/partition"
)

// Task is one unit of action work routed through a named queue.
type Task struct {
	ID         string         `json:"id"`
	Queue      string         `json:"queue"`
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	ActionID   string         `json:"action_id"`
	Attempt    int            `json:"attempt"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// TaskQueue is the transport between the engine and its workers. Dequeue
// blocks until a task arrives or the context is cancelled.
type TaskQueue interface {
	Enqueue(ctx context.Context, queueName string, task *Task) error
	Dequeue(ctx context.Context, queueName string) (*Task, error)
	Close() error
}

// Budget is the per-queue execution allowance applied to each task.
type Budget struct {
	Timeout    time.Duration
	MaxRetries int
}

// BudgetFor returns the execution budget of a queue. IO work tolerates slow
// upstreams and gets generous retries; CPU work is bounded tightly so a hot
// loop cannot starve the pool.
func BudgetFor(queueName string) Budget {
	switch queueName {
	case partition.QueueIO:
		return Budget{Timeout: 120 * time.Second, MaxRetries: 3}
	case partition.QueueCPU:
		return Budget{Timeout: 30 * time.Second, MaxRetries: 1}
	default:
		return Budget{Timeout: 60 * time.Second, MaxRetries: 2}
	}
}
