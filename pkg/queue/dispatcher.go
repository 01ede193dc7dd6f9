package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidewater/conveyor/pkg/partition"
)

// TaskHandler processes one dequeued task. The context carries the queue's
// timeout budget.
type TaskHandler func(ctx context.Context, task *Task) error

// Dispatcher runs a worker pool over the three engine queues, applying each
// queue's timeout and retry budget to every task.
type Dispatcher struct {
	queue           TaskQueue
	handler         TaskHandler
	logger          *slog.Logger
	workersPerQueue int

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. workersPerQueue caps concurrent task
// execution per queue.
func NewDispatcher(logger *slog.Logger, taskQueue TaskQueue, handler TaskHandler, workersPerQueue int) *Dispatcher {
	if workersPerQueue <= 0 {
		workersPerQueue = 1
	}

	return &Dispatcher{
		queue:           taskQueue,
		handler:         handler,
		logger:          logger.With("module", "queue_dispatcher"),
		workersPerQueue: workersPerQueue,
	}
}

// Start launches the workers. They run until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, queueName := range []string{partition.QueueIO, partition.QueueCPU, partition.QueueDefault} {
		for range d.workersPerQueue {
			d.wg.Add(1)

			go d.work(ctx, queueName)
		}
	}
}

// Wait blocks until all workers have drained after cancellation.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, queueName string) {
	defer d.wg.Done()

	budget := BudgetFor(queueName)
	logger := d.logger.With("queue", queueName)

	for {
		task, err := d.queue.Dequeue(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				logger.InfoContext(ctx, "Worker stopping")

				return
			}

			logger.ErrorContext(ctx, "Failed to dequeue task", "error", err)

			continue
		}

		d.process(ctx, logger, budget, task)
	}
}

// process runs one task inside its budget, retrying transient failures up to
// the queue's retry allowance.
func (d *Dispatcher) process(ctx context.Context, logger *slog.Logger, budget Budget, task *Task) {
	var lastErr error

	for attempt := task.Attempt; attempt <= budget.MaxRetries; attempt++ {
		task.Attempt = attempt

		taskCtx, cancel := context.WithTimeout(ctx, budget.Timeout)
		lastErr = d.runHandler(taskCtx, task)

		cancel()

		if lastErr == nil {
			return
		}

		logger.WarnContext(ctx, "Task attempt failed",
			"task_id", task.ID,
			"run_id", task.RunID,
			"attempt", attempt,
			"error", lastErr,
		)

		if ctx.Err() != nil {
			return
		}
	}

	logger.ErrorContext(ctx, "Task exhausted retry budget",
		"task_id", task.ID,
		"run_id", task.RunID,
		"error", lastErr,
	)
}

func (d *Dispatcher) runHandler(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()

	return d.handler(ctx, task)
}
