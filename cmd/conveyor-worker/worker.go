package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/queue"
)

// WorkerManager consumes workflow execution tasks from the task queue and
// drives each one through the execution service. Queue routing is decided by
// the producer; each consumed task carries the workflow to run and its
// trigger data snapshot.
type WorkerManager struct {
	id              string
	logger          *slog.Logger
	taskQueue       queue.TaskQueue
	service         *engine.ExecutionService
	workersPerQueue int
}

func NewWorkerManager(
	id string,
	logger *slog.Logger,
	taskQueue queue.TaskQueue,
	service *engine.ExecutionService,
	workersPerQueue int,
) *WorkerManager {
	return &WorkerManager{
		id:              id,
		logger:          logger.With("module", "conveyor-worker", "worker_id", id),
		taskQueue:       taskQueue,
		service:         service,
		workersPerQueue: workersPerQueue,
	}
}

// Start runs the worker pools until SIGINT/SIGTERM, then drains them.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "workers_per_queue", w.workersPerQueue)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dispatcher := queue.NewDispatcher(w.logger, w.taskQueue, w.handleTask, w.workersPerQueue)
	dispatcher.Start(runCtx)

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	cancel()
	dispatcher.Wait()

	return w.taskQueue.Close()
}

func (w *WorkerManager) handleTask(ctx context.Context, task *queue.Task) error {
	logger := w.logger.With(
		"task_id", task.ID,
		"workflow_id", task.WorkflowID,
		"queue", task.Queue,
	)
	logger.InfoContext(ctx, "Processing workflow task")

	run, err := w.service.ExecuteWorkflow(ctx, task.WorkflowID, nil, task.Payload, "")
	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute workflow task", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Workflow task finished",
		"run_id", run.ID,
		"status", run.Status,
		"duration_ms", run.DurationMs,
	)

	return nil
}
