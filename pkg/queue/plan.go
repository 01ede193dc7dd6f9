package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidewater/conveyor/pkg/partition"
)

// StepFunc executes one planned step. A non-nil error means the step aborted;
// a panic inside the callback is converted into one.
type StepFunc func(ctx context.Context, step *partition.Step) error

// PlanRunner fans a plan's parallel group out across per-queue worker slots
// and joins before any dependent step may start. Concurrency is bounded per
// queue so a burst of steps in one latency class cannot starve the others.
type PlanRunner struct {
	logger *slog.Logger
	slots  map[string]chan struct{}
}

// NewPlanRunner creates a plan runner. workersPerQueue caps concurrent step
// execution per queue.
func NewPlanRunner(logger *slog.Logger, workersPerQueue int) *PlanRunner {
	if workersPerQueue <= 0 {
		workersPerQueue = 1
	}

	slots := make(map[string]chan struct{}, 3)
	for _, queueName := range []string{partition.QueueIO, partition.QueueCPU, partition.QueueDefault} {
		slots[queueName] = make(chan struct{}, workersPerQueue)
	}

	return &PlanRunner{
		logger: logger.With("module", "plan_runner"),
		slots:  slots,
	}
}

// FanOut runs the steps concurrently, each bounded by its assigned queue's
// worker slots, and returns only after every step has finished. Errors are
// positional: errs[i] reports the outcome of steps[i].
func (r *PlanRunner) FanOut(ctx context.Context, steps []*partition.Step, exec StepFunc) []error {
	errs := make([]error, len(steps))

	var wg sync.WaitGroup

	for i, step := range steps {
		wg.Add(1)

		go func(i int, step *partition.Step) {
			defer wg.Done()

			slot := r.slotFor(step.Queue)
			select {
			case slot <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()

				return
			}
			defer func() { <-slot }()

			errs[i] = r.runStep(ctx, step, exec)
		}(i, step)
	}

	wg.Wait()

	return errs
}

func (r *PlanRunner) slotFor(queueName string) chan struct{} {
	slot, ok := r.slots[queueName]
	if !ok {
		return r.slots[partition.QueueDefault]
	}

	return slot
}

func (r *PlanRunner) runStep(ctx context.Context, step *partition.Step, exec StepFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "Step panicked",
				"action_id", step.Action.ID, "queue", step.Queue, "panic", rec)

			err = fmt.Errorf("step panicked: %v", rec)
		}
	}()

	return exec(ctx, step)
}
