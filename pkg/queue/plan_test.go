package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/partition"
)

func planStep(id, queueName string) *partition.Step {
	return &partition.Step{
		Action: &models.WorkflowAction{ID: id},
		Queue:  queueName,
	}
}

func TestPlanRunnerJoinsBeforeReturn(t *testing.T) {
	t.Parallel()

	runner := NewPlanRunner(testLogger(), 2)

	steps := []*partition.Step{
		planStep("slow-io", partition.QueueIO),
		planStep("fast-cpu", partition.QueueCPU),
		planStep("fast-default", partition.QueueDefault),
	}

	var finished atomic.Int32

	errs := runner.FanOut(context.Background(), steps, func(_ context.Context, step *partition.Step) error {
		if step.Action.ID == "slow-io" {
			time.Sleep(50 * time.Millisecond)
		}

		finished.Add(1)

		return nil
	})

	// FanOut must not return until the slowest member has finished.
	assert.Equal(t, int32(len(steps)), finished.Load())

	require.Len(t, errs, len(steps))

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPlanRunnerStepPanicBecomesError(t *testing.T) {
	t.Parallel()

	runner := NewPlanRunner(testLogger(), 1)

	steps := []*partition.Step{
		planStep("ok", partition.QueueDefault),
		planStep("boom", partition.QueueDefault),
	}

	errs := runner.FanOut(context.Background(), steps, func(_ context.Context, step *partition.Step) error {
		if step.Action.ID == "boom" {
			panic("storage exploded")
		}

		return nil
	})

	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	require.Error(t, errs[1])
	assert.Contains(t, errs[1].Error(), "step panicked")
	assert.Contains(t, errs[1].Error(), "storage exploded")
}

func TestPlanRunnerBoundsConcurrencyPerQueue(t *testing.T) {
	t.Parallel()

	runner := NewPlanRunner(testLogger(), 1)

	steps := []*partition.Step{
		planStep("io-1", partition.QueueIO),
		planStep("io-2", partition.QueueIO),
		planStep("io-3", partition.QueueIO),
	}

	var (
		mu            sync.Mutex
		current, peak int
	)

	errs := runner.FanOut(context.Background(), steps, func(_ context.Context, _ *partition.Step) error {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()

		return nil
	})

	for _, err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, 1, peak, "one worker slot per queue must serialize same-queue steps")
}

func TestPlanRunnerUnknownQueueFallsBackToDefault(t *testing.T) {
	t.Parallel()

	runner := NewPlanRunner(testLogger(), 1)

	errs := runner.FanOut(context.Background(), []*partition.Step{
		planStep("odd", "workflow_other"),
	}, func(_ context.Context, _ *partition.Step) error {
		return nil
	})

	require.Len(t, errs, 1)
	assert.NoError(t, errs[0])
}
