package partition_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/partition"
)

func newPartitioner() *partition.Partitioner {
	return partition.NewPartitioner(partition.NewClassifier(), slog.New(slog.DiscardHandler))
}

func sampleActions() []*models.WorkflowAction {
	return []*models.WorkflowAction{
		{ID: "a-1", ActionType: models.ActionTypeSendEmail, Name: "send welcome email"},
		{ID: "a-2", ActionType: "custom", Name: "compute engagement score"},
		{ID: "a-3", ActionType: "custom", Name: "misc"},
		{ID: "a-4", ActionType: models.ActionTypeCallWebhook, Name: "notify billing webhook", DependsOn: []int{0, 1}},
	}
}

func TestPartitionAssignsEveryStepExactlyOnce(t *testing.T) {
	t.Parallel()

	actions := sampleActions()
	partitions := newPartitioner().Partition(actions)

	require.Len(t, partitions, 3)

	total := 0
	seen := map[string]bool{}

	for queue, steps := range partitions {
		total += len(steps)

		for _, step := range steps {
			assert.Equal(t, queue, step.Queue)
			assert.False(t, seen[step.Action.ID], "step assigned to more than one queue")
			seen[step.Action.ID] = true
		}
	}

	assert.Equal(t, len(actions), total)
}

func TestPartitionTagsStepsForObservability(t *testing.T) {
	t.Parallel()

	partitions := newPartitioner().Partition(sampleActions())

	byID := map[string]*partition.Step{}
	for _, steps := range partitions {
		for _, step := range steps {
			byID[step.Action.ID] = step
		}
	}

	assert.Equal(t, partition.QueueIO, byID["a-1"].Queue)
	assert.Equal(t, partition.IOBound, byID["a-1"].Classification)
	assert.Equal(t, partition.QueueCPU, byID["a-2"].Queue)
	assert.Equal(t, partition.CPUBound, byID["a-2"].Classification)
	assert.Equal(t, partition.QueueDefault, byID["a-3"].Queue)
	assert.Equal(t, partition.Mixed, byID["a-3"].Classification)
}

func TestPlanSplitsByDependencies(t *testing.T) {
	t.Parallel()

	plan := newPartitioner().Plan(sampleActions())

	require.Len(t, plan.Parallel, 3)
	require.Len(t, plan.Sequential, 1)

	sequential := plan.Sequential[0]
	assert.Equal(t, "a-4", sequential.Action.ID)
	assert.Equal(t, []int{0, 1}, sequential.DependsOn)

	// Parallel steps keep their queue routing.
	for _, step := range plan.Parallel {
		assert.NotEmpty(t, step.Queue)
	}
}

func TestTagStampsStepIndexes(t *testing.T) {
	t.Parallel()

	steps := newPartitioner().Tag(sampleActions())

	require.Len(t, steps, 4)

	for i, step := range steps {
		assert.Equal(t, i, step.Index)
	}
}

func TestDominantQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		actions []*models.WorkflowAction
		want    string
	}{
		{
			name: "io majority",
			actions: []*models.WorkflowAction{
				{ID: "a-1", ActionType: models.ActionTypeSendEmail, Name: "send welcome email"},
				{ID: "a-2", ActionType: models.ActionTypeSendEmail, Name: "send followup email"},
				{ID: "a-3", ActionType: "custom", Name: "compute engagement score"},
			},
			want: partition.QueueIO,
		},
		{
			name: "cpu majority",
			actions: []*models.WorkflowAction{
				{ID: "a-1", ActionType: "custom", Name: "compute engagement score"},
				{ID: "a-2", ActionType: "custom", Name: "aggregate totals"},
			},
			want: partition.QueueCPU,
		},
		{
			name: "tie falls back to default",
			actions: []*models.WorkflowAction{
				{ID: "a-1", ActionType: models.ActionTypeSendEmail, Name: "send welcome email"},
				{ID: "a-2", ActionType: "custom", Name: "compute engagement score"},
			},
			want: partition.QueueDefault,
		},
		{
			name:    "empty",
			actions: nil,
			want:    partition.QueueDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			steps := newPartitioner().Tag(tt.actions)
			assert.Equal(t, tt.want, partition.DominantQueue(steps))
		})
	}
}

func TestPlanAllIndependent(t *testing.T) {
	t.Parallel()

	actions := []*models.WorkflowAction{
		{ID: "a-1", ActionType: models.ActionTypeAddNote, Name: "add note"},
		{ID: "a-2", ActionType: models.ActionTypeCreateTask, Name: "create task"},
	}

	plan := newPartitioner().Plan(actions)

	assert.Len(t, plan.Parallel, 2)
	assert.Empty(t, plan.Sequential)
}
