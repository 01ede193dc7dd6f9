package models_test

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewater/conveyor/pkg/models"
)

func TestWorkflowValidation(t *testing.T) {
	t.Parallel()

	validate := validator.New(validator.WithRequiredStructEnabled())

	workflow := &models.Workflow{
		ID:       "wf-1",
		Name:     "Qualify inbound leads",
		Type:     models.WorkflowTypeAutomation,
		Status:   models.WorkflowStatusActive,
		IsActive: true,
		Owner:    "user-1",
	}
	require.NoError(t, validate.Struct(workflow))

	workflow.Name = "ab" // below min=3
	assert.Error(t, validate.Struct(workflow))
}

func TestWorkflowExecutable(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name     string
		workflow models.Workflow
		want     bool
	}{
		{"active", models.Workflow{IsActive: true, Status: models.WorkflowStatusActive}, true},
		{"flag off", models.Workflow{IsActive: false, Status: models.WorkflowStatusActive}, false},
		{"draft", models.Workflow{IsActive: true, Status: models.WorkflowStatusDraft}, false},
		{"archived", models.Workflow{IsActive: true, Status: models.WorkflowStatusArchived}, false},
		{"soft deleted", models.Workflow{IsActive: true, Status: models.WorkflowStatusActive, DeletedAt: &now}, false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, testCase.want, testCase.workflow.Executable())
		})
	}
}

func TestRunStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, models.RunStatusPending.Terminal())
	assert.False(t, models.RunStatusRunning.Terminal())
	assert.True(t, models.RunStatusCompleted.Terminal())
	assert.True(t, models.RunStatusFailed.Terminal())
	assert.True(t, models.RunStatusCancelled.Terminal())
}

func TestRunFinishDerivesDuration(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &models.WorkflowRun{StartedAt: started}

	run.Finish(started.Add(1500 * time.Millisecond))

	require.NotNil(t, run.CompletedAt)
	assert.InDelta(t, 1500, run.DurationMs, 1)
}

func TestSLARecomputeSLO(t *testing.T) {
	t.Parallel()

	sla := &models.WorkflowSLA{}
	sla.RecomputeSLO()
	assert.InEpsilon(t, 100.0, sla.CurrentSLOPercentage, 0.001)

	sla.TotalExecutions = 100
	sla.BreachedExecutions = 3
	sla.RecomputeSLO()
	assert.InEpsilon(t, 97.0, sla.CurrentSLOPercentage, 0.001)
}

func TestConditionShape(t *testing.T) {
	t.Parallel()

	var nilCond *models.Condition

	assert.True(t, nilCond.IsEmpty())
	assert.True(t, (&models.Condition{}).IsEmpty())

	leaf := &models.Condition{Field: "status", Operator: models.OperatorEq, Value: "qualified"}
	assert.True(t, leaf.IsLeaf())
	assert.False(t, leaf.IsEmpty())

	composite := &models.Condition{And: []*models.Condition{leaf}}
	assert.False(t, composite.IsLeaf())
	assert.False(t, composite.IsEmpty())
}

func TestApprovalResolvable(t *testing.T) {
	t.Parallel()

	assert.True(t, (&models.WorkflowApproval{Status: models.ApprovalStatusPending}).Resolvable())
	assert.True(t, (&models.WorkflowApproval{Status: models.ApprovalStatusEscalated}).Resolvable())
	assert.False(t, (&models.WorkflowApproval{Status: models.ApprovalStatusApproved}).Resolvable())
	assert.False(t, (&models.WorkflowApproval{Status: models.ApprovalStatusDenied}).Resolvable())
	assert.False(t, (&models.WorkflowApproval{Status: models.ApprovalStatusExpired}).Resolvable())
}
