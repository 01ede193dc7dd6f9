package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater/conveyor/pkg/conditions"
	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/persistence/memory"
	"github.com/tidewater/conveyor/pkg/protocol"
	"github.com/tidewater/conveyor/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type stubHandler struct {
	fn func(ctx context.Context, executionCtx models.ExecutionContext) (map[string]any, error)
}

func (h stubHandler) Execute(ctx context.Context, executionCtx models.ExecutionContext, _ *slog.Logger) (map[string]any, error) {
	return h.fn(ctx, executionCtx)
}

type stubFactory struct {
	id string
	fn func(ctx context.Context, executionCtx models.ExecutionContext) (map[string]any, error)
}

func (f stubFactory) Create(_ context.Context, _ map[string]any) (protocol.Handler, error) {
	return stubHandler{fn: f.fn}, nil
}

func (f stubFactory) ID() string             { return f.id }
func (f stubFactory) Name() string           { return f.id }
func (f stubFactory) Description() string    { return "test handler" }
func (f stubFactory) Schema() map[string]any { return nil }

// crashingActionRunStore panics when the named action's run row is created,
// simulating a storage failure landing mid-run.
type crashingActionRunStore struct {
	persistence.Persistence

	crashOnActionID string
}

func (s crashingActionRunStore) CreateActionRun(ctx context.Context, actionRun *models.WorkflowActionRun) error {
	if actionRun.ActionID == s.crashOnActionID {
		panic("storage exploded")
	}

	return s.Persistence.CreateActionRun(ctx, actionRun)
}

type fixture struct {
	persistence *memory.Persistence
	registry    *registry.Registry
	service     *engine.ExecutionService
	workflow    *models.Workflow
}

func newFixture(t *testing.T, factories ...protocol.HandlerFactory) *fixture {
	t.Helper()

	return newFixtureWithStore(t, memory.NewPersistence(), nil, factories...)
}

// newFixtureWithStore builds the fixture around an explicit store. wrapped,
// when non-nil, is what the service sees; seeding always goes through the
// plain memory store.
func newFixtureWithStore(t *testing.T, p *memory.Persistence, wrapped persistence.Persistence, factories ...protocol.HandlerFactory) *fixture {
	t.Helper()

	if wrapped == nil {
		wrapped = p
	}

	reg := registry.NewRegistry(testLogger())

	for _, factory := range factories {
		reg.RegisterHandler(factory)
	}

	executor := engine.NewActionExecutor(testLogger(), reg)
	matcher := engine.NewTriggerMatcher(testLogger(), wrapped, conditions.NewEvaluator(testLogger()))
	service := engine.NewExecutionService(testLogger(), wrapped, executor, matcher, nil, nil, nil, "worker-test")

	workflow := &models.Workflow{
		ID:       "wf-1",
		Name:     "Lead welcome",
		Type:     models.WorkflowTypeAutomation,
		Status:   models.WorkflowStatusActive,
		IsActive: true,
		Owner:    "user-1",
		Scope:    "acme",
	}
	require.NoError(t, p.SaveWorkflow(context.Background(), workflow))

	return &fixture{persistence: p, registry: reg, service: service, workflow: workflow}
}

func (f *fixture) addAction(t *testing.T, id string, actionType models.ActionType, ordering int, allowFailure bool, deps ...int) {
	t.Helper()

	require.NoError(t, f.persistence.SaveAction(context.Background(), &models.WorkflowAction{
		ID:           id,
		WorkflowID:   f.workflow.ID,
		ActionType:   actionType,
		Name:         id,
		Ordering:     ordering,
		AllowFailure: allowFailure,
		DependsOn:    deps,
		IsActive:     true,
	}))
}

func TestExecuteWorkflowAllActionsSucceed(t *testing.T) {
	t.Parallel()

	var sawEarlierResult bool

	f := newFixture(t,
		stubFactory{id: "step_one", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return map[string]any{"value": 42}, nil
		}},
		stubFactory{id: "step_two", fn: func(_ context.Context, executionCtx models.ExecutionContext) (map[string]any, error) {
			_, sawEarlierResult = executionCtx.StepResults["a1"]

			return nil, nil
		}},
	)
	f.addAction(t, "a1", "step_one", 1, false)
	f.addAction(t, "a2", "step_two", 2, false, 0)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, map[string]any{"lead": "l-1"}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, run.Success)
	assert.NotNil(t, run.CompletedAt)
	assert.True(t, sawEarlierResult, "dependent action should see its dependency's result")

	actionRuns, err := f.persistence.ActionRunsByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, actionRuns, 2)

	for _, actionRun := range actionRuns {
		assert.Equal(t, models.ActionRunStatusCompleted, actionRun.Status)
		assert.True(t, actionRun.Success)
	}

	workflow, err := f.persistence.WorkflowByID(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.ExecutionCount)
	assert.NotNil(t, workflow.LastExecutedAt)
}

func TestExecuteWorkflowFatalFailureSkipsRemaining(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		stubFactory{id: "fails", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, errors.New("upstream rejected the request")
		}},
		stubFactory{id: "never_runs", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			t.Error("action after a fatal failure must not run")

			return nil, nil
		}},
	)
	f.addAction(t, "a1", "fails", 1, false)
	f.addAction(t, "a2", "never_runs", 2, false, 0)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.False(t, run.Success)
	assert.Contains(t, run.ErrorMessage, "action 'a1' failed")
	assert.Contains(t, run.ErrorMessage, "upstream rejected the request")
	assert.Equal(t, "a1", run.ErrorDetails["action_id"])

	actionRuns, err := f.persistence.ActionRunsByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, actionRuns, 2)
	assert.Equal(t, models.ActionRunStatusFailed, actionRuns[0].Status)
	assert.Equal(t, models.ActionRunStatusSkipped, actionRuns[1].Status)

	// Execution is recorded regardless of outcome.
	workflow, err := f.persistence.WorkflowByID(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.ExecutionCount)
}

func TestExecuteWorkflowAllowFailureContinues(t *testing.T) {
	t.Parallel()

	var secondRan bool

	f := newFixture(t,
		stubFactory{id: "flaky", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, errors.New("best effort failed")
		}},
		stubFactory{id: "after", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			secondRan = true

			return nil, nil
		}},
	)
	f.addAction(t, "a1", "flaky", 1, true)
	f.addAction(t, "a2", "after", 2, false, 0)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, run.Success)
	assert.True(t, secondRan)

	actionRuns, err := f.persistence.ActionRunsByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, actionRuns, 2)
	assert.Equal(t, models.ActionRunStatusFailed, actionRuns[0].Status)
	assert.Equal(t, models.ActionRunStatusCompleted, actionRuns[1].Status)
}

func TestExecuteWorkflowJoinsParallelGroupBeforeDependentSteps(t *testing.T) {
	t.Parallel()

	var missing []string

	f := newFixture(t,
		stubFactory{id: "slow_fetch", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			time.Sleep(75 * time.Millisecond)

			return map[string]any{"rows": 3}, nil
		}},
		stubFactory{id: "fast_fetch", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return map[string]any{"rows": 1}, nil
		}},
		stubFactory{id: "merge", fn: func(_ context.Context, executionCtx models.ExecutionContext) (map[string]any, error) {
			for _, id := range []string{"a1", "a2"} {
				if _, ok := executionCtx.StepResults[id]; !ok {
					missing = append(missing, id)
				}
			}

			return nil, nil
		}},
	)
	f.addAction(t, "a1", "slow_fetch", 1, false)
	f.addAction(t, "a2", "fast_fetch", 2, false)
	f.addAction(t, "a3", "merge", 3, false, 0, 1)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Empty(t, missing, "dependent step started before the parallel group joined")

	actionRuns, err := f.persistence.ActionRunsByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, actionRuns, 3)

	for _, actionRun := range actionRuns {
		assert.Equal(t, models.ActionRunStatusCompleted, actionRun.Status)
	}
}

func TestExecuteWorkflowUnmetDependencyFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		stubFactory{id: "noop", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		}},
		stubFactory{id: "never_runs", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			t.Error("action with an unmet dependency must not run")

			return nil, nil
		}},
	)
	f.addAction(t, "a1", "noop", 1, false)
	f.addAction(t, "a2", "never_runs", 2, false, 5)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "depends on step 5")

	actionRuns, err := f.persistence.ActionRunsByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, actionRuns, 2)
	assert.Equal(t, models.ActionRunStatusCompleted, actionRuns[0].Status)
	assert.Equal(t, models.ActionRunStatusSkipped, actionRuns[1].Status)
}

func TestExecuteWorkflowUnknownActionType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addAction(t, "a1", "does_not_exist", 1, false)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "Unknown action type: does_not_exist")
}

func TestExecuteWorkflowHandlerPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		stubFactory{id: "panics", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			panic("nil map write")
		}},
	)
	f.addAction(t, "a1", "panics", 1, false)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "panicked")
	assert.Contains(t, run.ErrorMessage, "nil map write")
}

func TestExecuteWorkflowStorePanicFailsRun(t *testing.T) {
	t.Parallel()

	base := memory.NewPersistence()
	store := crashingActionRunStore{Persistence: base, crashOnActionID: "a1"}

	f := newFixtureWithStore(t, base, store,
		stubFactory{id: "noop", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		}},
	)
	f.addAction(t, "a1", "noop", 1, false)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.False(t, run.Success)
	require.NotNil(t, run.CompletedAt, "a crashed run must not stay running")
	assert.Contains(t, run.ErrorMessage, "panicked")
	assert.Contains(t, run.ErrorMessage, "storage exploded")

	stored, err := base.RunByID(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	// Execution is still recorded after the recovery.
	workflow, err := base.WorkflowByID(t.Context(), f.workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.ExecutionCount)
}

func TestExecuteWorkflowStorePanicOnDependentStepFailsRun(t *testing.T) {
	t.Parallel()

	base := memory.NewPersistence()
	store := crashingActionRunStore{Persistence: base, crashOnActionID: "a2"}

	f := newFixtureWithStore(t, base, store,
		stubFactory{id: "noop", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		}},
	)
	f.addAction(t, "a1", "noop", 1, false)
	f.addAction(t, "a2", "noop", 2, false, 0)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.Contains(t, run.ErrorMessage, "panic")
	assert.Equal(t, "storage exploded", run.ErrorDetails["panic"])
}

func TestExecuteWorkflowCooperativeCancellation(t *testing.T) {
	t.Parallel()

	var f *fixture

	f = newFixture(t,
		stubFactory{id: "requests_cancel", fn: func(ctx context.Context, executionCtx models.ExecutionContext) (map[string]any, error) {
			// Simulates an external cancel landing while the action runs.
			return nil, f.persistence.RequestRunCancel(ctx, executionCtx.RunID)
		}},
		stubFactory{id: "never_runs", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			t.Error("action after a cancel request must not run")

			return nil, nil
		}},
	)
	f.addAction(t, "a1", "requests_cancel", 1, false)
	f.addAction(t, "a2", "never_runs", 2, false, 0)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.False(t, run.Success)

	actionRuns, err := f.persistence.ActionRunsByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, actionRuns, 2)
	assert.Equal(t, models.ActionRunStatusCompleted, actionRuns[0].Status)
	assert.Equal(t, models.ActionRunStatusSkipped, actionRuns[1].Status)
}

func TestExecuteWorkflowNotExecutable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.workflow.IsActive = false
	require.NoError(t, f.persistence.SaveWorkflow(t.Context(), f.workflow))

	_, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.ErrorIs(t, err, engine.ErrWorkflowNotExecutable)
}

func TestRequestCancelOnTerminalRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		stubFactory{id: "noop", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		}},
	)
	f.addAction(t, "a1", "noop", 1, false)

	run, err := f.service.ExecuteWorkflow(t.Context(), f.workflow.ID, nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, run.Status)

	err = f.service.RequestCancel(t.Context(), run.ID)
	require.ErrorIs(t, err, persistence.ErrInvalidStatusTransition)
}

func TestHandleEventMatchesAndRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		stubFactory{id: "noop", fn: func(_ context.Context, _ models.ExecutionContext) (map[string]any, error) {
			return nil, nil
		}},
	)
	f.addAction(t, "a1", "noop", 1, false)

	require.NoError(t, f.persistence.SaveTrigger(t.Context(), &models.WorkflowTrigger{
		ID:         "tr-match",
		WorkflowID: f.workflow.ID,
		EventType:  "lead.created",
		Conditions: &models.Condition{Field: "source", Operator: models.OperatorEq, Value: "webform"},
		Priority:   10,
		IsActive:   true,
	}))
	require.NoError(t, f.persistence.SaveTrigger(t.Context(), &models.WorkflowTrigger{
		ID:         "tr-no-match",
		WorkflowID: f.workflow.ID,
		EventType:  "lead.created",
		Conditions: &models.Condition{Field: "source", Operator: models.OperatorEq, Value: "import"},
		Priority:   5,
		IsActive:   true,
	}))

	runs, err := f.service.HandleEvent(t.Context(), "lead.created", "acme", map[string]any{"source": "webform"})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	require.NotNil(t, runs[0].TriggerID)
	assert.Equal(t, "tr-match", *runs[0].TriggerID)
}

func TestHandleEventNoMatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	runs, err := f.service.HandleEvent(t.Context(), "deal.closed", "acme", map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
