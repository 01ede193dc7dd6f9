package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater/conveyor/pkg/conditions"
	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/partition"
	"github.com/tidewater/conveyor/pkg/persistence/memory"
	"github.com/tidewater/conveyor/pkg/protocol"
	"github.com/tidewater/conveyor/pkg/queue"
	"github.com/tidewater/conveyor/pkg/registry"
	"github.com/tidewater/conveyor/pkg/web"
)

type noopHandler struct{}

func (noopHandler) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

type noopFactory struct{ id string }

func (f noopFactory) Create(_ context.Context, _ map[string]any) (protocol.Handler, error) {
	return noopHandler{}, nil
}

func (f noopFactory) ID() string             { return f.id }
func (f noopFactory) Name() string           { return f.id }
func (f noopFactory) Description() string    { return "test handler" }
func (f noopFactory) Schema() map[string]any { return nil }

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	app, p, _ := setupTestAppWithQueue(t)

	return app, p
}

func setupTestAppWithQueue(t *testing.T) (*fiber.App, *memory.Persistence, queue.TaskQueue) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	p := memory.NewPersistence()

	reg := registry.NewRegistry(logger)
	reg.RegisterHandler(noopFactory{id: "noop"})

	executor := engine.NewActionExecutor(logger, reg)
	matcher := engine.NewTriggerMatcher(logger, p, conditions.NewEvaluator(logger))
	service := engine.NewExecutionService(logger, p, executor, matcher, nil, nil, nil, "worker-test")

	taskQueue := queue.NewMemoryQueue()
	t.Cleanup(func() {
		require.NoError(t, taskQueue.Close())
	})

	handlers := web.NewAPIHandlers(p, service, taskQueue, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, p, taskQueue
}

func seedWorkflow(t *testing.T, p *memory.Persistence) *models.Workflow {
	t.Helper()

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

	require.NoError(t, p.SaveAction(context.Background(), &models.WorkflowAction{
		ID:         "a1",
		WorkflowID: workflow.ID,
		ActionType: "noop",
		Ordering:   1,
		IsActive:   true,
	}))

	return workflow
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewBuffer(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

func TestIngestEventStartsMatchingRuns(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedWorkflow(t, p)

	require.NoError(t, p.SaveTrigger(context.Background(), &models.WorkflowTrigger{
		ID:         "tr-1",
		WorkflowID: "wf-1",
		EventType:  "lead.created",
		Conditions: &models.Condition{Field: "source", Operator: models.OperatorEq, Value: "webform"},
		IsActive:   true,
	}))

	resp, raw := doJSON(t, app, http.MethodPost, "/events", web.EventRequest{
		EventType: "lead.created",
		Scope:     "acme",
		Data:      map[string]any{"source": "webform"},
	})

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		RunsStarted int `json:"runs_started"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 1, result.RunsStarted)
}

func TestIngestEventRequiresEventType(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/events", web.EventRequest{Scope: "acme"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteWorkflowManualRun(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedWorkflow(t, p)

	resp, raw := doJSON(t, app, http.MethodPost, "/workflows/wf-1/execute", web.ExecuteWorkflowRequest{
		TriggerData: map[string]any{"lead": "l-1"},
		ActorID:     "user-1",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run models.WorkflowRun
	require.NoError(t, json.Unmarshal(raw, &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, run.Success)
	assert.Nil(t, run.TriggerID)
	assert.Equal(t, "user-1", run.ActorID)
}

func TestExecuteWorkflowNotExecutable(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	workflow := seedWorkflow(t, p)

	workflow.IsActive = false
	require.NoError(t, p.SaveWorkflow(context.Background(), workflow))

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/wf-1/execute", web.ExecuteWorkflowRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEnqueueWorkflowRoutesToDominantQueue(t *testing.T) {
	t.Parallel()

	app, p, taskQueue := setupTestAppWithQueue(t)

	workflow := &models.Workflow{
		ID:       "wf-mail",
		Name:     "Campaign fan-out",
		Type:     models.WorkflowTypeNotification,
		Status:   models.WorkflowStatusActive,
		IsActive: true,
		Owner:    "user-1",
		Scope:    "acme",
	}
	require.NoError(t, p.SaveWorkflow(context.Background(), workflow))

	for i, name := range []string{"Send welcome email", "Send followup email"} {
		require.NoError(t, p.SaveAction(context.Background(), &models.WorkflowAction{
			ID:         "a" + string(rune('1'+i)),
			WorkflowID: workflow.ID,
			ActionType: "send_email",
			Name:       name,
			Ordering:   i + 1,
			IsActive:   true,
		}))
	}

	resp, raw := doJSON(t, app, http.MethodPost, "/workflows/wf-mail/enqueue", web.ExecuteWorkflowRequest{
		TriggerData: map[string]any{"campaign": "c-1"},
	})

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var enqueued web.EnqueueWorkflowResponse
	require.NoError(t, json.Unmarshal(raw, &enqueued))
	assert.NotEmpty(t, enqueued.TaskID)
	assert.Equal(t, partition.QueueIO, enqueued.Queue)
	assert.Equal(t, "wf-mail", enqueued.WorkflowID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	task, err := taskQueue.Dequeue(ctx, partition.QueueIO)
	require.NoError(t, err)
	assert.Equal(t, enqueued.TaskID, task.ID)
	assert.Equal(t, "wf-mail", task.WorkflowID)
	assert.Equal(t, map[string]any{"campaign": "c-1"}, task.Payload)
}

func TestEnqueueWorkflowNotExecutable(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	workflow := seedWorkflow(t, p)

	workflow.IsActive = false
	require.NoError(t, p.SaveWorkflow(context.Background(), workflow))

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/wf-1/enqueue", web.ExecuteWorkflowRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkflowNotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWorkflowRuns(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedWorkflow(t, p)

	_, _ = doJSON(t, app, http.MethodPost, "/workflows/wf-1/execute", web.ExecuteWorkflowRequest{})
	_, _ = doJSON(t, app, http.MethodPost, "/workflows/wf-1/execute", web.ExecuteWorkflowRequest{})

	resp, raw := doJSON(t, app, http.MethodGet, "/workflows/wf-1/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 2, result.TotalCount)
}

func TestCancelFinishedRunConflicts(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedWorkflow(t, p)

	_, raw := doJSON(t, app, http.MethodPost, "/workflows/wf-1/execute", web.ExecuteWorkflowRequest{})

	var run models.WorkflowRun
	require.NoError(t, json.Unmarshal(raw, &run))

	resp, _ := doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/cancel", web.CancelRunRequest{CancelledBy: "user-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func seedApproval(t *testing.T, p *memory.Persistence, id string, status models.ApprovalStatus, createdAt time.Time, resolvedAfter time.Duration) {
	t.Helper()

	approval := &models.WorkflowApproval{
		ID:           id,
		RunID:        "run-" + id,
		ActionRunID:  "ar-" + id,
		Status:       models.ApprovalStatusPending,
		ApproverRole: "manager",
		ExpiresAt:    createdAt.Add(24 * time.Hour),
		CreatedAt:    createdAt,
	}
	require.NoError(t, p.CreateApproval(context.Background(), approval))

	if status != models.ApprovalStatusPending {
		approval.Status = status

		if resolvedAfter > 0 {
			resolved := createdAt.Add(resolvedAfter)
			approval.ResolvedAt = &resolved
		}

		require.NoError(t, p.UpdateApproval(context.Background(), approval))
	}
}

func TestApproveApproval(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedApproval(t, p, "ap-1", models.ApprovalStatusPending, time.Now().UTC(), 0)

	resp, raw := doJSON(t, app, http.MethodPost, "/approvals/ap-1/approve", web.ApproveRequest{
		ActorID:  "manager-1",
		Comments: "looks good",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var approval models.WorkflowApproval
	require.NoError(t, json.Unmarshal(raw, &approval))
	assert.Equal(t, models.ApprovalStatusApproved, approval.Status)
	assert.Equal(t, "manager-1", approval.ActorID)
	assert.NotNil(t, approval.ResolvedAt)
}

func TestApproveAlreadyResolvedConflicts(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedApproval(t, p, "ap-1", models.ApprovalStatusDenied, time.Now().UTC(), time.Hour)

	resp, _ := doJSON(t, app, http.MethodPost, "/approvals/ap-1/approve", web.ApproveRequest{ActorID: "manager-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDenyRequiresReason(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedApproval(t, p, "ap-1", models.ApprovalStatusPending, time.Now().UTC(), 0)

	resp, _ := doJSON(t, app, http.MethodPost, "/approvals/ap-1/deny", web.DenyRequest{ActorID: "manager-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDenyEscalatedApprovalSucceeds(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedApproval(t, p, "ap-1", models.ApprovalStatusEscalated, time.Now().UTC(), 0)

	resp, raw := doJSON(t, app, http.MethodPost, "/approvals/ap-1/deny", web.DenyRequest{
		ActorID: "director-1",
		Reason:  "budget exceeded",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var approval models.WorkflowApproval
	require.NoError(t, json.Unmarshal(raw, &approval))
	assert.Equal(t, models.ApprovalStatusDenied, approval.Status)
	assert.Equal(t, "budget exceeded", approval.Comments)
}

func TestApprovalMetrics(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	now := time.Now().UTC()

	seedApproval(t, p, "ap-1", models.ApprovalStatusApproved, now.Add(-2*time.Hour), 30*time.Minute)
	seedApproval(t, p, "ap-2", models.ApprovalStatusDenied, now.Add(-3*time.Hour), 90*time.Minute)
	seedApproval(t, p, "ap-3", models.ApprovalStatusEscalated, now.Add(-26*time.Hour), 0)
	seedApproval(t, p, "ap-4", models.ApprovalStatusPending, now.Add(-time.Hour), 0)

	resp, raw := doJSON(t, app, http.MethodGet, "/approvals/metrics?days=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics web.ApprovalMetrics
	require.NoError(t, json.Unmarshal(raw, &metrics))

	assert.Equal(t, 4, metrics.TotalApprovals)
	assert.Equal(t, 7, metrics.WindowDays)
	assert.Equal(t, 1, metrics.StatusBreakdown["approved"])
	assert.Equal(t, 1, metrics.StatusBreakdown["denied"])
	assert.Equal(t, 1, metrics.StatusBreakdown["escalated"])
	assert.Equal(t, 1, metrics.StatusBreakdown["pending"])
	assert.Equal(t, 1, metrics.EscalatedCount)
	assert.InDelta(t, 25.0, metrics.EscalationRatePercent, 0.001)
	// Two resolved approvals averaging (30m + 90m) / 2.
	assert.InDelta(t, 3600.0, metrics.AverageResponseTimeSeconds, 1.0)
}

func TestApprovalMetricsRejectsBadDays(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/approvals/metrics?days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "healthy")
}
