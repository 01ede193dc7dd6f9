package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/queue"
)

const defaultMetricsWindowDays = 30

type APIHandlers struct {
	persistence persistence.Persistence
	service     *engine.ExecutionService
	taskQueue   queue.TaskQueue
	validator   *validator.Validate
}

// NewAPIHandlers creates the handler set. taskQueue may be nil when the
// deployment has no worker fleet; the enqueue endpoint then responds 503.
func NewAPIHandlers(p persistence.Persistence, service *engine.ExecutionService, taskQueue queue.TaskQueue, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		service:     service,
		taskQueue:   taskQueue,
		validator:   validate,
	}
}

// RegisterRoutes wires the API surface onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	app.Post("/events", h.IngestEvent)

	app.Get("/workflows", h.GetWorkflows)
	app.Post("/workflows", h.CreateWorkflow)
	app.Get("/workflows/:id", h.GetWorkflow)
	app.Delete("/workflows/:id", h.ArchiveWorkflow)
	app.Post("/workflows/:id/execute", h.ExecuteWorkflow)
	app.Post("/workflows/:id/enqueue", h.EnqueueWorkflow)
	app.Get("/workflows/:id/runs", h.GetWorkflowRuns)

	app.Post("/runs/:id/cancel", h.CancelRun)

	app.Get("/approvals/metrics", h.GetApprovalMetrics)
	app.Post("/approvals/:id/approve", h.ApproveApproval)
	app.Post("/approvals/:id/deny", h.DenyApproval)
}

// IngestEvent matches a domain event against triggers and starts a run per
// match. Responds 202 with the started runs; matching nothing is still a
// success.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runs, err := h.service.HandleEvent(c.Context(), req.EventType, req.Scope, req.Data)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event_type":   req.EventType,
		"runs_started": len(runs),
		"runs":         runs,
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Type:        models.WorkflowType(req.Type),
		Status:      models.WorkflowStatusDraft,
		Owner:       req.Owner,
		Scope:       req.Scope,
	}

	err := h.persistence.SaveWorkflow(c.Context(), workflow)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.persistence.ArchiveWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow starts a manual run outside any trigger.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.service.ExecuteWorkflow(c.Context(), id, nil, req.TriggerData, req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

// EnqueueWorkflow queues a workflow for asynchronous execution. The task is
// routed to the queue serving the workflow's dominant latency class; a worker
// consumes it and drives the run.
func (h *APIHandlers) EnqueueWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if h.taskQueue == nil {
		return serviceUnavailable(c, "task queue not configured")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	task, err := h.service.EnqueueWorkflow(c.Context(), h.taskQueue, id, req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(EnqueueWorkflowResponse{
		TaskID:     task.ID,
		Queue:      task.Queue,
		WorkflowID: task.WorkflowID,
	})
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.persistence.WorkflowByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	runs, err := h.persistence.RunsByWorkflow(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

// CancelRun flags a run for cooperative cancellation. Cancelling a run that
// already reached a terminal state is a conflict.
func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	err := h.service.RequestCancel(c.Context(), id)
	if err != nil {
		if persistence.IsInvalidStatusTransition(err) {
			return conflict(c, "run already finished")
		}

		return handleServiceError(c, err)
	}

	run, err := h.persistence.RunByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) ApproveApproval(c fiber.Ctx) error {
	var req ApproveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.resolveApproval(c, models.ApprovalStatusApproved, req.ActorID, req.Comments)
}

func (h *APIHandlers) DenyApproval(c fiber.Ctx) error {
	var req DenyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	comments := req.Reason
	if req.Comments != "" {
		comments = req.Reason + ": " + req.Comments
	}

	return h.resolveApproval(c, models.ApprovalStatusDenied, req.ActorID, comments)
}

func (h *APIHandlers) resolveApproval(c fiber.Ctx, status models.ApprovalStatus, actorID, comments string) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	approval, err := h.persistence.ApprovalByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !approval.Resolvable() {
		return conflict(c, "approval already resolved")
	}

	now := time.Now().UTC()
	approval.Status = status
	approval.ResolvedAt = &now
	approval.ActorID = actorID
	approval.Comments = comments

	err = h.persistence.UpdateApproval(c.Context(), approval)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(approval)
}

// GetApprovalMetrics aggregates approval activity over the last N days
// (default 30).
func (h *APIHandlers) GetApprovalMetrics(c fiber.Ctx) error {
	days := defaultMetricsWindowDays

	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "days must be a positive integer")
		}

		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	approvals, err := h.persistence.ApprovalsCreatedSince(c.Context(), since)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(buildApprovalMetrics(approvals, days))
}

func buildApprovalMetrics(approvals []*models.WorkflowApproval, days int) ApprovalMetrics {
	metrics := ApprovalMetrics{
		TotalApprovals:  len(approvals),
		StatusBreakdown: make(map[string]int),
		WindowDays:      days,
	}

	var (
		responseTotal time.Duration
		responded     int
	)

	for _, approval := range approvals {
		metrics.StatusBreakdown[string(approval.Status)]++

		if approval.Status == models.ApprovalStatusEscalated {
			metrics.EscalatedCount++
		} else if _, wasEscalated := approval.Metadata[models.ApprovalMetaEscalatedAt]; wasEscalated {
			// Resolved after an escalation still counts as escalated.
			metrics.EscalatedCount++
		}

		if approval.ResolvedAt != nil {
			responseTotal += approval.ResolvedAt.Sub(approval.CreatedAt)
			responded++
		}
	}

	if responded > 0 {
		metrics.AverageResponseTimeSeconds = responseTotal.Seconds() / float64(responded)
	}

	if metrics.TotalApprovals > 0 {
		metrics.EscalationRatePercent = float64(metrics.EscalatedCount) / float64(metrics.TotalApprovals) * 100
	}

	return metrics
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
