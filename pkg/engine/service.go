package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/events"
	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/otelhelper"
	"github.com/tidewater/conveyor/pkg/partition"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/queue"
)

// SLAChecker evaluates a finished run against its workflow's SLAs. The engine
// treats it as best-effort; checker failures never fail the run.
type SLAChecker interface {
	CheckExecution(ctx context.Context, run *models.WorkflowRun) ([]*models.SLABreach, error)
}

// planWorkersPerQueue caps in-process fan-out per latency-class queue.
const planWorkersPerQueue = 4

// ExecutionService drives the run state machine: it creates runs, executes
// the dependency-aware plan, honors the allow-failure policy and cooperative
// cancellation, and publishes lifecycle events.
type ExecutionService struct {
	persistence persistence.Persistence
	executor    *ActionExecutor
	matcher     *TriggerMatcher
	partitioner *partition.Partitioner
	planRunner  *queue.PlanRunner
	eventBus    eventbus.EventPublisher
	slaChecker  SLAChecker
	tracer      trace.Tracer
	logger      *slog.Logger
	workerID    string
}

// NewExecutionService creates an execution service. The event bus, SLA
// checker, and tracer may each be nil; the corresponding concern is skipped.
func NewExecutionService(
	logger *slog.Logger,
	p persistence.Persistence,
	executor *ActionExecutor,
	matcher *TriggerMatcher,
	bus eventbus.EventPublisher,
	slaChecker SLAChecker,
	tracer trace.Tracer,
	workerID string,
) *ExecutionService {
	return &ExecutionService{
		persistence: p,
		executor:    executor,
		matcher:     matcher,
		partitioner: partition.NewPartitioner(partition.NewClassifier(), logger),
		planRunner:  queue.NewPlanRunner(logger, planWorkersPerQueue),
		eventBus:    bus,
		slaChecker:  slaChecker,
		tracer:      tracer,
		logger:      logger.With("module", "execution_service", "worker_id", workerID),
		workerID:    workerID,
	}
}

// HandleEvent matches an incoming domain event against registered triggers
// and starts a run for each match. A failing run does not stop the rest.
func (s *ExecutionService) HandleEvent(ctx context.Context, eventType, scope string, eventData map[string]any) ([]*models.WorkflowRun, error) {
	triggers, err := s.matcher.Match(ctx, eventType, scope, eventData)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.WorkflowRun, 0, len(triggers))

	for _, trigger := range triggers {
		triggerID := trigger.ID

		run, err := s.ExecuteWorkflow(ctx, trigger.WorkflowID, &triggerID, eventData, "")
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to execute triggered workflow",
				"workflow_id", trigger.WorkflowID,
				"trigger_id", trigger.ID,
				"error", err,
			)

			continue
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// ExecuteWorkflow runs one workflow to a terminal state. A run that fails or
// is cancelled is still a successful call; the error return covers only
// infrastructure problems that prevented the run from proceeding at all.
func (s *ExecutionService) ExecuteWorkflow(ctx context.Context, workflowID string, triggerID *string, triggerData map[string]any, actorID string) (*models.WorkflowRun, error) {
	ctx, span := s.startSpan(ctx, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if !workflow.Executable() {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotExecutable)
	}

	run, err := s.startRun(ctx, workflow, triggerID, triggerData, actorID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.RunIDKey, run.ID))

	actions, err := s.persistence.ActiveActionsByWorkflow(ctx, workflowID)
	if err != nil {
		s.failRun(ctx, run, fmt.Sprintf("failed to load actions: %v", err), nil, 0)

		return run, nil
	}

	s.publish(ctx, run.WorkflowID, events.RunStarted{
		BaseEvent:   s.baseEvent(events.RunStartedEvent, run.WorkflowID),
		RunID:       run.ID,
		TriggerID:   derefString(triggerID),
		TriggerData: triggerData,
		ActorID:     actorID,
	})

	executionCtx := models.ExecutionContext{
		RunID:       run.ID,
		WorkflowID:  run.WorkflowID,
		TriggerData: triggerData,
		StepResults: make(map[string]any),
		Metadata:    make(map[string]any),
		ActorID:     actorID,
	}

	s.runActions(ctx, run, actions, executionCtx)

	err = s.persistence.RecordExecution(ctx, workflowID, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record workflow execution",
			"workflow_id", workflowID, "error", err)
	}

	s.checkSLAs(ctx, run)

	return run, nil
}

// EnqueueWorkflow places an asynchronous execution request on the task queue
// serving the workflow's dominant latency class. A worker consumes the task
// and drives the run; the returned task carries the routing decision.
func (s *ExecutionService) EnqueueWorkflow(ctx context.Context, taskQueue queue.TaskQueue, workflowID string, triggerData map[string]any) (*queue.Task, error) {
	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if !workflow.Executable() {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotExecutable)
	}

	actions, err := s.persistence.ActiveActionsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actions: %w", err)
	}

	queueName := partition.DominantQueue(s.partitioner.Tag(actions))

	task := &queue.Task{
		ID:         uuid.New().String(),
		Queue:      queueName,
		WorkflowID: workflowID,
		EnqueuedAt: time.Now().UTC(),
		Payload:    triggerData,
	}

	err = taskQueue.Enqueue(ctx, queueName, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue workflow task: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow enqueued",
		"workflow_id", workflowID,
		"task_id", task.ID,
		"queue", queueName,
	)

	return task, nil
}

// runActions executes the run's plan and leaves the run in a terminal state.
// Independent steps fan out to their assigned queues and join before any
// dependent step starts; dependent steps then run in declared order. A panic
// anywhere in the loop fails the run instead of stranding it running.
func (s *ExecutionService) runActions(ctx context.Context, run *models.WorkflowRun, actions []*models.WorkflowAction, executionCtx models.ExecutionContext) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.ErrorContext(ctx, "Run execution panicked",
				"run_id", run.ID, "panic", rec)

			if !run.Status.Terminal() {
				s.failRun(ctx, run,
					fmt.Sprintf("run aborted by panic: %v", rec),
					map[string]any{"panic": fmt.Sprint(rec)},
					0,
				)
			}
		}
	}()

	plan := s.partitioner.Plan(actions)
	executed := 0
	finished := make([]bool, len(actions))

	if s.cancelRequested(ctx, run) {
		s.skipSteps(ctx, run, plan.Parallel)
		s.skipSteps(ctx, run, plan.Sequential)
		s.cancelRun(ctx, run, executed)

		return
	}

	type outcome struct {
		actionRun *models.WorkflowActionRun
		result    models.ActionResult
	}

	outcomes := make([]outcome, len(plan.Parallel))

	positions := make(map[*partition.Step]int, len(plan.Parallel))
	for i, step := range plan.Parallel {
		positions[step] = i
	}

	fanErrs := s.planRunner.FanOut(ctx, plan.Parallel, func(stepCtx context.Context, step *partition.Step) error {
		actionRun, result := s.executeOne(stepCtx, run, step, executionCtx.ForStep())
		outcomes[positions[step]] = outcome{actionRun: actionRun, result: result}

		return nil
	})

	// The join is complete; merge results and apply the failure policy in
	// declared order.
	for i, step := range plan.Parallel {
		action := step.Action

		if fanErrs[i] != nil {
			s.skipSteps(ctx, run, plan.Sequential)
			s.failRun(ctx, run,
				fmt.Sprintf("action '%s' aborted: %s", actionName(action), fanErrs[i]),
				map[string]any{
					"action_id":   action.ID,
					"action_type": string(action.ActionType),
					"error":       fanErrs[i].Error(),
				},
				executed,
			)

			return
		}

		executed++
		finished[step.Index] = true

		out := outcomes[i]
		if out.result.Success {
			executionCtx.StepResults[action.ID] = out.result.Result

			continue
		}

		if action.AllowFailure {
			s.logger.WarnContext(ctx, "Action failed but failure is allowed",
				"run_id", run.ID,
				"action_id", action.ID,
				"error", out.result.Error,
			)

			continue
		}

		s.skipSteps(ctx, run, plan.Sequential)
		s.failRun(ctx, run,
			fmt.Sprintf("action '%s' failed: %s", actionName(action), out.result.Error),
			map[string]any{
				"action_id":     action.ID,
				"action_run_id": out.actionRun.ID,
				"action_type":   string(action.ActionType),
				"error":         out.result.Error,
			},
			executed,
		)

		return
	}

	for i, step := range plan.Sequential {
		action := step.Action

		if s.cancelRequested(ctx, run) {
			s.skipSteps(ctx, run, plan.Sequential[i:])
			s.cancelRun(ctx, run, executed)

			return
		}

		if dep, unmet := unmetDependency(step, finished); unmet {
			// A dependency that never completed is a configuration error;
			// allow-failure does not soften it.
			s.skipSteps(ctx, run, plan.Sequential[i:])
			s.failRun(ctx, run,
				fmt.Sprintf("action '%s' depends on step %d which has not completed", actionName(action), dep),
				map[string]any{
					"action_id":   action.ID,
					"action_type": string(action.ActionType),
					"depends_on":  dep,
				},
				executed,
			)

			return
		}

		actionRun, result := s.executeOne(ctx, run, step, executionCtx)
		executed++
		finished[step.Index] = true

		if result.Success {
			executionCtx.StepResults[action.ID] = result.Result

			continue
		}

		if action.AllowFailure {
			s.logger.WarnContext(ctx, "Action failed but failure is allowed",
				"run_id", run.ID,
				"action_id", action.ID,
				"error", result.Error,
			)

			continue
		}

		s.skipSteps(ctx, run, plan.Sequential[i+1:])
		s.failRun(ctx, run,
			fmt.Sprintf("action '%s' failed: %s", actionName(action), result.Error),
			map[string]any{
				"action_id":     action.ID,
				"action_run_id": actionRun.ID,
				"action_type":   string(action.ActionType),
				"error":         result.Error,
			},
			executed,
		)

		return
	}

	s.completeRun(ctx, run, executed)
}

func (s *ExecutionService) cancelRequested(ctx context.Context, run *models.WorkflowRun) bool {
	cancelled, err := s.persistence.RunCancelRequested(ctx, run.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to check cancel flag",
			"run_id", run.ID, "error", err)

		return false
	}

	return cancelled
}

// unmetDependency returns the first dependency index that has not finished
// executing. Out-of-range indices count as unmet.
func unmetDependency(step *partition.Step, finished []bool) (int, bool) {
	for _, dep := range step.DependsOn {
		if dep < 0 || dep >= len(finished) || !finished[dep] {
			return dep, true
		}
	}

	return 0, false
}

// executeOne records one action run around a single executor call. The
// handler runs under the time budget of the step's assigned queue.
func (s *ExecutionService) executeOne(ctx context.Context, run *models.WorkflowRun, step *partition.Step, executionCtx models.ExecutionContext) (*models.WorkflowActionRun, models.ActionResult) {
	action := step.Action

	ctx, span := s.startSpan(ctx, "action.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.ActionType)),
		attribute.String(otelhelper.QueueKey, step.Queue),
	)
	defer span.End()

	actionRun := &models.WorkflowActionRun{
		ID:         uuid.New().String(),
		RunID:      run.ID,
		ActionID:   action.ID,
		ActionType: action.ActionType,
		Ordering:   action.Ordering,
		Status:     models.ActionRunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	err := s.persistence.CreateActionRun(ctx, actionRun)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create action run",
			"run_id", run.ID, "action_id", action.ID, "error", err)
	}

	if executionCtx.Metadata != nil {
		executionCtx.Metadata["action_run_id"] = actionRun.ID
	}

	budget := queue.BudgetFor(step.Queue)

	actionCtx, cancel := context.WithTimeout(ctx, budget.Timeout)
	defer cancel()

	result := s.executor.ExecuteAction(actionCtx, executionCtx, action)

	actionRun.Finish(time.Now().UTC())
	actionRun.Success = result.Success
	actionRun.ResultData = result.Result
	actionRun.ErrorMessage = result.Error

	if result.Success {
		actionRun.Status = models.ActionRunStatusCompleted
	} else {
		actionRun.Status = models.ActionRunStatusFailed

		otelhelper.SetError(span, fmt.Errorf("%s", result.Error))
	}

	err = s.persistence.UpdateActionRun(ctx, actionRun)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update action run",
			"run_id", run.ID, "action_run_id", actionRun.ID, "error", err)
	}

	return actionRun, result
}

// skipSteps records skipped action runs for everything the run will not
// execute.
func (s *ExecutionService) skipSteps(ctx context.Context, run *models.WorkflowRun, steps []*partition.Step) {
	now := time.Now().UTC()

	for _, step := range steps {
		action := step.Action
		actionRun := &models.WorkflowActionRun{
			ID:         uuid.New().String(),
			RunID:      run.ID,
			ActionID:   action.ID,
			ActionType: action.ActionType,
			Ordering:   action.Ordering,
			Status:     models.ActionRunStatusSkipped,
			StartedAt:  now,
		}
		actionRun.Finish(now)

		err := s.persistence.CreateActionRun(ctx, actionRun)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to record skipped action run",
				"run_id", run.ID, "action_id", action.ID, "error", err)
		}
	}
}

func (s *ExecutionService) startRun(ctx context.Context, workflow *models.Workflow, triggerID *string, triggerData map[string]any, actorID string) (*models.WorkflowRun, error) {
	run := &models.WorkflowRun{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		TriggerID:   triggerID,
		TriggerData: triggerData,
		Status:      models.RunStatusPending,
		StartedAt:   time.Now().UTC(),
		ActorID:     actorID,
	}

	err := s.persistence.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	run.Status = models.RunStatusRunning

	err = s.persistence.UpdateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}

	s.logger.InfoContext(ctx, "Run started",
		"run_id", run.ID,
		"workflow_id", workflow.ID,
		"trigger_id", derefString(triggerID),
	)

	return run, nil
}

func (s *ExecutionService) completeRun(ctx context.Context, run *models.WorkflowRun, executed int) {
	run.Status = models.RunStatusCompleted
	run.Success = true
	run.Finish(time.Now().UTC())

	s.updateRun(ctx, run)

	s.logger.InfoContext(ctx, "Run completed",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"duration_ms", run.DurationMs,
		"actions_executed", executed,
	)

	s.publish(ctx, run.WorkflowID, events.RunCompleted{
		BaseEvent:       s.baseEvent(events.RunCompletedEvent, run.WorkflowID),
		RunID:           run.ID,
		DurationMs:      run.DurationMs,
		ActionsExecuted: executed,
	})
}

func (s *ExecutionService) failRun(ctx context.Context, run *models.WorkflowRun, message string, details map[string]any, executed int) {
	run.Status = models.RunStatusFailed
	run.Success = false
	run.ErrorMessage = message
	run.ErrorDetails = details
	run.Finish(time.Now().UTC())

	s.updateRun(ctx, run)

	s.logger.WarnContext(ctx, "Run failed",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"duration_ms", run.DurationMs,
		"error", message,
	)

	s.publish(ctx, run.WorkflowID, events.RunFailed{
		BaseEvent:       s.baseEvent(events.RunFailedEvent, run.WorkflowID),
		RunID:           run.ID,
		DurationMs:      run.DurationMs,
		Error:           message,
		ErrorDetails:    details,
		ActionsExecuted: executed,
	})
}

func (s *ExecutionService) cancelRun(ctx context.Context, run *models.WorkflowRun, executed int) {
	run.Status = models.RunStatusCancelled
	run.Success = false
	run.Finish(time.Now().UTC())

	s.updateRun(ctx, run)

	s.logger.InfoContext(ctx, "Run cancelled",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"actions_executed", executed,
	)

	s.publish(ctx, run.WorkflowID, events.RunCancelled{
		BaseEvent:       s.baseEvent(events.RunCancelledEvent, run.WorkflowID),
		RunID:           run.ID,
		DurationMs:      run.DurationMs,
		ActionsExecuted: executed,
	})
}

// RequestCancel flags a run for cooperative cancellation. The owning worker
// honors the flag before it starts the next action.
func (s *ExecutionService) RequestCancel(ctx context.Context, runID string) error {
	err := s.persistence.RequestRunCancel(ctx, runID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Run cancel requested", "run_id", runID)

	return nil
}

func (s *ExecutionService) updateRun(ctx context.Context, run *models.WorkflowRun) {
	err := s.persistence.UpdateRun(ctx, run)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update run",
			"run_id", run.ID, "status", run.Status, "error", err)
	}
}

func (s *ExecutionService) checkSLAs(ctx context.Context, run *models.WorkflowRun) {
	if s.slaChecker == nil {
		return
	}

	breaches, err := s.slaChecker.CheckExecution(ctx, run)
	if err != nil {
		s.logger.ErrorContext(ctx, "SLA check failed",
			"run_id", run.ID, "error", err)

		return
	}

	if len(breaches) > 0 {
		s.logger.WarnContext(ctx, "Run breached SLA",
			"run_id", run.ID, "breaches", len(breaches))
	}
}

func (s *ExecutionService) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	err := s.eventBus.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func (s *ExecutionService) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = s.workerID

	return base
}

func (s *ExecutionService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return otelhelper.StartSpan(ctx, s.tracer, name, attrs...)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func actionName(action *models.WorkflowAction) string {
	if action.Name != "" {
		return action.Name
	}

	return string(action.ActionType)
}
