// Package memory provides an in-memory persistence implementation for tests
// and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/persistence"
)

// Persistence keeps all engine state in mutex-guarded maps. Values are copied
// on the way in and out so callers never alias stored rows.
type Persistence struct {
	mu sync.RWMutex

	workflows  map[string]*models.Workflow
	triggers   map[string]*models.WorkflowTrigger
	actions    map[string]*models.WorkflowAction
	runs       map[string]*models.WorkflowRun
	actionRuns map[string]*models.WorkflowActionRun
	approvals  map[string]*models.WorkflowApproval
	slas       map[string]*models.WorkflowSLA
	breaches   map[string]*models.SLABreach
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		triggers:   make(map[string]*models.WorkflowTrigger),
		actions:    make(map[string]*models.WorkflowAction),
		runs:       make(map[string]*models.WorkflowRun),
		actionRuns: make(map[string]*models.WorkflowActionRun),
		approvals:  make(map[string]*models.WorkflowApproval),
		slas:       make(map[string]*models.WorkflowSLA),
		breaches:   make(map[string]*models.SLABreach),
	}
}

var _ persistence.Persistence = (*Persistence)(nil)

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))

	for _, workflow := range p.workflows {
		if workflow.DeletedAt == nil {
			clone := *workflow
			workflows = append(workflows, &clone)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	clone := *workflow

	return &clone, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *workflow
	p.workflows[workflow.ID] = &clone

	return nil
}

// ArchiveWorkflow soft-deletes: runs keep referencing the workflow row.
func (p *Persistence) ArchiveWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return persistence.ErrWorkflowNotFound
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusArchived
	workflow.IsActive = false
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	return nil
}

func (p *Persistence) RecordExecution(_ context.Context, workflowID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	workflow, ok := p.workflows[workflowID]
	if !ok {
		return persistence.ErrWorkflowNotFound
	}

	workflow.ExecutionCount++
	workflow.LastExecutedAt = &at
	workflow.UpdatedAt = at

	return nil
}

func (p *Persistence) SaveTrigger(_ context.Context, trigger *models.WorkflowTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *trigger
	p.triggers[trigger.ID] = &clone

	return nil
}

func (p *Persistence) ActiveTriggersByEvent(_ context.Context, eventType, scope string) ([]*models.WorkflowTrigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	triggers := make([]*models.WorkflowTrigger, 0)

	for _, trigger := range p.triggers {
		if !trigger.IsActive || trigger.EventType != eventType {
			continue
		}

		workflow, ok := p.workflows[trigger.WorkflowID]
		if !ok || (scope != "" && workflow.Scope != scope) {
			continue
		}

		clone := *trigger
		triggers = append(triggers, &clone)
	}

	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].Priority != triggers[j].Priority {
			return triggers[i].Priority > triggers[j].Priority
		}

		return triggers[i].ID < triggers[j].ID
	})

	return triggers, nil
}

func (p *Persistence) SaveAction(_ context.Context, action *models.WorkflowAction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *action
	p.actions[action.ID] = &clone

	return nil
}

func (p *Persistence) ActiveActionsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowAction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	actions := make([]*models.WorkflowAction, 0)

	for _, action := range p.actions {
		if action.WorkflowID == workflowID && action.IsActive {
			clone := *action
			actions = append(actions, &clone)
		}
	}

	// Ordering defines the execution order; insertion id breaks ties.
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Ordering != actions[j].Ordering {
			return actions[i].Ordering < actions[j].Ordering
		}

		return actions[i].ID < actions[j].ID
	})

	return actions, nil
}

func (p *Persistence) CreateRun(_ context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *run
	p.runs[run.ID] = &clone

	return nil
}

func (p *Persistence) UpdateRun(_ context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.runs[run.ID]
	if !ok {
		return persistence.ErrRunNotFound
	}

	if existing.Status.Terminal() && existing.Status != run.Status {
		return persistence.ErrInvalidStatusTransition
	}

	clone := *run
	// Preserve an external cancel request racing the final update.
	clone.CancelRequested = clone.CancelRequested || existing.CancelRequested
	p.runs[run.ID] = &clone

	return nil
}

func (p *Persistence) RunByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run, ok := p.runs[id]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	clone := *run

	return &clone, nil
}

func (p *Persistence) RunsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	runs := make([]*models.WorkflowRun, 0)

	for _, run := range p.runs {
		if run.WorkflowID == workflowID {
			clone := *run
			runs = append(runs, &clone)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

func (p *Persistence) RequestRunCancel(_ context.Context, runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[runID]
	if !ok {
		return persistence.ErrRunNotFound
	}

	if run.Status.Terminal() {
		return persistence.ErrInvalidStatusTransition
	}

	run.CancelRequested = true

	return nil
}

func (p *Persistence) RunCancelRequested(_ context.Context, runID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run, ok := p.runs[runID]
	if !ok {
		return false, persistence.ErrRunNotFound
	}

	return run.CancelRequested, nil
}

func (p *Persistence) CreateActionRun(_ context.Context, actionRun *models.WorkflowActionRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *actionRun
	p.actionRuns[actionRun.ID] = &clone

	return nil
}

func (p *Persistence) UpdateActionRun(_ context.Context, actionRun *models.WorkflowActionRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.actionRuns[actionRun.ID]; !ok {
		return persistence.ErrActionRunNotFound
	}

	clone := *actionRun
	p.actionRuns[actionRun.ID] = &clone

	return nil
}

func (p *Persistence) ActionRunsByRun(_ context.Context, runID string) ([]*models.WorkflowActionRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	actionRuns := make([]*models.WorkflowActionRun, 0)

	for _, actionRun := range p.actionRuns {
		if actionRun.RunID == runID {
			clone := *actionRun
			actionRuns = append(actionRuns, &clone)
		}
	}

	sort.Slice(actionRuns, func(i, j int) bool {
		if actionRuns[i].Ordering != actionRuns[j].Ordering {
			return actionRuns[i].Ordering < actionRuns[j].Ordering
		}

		return actionRuns[i].ID < actionRuns[j].ID
	})

	return actionRuns, nil
}

func (p *Persistence) CreateApproval(_ context.Context, approval *models.WorkflowApproval) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *approval
	p.approvals[approval.ID] = &clone

	return nil
}

func (p *Persistence) UpdateApproval(_ context.Context, approval *models.WorkflowApproval) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.approvals[approval.ID]; !ok {
		return persistence.ErrApprovalNotFound
	}

	clone := *approval
	p.approvals[approval.ID] = &clone

	return nil
}

func (p *Persistence) ApprovalByID(_ context.Context, id string) (*models.WorkflowApproval, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	approval, ok := p.approvals[id]
	if !ok {
		return nil, persistence.ErrApprovalNotFound
	}

	clone := *approval

	return &clone, nil
}

func (p *Persistence) PendingApprovalsExpiredBy(_ context.Context, asOf time.Time) ([]*models.WorkflowApproval, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	expired := make([]*models.WorkflowApproval, 0)

	for _, approval := range p.approvals {
		if approval.Status == models.ApprovalStatusPending && !approval.ExpiresAt.After(asOf) {
			clone := *approval
			expired = append(expired, &clone)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})

	return expired, nil
}

func (p *Persistence) ApprovalsCreatedSince(_ context.Context, since time.Time) ([]*models.WorkflowApproval, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	approvals := make([]*models.WorkflowApproval, 0)

	for _, approval := range p.approvals {
		if !approval.CreatedAt.Before(since) {
			clone := *approval
			approvals = append(approvals, &clone)
		}
	}

	return approvals, nil
}

func (p *Persistence) SaveSLA(_ context.Context, sla *models.WorkflowSLA) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *sla
	p.slas[sla.ID] = &clone

	return nil
}

func (p *Persistence) ActiveSLAsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowSLA, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	slas := make([]*models.WorkflowSLA, 0)

	for _, sla := range p.slas {
		if sla.WorkflowID == workflowID && sla.IsActive {
			clone := *sla
			slas = append(slas, &clone)
		}
	}

	sort.Slice(slas, func(i, j int) bool {
		return slas[i].ID < slas[j].ID
	})

	return slas, nil
}

// UpdateSLACounters persists the rolling counters and derived SLO. The write
// lock serializes concurrent completions against the same SLA row.
func (p *Persistence) UpdateSLACounters(_ context.Context, sla *models.WorkflowSLA) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.slas[sla.ID]
	if !ok {
		return persistence.ErrSLANotFound
	}

	existing.TotalExecutions = sla.TotalExecutions
	existing.BreachedExecutions = sla.BreachedExecutions
	existing.CurrentSLOPercentage = sla.CurrentSLOPercentage
	existing.UpdatedAt = time.Now().UTC()

	return nil
}

func (p *Persistence) CreateBreach(_ context.Context, breach *models.SLABreach) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *breach
	p.breaches[breach.ID] = &clone

	return nil
}

func (p *Persistence) MarkBreachAlertSent(_ context.Context, breachID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	breach, ok := p.breaches[breachID]
	if !ok {
		return persistence.ErrBreachNotFound
	}

	breach.AlertSent = true
	breach.AlertSentAt = &at

	return nil
}

func (p *Persistence) AcknowledgeBreach(_ context.Context, breachID, acknowledgedBy string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	breach, ok := p.breaches[breachID]
	if !ok {
		return persistence.ErrBreachNotFound
	}

	breach.Acknowledged = true
	breach.AcknowledgedBy = acknowledgedBy
	breach.AcknowledgedAt = &at

	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
