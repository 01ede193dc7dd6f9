// Package createtask provides the create_task action handler.
package createtask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

var ErrTitleRequired = errors.New("create_task requires a title")

// TaskCreator creates follow-up tasks. Satisfied by gateway.Client.
type TaskCreator interface {
	CreateTask(ctx context.Context, task gateway.Task) error
}

type Action struct {
	Title        string
	Description  string
	AssigneeRole string
	DueInHours   int

	tasks TaskCreator
}

func NewAction(payload map[string]any, tasks TaskCreator) (*Action, error) {
	title, _ := payload["title"].(string)
	if title == "" {
		return nil, ErrTitleRequired
	}

	description, _ := payload["description"].(string)
	assigneeRole, _ := payload["assignee_role"].(string)

	dueInHours := 0
	if hours, ok := payload["due_in_hours"].(float64); ok {
		dueInHours = int(hours)
	}

	return &Action{
		Title:        title,
		Description:  description,
		AssigneeRole: assigneeRole,
		DueInHours:   dueInHours,
		tasks:        tasks,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger.InfoContext(ctx, "Creating task",
		"module", "create_task_action",
		"title", a.Title,
		"assignee_role", a.AssigneeRole)

	task := gateway.Task{
		Title:        a.Title,
		Description:  a.Description,
		AssigneeRole: a.AssigneeRole,
	}

	if relatedID, ok := executionCtx.TriggerData["id"].(string); ok {
		task.RelatedID = relatedID
	}

	if a.DueInHours > 0 {
		due := time.Now().UTC().Add(time.Duration(a.DueInHours) * time.Hour)
		task.DueAt = &due
	}

	err := a.tasks.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return map[string]any{
		"title":         a.Title,
		"assignee_role": a.AssigneeRole,
	}, nil
}
