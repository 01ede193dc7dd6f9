package createtask

import (
	"context"

	"github.com/tidewater/conveyor/pkg/models"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	tasks TaskCreator
}

func NewFactory(tasks TaskCreator) *Factory {
	return &Factory{tasks: tasks}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.tasks)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeCreateTask)
}

func (f *Factory) Name() string {
	return "Create Task"
}

func (f *Factory) Description() string {
	return "Creates a follow-up task linked to the triggering record."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Task title",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Task body",
			},
			"assignee_role": map[string]any{
				"type":        "string",
				"description": "Role the task is assigned to",
			},
			"due_in_hours": map[string]any{
				"type":        "integer",
				"description": "Due date offset from task creation",
				"minimum":     1,
			},
		},
		"required": []string{"title"},
	}
}
