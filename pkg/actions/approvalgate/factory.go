package approvalgate

import (
	"context"

	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/protocol"
)

type Factory struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
}

func NewFactory(p persistence.Persistence, bus eventbus.EventPublisher) *Factory {
	return &Factory{persistence: p, bus: bus}
}

func (f *Factory) Create(_ context.Context, payload map[string]any) (protocol.Handler, error) {
	return NewAction(payload, f.persistence, f.bus)
}

func (f *Factory) ID() string {
	return string(ActionTypeRequestApproval)
}

func (f *Factory) Name() string {
	return "Request Approval"
}

func (f *Factory) Description() string {
	return "Records a pending approval gate resolved by a human through the API."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"approver_role": map[string]any{
				"type":        "string",
				"description": "Role whose members may approve or deny",
			},
			"escalate_role": map[string]any{
				"type":        "string",
				"description": "Role the approval escalates to after expiry",
			},
			"expires_in_hours": map[string]any{
				"type":        "number",
				"description": "Hours until the pending approval expires",
				"minimum":     1,
			},
		},
		"required": []string{"approver_role"},
	}
}
