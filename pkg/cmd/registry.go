// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/tidewater/conveyor/pkg/actions/addnote"
	"github.com/tidewater/conveyor/pkg/actions/approvalgate"
	"github.com/tidewater/conveyor/pkg/actions/callwebhook"
	"github.com/tidewater/conveyor/pkg/actions/createtask"
	"github.com/tidewater/conveyor/pkg/actions/enqueueexport"
	"github.com/tidewater/conveyor/pkg/actions/sendemail"
	"github.com/tidewater/conveyor/pkg/actions/sendnotification"
	"github.com/tidewater/conveyor/pkg/actions/updatefield"
	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/registry"
)

// NewRegistry builds the action handler registry with every native action
// wired to the CRM gateway. The approval gate additionally needs persistence
// and the event bus to record and announce pending approvals.
func NewRegistry(logger *slog.Logger, crm *gateway.Client, p persistence.Persistence, bus eventbus.EventPublisher) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterHandler(sendemail.NewFactory(crm))
	reg.RegisterHandler(addnote.NewFactory(crm))
	reg.RegisterHandler(updatefield.NewFactory(crm))
	reg.RegisterHandler(createtask.NewFactory(crm))
	reg.RegisterHandler(enqueueexport.NewFactory(crm))
	reg.RegisterHandler(sendnotification.NewFactory(crm))
	reg.RegisterHandler(callwebhook.NewFactory())
	reg.RegisterHandler(approvalgate.NewFactory(p, bus))

	return reg
}
