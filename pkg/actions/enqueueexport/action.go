// Package enqueueexport provides the enqueue_export action handler.
package enqueueexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

var ErrExportTypeRequired = errors.New("enqueue_export requires an export_type")

// Exporter queues export jobs in the CRM core. Satisfied by gateway.Client.
type Exporter interface {
	EnqueueExport(ctx context.Context, request gateway.ExportRequest) (string, error)
}

type Action struct {
	ExportType string
	Format     string
	Filters    map[string]any

	exporter Exporter
}

func NewAction(payload map[string]any, exporter Exporter) (*Action, error) {
	exportType, _ := payload["export_type"].(string)
	if exportType == "" {
		return nil, ErrExportTypeRequired
	}

	format, _ := payload["format"].(string)
	if format == "" {
		format = "csv"
	}

	filters, _ := payload["filters"].(map[string]any)

	return &Action{
		ExportType: exportType,
		Format:     format,
		Filters:    filters,
		exporter:   exporter,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger.InfoContext(ctx, "Enqueueing export job",
		"module", "enqueue_export_action",
		"export_type", a.ExportType,
		"format", a.Format)

	jobID, err := a.exporter.EnqueueExport(ctx, gateway.ExportRequest{
		ExportType: a.ExportType,
		Format:     a.Format,
		Filters:    a.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue export: %w", err)
	}

	return map[string]any{
		"job_id":      jobID,
		"export_type": a.ExportType,
		"format":      a.Format,
	}, nil
}
