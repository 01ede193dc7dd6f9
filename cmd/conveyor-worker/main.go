package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidewater/conveyor/pkg/cmd"
	"github.com/tidewater/conveyor/pkg/conditions"
	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/log"
	"github.com/tidewater/conveyor/pkg/otelhelper"
	"github.com/tidewater/conveyor/pkg/sla"
)

const defaultWorkersPerQueue = 2

func main() {
	cmdApp := &cli.Command{
		Name:                  "conveyor-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute queued workflow tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory:// or postgres://)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Task queue URL (memory:// or redis://)",
				Value:   "memory://",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Usage:    "Base URL of the CRM core internal API",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
			},
			&cli.IntFlag{
				Name:    "workers-per-queue",
				Usage:   "Concurrent tasks per execution queue",
				Value:   defaultWorkersPerQueue,
				Sources: cli.EnvVars("WORKERS_PER_QUEUE"),
			},
			&cli.StringSliceFlag{
				Name:    "sla-recipients",
				Usage:   "Static recipient list appended to every SLA breach alert",
				Sources: cli.EnvVars("SLA_RECIPIENTS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing (OTLP HTTP exporter)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("conveyor-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Conveyor Worker")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to create persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "conveyor-worker", logger)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			taskQueue, err := cmd.NewTaskQueue(ctx, logger, command.String("queue-url"))
			if err != nil {
				return fmt.Errorf("failed to create task queue: %w", err)
			}

			crm := gateway.NewClient(command.String("gateway-url"), logger)
			registry := cmd.NewRegistry(logger, crm, persistence, eventBus)

			var tracer trace.Tracer

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "conveyor-worker")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			alerter := sla.NewNotificationAlerter(logger, crm, eventBus)
			monitor := sla.NewMonitor(logger, persistence, alerter, crm, command.StringSlice("sla-recipients"))

			service := engine.NewExecutionService(
				logger,
				persistence,
				engine.NewActionExecutor(logger, registry),
				engine.NewTriggerMatcher(logger, persistence, conditions.NewEvaluator(logger)),
				eventBus,
				monitor,
				tracer,
				workerID,
			)

			worker := NewWorkerManager(
				workerID,
				logger,
				taskQueue,
				service,
				command.Int("workers-per-queue"),
			)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := cmdApp.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
