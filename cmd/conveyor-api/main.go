package main

import (
	"context"
	"fmt"
	"os"

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

const defaultPort = 9091

func main() {
	logger := log.WithModule("conveyor-api")

	cmdApp := &cli.Command{
		Name:                  "conveyor-api",
		Usage:                 "Serve the workflow engine HTTP API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory:// or postgres://)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Task queue URL shared with the worker fleet (memory:// or redis://)",
				Value:   "memory://",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Usage:    "Base URL of the CRM core internal API",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
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

			logger.InfoContext(ctx, "Initializing Conveyor API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to create persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "conveyor-api", logger)
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

			defer func() {
				if err := taskQueue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close task queue", "error", err)
				}
			}()

			crm := gateway.NewClient(command.String("gateway-url"), logger)
			registry := cmd.NewRegistry(logger, crm, persistence, eventBus)

			var tracer trace.Tracer

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "conveyor-api")
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
				"conveyor-api",
			)

			api := NewAPI(logger, persistence, service, taskQueue)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmdApp.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
