package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/tidewater/conveyor/pkg/cmd"
	"github.com/tidewater/conveyor/pkg/escalation"
	"github.com/tidewater/conveyor/pkg/log"
)

func main() {
	cmdApp := &cli.Command{
		Name:                  "conveyor-escalator",
		EnableShellCompletion: true,
		Usage:                 "Periodically escalate expired pending approvals",
		Flags: []cli.Flag{
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
				Name:    "cron",
				Usage:   "Sweep schedule, standard five-field cron syntax",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("ESCALATION_CRON"),
			},
			&cli.BoolFlag{
				Name:    "once",
				Usage:   "Run a single sweep and exit instead of scheduling",
				Sources: cli.EnvVars("ESCALATION_ONCE"),
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

			logger := log.WithModule("conveyor-escalator")

			logger.InfoContext(ctx, "Initializing Conveyor Escalator")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to create persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "conveyor-escalator", logger)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			scheduler, err := escalation.NewScheduler(logger, persistence, eventBus, command.String("cron"))
			if err != nil {
				return err
			}

			if command.Bool("once") {
				result, err := scheduler.Sweep(ctx, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("escalation sweep failed: %w", err)
				}

				logger.InfoContext(ctx, "Escalation sweep finished",
					"escalated", result.EscalatedCount,
					"failed", result.FailedCount,
				)

				return nil
			}

			err = scheduler.Start(ctx)
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down escalator...")

			scheduler.Stop(ctx)

			return nil
		},
	}

	err := cmdApp.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
