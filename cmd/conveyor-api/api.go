// Package main provides the Conveyor API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/persistence"
	"github.com/tidewater/conveyor/pkg/queue"
	"github.com/tidewater/conveyor/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	service     *engine.ExecutionService
	taskQueue   queue.TaskQueue
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	service *engine.ExecutionService,
	taskQueue queue.TaskQueue,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		service:     service,
		taskQueue:   taskQueue,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.service, a.taskQueue, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conveyor API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
