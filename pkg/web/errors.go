package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/tidewater/conveyor/pkg/engine"
	"github.com/tidewater/conveyor/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func serviceUnavailable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(503).
		WithInstance(c.Path()).
		WithType("service_unavailable").
		WithDetail(detail)

	return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine and persistence errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case engine.IsWorkflowNotExecutable(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("workflow_not_executable").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsRunNotFound(err):
		return notFound(c, "run not found")

	case persistence.IsApprovalNotFound(err):
		return notFound(c, "approval not found")

	case persistence.IsApprovalResolved(err):
		return conflict(c, "approval already resolved")

	default:
		return internalError(c, err)
	}
}
