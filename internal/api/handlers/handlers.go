package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/campaign-dispatch/internal/auth"
	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/telemetry"
)

// TickRunner runs one dispatch tick on demand.
type TickRunner interface {
	RunOnce(ctx context.Context) (*domain.DispatchResult, error)
}

// SummaryReader returns the digest of the most recent tick.
type SummaryReader interface {
	Last(ctx context.Context) (*domain.TickSummary, error)
}

// AvailabilityCalculator answers availability queries.
type AvailabilityCalculator interface {
	ComputeAvailableSlots(ctx context.Context, date string, durationMinutes int, orgID uuid.UUID) (*domain.Availability, error)
}

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// HealthCheck pings one backing store.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps groups what the HTTP layer talks to.
type Deps struct {
	Ticks           TickRunner
	Summaries       SummaryReader
	Availability    AvailabilityCalculator
	Tokens          TokenParser
	Health          []HealthCheck
	Metrics         *telemetry.Metrics
	Logger          *zap.Logger
	DefaultDuration int
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Deps) *HandlerSet {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.DefaultDuration <= 0 {
		deps.DefaultDuration = 30
	}
	return &HandlerSet{deps: deps, logger: logger}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	v1 := app.Group("/api/v1", h.authenticate)

	dispatch := v1.Group("/dispatch", h.requireService)
	dispatch.Post("/tick", h.triggerTick)
	dispatch.Get("/last", h.lastTick)

	v1.Get("/availability", h.availability)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
		message = "internal error"
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for _, check := range h.deps.Health {
		if err := check.Check(healthCtx); err != nil {
			errs[check.Name] = err.Error()
		}
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
