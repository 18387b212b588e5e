package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/acme/campaign-dispatch/internal/auth"
	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

var validate = validator.New()

type availabilityQuery struct {
	Date     string `query:"date" validate:"required,datetime=2006-01-02"`
	Duration int    `query:"duration" validate:"gt=0"`
	OrgID    string `query:"org_id"`
}

func (h *HandlerSet) availability(ctx *fiber.Ctx) error {
	q := availabilityQuery{Duration: h.deps.DefaultDuration}
	if err := ctx.QueryParser(&q); err != nil {
		h.deps.Metrics.AvailabilityRequest("invalid")
		return translateError(fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
	}
	if err := validateStruct(q); err != nil {
		h.deps.Metrics.AvailabilityRequest("invalid")
		return translateError(err)
	}

	orgID, err := auth.ResolveOrg(claimsFrom(ctx), q.OrgID)
	if err != nil {
		h.deps.Metrics.AvailabilityRequest(outcomeFor(err))
		return translateError(err)
	}

	result, err := h.deps.Availability.ComputeAvailableSlots(ctx.UserContext(), q.Date, q.Duration, orgID)
	if err != nil {
		h.deps.Metrics.AvailabilityRequest(outcomeFor(err))
		return translateError(err)
	}

	h.deps.Metrics.AvailabilityRequest("ok")
	return ctx.JSON(result)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// validateStruct flattens validator errors into one validation error.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "datetime":
			msgs = append(msgs, field+" must be formatted as "+fe.Param())
		case "gt":
			msgs = append(msgs, field+" must be greater than "+fe.Param())
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(msgs, ", "))
}
