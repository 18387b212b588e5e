package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/domain"
)

type tickResponse struct {
	TickID     uuid.UUID                `json:"tick_id"`
	Batches    []domain.DispatchBatch   `json:"batches"`
	TotalLeads int                      `json:"total_leads"`
	Skipped    []domain.SkippedCampaign `json:"skipped"`
	Swept      int                      `json:"swept"`
}

func (h *HandlerSet) triggerTick(ctx *fiber.Ctx) error {
	result, err := h.deps.Ticks.RunOnce(ctx.UserContext())
	if err != nil {
		return translateError(err)
	}

	resp := tickResponse{
		TickID:     result.TickID,
		Batches:    result.Batches,
		TotalLeads: result.TotalLeads,
		Skipped:    result.Skipped,
		Swept:      result.Swept,
	}
	if resp.Batches == nil {
		resp.Batches = []domain.DispatchBatch{}
	}
	if resp.Skipped == nil {
		resp.Skipped = []domain.SkippedCampaign{}
	}
	return ctx.JSON(resp)
}

func (h *HandlerSet) lastTick(ctx *fiber.Ctx) error {
	summary, err := h.deps.Summaries.Last(ctx.UserContext())
	if err != nil {
		return translateError(err)
	}
	return ctx.JSON(summary)
}
