package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/acme/campaign-dispatch/internal/calendar"
	"github.com/acme/campaign-dispatch/internal/dispatch"
	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

const dateLayout = "2006-01-02"

// Options bounds the business day and the accepted durations.
type Options struct {
	BusinessStartHour int
	BusinessEndHour   int
	MinDuration       int
	MaxDuration       int
	DefaultTimezone   string
}

// DefaultOptions are the 09:00-17:00 day with 15-240 minute slots.
func DefaultOptions() Options {
	return Options{
		BusinessStartHour: 9,
		BusinessEndHour:   17,
		MinDuration:       15,
		MaxDuration:       240,
		DefaultTimezone:   "America/New_York",
	}
}

// Calculator finds free appointment slots for an organization.
type Calculator struct {
	orgs         repository.OrganizationRepository
	appointments repository.AppointmentRepository
	calendar     calendar.Provider
	opts         Options
	logger       *zap.Logger
}

// NewCalculator constructs a calculator. cal may be nil when no calendar integration exists.
func NewCalculator(orgs repository.OrganizationRepository, appointments repository.AppointmentRepository, cal calendar.Provider, opts Options, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{orgs: orgs, appointments: appointments, calendar: cal, opts: opts, logger: logger}
}

// ComputeAvailableSlots returns the duration-aligned windows of the business
// day on date that overlap no calendar event and no live appointment. The
// grid starts at the opening hour, so a slot never starts mid-step.
func (c *Calculator) ComputeAvailableSlots(ctx context.Context, date string, durationMinutes int, orgID uuid.UUID) (*domain.Availability, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.compute")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID.String()), attribute.Int("duration", durationMinutes))

	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", apperrors.ErrValidation)
	}
	if durationMinutes < c.opts.MinDuration || durationMinutes > c.opts.MaxDuration {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes",
			apperrors.ErrValidation, c.opts.MinDuration, c.opts.MaxDuration)
	}

	org, err := c.orgs.Get(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: organization %s: %w", orgID, err)
	}

	loc := dispatch.ResolveLocation(org.TimeZone, c.opts.DefaultTimezone)
	open := time.Date(day.Year(), day.Month(), day.Day(), c.opts.BusinessStartHour, 0, 0, 0, loc)
	closing := time.Date(day.Year(), day.Month(), day.Day(), c.opts.BusinessEndHour, 0, 0, 0, loc)

	busy := c.calendarBusy(ctx, orgID, open, closing)

	appointments, err := c.appointments.ListOccupying(ctx, orgID, open.Add(-24*time.Hour), closing)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: availability: appointments: %w", apperrors.ErrUnavailable, err)
	}
	for i := range appointments {
		if appointments[i].OccupiesTime() {
			busy = append(busy, appointments[i].BusyPeriod())
		}
	}

	slots := freeSlots(open, closing, durationMinutes, busy)
	span.SetAttributes(attribute.Int("busy.count", len(busy)), attribute.Int("slots.count", len(slots)))

	return &domain.Availability{
		Date:     day.Format(dateLayout),
		Slots:    slots,
		TimeZone: loc.String(),
	}, nil
}

func (c *Calculator) calendarBusy(ctx context.Context, orgID uuid.UUID, from, to time.Time) []domain.BusyPeriod {
	if c.calendar == nil {
		return nil
	}
	periods, err := c.calendar.FreeBusy(ctx, orgID, from, to)
	switch {
	case errors.Is(err, calendar.ErrNotConnected):
		return nil
	case err != nil:
		c.logger.Warn("availability: calendar lookup failed, ignoring calendar",
			zap.String("org_id", orgID.String()), zap.Error(err))
		return nil
	}
	return periods
}

// freeSlots marks busy minutes of [open, closing) and walks the day in
// duration steps, keeping windows with no busy minute.
func freeSlots(open, closing time.Time, duration int, busy []domain.BusyPeriod) []domain.Slot {
	total := int(closing.Sub(open) / time.Minute)
	slots := []domain.Slot{}
	if total <= 0 || duration <= 0 {
		return slots
	}

	occupied := make([]bool, total)
	for _, b := range busy {
		start := int(b.Start.Sub(open) / time.Minute)
		end := int((b.End.Sub(open) + time.Minute - 1) / time.Minute)
		start = max(start, 0)
		end = min(end, total)
		for m := start; m < end; m++ {
			occupied[m] = true
		}
	}

	for s := 0; s+duration <= total; s += duration {
		free := true
		for m := s; m < s+duration; m++ {
			if occupied[m] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		slots = append(slots, domain.Slot{
			Start: open.Add(time.Duration(s) * time.Minute).Format("15:04"),
			End:   open.Add(time.Duration(s+duration) * time.Minute).Format("15:04"),
		})
	}
	return slots
}
