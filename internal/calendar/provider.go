package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/domain"
)

// ErrNotConnected is returned when the organization has no calendar integration.
var ErrNotConnected = errors.New("calendar not connected")

// Provider looks up busy intervals on an organization's external calendar.
type Provider interface {
	FreeBusy(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]domain.BusyPeriod, error)
}
