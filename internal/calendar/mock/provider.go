package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/calendar"
	"github.com/acme/campaign-dispatch/internal/config"
	"github.com/acme/campaign-dispatch/internal/domain"
)

// Provider serves busy periods from memory. Only organizations listed as
// connected have a calendar.
type Provider struct {
	timeout time.Duration

	mu        sync.RWMutex
	connected map[uuid.UUID]bool
	busy      map[uuid.UUID][]domain.BusyPeriod
}

// NewProvider constructs the mock from config. Unparseable org ids are ignored.
func NewProvider(cfg config.CalendarConfig) *Provider {
	p := &Provider{
		timeout:   cfg.RequestTimeout,
		connected: make(map[uuid.UUID]bool),
		busy:      make(map[uuid.UUID][]domain.BusyPeriod),
	}
	for _, raw := range cfg.ConnectedOrgs {
		if id, err := uuid.Parse(raw); err == nil {
			p.connected[id] = true
		}
	}
	return p
}

// AddBusy connects the organization and records a busy interval.
func (p *Provider) AddBusy(orgID uuid.UUID, start, end time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected[orgID] = true
	p.busy[orgID] = append(p.busy[orgID], domain.BusyPeriod{Start: start, End: end, Source: domain.BusySourceCalendar})
}

// FreeBusy implements calendar.Provider.
func (p *Provider) FreeBusy(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]domain.BusyPeriod, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mock calendar: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected[orgID] {
		return nil, calendar.ErrNotConnected
	}

	var out []domain.BusyPeriod
	for _, b := range p.busy[orgID] {
		if b.End.After(from) && b.Start.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}
