package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
	"github.com/acme/campaign-dispatch/internal/service/concurrency"
	"github.com/acme/campaign-dispatch/internal/telephony"
	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

// SlotAllocator reports remaining call capacity for an organization.
type SlotAllocator interface {
	RemainingOrgSlots(ctx context.Context, orgID uuid.UUID) (int, error)
}

// LeadSelector picks callable leads for a campaign.
type LeadSelector interface {
	SelectEligibleLeads(ctx context.Context, campaign *domain.Campaign, limit int, now time.Time) ([]domain.LeadToCall, error)
}

// LeadSweeper retires exhausted leads of a campaign.
type LeadSweeper interface {
	SweepExhausted(ctx context.Context, campaign *domain.Campaign, now time.Time) (int, error)
}

// OrgLocker hands out advisory per-organization leases. Renew reports false
// once the lease has expired or been taken over.
type OrgLocker interface {
	Acquire(ctx context.Context, orgID uuid.UUID) (*concurrency.Lease, bool, error)
	Renew(ctx context.Context, lease *concurrency.Lease) (bool, error)
	Release(ctx context.Context, lease *concurrency.Lease) error
}

// Dependencies groups the collaborators of an Orchestrator. Voice and Leases are optional.
type Dependencies struct {
	Campaigns repository.CampaignRepository
	Agents    repository.AgentRepository
	Calls     repository.CallStore
	Allocator SlotAllocator
	Selector  LeadSelector
	Sweeper   LeadSweeper
	Voice     telephony.Provider
	Leases    OrgLocker
	Logger    *zap.Logger
}

// Options tunes a tick. CampaignPageSize bounds one ListActive call; every
// page is read. LeaseRenewInterval should stay well below the lease TTL.
type Options struct {
	DefaultTimezone    string
	CampaignPageSize   int
	LeaseRenewInterval time.Duration
}

// Orchestrator computes one dispatch tick: which leads of which campaigns
// should be called now, within per-organization and per-campaign limits.
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CampaignPageSize <= 0 {
		opts.CampaignPageSize = 500
	}
	if opts.LeaseRenewInterval <= 0 {
		opts.LeaseRenewInterval = time.Minute
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("dispatch.orchestrator"),
		now:    time.Now,
	}
}

// Tick runs one dispatch cycle and logs its summary. Only a failure to list
// active campaigns is returned as an error; everything else becomes a skip.
func (o *Orchestrator) Tick(ctx context.Context) (*domain.DispatchResult, error) {
	ctx, span := o.tracer.Start(ctx, "dispatch.tick")
	defer span.End()

	start := o.now()
	result, err := o.ComputeNextDispatchBatch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("dispatch: tick failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("tick.id", result.TickID.String()),
		attribute.Int("batches", len(result.Batches)),
		attribute.Int("leads.total", result.TotalLeads),
		attribute.Int("campaigns.skipped", len(result.Skipped)),
		attribute.Int("leads.swept", result.Swept),
	)
	o.logger.Info("dispatch: tick completed",
		zap.String("tick_id", result.TickID.String()),
		zap.Int("batches", len(result.Batches)),
		zap.Int("total_leads", result.TotalLeads),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("swept", result.Swept),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
	return result, nil
}

// ComputeNextDispatchBatch loads active campaigns, allocates capacity per
// organization greedily in listing order and sweeps exhausted leads of every
// active campaign.
func (o *Orchestrator) ComputeNextDispatchBatch(ctx context.Context) (*domain.DispatchResult, error) {
	now := o.now().UTC()
	result := &domain.DispatchResult{
		TickID:    uuid.New(),
		StartedAt: now,
		Batches:   []domain.DispatchBatch{},
		Skipped:   []domain.SkippedCampaign{},
	}

	campaigns, err := o.listActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return result, nil
	}

	held := &leaseSet{}
	if o.deps.Leases != nil {
		renewCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			o.keepLeases(renewCtx, held)
		}()
		defer func() {
			stop()
			<-done
			o.releaseLeases(ctx, held.snapshot())
		}()
	}

	for _, group := range groupByOrg(campaigns) {
		o.processOrg(ctx, group, now, result, held)
	}

	for _, c := range campaigns {
		n, err := o.deps.Sweeper.SweepExhausted(ctx, c, now)
		if err != nil {
			o.logger.Error("dispatch: sweep exhausted leads",
				zap.String("campaign_id", c.ID.String()), zap.Error(err))
			continue
		}
		if n > 0 {
			o.logger.Info("dispatch: retired exhausted leads",
				zap.String("campaign_id", c.ID.String()), zap.Int("count", n))
		}
		result.Swept += n
	}

	return result, nil
}

// listActive reads every active campaign, one keyset page at a time.
func (o *Orchestrator) listActive(ctx context.Context) ([]*domain.Campaign, error) {
	var (
		all   []*domain.Campaign
		after *repository.CampaignCursor
	)
	for {
		page, err := o.deps.Campaigns.ListActive(ctx, after, o.opts.CampaignPageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: dispatch: list active campaigns: %w", apperrors.ErrUnavailable, err)
		}
		all = append(all, page...)
		if len(page) < o.opts.CampaignPageSize {
			return all, nil
		}
		after = repository.CursorAt(page[len(page)-1])
	}
}

type orgGroup struct {
	orgID     uuid.UUID
	campaigns []*domain.Campaign
}

// groupByOrg keeps organizations in order of first appearance and campaigns in listing order.
func groupByOrg(campaigns []*domain.Campaign) []orgGroup {
	index := make(map[uuid.UUID]int)
	var groups []orgGroup
	for _, c := range campaigns {
		i, ok := index[c.OrgID]
		if !ok {
			i = len(groups)
			index[c.OrgID] = i
			groups = append(groups, orgGroup{orgID: c.OrgID})
		}
		groups[i].campaigns = append(groups[i].campaigns, c)
	}
	return groups
}

func (o *Orchestrator) processOrg(ctx context.Context, group orgGroup, now time.Time, result *domain.DispatchResult, held *leaseSet) {
	ctx, span := o.tracer.Start(ctx, "dispatch.organization", trace.WithAttributes(
		attribute.String("org.id", group.orgID.String()),
		attribute.Int("campaign.count", len(group.campaigns)),
	))
	defer span.End()

	logger := o.logger.With(zap.String("org_id", group.orgID.String()))

	if o.deps.Leases != nil {
		l, ok, err := o.deps.Leases.Acquire(ctx, group.orgID)
		switch {
		case err != nil:
			span.RecordError(err)
			logger.Error("dispatch: acquire organization lease", zap.Error(err))
			skipAll(result, group, domain.SkipOrgLeaseFailed)
			return
		case !ok:
			logger.Info("dispatch: organization tick already in progress")
			skipAll(result, group, domain.SkipOrgTickInProgress)
			return
		}
		held.add(l)
	}

	remaining, err := o.deps.Allocator.RemainingOrgSlots(ctx, group.orgID)
	if err != nil {
		span.RecordError(err)
		logger.Error("dispatch: estimate active calls", zap.Error(err))
		skipAll(result, group, domain.SkipOrgConcurrencyFailed)
		return
	}
	span.SetAttributes(attribute.Int("org.slots_remaining", remaining))

	if remaining <= 0 {
		logger.Info("dispatch: organization at max concurrency")
		skipAll(result, group, domain.SkipOrgAtMaxConcurrency)
		return
	}

	for _, c := range group.campaigns {
		if remaining <= 0 {
			skip(result, c, domain.SkipOrgAtMaxConcurrency)
			continue
		}
		batch, reason := o.processCampaign(ctx, c, remaining, now)
		if reason != "" {
			logger.Debug("dispatch: campaign skipped",
				zap.String("campaign_id", c.ID.String()), zap.String("reason", string(reason)))
			skip(result, c, reason)
			continue
		}
		result.Batches = append(result.Batches, *batch)
		result.TotalLeads += len(batch.Leads)
		remaining -= len(batch.Leads)
	}

}

func (o *Orchestrator) processCampaign(ctx context.Context, c *domain.Campaign, orgRemaining int, now time.Time) (*domain.DispatchBatch, domain.SkipReason) {
	ctx, span := o.tracer.Start(ctx, "dispatch.campaign", trace.WithAttributes(
		attribute.String("campaign.id", c.ID.String()),
		attribute.Int("org.slots_remaining", orgRemaining),
	))
	defer span.End()

	logger := o.logger.With(zap.String("campaign_id", c.ID.String()), zap.String("org_id", c.OrgID.String()))

	loc := ResolveLocation(c.TimeZone, o.opts.DefaultTimezone)
	nowLocal := now.In(loc)

	schedule := c.Schedule
	if schedule == nil {
		windows, err := o.deps.Campaigns.ListSchedule(ctx, c.ID)
		if err != nil {
			span.RecordError(err)
			logger.Error("dispatch: load schedule", zap.Error(err))
			return nil, domain.SkipScheduleUnavailable
		}
		schedule = windows
	}
	if !IsWithinWindow(schedule, nowLocal) {
		return nil, domain.SkipOutsideWindow
	}

	midnight := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
	callsToday, err := o.deps.Calls.CountStartedSince(ctx, c.ID, midnight)
	if err != nil {
		span.RecordError(err)
		logger.Error("dispatch: count calls today", zap.Error(err))
		return nil, domain.SkipDailyCountFailed
	}
	dailyRemaining := c.DailyCallLimit - callsToday
	if dailyRemaining <= 0 {
		return nil, domain.SkipDailyLimitReached
	}

	agent, reason := o.checkAgent(ctx, c, logger)
	if reason != "" {
		return nil, reason
	}

	batchSize := min(orgRemaining, dailyRemaining)
	span.SetAttributes(attribute.Int("batch.size", batchSize))

	leads, err := o.deps.Selector.SelectEligibleLeads(ctx, c, batchSize, now)
	if err != nil {
		span.RecordError(err)
		logger.Error("dispatch: select leads", zap.Error(err))
		return nil, domain.SkipLeadQueryFailed
	}
	if len(leads) == 0 {
		return nil, domain.SkipNoEligibleLeads
	}
	if len(leads) > batchSize {
		leads = leads[:batchSize]
	}

	span.SetAttributes(attribute.Int("leads.selected", len(leads)))
	logger.Debug("dispatch: batch selected", zap.Int("leads", len(leads)), zap.Int("batch_size", batchSize))

	return &domain.DispatchBatch{
		CampaignID:      c.ID,
		CampaignName:    c.Name,
		OrgID:           c.OrgID,
		AgentID:         agent.ID,
		ProviderAgentID: agent.ProviderAgentID,
		Leads:           leads,
	}, ""
}

func (o *Orchestrator) checkAgent(ctx context.Context, c *domain.Campaign, logger *zap.Logger) (*domain.VoiceAgent, domain.SkipReason) {
	if c.AgentID == nil || *c.AgentID == uuid.Nil {
		return nil, domain.SkipNoAgent
	}

	agent, err := o.deps.Agents.Get(ctx, *c.AgentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.SkipAgentNotFound
		}
		logger.Error("dispatch: load voice agent", zap.String("agent_id", c.AgentID.String()), zap.Error(err))
		return nil, domain.SkipAgentLookupFailed
	}
	if agent.OrgID != c.OrgID {
		logger.Warn("dispatch: voice agent belongs to another organization", zap.String("agent_id", agent.ID.String()))
		return nil, domain.SkipAgentNotFound
	}
	if !agent.Active() {
		return nil, domain.SkipAgentInactive
	}
	if !agent.Provisioned() {
		return nil, domain.SkipAgentNotProvisioned
	}

	if o.deps.Voice != nil {
		state, err := o.deps.Voice.AgentStatus(ctx, agent.ProviderAgentID)
		if err != nil {
			logger.Warn("dispatch: voice provider agent status", zap.String("agent_id", agent.ID.String()), zap.Error(err))
			return nil, domain.SkipVoiceProviderDegraded
		}
		if state != telephony.AgentStateActive {
			return nil, domain.SkipAgentInactive
		}
	}

	return agent, ""
}

// leaseSet holds the leases taken during one tick.
type leaseSet struct {
	mu     sync.Mutex
	leases []*concurrency.Lease
}

func (s *leaseSet) add(l *concurrency.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases = append(s.leases, l)
}

func (s *leaseSet) drop(l *concurrency.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, held := range s.leases {
		if held == l {
			s.leases = append(s.leases[:i], s.leases[i+1:]...)
			return
		}
	}
}

func (s *leaseSet) snapshot() []*concurrency.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*concurrency.Lease(nil), s.leases...)
}

// keepLeases renews held leases every LeaseRenewInterval until ctx ends.
func (o *Orchestrator) keepLeases(ctx context.Context, held *leaseSet) {
	ticker := time.NewTicker(o.opts.LeaseRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.renewLeases(ctx, held)
		}
	}
}

// renewLeases extends every held lease. A lost lease is dropped so it is
// never released on behalf of its new owner.
func (o *Orchestrator) renewLeases(ctx context.Context, held *leaseSet) {
	for _, l := range held.snapshot() {
		ok, err := o.deps.Leases.Renew(ctx, l)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				o.logger.Warn("dispatch: renew organization lease", zap.String("org_id", l.OrgID.String()), zap.Error(err))
			}
		case !ok:
			o.logger.Warn("dispatch: organization lease lost during tick", zap.String("org_id", l.OrgID.String()))
			held.drop(l)
		}
	}
}

func (o *Orchestrator) releaseLeases(ctx context.Context, leases []*concurrency.Lease) {
	if o.deps.Leases == nil || len(leases) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, l := range leases {
		if err := o.deps.Leases.Release(ctx, l); err != nil {
			o.logger.Warn("dispatch: release organization lease", zap.String("org_id", l.OrgID.String()), zap.Error(err))
		}
	}
}

func skipAll(result *domain.DispatchResult, group orgGroup, reason domain.SkipReason) {
	for _, c := range group.campaigns {
		skip(result, c, reason)
	}
}

func skip(result *domain.DispatchResult, c *domain.Campaign, reason domain.SkipReason) {
	result.Skipped = append(result.Skipped, domain.SkippedCampaign{CampaignID: c.ID, Reason: reason})
}
