package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/acme/campaign-dispatch/internal/auth"
	"github.com/acme/campaign-dispatch/internal/calendar"
	calendarMock "github.com/acme/campaign-dispatch/internal/calendar/mock"
	"github.com/acme/campaign-dispatch/internal/config"
	"github.com/acme/campaign-dispatch/internal/dispatch"
	"github.com/acme/campaign-dispatch/internal/infra/db"
	"github.com/acme/campaign-dispatch/internal/infra/redis"
	"github.com/acme/campaign-dispatch/internal/queue"
	"github.com/acme/campaign-dispatch/internal/repository"
	pgrepo "github.com/acme/campaign-dispatch/internal/repository/postgres"
	redisrepo "github.com/acme/campaign-dispatch/internal/repository/redis"
	scyllarepo "github.com/acme/campaign-dispatch/internal/repository/scylla"
	"github.com/acme/campaign-dispatch/internal/service/availability"
	"github.com/acme/campaign-dispatch/internal/service/concurrency"
	"github.com/acme/campaign-dispatch/internal/service/lead"
	"github.com/acme/campaign-dispatch/internal/telemetry"
	"github.com/acme/campaign-dispatch/internal/telephony"
	telephonyMock "github.com/acme/campaign-dispatch/internal/telephony/mock"
	"github.com/acme/campaign-dispatch/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *telemetry.Metrics

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		publishers   *publishers
		providers    *providers
	}
}

type repositories struct {
	Campaigns     repository.CampaignRepository
	Leads         repository.LeadRepository
	Agents        repository.AgentRepository
	Organizations repository.OrganizationRepository
	Appointments  repository.AppointmentRepository
	Calls         *scyllarepo.CallStore
	Summaries     *redisrepo.SummaryStore
}

type services struct {
	Orchestrator *dispatch.Orchestrator
	Allocator    *concurrency.Allocator
	Selector     *lead.Selector
	Sweeper      *lead.Sweeper
	Leases       *concurrency.LeaseManager
	Counter      *concurrency.CounterEstimator
	Availability *availability.Calculator
	Verifier     *auth.Verifier
}

type publishers struct {
	Batches *queue.BatchPublisher
}

type providers struct {
	Voice    telephony.Provider
	Calendar calendar.Provider
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Metrics:  telemetry.NewMetrics(),
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		prefix := c.Config.Redis.KeyPrefix

		repos := &repositories{
			Campaigns:     pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Leads:         pgrepo.NewLeadRepository(c.Postgres.DB()),
			Agents:        pgrepo.NewAgentRepository(c.Postgres.DB()),
			Organizations: pgrepo.NewOrganizationRepository(c.Postgres.DB()),
			Appointments:  pgrepo.NewAppointmentRepository(c.Postgres.DB()),
			Calls:         scyllarepo.NewCallStore(c.Scylla.Session()),
			Summaries:     redisrepo.NewSummaryStore(c.Redis.Inner(), prefix),
		}

		providers := &providers{
			Voice:    telephonyMock.NewProvider(c.Config.Voice),
			Calendar: calendarMock.NewProvider(c.Config.Calendar),
		}

		svc := &services{
			Selector: lead.NewSelector(repos.Leads),
			Sweeper:  lead.NewSweeper(repos.Leads),
			Counter:  concurrency.NewCounterEstimator(c.Redis.Inner(), prefix, c.Config.Concurrency.CounterTTL),
			Verifier: auth.NewVerifier(c.Config.Auth.JWTSecret, c.Config.Auth.Issuer),
		}

		var estimator concurrency.ActiveCallEstimator = concurrency.NewHeuristicEstimator(repos.Calls, c.Config.Concurrency.ActiveWindow)
		if strings.EqualFold(c.Config.Concurrency.Estimator, "counter") {
			estimator = svc.Counter
		}
		svc.Allocator = concurrency.NewAllocator(estimator, c.Config.Concurrency.MaxPerOrg)

		deps := dispatch.Dependencies{
			Campaigns: repos.Campaigns,
			Agents:    repos.Agents,
			Calls:     repos.Calls,
			Allocator: svc.Allocator,
			Selector:  svc.Selector,
			Sweeper:   svc.Sweeper,
			Voice:     providers.Voice,
			Logger:    c.Logger.Named("dispatch").Logger,
		}
		opts := dispatch.Options{
			DefaultTimezone:  c.Config.Scheduler.DefaultTimezone,
			CampaignPageSize: c.Config.Scheduler.CampaignPageSize,
		}
		if c.Config.Scheduler.LeaseEnabled {
			svc.Leases = concurrency.NewLeaseManager(c.Redis.Inner(), prefix, c.Config.Scheduler.LeaseTTL)
			deps.Leases = svc.Leases
			opts.LeaseRenewInterval = svc.Leases.TTL() / 3
		}
		svc.Orchestrator = dispatch.NewOrchestrator(deps, opts)

		svc.Availability = availability.NewCalculator(
			repos.Organizations,
			repos.Appointments,
			providers.Calendar,
			availability.Options{
				BusinessStartHour: c.Config.Availability.BusinessStartHour,
				BusinessEndHour:   c.Config.Availability.BusinessEndHour,
				MinDuration:       c.Config.Availability.MinDuration,
				MaxDuration:       c.Config.Availability.MaxDuration,
				DefaultTimezone:   c.Config.Scheduler.DefaultTimezone,
			},
			c.Logger.Named("availability").Logger,
		)

		c.components.repositories = repos
		c.components.providers = providers
		c.components.services = svc
		c.components.publishers = &publishers{
			Batches: queue.NewBatchPublisher(c.Kafka, c.Config.Kafka.BatchTopic),
		}
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publishers; p != nil && p.Batches != nil {
		if err := p.Batches.Close(); err != nil {
			errs = append(errs, fmt.Errorf("batch publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return errors.Join(errs...)
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.BatchTopic, c.Config.Kafka.CallEventTopic}
	return c.Kafka.EnsureTopics(ctx, topics, c.Config.Kafka.Partitions, 1)
}
