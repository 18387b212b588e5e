package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Scylla       ScyllaConfig       `mapstructure:"scylla"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Concurrency  ConcurrencyConfig  `mapstructure:"concurrency"`
	Availability AvailabilityConfig `mapstructure:"availability"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Voice        VoiceConfig        `mapstructure:"voice"`
	Calendar     CalendarConfig     `mapstructure:"calendar"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	BatchTopic      string        `mapstructure:"batch_topic"`
	CallEventTopic  string        `mapstructure:"call_event_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	Partitions      int           `mapstructure:"partitions"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
}

type SchedulerConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	Cron             string        `mapstructure:"cron"`
	DefaultTimezone  string        `mapstructure:"default_timezone"`
	CampaignPageSize int           `mapstructure:"campaign_page_size"`
	LeaseEnabled     bool          `mapstructure:"lease_enabled"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl"`
}

type ConcurrencyConfig struct {
	MaxPerOrg    int           `mapstructure:"max_per_org"`
	ActiveWindow time.Duration `mapstructure:"active_window"`
	Estimator    string        `mapstructure:"estimator"`
	CounterTTL   time.Duration `mapstructure:"counter_ttl"`
}

type AvailabilityConfig struct {
	BusinessStartHour int `mapstructure:"business_start_hour"`
	BusinessEndHour   int `mapstructure:"business_end_hour"`
	DefaultDuration   int `mapstructure:"default_duration"`
	MinDuration       int `mapstructure:"min_duration"`
	MaxDuration       int `mapstructure:"max_duration"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type VoiceConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type CalendarConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// ConnectedOrgs lists organizations the mock provider treats as connected.
	ConnectedOrgs []string `mapstructure:"connected_orgs"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if cfg.Availability.BusinessEndHour <= cfg.Availability.BusinessStartHour {
		return nil, fmt.Errorf("config: availability business hours must be increasing (%d-%d)",
			cfg.Availability.BusinessStartHour, cfg.Availability.BusinessEndHour)
	}

	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "campaign-dispatch")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)

	v.SetDefault("kafka.batch_topic", "dispatch.batches")
	v.SetDefault("kafka.call_event_topic", "calls.events")
	v.SetDefault("kafka.consumer_group_id", "campaign-dispatch")
	v.SetDefault("kafka.partitions", 12)

	v.SetDefault("redis.key_prefix", "dispatch")

	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.metrics_enabled", true)

	v.SetDefault("scheduler.tick_interval", 2*time.Minute)
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.default_timezone", "America/New_York")
	v.SetDefault("scheduler.campaign_page_size", 500)
	v.SetDefault("scheduler.lease_enabled", true)
	v.SetDefault("scheduler.lease_ttl", 5*time.Minute)

	v.SetDefault("concurrency.max_per_org", 8)
	v.SetDefault("concurrency.active_window", 10*time.Minute)
	v.SetDefault("concurrency.estimator", "heuristic")
	v.SetDefault("concurrency.counter_ttl", 30*time.Minute)

	v.SetDefault("availability.business_start_hour", 9)
	v.SetDefault("availability.business_end_hour", 17)
	v.SetDefault("availability.default_duration", 30)
	v.SetDefault("availability.min_duration", 15)
	v.SetDefault("availability.max_duration", 240)

	v.SetDefault("voice.request_timeout", 5*time.Second)
	v.SetDefault("calendar.request_timeout", 5*time.Second)
}
