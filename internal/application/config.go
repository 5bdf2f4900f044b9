package application

import (
	"time"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// Config is the complete configuration of a scorekeeper process and the
// primary configuration entry point for the system. It is loaded from YAML by
// LoadConfig, which applies DefaultConfig before decoding so that a file only
// needs to name the settings it changes.
type Config struct {
	// Service configures the HTTP surface and process lifecycle.
	Service ServiceConfig `yaml:"service"`
	// Logging selects the zap logger preset.
	Logging LoggingConfig `yaml:"logging"`
	// Database locates the durable store for feedback, best scores and
	// aggregates.
	Database DatabaseConfig `yaml:"database"`
	// Redis is shared by the asynq router and the Redis leaderboard index.
	// It is only required when one of them is selected.
	Redis RedisConfig `yaml:"redis"`
	// Scoring configures the primary and secondary provider paths.
	Scoring ScoringConfig `yaml:"scoring"`
	// Events selects the submission event router.
	Events EventsConfig `yaml:"events"`
	// Leaderboard selects the rank index backend and its rebuild schedule.
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	// Tiers is the tier ladder. An empty list keeps the default ladder.
	Tiers []TierConfig `yaml:"tiers" validate:"omitempty,dive"`
	// Pipeline tunes the scoring pipeline.
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServiceConfig configures the HTTP listener and shutdown behavior.
type ServiceConfig struct {
	// Name is attached to logs and traces.
	Name string `yaml:"name" validate:"required,max=100"`
	// HTTPAddr is the listen address of the read and ops API.
	HTTPAddr string `yaml:"http_addr" validate:"required,hostname_port"`
	// ShutdownTimeout bounds how long in-flight requests and queued events
	// may take to drain once the process is asked to stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// LoggingConfig selects a zap preset.
type LoggingConfig struct {
	// Mode is development (console, debug) or production (JSON, info).
	Mode string `yaml:"mode" validate:"required,oneof=development production"`
	// Level overrides the preset's minimum level when set.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DatabaseConfig locates the GORM-backed store.
type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	// DSN is the driver-specific connection string. Use ${VAR} to keep
	// credentials out of the file.
	DSN             string        `yaml:"dsn" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"min=0"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" validate:"min=0"`
}

// RedisConfig is the connection shared by Redis-backed components.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0,max=15"`
}

// ScoringConfig configures the ScoreProvider gateway.
type ScoringConfig struct {
	// Primary is the provider tried first for every answer.
	Primary ProviderPathConfig `yaml:"primary"`
	// Secondary is the fallback provider. When nil a primary failure is a
	// scoring failure.
	Secondary *ProviderPathConfig `yaml:"secondary"`
	// PromptTemplate is a text/template with .Question and .Answer fields.
	// Empty means the built-in prompt.
	PromptTemplate string `yaml:"prompt_template"`
	// Temperature is passed to both providers.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
	// MaxTokens bounds the length of a provider reply.
	MaxTokens int `yaml:"max_tokens" validate:"min=0,max=32000"`
	// Providers overrides or extends the built-in provider registry by name.
	Providers map[string]ProviderOverride `yaml:"providers" validate:"omitempty,dive"`
	// RequestTimeout bounds the HTTP client of every provider.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=0"`
}

// ProviderPathConfig describes one provider and the resilience stack wrapped
// around it.
type ProviderPathConfig struct {
	// Model is "provider/model", for example "openai/gpt-4.1-mini".
	Model string `yaml:"model" validate:"required,modelformat"`
	// APIKey overrides the provider's API key environment variable.
	APIKey string `yaml:"api_key"`
	// Timeout bounds a single attempt.
	Timeout time.Duration `yaml:"timeout" validate:"required,min=1ms"`
	// Retry configures exponential backoff between attempts.
	Retry RetryConfig `yaml:"retry"`
	// Breaker configures the path's circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	// RateBurst is the token bucket size used with RateLimit.
	RateBurst int `yaml:"rate_burst" validate:"min=0"`
}

// RetryConfig bounds the retry budget of a provider path by attempts and by
// elapsed time.
type RetryConfig struct {
	MaxAttempts     uint          `yaml:"max_attempts" validate:"min=1,max=10"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"min=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"min=0"`
	Multiplier      float64       `yaml:"multiplier" validate:"min=0"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" validate:"min=0"`
}

// BreakerConfig configures a circuit breaker. Zero Failures disables it.
type BreakerConfig struct {
	Failures int           `yaml:"failures" validate:"min=0"`
	Cooldown time.Duration `yaml:"cooldown" validate:"min=0"`
}

// ProviderOverride changes how a named provider is reached.
type ProviderOverride struct {
	Type         string `yaml:"type" validate:"omitempty,oneof=openai anthropic google"`
	EnvVar       string `yaml:"env_var"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url" validate:"omitempty,url"`
}

// EventsConfig selects how submission events reach the scoring pipeline.
type EventsConfig struct {
	// Backend is memory (in-process queue) or asynq (Redis-backed queue).
	Backend string `yaml:"backend" validate:"required,oneof=memory asynq"`
	// Workers is the number of concurrent handlers.
	Workers int `yaml:"workers" validate:"min=1,max=1024"`
	// BufferSize is the in-memory queue capacity.
	BufferSize int `yaml:"buffer_size" validate:"min=0"`
	// Queue is the asynq queue name.
	Queue string `yaml:"queue"`
	// MaxRetry is the number of asynq redeliveries for retryable failures.
	MaxRetry int `yaml:"max_retry" validate:"min=0,max=100"`
	// TaskTimeout bounds one asynq task, provider retries included.
	TaskTimeout time.Duration `yaml:"task_timeout" validate:"min=0"`
}

// LeaderboardConfig selects the leaderboard index.
type LeaderboardConfig struct {
	// Backend is memory or redis.
	Backend string `yaml:"backend" validate:"required,oneof=memory redis"`
	// Key is the Redis sorted set key.
	Key string `yaml:"key"`
	// RebuildOnStart reloads the index from durable aggregates at startup.
	RebuildOnStart bool `yaml:"rebuild_on_start"`
	// RebuildInterval schedules periodic rebuilds. Zero disables them.
	RebuildInterval time.Duration `yaml:"rebuild_interval" validate:"min=0"`
	// PageSize is the number of aggregates read per rebuild query.
	PageSize int `yaml:"page_size" validate:"min=1,max=100000"`
}

// TierConfig is one step of the tier ladder.
type TierConfig struct {
	Name     string `yaml:"name" validate:"required,max=50"`
	MinScore int64  `yaml:"min_score" validate:"min=0"`
}

// PipelineConfig tunes the scoring pipeline.
type PipelineConfig struct {
	// LockStripes is the number of per-user lock stripes that serialize
	// ledger updates for one user within the process.
	LockStripes int `yaml:"lock_stripes" validate:"min=1,max=65536"`
}

// DefaultConfig returns the configuration used for every setting a file
// leaves out.
func DefaultConfig() Config {
	retry := RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		MaxElapsed:      20 * time.Second,
	}
	return Config{
		Service: ServiceConfig{
			Name:            "scorekeeper",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Mode: "production"},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:scorekeeper.db?_busy_timeout=5000",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			SlowThreshold:   200 * time.Millisecond,
		},
		Scoring: ScoringConfig{
			Primary: ProviderPathConfig{
				Model:   "openai/gpt-4.1-mini",
				Timeout: 15 * time.Second,
				Retry:   retry,
				Breaker: BreakerConfig{Failures: 5, Cooldown: 30 * time.Second},
			},
			Temperature:    0,
			MaxTokens:      512,
			RequestTimeout: 30 * time.Second,
		},
		Events: EventsConfig{
			Backend:     "memory",
			Workers:     4,
			BufferSize:  256,
			Queue:       "scoring",
			MaxRetry:    5,
			TaskTimeout: 2 * time.Minute,
		},
		Leaderboard: LeaderboardConfig{
			Backend:        "memory",
			Key:            "leaderboard:global",
			RebuildOnStart: true,
			PageSize:       1000,
		},
		Pipeline: PipelineConfig{LockStripes: 256},
	}
}

// TierLadder builds the ladder described by Tiers, or the default ladder when
// none is configured.
func (c *Config) TierLadder() (domain.TierLadder, error) {
	if len(c.Tiers) == 0 {
		return domain.DefaultTierLadder(), nil
	}
	steps := make([]domain.TierThreshold, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		steps = append(steps, domain.TierThreshold{Tier: domain.Tier(t.Name), MinScore: t.MinScore})
	}
	return domain.NewTierLadder(steps)
}
