package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/infrastructure/leaderboard"
	"github.com/ahrav/go-scorekeeper/infrastructure/llm"
	"github.com/ahrav/go-scorekeeper/infrastructure/scoring"
	"github.com/ahrav/go-scorekeeper/internal/application"
	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// buildGateway creates one client per provider path, each with its own
// middleware chain and circuit breaker.
func buildGateway(cfg *application.Config, metrics ports.MetricsCollector, tp trace.TracerProvider, logger *zap.Logger) (*scoring.Gateway, error) {
	registry, err := llm.NewRegistry(llm.RegistryConfig{
		Providers:      providerOverrides(cfg.Scoring.Providers),
		DefaultTimeout: cfg.Scoring.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}

	primary, err := buildClient(registry, scoring.PathPrimary, cfg.Scoring.Primary, metrics, tp, logger)
	if err != nil {
		return nil, err
	}

	var secondary ports.LLMClient
	if cfg.Scoring.Secondary != nil {
		secondary, err = buildClient(registry, scoring.PathSecondary, *cfg.Scoring.Secondary, metrics, tp, logger)
		if err != nil {
			return nil, err
		}
	}

	return scoring.NewGateway(scoring.GatewayConfig{
		Primary:        primary,
		Secondary:      secondary,
		PromptTemplate: cfg.Scoring.PromptTemplate,
		Temperature:    cfg.Scoring.Temperature,
		MaxTokens:      cfg.Scoring.MaxTokens,
		Logger:         logger,
		Metrics:        metrics,
		TracerProvider: tp,
	})
}

func buildClient(
	registry *llm.Registry,
	name string,
	pc application.ProviderPathConfig,
	metrics ports.MetricsCollector,
	tp trace.TracerProvider,
	logger *zap.Logger,
) (ports.LLMClient, error) {
	path := scoring.NewPath(pathConfig(name, pc), metrics, tp, logger)
	client, err := registry.NewClient(pc.Model, pc.APIKey, path.Middleware...)
	if err != nil {
		return nil, fmt.Errorf("%s provider %q: %w", name, pc.Model, err)
	}
	return client, nil
}

func pathConfig(name string, pc application.ProviderPathConfig) scoring.PathConfig {
	retry := llm.DefaultRetryPolicy()
	if pc.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = pc.Retry.MaxAttempts
	}
	if pc.Retry.InitialInterval > 0 {
		retry.InitialInterval = pc.Retry.InitialInterval
	}
	if pc.Retry.MaxInterval > 0 {
		retry.MaxInterval = pc.Retry.MaxInterval
	}
	if pc.Retry.Multiplier > 0 {
		retry.Multiplier = pc.Retry.Multiplier
	}
	if pc.Retry.MaxElapsed > 0 {
		retry.MaxElapsedTime = pc.Retry.MaxElapsed
	}

	return scoring.PathConfig{
		Name:            name,
		Timeout:         pc.Timeout,
		Retry:           retry,
		BreakerFailures: pc.Breaker.Failures,
		BreakerCooldown: pc.Breaker.Cooldown,
		RateLimit:       pc.RateLimit,
		RateBurst:       pc.RateBurst,
	}
}

func providerOverrides(in map[string]application.ProviderOverride) map[string]llm.ProviderConfig {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]llm.ProviderConfig, len(in))
	for name, o := range in {
		out[name] = llm.ProviderConfig{
			Type:         o.Type,
			EnvVar:       o.EnvVar,
			DefaultModel: o.DefaultModel,
			BaseURL:      o.BaseURL,
		}
	}
	return out
}

// buildIndex selects the leaderboard backend. The Redis backend is checked
// with a PING so a bad address fails at startup.
func buildIndex(ctx context.Context, cfg application.LeaderboardConfig, rdb redis.UniversalClient) (ports.LeaderboardIndex, error) {
	switch cfg.Backend {
	case "memory", "":
		return leaderboard.NewMemoryIndex(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis leaderboard requires a redis address")
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis leaderboard: %w", err)
		}
		return leaderboard.NewRedisIndex(rdb, cfg.Key), nil
	default:
		return nil, fmt.Errorf("unknown leaderboard backend %q", cfg.Backend)
	}
}

// describeLadder renders the ladder as "TIER>=MIN" pairs in ascending order.
func describeLadder(ladder domain.TierLadder) string {
	steps := ladder.Steps()
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, fmt.Sprintf("%s>=%d", s.Tier, s.MinScore))
	}
	return strings.Join(parts, " ")
}
