package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ahrav/go-scorekeeper/infrastructure/events"
	"github.com/ahrav/go-scorekeeper/infrastructure/httpapi"
	"github.com/ahrav/go-scorekeeper/infrastructure/metrics"
	"github.com/ahrav/go-scorekeeper/infrastructure/store"
	"github.com/ahrav/go-scorekeeper/internal/application"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// run wires every component from cfg and blocks until ctx is done or a
// component fails.
func run(ctx context.Context, cfg *application.Config, logger *zap.Logger) error {
	if cfg.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	collector := metrics.NewPrometheusMetrics(metrics.Options{})

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(
		resource.NewSchemaless(attribute.String("service.name", cfg.Service.Name)),
	))
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		SlowThreshold:   cfg.Database.SlowThreshold,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(db) }()
	repo := store.NewRepository(db)

	gateway, err := buildGateway(cfg, collector, tp, logger)
	if err != nil {
		return err
	}

	ladder, err := cfg.TierLadder()
	if err != nil {
		return err
	}
	logger.Info("tier ladder loaded", zap.String("tiers", describeLadder(ladder)))

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
	}

	index, err := buildIndex(ctx, cfg.Leaderboard, rdb)
	if err != nil {
		return err
	}

	pipeline, err := application.NewScoringPipeline(application.PipelineDeps{
		Provider:       gateway,
		Transactor:     repo,
		Index:          index,
		Aggregator:     application.NewScoreAggregator(ladder),
		LockStripes:    cfg.Pipeline.LockStripes,
		Logger:         logger,
		Metrics:        collector,
		TracerProvider: tp,
	})
	if err != nil {
		return err
	}

	rebuilder := application.NewLeaderboardRebuilder(repo, index, cfg.Leaderboard.PageSize, logger, collector).
		SerializeWith(pipeline)
	if cfg.Leaderboard.RebuildOnStart {
		if _, err := rebuilder.Rebuild(ctx); err != nil {
			return fmt.Errorf("initial leaderboard rebuild: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var publisher ports.EventPublisher
	switch cfg.Events.Backend {
	case "asynq":
		router := events.NewAsynqRouter(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, pipeline, events.AsynqConfig{
			Concurrency:     cfg.Events.Workers,
			Queue:           cfg.Events.Queue,
			MaxRetry:        cfg.Events.MaxRetry,
			TaskTimeout:     cfg.Events.TaskTimeout,
			ShutdownTimeout: cfg.Service.ShutdownTimeout,
		}, logger, collector)
		defer func() { _ = router.Close() }()
		g.Go(func() error { return router.Run(gctx) })
		publisher = router
	default:
		router := events.NewMemoryRouter(pipeline, events.MemoryRouterConfig{
			Workers:    cfg.Events.Workers,
			BufferSize: cfg.Events.BufferSize,
		}, logger, collector)
		router.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
			defer cancel()
			return router.Shutdown(drainCtx)
		})
		publisher = router
	}

	if interval := cfg.Leaderboard.RebuildInterval; interval > 0 {
		g.Go(func() error {
			if err := rebuilder.Run(gctx, interval); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	engine := httpapi.NewRouter(httpapi.RouterConfig{
		Reads:          application.NewReadService(repo, repo, index, ladder),
		Rebuilder:      rebuilder,
		Publisher:      publisher,
		Health:         healthCheck(db, rdb),
		MetricsHandler: collector.Handler(),
		Metrics:        collector,
		Logger:         logger,
	})
	server := httpapi.NewServer(cfg.Service.HTTPAddr, engine, logger)
	g.Go(func() error { return server.Run(gctx, cfg.Service.ShutdownTimeout) })

	logger.Info("scorekeeper started",
		zap.String("http_addr", cfg.Service.HTTPAddr),
		zap.String("events", cfg.Events.Backend),
		zap.String("leaderboard", cfg.Leaderboard.Backend),
		zap.String("database", cfg.Database.Driver),
	)
	return g.Wait()
}

func healthCheck(db *gorm.DB, rdb redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
