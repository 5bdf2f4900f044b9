package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// RouterConfig holds the dependencies of the API router.
type RouterConfig struct {
	Reads     Reads
	Rebuilder Rebuilder
	// Publisher enables POST /v1/events when set.
	Publisher ports.EventPublisher
	// Health reports readiness for /healthz. Nil always reports ok.
	Health func(ctx context.Context) error
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Metrics        ports.MetricsCollector
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger.With(zap.String("component", "http"))), Metrics(cfg.Metrics))

	h := &handlers{reads: cfg.Reads, rebuilder: cfg.Rebuilder, publisher: cfg.Publisher, health: cfg.Health}
	r.GET("/healthz", h.healthz)
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/feedback/:answerID", h.getFeedback)
		v1.GET("/ranking/:userID", h.getRanking)
		v1.GET("/leaderboard", h.getLeaderboard)
		v1.GET("/aggregate/:userID", h.getAggregate)
		if cfg.Publisher != nil {
			v1.POST("/events", h.ingestEvent)
		}
	}
	if cfg.Rebuilder != nil {
		r.Group("/v1/admin").POST("/leaderboard/rebuild", h.rebuildLeaderboard)
	}
	return r
}

// Server runs an http.Server around a gin engine.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, engine *gin.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
