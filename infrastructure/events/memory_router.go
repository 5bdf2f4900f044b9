package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// ErrRouterClosed is returned by Publish after Shutdown has begun.
var ErrRouterClosed = errors.New("event router closed")

// MemoryRouterConfig sizes the in-process router.
type MemoryRouterConfig struct {
	Workers    int
	BufferSize int
}

var _ ports.EventPublisher = (*MemoryRouter)(nil)

// MemoryRouter delivers events to a handler through a buffered channel served
// by a fixed worker pool. Events still buffered when the process dies are
// lost; use AsynqRouter where that matters.
type MemoryRouter struct {
	queue   chan domain.AnswerEvent
	workers int
	disp    *dispatcher
	logger  *zap.Logger
	metrics ports.MetricsCollector

	mu     sync.RWMutex
	closed bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewMemoryRouter creates a router. Call Start before publishing.
func NewMemoryRouter(handler ports.EventHandler, config MemoryRouterConfig, logger *zap.Logger, metrics ports.MetricsCollector) *MemoryRouter {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	logger = logger.With(zap.String("component", "memory_router"))

	return &MemoryRouter{
		queue:   make(chan domain.AnswerEvent, config.BufferSize),
		workers: config.Workers,
		disp:    newDispatcher(handler, logger, metrics, "memory"),
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the workers. Handlers run under a context detached from ctx
// so that canceling ctx does not abort in-flight scoring; Shutdown controls
// their lifetime instead.
func (r *MemoryRouter) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.group, runCtx = errgroup.WithContext(runCtx)

	for i := 0; i < r.workers; i++ {
		workerID := i + 1
		r.group.Go(func() error {
			for ev := range r.queue {
				// Errors are terminal for this backend; dispatch has logged them.
				_ = r.disp.dispatch(runCtx, ev)
			}
			r.logger.Debug("worker stopped", zap.Int("worker_id", workerID))
			return nil
		})
	}
	r.logger.Info("memory router started", zap.Int("workers", r.workers), zap.Int("buffer", cap(r.queue)))
}

// Publish enqueues ev. It blocks while the buffer is full, until ctx ends.
func (r *MemoryRouter) Publish(ctx context.Context, ev domain.AnswerEvent) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRouterClosed
	}

	select {
	case r.queue <- ev:
		r.metrics.RecordCounter(MetricPublishedTotal, 1, map[string]string{"backend": "memory", "kind": string(ev.Kind)})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and waits for the workers to drain the
// buffer. When ctx ends first, in-flight handlers are canceled and ctx's
// error is returned.
func (r *MemoryRouter) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	if r.group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- r.group.Wait() }()

	select {
	case err := <-done:
		r.cancel()
		r.logger.Info("memory router drained")
		return err
	case <-ctx.Done():
		r.cancel()
		<-done
		r.logger.Warn("memory router shutdown timed out, in-flight events canceled")
		return ctx.Err()
	}
}
