package events

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// AsynqConfig configures the durable router.
type AsynqConfig struct {
	Concurrency int
	Queue       string
	MaxRetry    int
	// TaskTimeout bounds one delivery, including every provider attempt.
	TaskTimeout time.Duration
	// ShutdownTimeout is how long workers may finish in-flight tasks.
	ShutdownTimeout time.Duration
}

func (c *AsynqConfig) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = 10
	}
	if c.Queue == "" {
		c.Queue = "default"
	}
	if c.MaxRetry < 0 {
		c.MaxRetry = 0
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

var _ ports.EventPublisher = (*AsynqRouter)(nil)

// AsynqRouter publishes events as asynq tasks and consumes them with an
// asynq server. Terminal failures are marked SkipRetry; other errors go back
// to asynq for redelivery, which the pipeline tolerates because it is
// idempotent.
type AsynqRouter struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	config  AsynqConfig
	disp    *dispatcher
	logger  *zap.Logger
	metrics ports.MetricsCollector
}

// NewAsynqRouter creates a router on the given Redis connection.
func NewAsynqRouter(
	redisOpt asynq.RedisConnOpt,
	handler ports.EventHandler,
	config AsynqConfig,
	logger *zap.Logger,
	metrics ports.MetricsCollector,
) *AsynqRouter {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	logger = logger.With(zap.String("component", "asynq_router"))

	r := &AsynqRouter{
		client:  asynq.NewClient(redisOpt),
		config:  config,
		disp:    newDispatcher(handler, logger, metrics, "asynq"),
		logger:  logger,
		metrics: metrics,
	}

	r.server = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     config.Concurrency,
		Queues:          map[string]int{config.Queue: 1},
		ShutdownTimeout: config.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				zap.String("type", task.Type()),
				zap.Int("retry", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
		Logger: &zapAsynqLogger{sugar: logger.Sugar()},
	})

	r.mux = asynq.NewServeMux()
	r.mux.HandleFunc(TypeAnswerCreated, r.HandleTask)
	r.mux.HandleFunc(TypeAnswerUpdated, r.HandleTask)
	return r
}

// Publish enqueues ev as a task.
func (r *AsynqRouter) Publish(ctx context.Context, ev domain.AnswerEvent) error {
	task, err := EncodeTask(ev)
	if err != nil {
		return err
	}

	info, err := r.client.EnqueueContext(ctx, task, r.taskOptions()...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}

	r.metrics.RecordCounter(MetricPublishedTotal, 1, map[string]string{"backend": "asynq", "kind": string(ev.Kind)})
	r.logger.Debug("queued answer event",
		zap.String("task_id", info.ID),
		zap.String("type", task.Type()),
		zap.String("event_id", ev.EventID.String()),
		zap.Int64("answer_id", ev.AnswerID))
	return nil
}

func (r *AsynqRouter) taskOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(r.config.Queue),
		asynq.MaxRetry(r.config.MaxRetry),
		asynq.Timeout(r.config.TaskTimeout),
	}
}

// HandleTask is the asynq handler for both task types.
func (r *AsynqRouter) HandleTask(ctx context.Context, task *asynq.Task) error {
	ev, err := DecodeTask(task)
	if err != nil {
		r.metrics.RecordCounter(MetricHandledTotal, 1, map[string]string{"backend": "asynq", "kind": task.Type(), "outcome": OutcomeInvalid})
		r.logger.Warn("discarding malformed task", zap.String("type", task.Type()), zap.Error(err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	err = r.disp.dispatch(ctx, ev)
	if err == nil {
		return nil
	}
	if Terminal(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Run processes tasks until ctx is canceled, then shuts the server down.
func (r *AsynqRouter) Run(ctx context.Context) error {
	if err := r.server.Start(r.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	r.logger.Info("asynq router started",
		zap.Int("concurrency", r.config.Concurrency),
		zap.String("queue", r.config.Queue))

	<-ctx.Done()
	r.server.Shutdown()
	r.logger.Info("asynq router stopped")
	return nil
}

// Close releases the publishing client.
func (r *AsynqRouter) Close() error {
	return r.client.Close()
}

// zapAsynqLogger adapts zap to asynq.Logger.
type zapAsynqLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapAsynqLogger) Debug(args ...any) { l.sugar.Debug(args...) }
func (l *zapAsynqLogger) Info(args ...any)  { l.sugar.Info(args...) }
func (l *zapAsynqLogger) Warn(args ...any)  { l.sugar.Warn(args...) }
func (l *zapAsynqLogger) Error(args ...any) { l.sugar.Error(args...) }

// Fatal logs at error level. asynq's contract says Fatal exits, but the
// router leaves process lifetime to main.
func (l *zapAsynqLogger) Fatal(args ...any) { l.sugar.Error(args...) }
