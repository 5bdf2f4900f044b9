package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// Metric names emitted by the routers.
const (
	MetricPublishedTotal = "events_published_total"
	MetricHandledTotal   = "events_handled_total"
	MetricHandleLatency  = "events_handle_duration_seconds"
)

// Handling outcomes used in logs and metric labels.
const (
	OutcomeOK            = "ok"
	OutcomeScoringFailed = "scoring_failed"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
	OutcomePanic         = "panic"
)

// PanicError carries a recovered handler panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("event handler panic: %v", e.Value) }

// dispatcher runs a handler for one event, turning panics into errors and
// logging the outcome. Both routers share it.
type dispatcher struct {
	handler ports.EventHandler
	logger  *zap.Logger
	metrics ports.MetricsCollector
	backend string
}

func newDispatcher(handler ports.EventHandler, logger *zap.Logger, metrics ports.MetricsCollector, backend string) *dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &dispatcher{handler: handler, logger: logger, metrics: metrics, backend: backend}
}

// dispatch never panics. The returned error is the handler's, or a
// *PanicError.
func (d *dispatcher) dispatch(ctx context.Context, ev domain.AnswerEvent) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		d.observe(ev, err, time.Since(start))
	}()

	return d.handler.Handle(ctx, ev)
}

func (d *dispatcher) observe(ev domain.AnswerEvent, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	labels := map[string]string{"backend": d.backend, "kind": string(ev.Kind), "outcome": outcome}
	d.metrics.RecordCounter(MetricHandledTotal, 1, labels)
	d.metrics.RecordLatency(MetricHandleLatency, elapsed, map[string]string{"backend": d.backend})

	fields := []zap.Field{
		zap.String("event_id", ev.EventID.String()),
		zap.String("kind", string(ev.Kind)),
		zap.Int64("answer_id", ev.AnswerID),
		zap.Int64("user_id", ev.UserID),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}
	switch outcome {
	case OutcomeOK:
		d.logger.Debug("event handled", fields...)
	case OutcomeScoringFailed, OutcomeInvalid:
		d.logger.Warn("event dropped", append(fields, zap.Error(err))...)
	default:
		d.logger.Error("event handler failed", append(fields, zap.Error(err))...)
	}
}

// Outcome classifies a handler result.
func Outcome(err error) string {
	var pe *PanicError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &pe):
		return OutcomePanic
	case errors.Is(err, domain.ErrScoringFailed):
		return OutcomeScoringFailed
	case errors.Is(err, domain.ErrInvalidEvent):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// Terminal reports whether redelivering the event cannot change the result.
func Terminal(err error) bool {
	switch Outcome(err) {
	case OutcomeScoringFailed, OutcomeInvalid, OutcomePanic:
		return true
	default:
		return errors.Is(err, domain.ErrLedgerCorruption)
	}
}
