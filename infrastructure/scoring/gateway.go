// Package scoring implements the ScoreProvider gateway: it renders the score
// prompt, calls the primary provider chain, parses its reply strictly and
// falls back to the secondary chain when the primary cannot produce a score.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/infrastructure/llm"
	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

const tracerName = "github.com/ahrav/go-scorekeeper/infrastructure/scoring"

// Path labels used in logs and metrics.
const (
	PathPrimary   = "primary"
	PathSecondary = "secondary"
)

// Metric names emitted by the gateway.
const (
	MetricFallbackTotal = "scoring_fallback_total"
	MetricResultTotal   = "scoring_results_total"
	MetricScore         = "scoring_score"
)

var _ ports.ScoreProvider = (*Gateway)(nil)

// errNoSecondary is the secondary cause reported when no fallback is
// configured.
var errNoSecondary = errors.New("no secondary provider configured")

// GatewayConfig configures a Gateway. Primary and Secondary are expected to
// already carry their resilience middleware (see NewPath).
type GatewayConfig struct {
	Primary   ports.LLMClient
	Secondary ports.LLMClient

	// PromptTemplate overrides DefaultPromptTemplate when non-empty.
	PromptTemplate string

	Temperature float64
	MaxTokens   int

	Logger         *zap.Logger
	Metrics        ports.MetricsCollector
	TracerProvider trace.TracerProvider
}

// Gateway is the ScoreProvider used by the scoring pipeline.
type Gateway struct {
	primary   ports.LLMClient
	secondary ports.LLMClient
	prompter  *Prompter
	opts      map[string]any
	logger    *zap.Logger
	metrics   ports.MetricsCollector
	tracer    trace.Tracer
}

// NewGateway validates config and builds a Gateway.
func NewGateway(config GatewayConfig) (*Gateway, error) {
	if config.Primary == nil {
		return nil, errors.New("primary provider is required")
	}

	prompter, err := NewPrompter(config.PromptTemplate)
	if err != nil {
		return nil, err
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var metrics ports.MetricsCollector = ports.NopMetrics{}
	if config.Metrics != nil {
		metrics = config.Metrics
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Gateway{
		primary:   config.Primary,
		secondary: config.Secondary,
		prompter:  prompter,
		opts: map[string]any{
			llm.OptSystem:      SystemInstructions,
			llm.OptJSONMode:    true,
			llm.OptTemperature: llm.Clamp(config.Temperature, llm.MinTemperature, llm.MaxTemperature),
			llm.OptMaxTokens:   maxTokens,
		},
		logger:  logger.With(zap.String("component", "score_gateway")),
		metrics: metrics,
		tracer:  tp.Tracer(tracerName),
	}, nil
}

// Score returns the score for one answer. The caller cannot tell which path
// produced it. When both paths fail the error is a *domain.ScoringError.
func (g *Gateway) Score(ctx context.Context, questionText, answerText string) (domain.ScoreResult, error) {
	ctx, span := g.tracer.Start(ctx, "scoring.score")
	defer span.End()

	prompt, err := g.prompter.Render(questionText, answerText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ScoreResult{}, err
	}

	res, primaryErr := g.attempt(ctx, PathPrimary, g.primary, prompt)
	if primaryErr == nil {
		g.recordResult(span, PathPrimary, res)
		return res, nil
	}

	// An expired deadline leaves no budget for the secondary and counts as a
	// scoring failure. Cancellation is a shutdown and stays redeliverable.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			err := domain.NewScoringError(primaryErr, ctxErr)
			g.recordFailure(span, err)
			return domain.ScoreResult{}, err
		}
		span.RecordError(ctxErr)
		span.SetStatus(codes.Error, "canceled")
		return domain.ScoreResult{}, fmt.Errorf("scoring aborted: %w", ctxErr)
	}

	if g.secondary == nil {
		err := domain.NewScoringError(primaryErr, errNoSecondary)
		g.recordFailure(span, err)
		return domain.ScoreResult{}, err
	}

	g.logger.Warn("primary scoring path failed, falling back to secondary",
		zap.String("primary_model", g.primary.GetModel()),
		zap.String("secondary_model", g.secondary.GetModel()),
		zap.String("reason", failureReason(primaryErr)),
		zap.Error(primaryErr))
	g.metrics.RecordCounter(MetricFallbackTotal, 1, map[string]string{"reason": failureReason(primaryErr)})
	span.AddEvent("fallback", trace.WithAttributes(attribute.String("reason", failureReason(primaryErr))))

	res, secondaryErr := g.attempt(ctx, PathSecondary, g.secondary, prompt)
	if secondaryErr == nil {
		g.recordResult(span, PathSecondary, res)
		return res, nil
	}

	err = domain.NewScoringError(primaryErr, secondaryErr)
	g.recordFailure(span, err)
	return domain.ScoreResult{}, err
}

// attempt runs one provider path and parses its reply. Errors come back
// classified as domain.ErrProviderTimeout or domain.ErrProviderUnavailable.
func (g *Gateway) attempt(ctx context.Context, path string, client ports.LLMClient, prompt string) (domain.ScoreResult, error) {
	start := time.Now()
	raw, err := client.Complete(ctx, prompt, g.opts)
	if err != nil {
		return domain.ScoreResult{}, llm.DomainError(err)
	}

	res, err := parseReply(raw)
	if err == nil {
		err = res.Validate()
	}
	if err != nil {
		g.logger.Warn("provider reply rejected",
			zap.String("path", path),
			zap.String("model", client.GetModel()),
			zap.Int("reply_length", len(raw)),
			zap.Error(err))
		return domain.ScoreResult{}, llm.DomainError(ports.NewReplyError(client.GetModel(), err))
	}

	g.logger.Debug("provider scored answer",
		zap.String("path", path),
		zap.String("model", client.GetModel()),
		zap.Int("score", res.Score),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (g *Gateway) recordResult(span trace.Span, path string, res domain.ScoreResult) {
	span.SetAttributes(
		attribute.String("scoring.path", path),
		attribute.Int("scoring.score", res.Score),
	)
	g.metrics.RecordCounter(MetricResultTotal, 1, map[string]string{"path": path, "status": "success"})
	g.metrics.RecordHistogram(MetricScore, float64(res.Score), map[string]string{"path": path})
}

func (g *Gateway) recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.metrics.RecordCounter(MetricResultTotal, 1, map[string]string{"path": "none", "status": "failed"})
}

// failureReason labels a path failure for logs and metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrInvalidResponse):
		return "invalid_reply"
	case errors.Is(err, domain.ErrProviderTimeout):
		return "timeout"
	}
	if kind := llm.Kind(err); kind != llm.FailureUnknown {
		return string(kind)
	}
	return "unavailable"
}
