// Package application coordinates scoring, ledger updates and leaderboard
// maintenance on top of the ports interfaces.
package application

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

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

const tracerName = "github.com/ahrav/go-scorekeeper/internal/application"

// Metric names emitted by the scoring pipeline.
const (
	MetricStateTotal       = "submission_state_total"
	MetricLedgerImproved   = "ledger_improved_total"
	MetricIndexErrors      = "leaderboard_index_errors_total"
	MetricPipelineDuration = "pipeline_duration_seconds"
)

// PipelineDeps are the collaborators of a ScoringPipeline.
type PipelineDeps struct {
	Provider   ports.ScoreProvider
	Transactor ports.Transactor
	Index      ports.LeaderboardIndex
	Aggregator *ScoreAggregator

	// LockStripes is the number of per-user lock stripes. Zero means 256.
	LockStripes int

	Logger         *zap.Logger
	Metrics        ports.MetricsCollector
	TracerProvider trace.TracerProvider
}

// ScoringPipeline turns one submission event into durable feedback, ledger
// and aggregate updates followed by a leaderboard upsert. It implements
// ports.EventHandler.
//
// Handle is idempotent: replaying an event upserts the same feedback row and
// the ledger only ever moves up, so redelivery converges to the same state.
type ScoringPipeline struct {
	provider   ports.ScoreProvider
	tx         ports.Transactor
	index      ports.LeaderboardIndex
	aggregator *ScoreAggregator
	locks      *stripedLocks
	logger     *zap.Logger
	metrics    ports.MetricsCollector
	tracer     trace.Tracer
}

// NewScoringPipeline validates deps and builds a pipeline.
func NewScoringPipeline(deps PipelineDeps) (*ScoringPipeline, error) {
	if deps.Provider == nil {
		return nil, errors.New("pipeline requires a score provider")
	}
	if deps.Transactor == nil {
		return nil, errors.New("pipeline requires a transactor")
	}
	if deps.Index == nil {
		return nil, errors.New("pipeline requires a leaderboard index")
	}
	if deps.Aggregator == nil {
		deps.Aggregator = NewScoreAggregator(domain.DefaultTierLadder())
	}
	if deps.LockStripes == 0 {
		deps.LockStripes = 256
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &ScoringPipeline{
		provider:   deps.Provider,
		tx:         deps.Transactor,
		index:      deps.Index,
		aggregator: deps.Aggregator,
		locks:      newStripedLocks(deps.LockStripes),
		logger:     deps.Logger.With(zap.String("component", "pipeline")),
		metrics:    deps.Metrics,
		tracer:     tp.Tracer(tracerName),
	}, nil
}

// Handle scores the answer carried by ev and records the outcome.
//
// A scoring failure moves the submission to ScoringFailedLogged and returns an
// error matching domain.ErrScoringFailed; prior feedback for the answer is left
// untouched. Storage errors roll the transaction back and are returned so the
// router may redeliver. A leaderboard index failure after commit is logged and
// not returned: the durable state is already correct and a rebuild
// reconciles the index.
func (p *ScoringPipeline) Handle(ctx context.Context, ev domain.AnswerEvent) (err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("event.id", ev.EventID.String()),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.Int64("answer.id", ev.AnswerID),
		attribute.Int64("user.id", ev.UserID),
		attribute.Int64("question.id", ev.QuestionID),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.metrics.RecordLatency(MetricPipelineDuration, time.Since(start), nil)
	}()

	log := p.logger.With(
		zap.String("event_id", ev.EventID.String()),
		zap.Int64("answer_id", ev.AnswerID),
		zap.Int64("user_id", ev.UserID),
		zap.Int64("question_id", ev.QuestionID),
	)

	state := domain.StateEventPublished
	state = p.transition(log, state, domain.StateConsumed)
	state = p.transition(log, state, domain.StateScoringInFlight)

	result, err := p.provider.Score(ctx, ev.QuestionText, ev.AnswerText)
	if err != nil {
		p.transition(log, state, domain.StateScoringFailedLogged)
		log.Warn("scoring failed, feedback unchanged", zap.Error(err))
		return fmt.Errorf("score answer %d: %w", ev.AnswerID, err)
	}
	span.SetAttributes(attribute.Int("score", result.Score))

	points := domain.ContributionPoints(result.Score, ev.QuestionBaseScore)

	unlock := p.locks.lock(ev.UserID)
	defer unlock()

	var (
		agg      domain.Aggregate
		improved bool
	)
	err = p.tx.InTx(ctx, func(repo ports.ScoreRepository) error {
		if _, err := repo.UpsertFeedback(ctx, ev.AnswerID, result.Score, result.Explanation); err != nil {
			return fmt.Errorf("upsert feedback: %w", err)
		}
		var err error
		improved, err = repo.RecordIfHigher(ctx, ev.UserID, ev.QuestionID, points)
		if err != nil {
			return fmt.Errorf("record best score: %w", err)
		}
		agg, err = p.aggregator.Recompute(ctx, repo, ev.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrLedgerCorruption) {
			log.Error("ledger corruption detected, nothing persisted", zap.Error(err))
		} else {
			log.Warn("persisting score failed", zap.Error(err))
		}
		return fmt.Errorf("persist score for answer %d: %w", ev.AnswerID, err)
	}
	p.transition(log, state, domain.StateFeedbackRecorded)

	if improved {
		p.metrics.RecordCounter(MetricLedgerImproved, 1, nil)
	}
	log.Info("feedback recorded",
		zap.Int("score", result.Score),
		zap.Int64("points", points),
		zap.Bool("improved", improved),
		zap.Int64("total_score", agg.TotalScore),
		zap.String("tier", string(agg.Tier)),
	)

	p.refreshIndex(ctx, log, agg)
	return nil
}

// refreshIndex upserts the new total and stores the resulting rank on the
// aggregate. Runs under the user's lock so upserts for one user reach the
// index in commit order.
func (p *ScoringPipeline) refreshIndex(ctx context.Context, log *zap.Logger, agg domain.Aggregate) {
	if err := p.index.Upsert(ctx, agg.UserID, agg.TotalScore); err != nil {
		p.metrics.RecordCounter(MetricIndexErrors, 1, map[string]string{"op": "upsert"})
		log.Warn("leaderboard upsert failed, index is stale until rebuild", zap.Error(err))
		return
	}

	rank, err := p.index.Rank(ctx, agg.UserID)
	if err != nil {
		p.metrics.RecordCounter(MetricIndexErrors, 1, map[string]string{"op": "rank"})
		log.Warn("leaderboard rank lookup failed", zap.Error(err))
		return
	}
	err = p.tx.InTx(ctx, func(repo ports.ScoreRepository) error {
		return repo.UpdateRank(ctx, agg.UserID, rank+1)
	})
	if err != nil {
		log.Warn("storing advisory rank failed", zap.Error(err))
	}
}

func (p *ScoringPipeline) transition(log *zap.Logger, from, to domain.SubmissionState) domain.SubmissionState {
	if !from.CanTransition(to) {
		log.Error("illegal submission state transition",
			zap.Stringer("from", from), zap.Stringer("to", to))
		return from
	}
	p.metrics.RecordCounter(MetricStateTotal, 1, map[string]string{"state": to.String()})
	log.Debug("submission state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	return to
}

var _ ports.EventHandler = (*ScoringPipeline)(nil)
