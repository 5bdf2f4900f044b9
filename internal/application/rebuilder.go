package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// Metric names emitted by the rebuilder.
const (
	MetricLeaderboardSize  = "leaderboard_size"
	MetricRebuildDuration  = "leaderboard_rebuild_duration_seconds"
	MetricRebuildFailures  = "leaderboard_rebuild_failures_total"
	defaultRebuildPageSize = 1000
)

// LeaderboardRebuilder reloads a leaderboard index from durable aggregates.
type LeaderboardRebuilder struct {
	aggregates ports.AggregateStore
	index      ports.LeaderboardIndex
	pageSize   int
	logger     *zap.Logger
	metrics    ports.MetricsCollector
	locks      *stripedLocks
	now        func() time.Time
}

// NewLeaderboardRebuilder creates a rebuilder reading pageSize aggregates per
// query. A non-positive pageSize means 1000.
func NewLeaderboardRebuilder(aggregates ports.AggregateStore, index ports.LeaderboardIndex, pageSize int, logger *zap.Logger, metrics ports.MetricsCollector) *LeaderboardRebuilder {
	if pageSize <= 0 {
		pageSize = defaultRebuildPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &LeaderboardRebuilder{
		aggregates: aggregates,
		index:      index,
		pageSize:   pageSize,
		logger:     logger.With(zap.String("component", "rebuilder")),
		metrics:    metrics,
		now:        time.Now,
	}
}

// SerializeWith makes the reconcile pass take the per-user locks of p, so it
// cannot interleave with p between a commit and the matching index upsert.
func (r *LeaderboardRebuilder) SerializeWith(p *ScoringPipeline) *LeaderboardRebuilder {
	r.locks = p.locks
	return r
}

// Rebuild replaces the index with every aggregate in the store and returns
// the number of entries loaded.
//
// A commit landing between the scan and Replace can have its index upsert
// overwritten by the stale snapshot. After Replace every aggregate is read
// again and any user whose durable total differs from the snapshot, or who was
// missing from it, is re-upserted under that user's pipeline lock. Commits
// after the second read upsert the index themselves, after Replace.
func (r *LeaderboardRebuilder) Rebuild(ctx context.Context) (int, error) {
	start := r.now()

	aggs, err := r.scan(ctx)
	if err != nil {
		r.metrics.RecordCounter(MetricRebuildFailures, 1, nil)
		return 0, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(aggs))
	snapshot := make(map[int64]int64, len(aggs))
	for _, a := range aggs {
		entries = append(entries, domain.LeaderboardEntry{UserID: a.UserID, Score: a.TotalScore})
		snapshot[a.UserID] = a.TotalScore
	}
	if err := r.index.Replace(ctx, entries); err != nil {
		r.metrics.RecordCounter(MetricRebuildFailures, 1, nil)
		return 0, fmt.Errorf("replace leaderboard: %w", err)
	}

	current, err := r.scan(ctx)
	if err != nil {
		r.metrics.RecordCounter(MetricRebuildFailures, 1, nil)
		return 0, err
	}
	reconciled := 0
	for _, a := range current {
		if score, ok := snapshot[a.UserID]; ok && score == a.TotalScore {
			continue
		}
		if err := r.reconcile(ctx, a.UserID); err != nil {
			r.metrics.RecordCounter(MetricRebuildFailures, 1, nil)
			return 0, fmt.Errorf("reconcile user %d: %w", a.UserID, err)
		}
		reconciled++
	}

	elapsed := r.now().Sub(start)
	r.metrics.RecordGauge(MetricLeaderboardSize, float64(len(entries)), nil)
	r.metrics.RecordLatency(MetricRebuildDuration, elapsed, nil)
	r.logger.Info("leaderboard rebuilt",
		zap.Int("entries", len(entries)),
		zap.Int("reconciled", reconciled),
		zap.Duration("elapsed", elapsed),
	)
	return len(entries), nil
}

func (r *LeaderboardRebuilder) reconcile(ctx context.Context, userID int64) error {
	if r.locks != nil {
		unlock := r.locks.lock(userID)
		defer unlock()
	}
	agg, err := r.aggregates.GetAggregate(ctx, userID)
	if err != nil {
		return err
	}
	return r.index.Upsert(ctx, agg.UserID, agg.TotalScore)
}

// scan pages through every aggregate in user id order.
func (r *LeaderboardRebuilder) scan(ctx context.Context) ([]domain.Aggregate, error) {
	var (
		out   []domain.Aggregate
		after int64
	)
	for {
		page, err := r.aggregates.ListAggregates(ctx, after, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list aggregates after user %d: %w", after, err)
		}
		out = append(out, page...)
		if len(page) < r.pageSize {
			return out, nil
		}
		after = page[len(page)-1].UserID
	}
}

// Run rebuilds every interval until ctx is done. Failures are logged and the
// loop continues.
func (r *LeaderboardRebuilder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Rebuild(ctx); err != nil {
				r.logger.Error("scheduled leaderboard rebuild failed", zap.Error(err))
			}
		}
	}
}
