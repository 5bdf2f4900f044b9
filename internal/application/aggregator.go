package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// ScoreAggregator derives a user's Aggregate from the best-score ledger.
type ScoreAggregator struct {
	ladder domain.TierLadder
	now    func() time.Time
}

// NewScoreAggregator creates an aggregator that assigns tiers from ladder.
func NewScoreAggregator(ladder domain.TierLadder) *ScoreAggregator {
	return &ScoreAggregator{ladder: ladder, now: func() time.Time { return time.Now().UTC() }}
}

// Recompute sums the user's best scores, resolves the tier and persists both
// through repo. A negative sum is reported as a *domain.CorruptionError and
// nothing is written; the total is never clamped.
func (a *ScoreAggregator) Recompute(ctx context.Context, repo ports.ScoreRepository, userID int64) (domain.Aggregate, error) {
	total, err := repo.SumBestScores(ctx, userID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("sum best scores for user %d: %w", userID, err)
	}
	if total < 0 {
		return domain.Aggregate{}, &domain.CorruptionError{UserID: userID, Total: total}
	}

	agg := domain.Aggregate{
		UserID:     userID,
		TotalScore: total,
		Tier:       a.ladder.Resolve(total),
		UpdatedAt:  a.now(),
	}
	if err := repo.SaveAggregate(ctx, agg); err != nil {
		return domain.Aggregate{}, fmt.Errorf("save aggregate for user %d: %w", userID, err)
	}
	return agg, nil
}
