package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// MaxTopK caps a single leaderboard page.
const MaxTopK = 1000

// RankView is a user's public standing. Rank is one-based and comes from the
// leaderboard index; the remaining fields come from the durable aggregate.
type RankView struct {
	UserID           int64       `json:"user_id"`
	Rank             int64       `json:"rank"`
	TotalScore       int64       `json:"total_score"`
	Tier             domain.Tier `json:"tier"`
	NextTier         domain.Tier `json:"next_tier"`
	PointsToNextTier int64       `json:"points_to_next_tier"`
}

// ReadService answers feedback and ranking queries.
type ReadService struct {
	feedback   ports.FeedbackStore
	aggregates ports.AggregateStore
	index      ports.LeaderboardIndex
	ladder     domain.TierLadder
}

// NewReadService creates a ReadService.
func NewReadService(feedback ports.FeedbackStore, aggregates ports.AggregateStore, index ports.LeaderboardIndex, ladder domain.TierLadder) *ReadService {
	return &ReadService{feedback: feedback, aggregates: aggregates, index: index, ladder: ladder}
}

// GetFeedback returns the latest feedback for an answer, or an error matching
// domain.ErrNotFound while the answer is unscored.
func (s *ReadService) GetFeedback(ctx context.Context, answerID int64) (domain.Feedback, error) {
	return s.feedback.GetFeedbackByAnswerID(ctx, answerID)
}

// GetAggregate returns the durable aggregate for a user.
func (s *ReadService) GetAggregate(ctx context.Context, userID int64) (domain.Aggregate, error) {
	return s.aggregates.GetAggregate(ctx, userID)
}

// GetMyRank returns the user's position and tier progress. A user without a
// leaderboard entry yields domain.ErrNotRanked, never rank zero.
func (s *ReadService) GetMyRank(ctx context.Context, userID int64) (RankView, error) {
	pos, err := s.index.Rank(ctx, userID)
	if err != nil {
		return RankView{}, err
	}

	agg, err := s.aggregates.GetAggregate(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return RankView{}, fmt.Errorf("user %d indexed without aggregate: %w", userID, domain.ErrNotRanked)
	}
	if err != nil {
		return RankView{}, err
	}

	return s.view(agg, pos+1), nil
}

// GetTopK returns the k highest-ranked users. k is clamped to [0, MaxTopK].
func (s *ReadService) GetTopK(ctx context.Context, k int) ([]RankView, error) {
	k = min(max(k, 0), MaxTopK)
	if k == 0 {
		return []RankView{}, nil
	}

	entries, err := s.index.TopK(ctx, k)
	if err != nil {
		return nil, err
	}

	views := make([]RankView, 0, len(entries))
	for i, e := range entries {
		agg, err := s.aggregates.GetAggregate(ctx, e.UserID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			agg = domain.Aggregate{UserID: e.UserID, TotalScore: e.Score, Tier: s.ladder.Resolve(e.Score)}
		case err != nil:
			return nil, err
		}
		views = append(views, s.view(agg, int64(i)+1))
	}
	return views, nil
}

func (s *ReadService) view(agg domain.Aggregate, rank int64) RankView {
	tier := agg.Tier
	if tier == "" {
		tier = s.ladder.Resolve(agg.TotalScore)
	}
	return RankView{
		UserID:           agg.UserID,
		Rank:             rank,
		TotalScore:       agg.TotalScore,
		Tier:             tier,
		NextTier:         s.ladder.Next(tier),
		PointsToNextTier: s.ladder.PointsToNext(agg.TotalScore),
	}
}
