package ports

import (
	"context"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// FeedbackStore persists exactly one Feedback per answer.
type FeedbackStore interface {
	// UpsertFeedback inserts or replaces the score and explanation for answerID.
	UpsertFeedback(ctx context.Context, answerID int64, score int, explanation string) (domain.Feedback, error)

	// GetFeedbackByAnswerID returns domain.ErrNotFound when the answer has not
	// been scored.
	GetFeedbackByAnswerID(ctx context.Context, answerID int64) (domain.Feedback, error)
}

// BestScoreLedger records the highest contribution a user has earned per
// question.
type BestScoreLedger interface {
	// RecordIfHigher stores points for (userID, questionID) when no record
	// exists or points is strictly greater than the stored best. It reports
	// whether the stored value changed. The comparison and the write are a
	// single atomic step.
	RecordIfHigher(ctx context.Context, userID, questionID, points int64) (bool, error)

	// SumBestScores returns the sum of every best score for userID, or zero when
	// the user has no records.
	SumBestScores(ctx context.Context, userID int64) (int64, error)

	// GetBestScore returns domain.ErrNotFound when no record exists.
	GetBestScore(ctx context.Context, userID, questionID int64) (domain.BestScoreRecord, error)
}

// AggregateStore holds each user's durable total and tier.
type AggregateStore interface {
	// GetAggregate returns domain.ErrNotFound for users that were never
	// recomputed.
	GetAggregate(ctx context.Context, userID int64) (domain.Aggregate, error)

	// SaveAggregate writes the total and tier for a user, creating the row on
	// first use. Rank is left untouched.
	SaveAggregate(ctx context.Context, agg domain.Aggregate) error

	// UpdateRank stores the advisory rank for a user.
	UpdateRank(ctx context.Context, userID, rank int64) error

	// ListAggregates pages through all aggregates ordered by user ID, starting
	// after afterUserID. An empty page means the end was reached.
	ListAggregates(ctx context.Context, afterUserID int64, limit int) ([]domain.Aggregate, error)
}

// ScoreRepository is the set of stores the scoring pipeline mutates together.
type ScoreRepository interface {
	FeedbackStore
	BestScoreLedger
	AggregateStore
}

// Transactor runs fn against a ScoreRepository bound to a single database
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(repo ScoreRepository) error) error
}
