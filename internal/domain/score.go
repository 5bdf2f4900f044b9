// Package domain holds the scoring pipeline's models: submission events,
// scores, best-score records, aggregates and the tier ladder.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Score bounds for a single AI-produced score. The unit is percentage
// correctness.
const (
	MinScore = 0
	MaxScore = 100

	// DefaultQuestionBaseScore is the point value of a question when the
	// submission does not carry one. With this base a score of N is worth N
	// ledger points.
	DefaultQuestionBaseScore = 100
)

// ScoreResult is the parsed reply of a scoring provider.
type ScoreResult struct {
	// Score is the percentage correctness in [MinScore, MaxScore].
	Score int

	// Explanation is the provider's free-text justification.
	Explanation string
}

// Validate reports whether the result is usable for persistence.
func (r ScoreResult) Validate() error {
	if err := ValidateScore(r.Score); err != nil {
		return err
	}
	if r.Explanation == "" {
		return fmt.Errorf("%w: empty explanation", ErrInvalidScore)
	}
	return nil
}

// ValidateScore reports whether score lies within the accepted range.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidScore, score, MinScore, MaxScore)
	}
	return nil
}

// ContributionPoints converts an AI score into ledger points for a question
// worth base points, rounding half up. A non-positive base means the default.
// Integer arithmetic keeps the result independent of float rounding modes.
func ContributionPoints(score, base int) int64 {
	if base <= 0 {
		base = DefaultQuestionBaseScore
	}
	return (int64(score)*int64(base) + 50) / 100
}

// Feedback is the durable scoring outcome for one answer.
type Feedback struct {
	ID          uuid.UUID
	AnswerID    int64
	Score       int
	Explanation string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BestScoreRecord is the highest number of points a user has earned on one
// question. BestScore never decreases.
type BestScoreRecord struct {
	UserID     int64
	QuestionID int64
	BestScore  int64
	UpdatedAt  time.Time
}

// Aggregate is a user's cumulative standing. TotalScore is always the ledger
// sum at the time of the last recompute. Rank is advisory; the leaderboard
// index is authoritative for position.
type Aggregate struct {
	UserID     int64
	TotalScore int64
	Tier       Tier
	Rank       int64
	UpdatedAt  time.Time
}

// LeaderboardEntry is a (user, score) pair held by a leaderboard index.
type LeaderboardEntry struct {
	UserID int64
	Score  int64
}
