package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// feedbackRow stores one scoring outcome per answer.
type feedbackRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AnswerID    int64     `gorm:"not null;uniqueIndex"`
	Score       int       `gorm:"not null"`
	Explanation string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (feedbackRow) TableName() string { return "feedback" }

func (r feedbackRow) toDomain() domain.Feedback {
	return domain.Feedback{
		ID:          r.ID,
		AnswerID:    r.AnswerID,
		Score:       r.Score,
		Explanation: r.Explanation,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// bestScoreRow is one ledger entry keyed by (user, question).
type bestScoreRow struct {
	UserID     int64     `gorm:"primaryKey;autoIncrement:false"`
	QuestionID int64     `gorm:"primaryKey;autoIncrement:false"`
	BestScore  int64     `gorm:"not null;check:best_score >= 0"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (bestScoreRow) TableName() string { return "best_scores" }

func (r bestScoreRow) toDomain() domain.BestScoreRecord {
	return domain.BestScoreRecord{
		UserID:     r.UserID,
		QuestionID: r.QuestionID,
		BestScore:  r.BestScore,
		UpdatedAt:  r.UpdatedAt,
	}
}

// aggregateRow is a user's durable total, tier and advisory rank.
type aggregateRow struct {
	UserID     int64  `gorm:"primaryKey;autoIncrement:false"`
	TotalScore int64  `gorm:"not null;index"`
	Tier       string `gorm:"size:32;not null"`
	Rank       int64  `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

func (aggregateRow) TableName() string { return "aggregates" }

func (r aggregateRow) toDomain() domain.Aggregate {
	return domain.Aggregate{
		UserID:     r.UserID,
		TotalScore: r.TotalScore,
		Tier:       domain.Tier(r.Tier),
		Rank:       r.Rank,
		UpdatedAt:  r.UpdatedAt,
	}
}
