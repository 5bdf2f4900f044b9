package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// Entity names used in StoreError.
const (
	entityFeedback  = "feedback"
	entityBestScore = "best_score"
	entityAggregate = "aggregate"
)

var (
	_ ports.ScoreRepository = (*Repository)(nil)
	_ ports.Transactor      = (*Repository)(nil)
)

// Repository implements every score store on one *gorm.DB, which is either
// the pool or a transaction handle.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a Repository on db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InTx runs fn against a Repository bound to a new transaction.
func (r *Repository) InTx(ctx context.Context, fn func(repo ports.ScoreRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// UpsertFeedback inserts feedback for answerID or replaces its score and
// explanation. The row keeps its ID and CreatedAt across replacements.
func (r *Repository) UpsertFeedback(ctx context.Context, answerID int64, score int, explanation string) (domain.Feedback, error) {
	if err := domain.ValidateScore(score); err != nil {
		return domain.Feedback{}, ports.NewStoreError(entityFeedback, "upsert", err)
	}

	now := time.Now().UTC()
	row := feedbackRow{
		ID:          uuid.New(),
		AnswerID:    answerID,
		Score:       score,
		Explanation: explanation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "answer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "explanation", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return domain.Feedback{}, ports.NewStoreError(entityFeedback, "upsert", err)
	}

	return r.GetFeedbackByAnswerID(ctx, answerID)
}

// GetFeedbackByAnswerID returns the feedback for answerID.
func (r *Repository) GetFeedbackByAnswerID(ctx context.Context, answerID int64) (domain.Feedback, error) {
	var row feedbackRow
	err := r.db.WithContext(ctx).Where("answer_id = ?", answerID).First(&row).Error
	if err != nil {
		return domain.Feedback{}, ports.NewStoreError(entityFeedback, "get", notFound(err))
	}
	return row.toDomain(), nil
}

// RecordIfHigher inserts the record or raises it with a conditional update,
// so concurrent writers can never lower a stored best.
func (r *Repository) RecordIfHigher(ctx context.Context, userID, questionID, points int64) (bool, error) {
	if points < 0 {
		return false, ports.NewStoreError(entityBestScore, "record", fmt.Errorf("%w: negative points %d", domain.ErrInvalidScore, points))
	}

	now := time.Now().UTC()
	db := r.db.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&bestScoreRow{
		UserID:     userID,
		QuestionID: questionID,
		BestScore:  points,
		UpdatedAt:  now,
	})
	if res.Error != nil {
		return false, ports.NewStoreError(entityBestScore, "record", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = db.Model(&bestScoreRow{}).
		Where("user_id = ? AND question_id = ? AND best_score < ?", userID, questionID, points).
		Updates(map[string]any{"best_score": points, "updated_at": now})
	if res.Error != nil {
		return false, ports.NewStoreError(entityBestScore, "record", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SumBestScores returns the ledger sum for userID.
func (r *Repository) SumBestScores(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&bestScoreRow{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(best_score), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, ports.NewStoreError(entityBestScore, "sum", err)
	}
	return total, nil
}

// GetBestScore returns the ledger entry for (userID, questionID).
func (r *Repository) GetBestScore(ctx context.Context, userID, questionID int64) (domain.BestScoreRecord, error) {
	var row bestScoreRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		First(&row).Error
	if err != nil {
		return domain.BestScoreRecord{}, ports.NewStoreError(entityBestScore, "get", notFound(err))
	}
	return row.toDomain(), nil
}

// GetAggregate returns the aggregate for userID.
func (r *Repository) GetAggregate(ctx context.Context, userID int64) (domain.Aggregate, error) {
	var row aggregateRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		return domain.Aggregate{}, ports.NewStoreError(entityAggregate, "get", notFound(err))
	}
	return row.toDomain(), nil
}

// SaveAggregate upserts total and tier. An existing rank is preserved.
func (r *Repository) SaveAggregate(ctx context.Context, agg domain.Aggregate) error {
	updatedAt := agg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	row := aggregateRow{
		UserID:     agg.UserID,
		TotalScore: agg.TotalScore,
		Tier:       string(agg.Tier),
		UpdatedAt:  updatedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_score", "tier", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return ports.NewStoreError(entityAggregate, "save", err)
	}
	return nil
}

// UpdateRank stores the advisory rank for userID.
func (r *Repository) UpdateRank(ctx context.Context, userID, rank int64) error {
	res := r.db.WithContext(ctx).
		Model(&aggregateRow{}).
		Where("user_id = ?", userID).
		Update("rank", rank)
	if res.Error != nil {
		return ports.NewStoreError(entityAggregate, "update_rank", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.NewStoreError(entityAggregate, "update_rank", domain.ErrNotFound)
	}
	return nil
}

// ListAggregates returns up to limit aggregates with user IDs greater than
// afterUserID, in user ID order.
func (r *Repository) ListAggregates(ctx context.Context, afterUserID int64, limit int) ([]domain.Aggregate, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []aggregateRow
	err := r.db.WithContext(ctx).
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, ports.NewStoreError(entityAggregate, "list", err)
	}

	out := make([]domain.Aggregate, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// notFound maps gorm's missing-row error onto domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
