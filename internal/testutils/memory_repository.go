// Package testutils provides in-memory fakes shared by package tests.
package testutils

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// MemoryRepository is an in-memory ports.ScoreRepository and ports.Transactor.
// Transactions run serially against a copy of the state, which replaces the
// live state only when the transaction function succeeds.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState

	// Err, when set, is returned by every operation. Tests use it to
	// simulate an unavailable database.
	Err error
}

type ledgerKey struct{ user, question int64 }

type memoryState struct {
	feedback   map[int64]domain.Feedback
	best       map[ledgerKey]domain.BestScoreRecord
	aggregates map[int64]domain.Aggregate
	failWith   error
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memoryState{
		feedback:   make(map[int64]domain.Feedback),
		best:       make(map[ledgerKey]domain.BestScoreRecord),
		aggregates: make(map[int64]domain.Aggregate),
	}}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		feedback:   maps.Clone(s.feedback),
		best:       maps.Clone(s.best),
		aggregates: maps.Clone(s.aggregates),
		failWith:   s.failWith,
	}
}

// InTx runs fn against a snapshot and commits it when fn returns nil.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(repo ports.ScoreRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := r.state.clone()
	tx.failWith = r.Err
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx
	return nil
}

// SetBestScore writes a ledger record without any checks. Tests use it to
// plant corrupt data.
func (r *MemoryRepository) SetBestScore(userID, questionID, points int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.best[ledgerKey{userID, questionID}] = domain.BestScoreRecord{
		UserID: userID, QuestionID: questionID, BestScore: points, UpdatedAt: time.Now().UTC(),
	}
}

// FeedbackCount returns the number of stored feedback rows.
func (r *MemoryRepository) FeedbackCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.feedback)
}

func (r *MemoryRepository) locked() (*memoryState, func()) {
	r.mu.Lock()
	st := r.state
	st.failWith = r.Err
	return st, r.mu.Unlock
}

func (r *MemoryRepository) UpsertFeedback(ctx context.Context, answerID int64, score int, explanation string) (domain.Feedback, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.UpsertFeedback(ctx, answerID, score, explanation)
}

func (r *MemoryRepository) GetFeedbackByAnswerID(ctx context.Context, answerID int64) (domain.Feedback, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.GetFeedbackByAnswerID(ctx, answerID)
}

func (r *MemoryRepository) RecordIfHigher(ctx context.Context, userID, questionID, points int64) (bool, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.RecordIfHigher(ctx, userID, questionID, points)
}

func (r *MemoryRepository) SumBestScores(ctx context.Context, userID int64) (int64, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.SumBestScores(ctx, userID)
}

func (r *MemoryRepository) GetBestScore(ctx context.Context, userID, questionID int64) (domain.BestScoreRecord, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.GetBestScore(ctx, userID, questionID)
}

func (r *MemoryRepository) GetAggregate(ctx context.Context, userID int64) (domain.Aggregate, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.GetAggregate(ctx, userID)
}

func (r *MemoryRepository) SaveAggregate(ctx context.Context, agg domain.Aggregate) error {
	st, unlock := r.locked()
	defer unlock()
	return st.SaveAggregate(ctx, agg)
}

func (r *MemoryRepository) UpdateRank(ctx context.Context, userID, rank int64) error {
	st, unlock := r.locked()
	defer unlock()
	return st.UpdateRank(ctx, userID, rank)
}

func (r *MemoryRepository) ListAggregates(ctx context.Context, afterUserID int64, limit int) ([]domain.Aggregate, error) {
	st, unlock := r.locked()
	defer unlock()
	return st.ListAggregates(ctx, afterUserID, limit)
}

func (s *memoryState) UpsertFeedback(_ context.Context, answerID int64, score int, explanation string) (domain.Feedback, error) {
	if s.failWith != nil {
		return domain.Feedback{}, s.failWith
	}
	if err := domain.ValidateScore(score); err != nil {
		return domain.Feedback{}, err
	}
	now := time.Now().UTC()
	fb, ok := s.feedback[answerID]
	if !ok {
		fb = domain.Feedback{ID: uuid.New(), AnswerID: answerID, CreatedAt: now}
	}
	fb.Score = score
	fb.Explanation = explanation
	fb.UpdatedAt = now
	s.feedback[answerID] = fb
	return fb, nil
}

func (s *memoryState) GetFeedbackByAnswerID(_ context.Context, answerID int64) (domain.Feedback, error) {
	if s.failWith != nil {
		return domain.Feedback{}, s.failWith
	}
	fb, ok := s.feedback[answerID]
	if !ok {
		return domain.Feedback{}, domain.ErrNotFound
	}
	return fb, nil
}

func (s *memoryState) RecordIfHigher(_ context.Context, userID, questionID, points int64) (bool, error) {
	if s.failWith != nil {
		return false, s.failWith
	}
	if points < 0 {
		return false, fmt.Errorf("%w: negative points %d", domain.ErrInvalidScore, points)
	}
	key := ledgerKey{userID, questionID}
	if rec, ok := s.best[key]; ok && rec.BestScore >= points {
		return false, nil
	}
	s.best[key] = domain.BestScoreRecord{
		UserID: userID, QuestionID: questionID, BestScore: points, UpdatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (s *memoryState) SumBestScores(_ context.Context, userID int64) (int64, error) {
	if s.failWith != nil {
		return 0, s.failWith
	}
	var total int64
	for key, rec := range s.best {
		if key.user == userID {
			total += rec.BestScore
		}
	}
	return total, nil
}

func (s *memoryState) GetBestScore(_ context.Context, userID, questionID int64) (domain.BestScoreRecord, error) {
	if s.failWith != nil {
		return domain.BestScoreRecord{}, s.failWith
	}
	rec, ok := s.best[ledgerKey{userID, questionID}]
	if !ok {
		return domain.BestScoreRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memoryState) GetAggregate(_ context.Context, userID int64) (domain.Aggregate, error) {
	if s.failWith != nil {
		return domain.Aggregate{}, s.failWith
	}
	agg, ok := s.aggregates[userID]
	if !ok {
		return domain.Aggregate{}, domain.ErrNotFound
	}
	return agg, nil
}

func (s *memoryState) SaveAggregate(_ context.Context, agg domain.Aggregate) error {
	if s.failWith != nil {
		return s.failWith
	}
	if existing, ok := s.aggregates[agg.UserID]; ok {
		agg.Rank = existing.Rank
	} else {
		agg.Rank = 0
	}
	if agg.UpdatedAt.IsZero() {
		agg.UpdatedAt = time.Now().UTC()
	}
	s.aggregates[agg.UserID] = agg
	return nil
}

func (s *memoryState) UpdateRank(_ context.Context, userID, rank int64) error {
	if s.failWith != nil {
		return s.failWith
	}
	agg, ok := s.aggregates[userID]
	if !ok {
		return domain.ErrNotFound
	}
	agg.Rank = rank
	s.aggregates[userID] = agg
	return nil
}

func (s *memoryState) ListAggregates(_ context.Context, afterUserID int64, limit int) ([]domain.Aggregate, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []domain.Aggregate
	for id, agg := range s.aggregates {
		if id > afterUserID {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) > limit {
		out = out[:max(limit, 0)]
	}
	return out, nil
}

var (
	_ ports.ScoreRepository = (*MemoryRepository)(nil)
	_ ports.Transactor      = (*MemoryRepository)(nil)
	_ ports.ScoreRepository = (*memoryState)(nil)
)
