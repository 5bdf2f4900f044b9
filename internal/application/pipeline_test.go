package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/ahrav/go-scorekeeper/infrastructure/leaderboard"
	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
	"github.com/ahrav/go-scorekeeper/internal/testutils"
)

// scriptedProvider returns a fixed outcome per answer text.
type scriptedProvider struct {
	mu      sync.Mutex
	results map[string]domain.ScoreResult
	errs    map[string]error
	calls   int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{results: map[string]domain.ScoreResult{}, errs: map[string]error{}}
}

func (p *scriptedProvider) set(answer string, score int) *scriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[answer] = domain.ScoreResult{Score: score, Explanation: fmt.Sprintf("graded %d", score)}
	delete(p.errs, answer)
	return p
}

func (p *scriptedProvider) fail(answer string, err error) *scriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[answer] = err
	return p
}

func (p *scriptedProvider) Score(_ context.Context, _ string, answer string) (domain.ScoreResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err, ok := p.errs[answer]; ok {
		return domain.ScoreResult{}, err
	}
	if res, ok := p.results[answer]; ok {
		return res, nil
	}
	return domain.ScoreResult{}, domain.NewScoringError(errors.New("no script"), nil)
}

type pipelineFixture struct {
	pipeline *ScoringPipeline
	provider *scriptedProvider
	repo     *testutils.MemoryRepository
	index    *leaderboard.MemoryIndex
	metrics  *testutils.RecordingMetrics
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		provider: newScriptedProvider(),
		repo:     testutils.NewMemoryRepository(),
		index:    leaderboard.NewMemoryIndex(),
		metrics:  testutils.NewRecordingMetrics(),
	}
	p, err := NewScoringPipeline(PipelineDeps{
		Provider:       f.provider,
		Transactor:     f.repo,
		Index:          f.index,
		Aggregator:     NewScoreAggregator(domain.DefaultTierLadder()),
		LockStripes:    8,
		Logger:         zaptest.NewLogger(t),
		Metrics:        f.metrics,
		TracerProvider: noop.NewTracerProvider(),
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func answerEvent(kind domain.EventKind, answerID, userID, questionID int64, answer string) domain.AnswerEvent {
	return domain.NewAnswerEvent(kind, answerID, userID, questionID, "What is a goroutine?", answer)
}

func TestScoringPipeline_ScenarioA(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.provider.set("first try", 40).set("second try", 85).set("other question", 60)

	require.NoError(t, f.pipeline.Handle(ctx, answerEvent(domain.AnswerCreated, 100, 1, 1, "first try")))
	require.NoError(t, f.pipeline.Handle(ctx, answerEvent(domain.AnswerUpdated, 100, 1, 1, "second try")))

	best, err := f.repo.GetBestScore(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(85), best.BestScore)

	require.NoError(t, f.pipeline.Handle(ctx, answerEvent(domain.AnswerCreated, 200, 1, 2, "other question")))

	agg, err := f.repo.GetAggregate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(145), agg.TotalScore)
	assert.Equal(t, domain.TierUnrated, agg.Tier)
	assert.Equal(t, int64(1), agg.Rank, "advisory rank should be stored one-based")

	fb, err := f.repo.GetFeedbackByAnswerID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 85, fb.Score, "feedback reflects the latest scoring")

	rank, err := f.index.Rank(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rank)
	top, err := f.index.TopK(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.LeaderboardEntry{{UserID: 1, Score: 145}}, top)

	assert.Equal(t, float64(3), f.metrics.Counter(MetricStateTotal, map[string]string{"state": "feedback_recorded"}))
	assert.Equal(t, float64(3), f.metrics.Counter(MetricLedgerImproved, nil))
}

func TestScoringPipeline_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.provider.set("answer", 70)
	ev := answerEvent(domain.AnswerCreated, 5, 9, 3, "answer")

	require.NoError(t, f.pipeline.Handle(ctx, ev))
	first, err := f.repo.GetFeedbackByAnswerID(ctx, 5)
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, f.pipeline.Handle(ctx, ev))
	}

	again, err := f.repo.GetFeedbackByAnswerID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "redelivery must not create a second feedback row")
	assert.Equal(t, 1, f.repo.FeedbackCount())

	agg, err := f.repo.GetAggregate(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(70), agg.TotalScore)
	assert.Equal(t, float64(1), f.metrics.Counter(MetricLedgerImproved, nil))
}

func TestScoringPipeline_LowerRescoreKeepsBest(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.provider.set("strong", 90).set("weak", 30)

	require.NoError(t, f.pipeline.Handle(ctx, answerEvent(domain.AnswerCreated, 1, 4, 1, "strong")))
	require.NoError(t, f.pipeline.Handle(ctx, answerEvent(domain.AnswerUpdated, 1, 4, 1, "weak")))

	best, err := f.repo.GetBestScore(ctx, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(90), best.BestScore, "best score never decreases")

	fb, err := f.repo.GetFeedbackByAnswerID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 30, fb.Score, "feedback still shows the latest score")
}

func TestScoringPipeline_QuestionBaseScore(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.provider.set("answer", 50)

	ev := answerEvent(domain.AnswerCreated, 1, 2, 3, "answer")
	ev.QuestionBaseScore = 5
	require.NoError(t, f.pipeline.Handle(ctx, ev))

	best, err := f.repo.GetBestScore(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), best.BestScore, "50% of 5 rounds half up")
}

func TestScoringPipeline_ScoringFailureLeavesFeedback(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.provider.set("answer", 65)
	ev := answerEvent(domain.AnswerCreated, 11, 3, 1, "answer")
	require.NoError(t, f.pipeline.Handle(ctx, ev))

	f.provider.fail("answer", domain.NewScoringError(domain.ErrProviderTimeout, domain.ErrProviderUnavailable))
	ev.Kind = domain.AnswerUpdated
	err := f.pipeline.Handle(ctx, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrScoringFailed)

	fb, err := f.repo.GetFeedbackByAnswerID(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 65, fb.Score)
	assert.Equal(t, float64(1), f.metrics.Counter(MetricStateTotal, map[string]string{"state": "scoring_failed_logged"}))
}

func TestScoringPipeline_CorruptionPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.provider.set("answer", 80)
	f.repo.SetBestScore(6, 99, -500)

	err := f.pipeline.Handle(ctx, answerEvent(domain.AnswerCreated, 21, 6, 1, "answer"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerCorruption)

	_, err = f.repo.GetFeedbackByAnswerID(ctx, 21)
	assert.ErrorIs(t, err, domain.ErrNotFound, "feedback write must roll back with the ledger")
	_, err = f.repo.GetBestScore(ctx, 6, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.index.Rank(ctx, 6)
	assert.ErrorIs(t, err, domain.ErrNotRanked)
}

func TestScoringPipeline_StoreFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.provider.set("answer", 80)
	f.repo.Err = ports.NewStoreError("feedback", "upsert", errors.New("disk full"))

	err := f.pipeline.Handle(context.Background(), answerEvent(domain.AnswerCreated, 1, 1, 1, "answer"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrScoringFailed)
	assert.Contains(t, err.Error(), "disk full")
}

func TestScoringPipeline_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	for q := 1; q <= 20; q++ {
		f.provider.set(fmt.Sprintf("answer-%d", q), q)
	}

	var wg sync.WaitGroup
	for q := int64(1); q <= 20; q++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := answerEvent(domain.AnswerCreated, 1000+q, 42, q, fmt.Sprintf("answer-%d", q))
			assert.NoError(t, f.pipeline.Handle(ctx, ev))
		}()
	}
	wg.Wait()

	agg, err := f.repo.GetAggregate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(210), agg.TotalScore)

	top, err := f.index.TopK(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(210), top[0].Score, "index should hold the final total")
}

func TestNewScoringPipeline_Validation(t *testing.T) {
	repo := testutils.NewMemoryRepository()
	index := leaderboard.NewMemoryIndex()

	_, err := NewScoringPipeline(PipelineDeps{Transactor: repo, Index: index})
	assert.ErrorContains(t, err, "score provider")
	_, err = NewScoringPipeline(PipelineDeps{Provider: newScriptedProvider(), Index: index})
	assert.ErrorContains(t, err, "transactor")
	_, err = NewScoringPipeline(PipelineDeps{Provider: newScriptedProvider(), Transactor: repo})
	assert.ErrorContains(t, err, "leaderboard index")
}
