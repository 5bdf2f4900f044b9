package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
	"github.com/ahrav/go-scorekeeper/internal/testutils"
)

// recordingHandler collects handled answer IDs and can be told to fail or
// panic for specific answers.
type recordingHandler struct {
	mu      sync.Mutex
	handled []int64
	fail    map[int64]error
	panics  map[int64]bool
	delay   time.Duration
}

func (h *recordingHandler) Handle(ctx context.Context, ev domain.AnswerEvent) error {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.panics[ev.AnswerID] {
		panic("handler exploded")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, ev.AnswerID)
	return h.fail[ev.AnswerID]
}

func (h *recordingHandler) answers() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.handled...)
}

func eventFor(answerID int64) domain.AnswerEvent {
	return domain.NewAnswerEvent(domain.AnswerCreated, answerID, 1, 2, "q", "a")
}

func TestMemoryRouter_DeliversAndDrains(t *testing.T) {
	handler := &recordingHandler{delay: 5 * time.Millisecond}
	metrics := testutils.NewRecordingMetrics()
	router := NewMemoryRouter(handler, MemoryRouterConfig{Workers: 4, BufferSize: 64}, zaptest.NewLogger(t), metrics)
	router.Start(context.Background())

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, router.Publish(context.Background(), eventFor(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, router.Shutdown(ctx))

	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, handler.answers(),
		"shutdown should drain every buffered event")
	assert.Equal(t, 20.0, metrics.Counter(MetricPublishedTotal, map[string]string{"backend": "memory"}))
	assert.Equal(t, 20.0, metrics.Counter(MetricHandledTotal, map[string]string{"outcome": OutcomeOK}))

	assert.ErrorIs(t, router.Publish(context.Background(), eventFor(21)), ErrRouterClosed)
	assert.NoError(t, router.Shutdown(ctx), "second shutdown is a no-op")
}

func TestMemoryRouter_SurvivesFailuresAndPanics(t *testing.T) {
	handler := &recordingHandler{
		fail: map[int64]error{
			2: domain.NewScoringError(errors.New("p"), errors.New("s")),
			3: errors.New("database unavailable"),
		},
		panics: map[int64]bool{4: true},
	}
	metrics := testutils.NewRecordingMetrics()
	router := NewMemoryRouter(handler, MemoryRouterConfig{Workers: 1, BufferSize: 8}, zaptest.NewLogger(t), metrics)
	router.Start(context.Background())

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, router.Publish(context.Background(), eventFor(i)))
	}
	require.NoError(t, router.Shutdown(context.Background()))

	assert.Equal(t, []int64{1, 2, 3, 5}, handler.answers(), "the router keeps consuming after failures")
	assert.Equal(t, 2.0, metrics.Counter(MetricHandledTotal, map[string]string{"outcome": OutcomeOK}))
	assert.Equal(t, 1.0, metrics.Counter(MetricHandledTotal, map[string]string{"outcome": OutcomeScoringFailed}))
	assert.Equal(t, 1.0, metrics.Counter(MetricHandledTotal, map[string]string{"outcome": OutcomeError}))
	assert.Equal(t, 1.0, metrics.Counter(MetricHandledTotal, map[string]string{"outcome": OutcomePanic}))
}

func TestMemoryRouter_RejectsInvalidEvents(t *testing.T) {
	router := NewMemoryRouter(&recordingHandler{}, MemoryRouterConfig{}, nil, nil)
	ev := eventFor(1)
	ev.AnswerText = ""
	assert.ErrorIs(t, router.Publish(context.Background(), ev), domain.ErrInvalidEvent)
}

func TestMemoryRouter_PublishHonorsContext(t *testing.T) {
	router := NewMemoryRouter(&recordingHandler{}, MemoryRouterConfig{Workers: 1, BufferSize: 0}, nil, nil)
	// Not started: an unbuffered queue with no reader blocks until ctx ends.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, router.Publish(ctx, eventFor(1)), context.DeadlineExceeded)
}

func TestMemoryRouter_ShutdownTimeoutCancelsHandlers(t *testing.T) {
	handler := &recordingHandler{delay: time.Minute}
	router := NewMemoryRouter(handler, MemoryRouterConfig{Workers: 1, BufferSize: 1}, zaptest.NewLogger(t), nil)
	router.Start(context.Background())
	require.NoError(t, router.Publish(context.Background(), eventFor(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, router.Shutdown(ctx), context.DeadlineExceeded)
	assert.Empty(t, handler.answers())
}

func TestAsynqRouter_HandleTask(t *testing.T) {
	handler := &recordingHandler{
		fail: map[int64]error{
			2: domain.NewScoringError(errors.New("p"), errors.New("s")),
			3: errors.New("database unavailable"),
			4: &domain.CorruptionError{UserID: 1, Total: -5},
			5: domain.NewScoringError(errors.New("p"), context.DeadlineExceeded),
		},
	}
	metrics := testutils.NewRecordingMetrics()
	router := NewAsynqRouter(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, handler, AsynqConfig{}, zaptest.NewLogger(t), metrics)
	t.Cleanup(func() { _ = router.Close() })

	encode := func(answerID int64) *asynq.Task {
		task, err := EncodeTask(eventFor(answerID))
		require.NoError(t, err)
		return task
	}

	assert.NoError(t, router.HandleTask(context.Background(), encode(1)))

	err := router.HandleTask(context.Background(), encode(2))
	assert.ErrorIs(t, err, asynq.SkipRetry, "scoring failure is terminal")
	assert.ErrorIs(t, err, domain.ErrScoringFailed)

	err = router.HandleTask(context.Background(), encode(3))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry, "infrastructure errors are redelivered")

	err = router.HandleTask(context.Background(), encode(4))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, domain.ErrLedgerCorruption)

	err = router.HandleTask(context.Background(), encode(5))
	assert.ErrorIs(t, err, asynq.SkipRetry, "scoring cut off by the task timeout is not rescored")

	err = router.HandleTask(context.Background(), asynq.NewTask(TypeAnswerCreated, []byte("garbage")))
	assert.ErrorIs(t, err, asynq.SkipRetry, "malformed payloads are never retried")

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, handler.answers())
	assert.Equal(t, 1.0, metrics.Counter(MetricHandledTotal, map[string]string{"backend": "asynq", "outcome": OutcomeInvalid}))
}

func TestOutcomeAndTerminal(t *testing.T) {
	tests := []struct {
		err      error
		outcome  string
		terminal bool
	}{
		{err: nil, outcome: OutcomeOK},
		{err: domain.NewScoringError(nil, nil), outcome: OutcomeScoringFailed, terminal: true},
		{err: domain.NewValidationError("AnswerEvent"), outcome: OutcomeInvalid, terminal: true},
		{err: &PanicError{Value: "x"}, outcome: OutcomePanic, terminal: true},
		{err: &domain.CorruptionError{}, outcome: OutcomeError, terminal: true},
		{err: ports.NewStoreError("feedback", "upsert", errors.New("conn refused")), outcome: OutcomeError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.outcome, Outcome(tt.err), "%v", tt.err)
		assert.Equal(t, tt.terminal, Terminal(tt.err), "%v", tt.err)
	}
}
