package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContributionPoints(t *testing.T) {
	tests := []struct {
		name  string
		score int
		base  int
		want  int64
	}{
		{name: "default base keeps raw score", score: 85, base: 0, want: 85},
		{name: "explicit hundred", score: 40, base: 100, want: 40},
		{name: "exact half rounds up", score: 50, base: 5, want: 3},
		{name: "below half rounds down", score: 49, base: 5, want: 2},
		{name: "zero score", score: 0, base: 250, want: 0},
		{name: "full score on large question", score: 100, base: 250, want: 250},
		{name: "negative base treated as default", score: 73, base: -10, want: 73},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContributionPoints(tt.score, tt.base))
		})
	}
}

func TestScoreResult_Validate(t *testing.T) {
	assert.NoError(t, ScoreResult{Score: 0, Explanation: "wrong"}.Validate())
	assert.NoError(t, ScoreResult{Score: 100, Explanation: "perfect"}.Validate())
	assert.ErrorIs(t, ScoreResult{Score: 101, Explanation: "x"}.Validate(), ErrInvalidScore)
	assert.ErrorIs(t, ScoreResult{Score: -1, Explanation: "x"}.Validate(), ErrInvalidScore)
	assert.ErrorIs(t, ScoreResult{Score: 50}.Validate(), ErrInvalidScore)
}

func TestSubmissionState_Transitions(t *testing.T) {
	path := []SubmissionState{
		StateWritten,
		StateEventPublished,
		StateConsumed,
		StateScoringInFlight,
		StateFeedbackRecorded,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransition(path[i+1]), "%s -> %s", path[i], path[i+1])
	}

	assert.True(t, StateScoringInFlight.CanTransition(StateScoringFailedLogged))
	assert.False(t, StateWritten.CanTransition(StateConsumed), "cannot skip publish")
	assert.False(t, StateFeedbackRecorded.CanTransition(StateConsumed), "terminal states are final")
	assert.False(t, StateScoringFailedLogged.CanTransition(StateScoringInFlight), "terminal states are final")
	assert.Equal(t, "scoring_in_flight", StateScoringInFlight.String())
}

func TestEventKind_Valid(t *testing.T) {
	assert.True(t, AnswerCreated.Valid())
	assert.True(t, AnswerUpdated.Valid())
	assert.False(t, EventKind("answer.deleted").Valid())

	ev := NewAnswerEvent(AnswerCreated, 1, 2, 3, "q", "a")
	assert.NotEqual(t, [16]byte{}, [16]byte(ev.EventID), "event id should be assigned")
	assert.False(t, ev.OccurredAt.IsZero())
}
