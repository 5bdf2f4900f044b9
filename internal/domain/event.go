package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes why an answer is being scored. Both kinds drive the
// same scoring flow.
type EventKind string

// Submission event kinds.
const (
	AnswerCreated EventKind = "answer.created"
	AnswerUpdated EventKind = "answer.updated"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return k == AnswerCreated || k == AnswerUpdated
}

// AnswerEvent is published by the answer-writing service after its transaction
// commits. Delivery is at-least-once.
type AnswerEvent struct {
	EventID           uuid.UUID `json:"event_id"`
	Kind              EventKind `json:"kind" validate:"required,oneof=answer.created answer.updated"`
	AnswerID          int64     `json:"answer_id" validate:"required,gt=0"`
	UserID            int64     `json:"user_id" validate:"required,gt=0"`
	QuestionID        int64     `json:"question_id" validate:"required,gt=0"`
	QuestionText      string    `json:"question_text" validate:"required"`
	AnswerText        string    `json:"answer_text" validate:"required"`
	QuestionBaseScore int       `json:"question_base_score,omitempty" validate:"min=0"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NewAnswerEvent stamps a fresh event ID and timestamp on a submission.
func NewAnswerEvent(kind EventKind, answerID, userID, questionID int64, questionText, answerText string) AnswerEvent {
	return AnswerEvent{
		EventID:      uuid.New(),
		Kind:         kind,
		AnswerID:     answerID,
		UserID:       userID,
		QuestionID:   questionID,
		QuestionText: questionText,
		AnswerText:   answerText,
		OccurredAt:   time.Now().UTC(),
	}
}

// SubmissionState tracks one answer through the scoring pipeline.
type SubmissionState int

// Submission states in pipeline order. FeedbackRecorded and
// ScoringFailedLogged are terminal.
const (
	StateWritten SubmissionState = iota
	StateEventPublished
	StateConsumed
	StateScoringInFlight
	StateFeedbackRecorded
	StateScoringFailedLogged
)

// String returns the state's log label.
func (s SubmissionState) String() string {
	switch s {
	case StateWritten:
		return "written"
	case StateEventPublished:
		return "event_published"
	case StateConsumed:
		return "consumed"
	case StateScoringInFlight:
		return "scoring_in_flight"
	case StateFeedbackRecorded:
		return "feedback_recorded"
	case StateScoringFailedLogged:
		return "scoring_failed_logged"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next follows the pipeline
// order.
func (s SubmissionState) CanTransition(next SubmissionState) bool {
	switch s {
	case StateWritten:
		return next == StateEventPublished
	case StateEventPublished:
		return next == StateConsumed
	case StateConsumed:
		return next == StateScoringInFlight
	case StateScoringInFlight:
		return next == StateFeedbackRecorded || next == StateScoringFailedLogged
	default:
		return false
	}
}
