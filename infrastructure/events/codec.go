// Package events routes submission events from the answer-writing side to the
// scoring pipeline. MemoryRouter serves single-process deployments; AsynqRouter
// gives durable at-least-once delivery over Redis.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// Task types carried by the durable queue.
const (
	TypeAnswerCreated = "answer:created"
	TypeAnswerUpdated = "answer:updated"
)

var validate = validator.New()

// TaskType maps an event kind onto its queue task type.
func TaskType(kind domain.EventKind) (string, error) {
	switch kind {
	case domain.AnswerCreated:
		return TypeAnswerCreated, nil
	case domain.AnswerUpdated:
		return TypeAnswerUpdated, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidEvent, kind)
	}
}

// ValidateEvent checks that ev carries everything the pipeline needs.
func ValidateEvent(ev domain.AnswerEvent) error {
	if err := validate.Struct(ev); err != nil {
		verr := domain.NewValidationError("AnswerEvent")
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				verr.AddError(fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		} else {
			verr.AddError(err.Error())
		}
		return verr
	}
	return nil
}

// EncodeTask validates ev and wraps it in an asynq task.
func EncodeTask(ev domain.AnswerEvent) (*asynq.Task, error) {
	if err := ValidateEvent(ev); err != nil {
		return nil, err
	}
	typ, err := TaskType(ev.Kind)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answer event: %w", err)
	}
	return asynq.NewTask(typ, payload), nil
}

// DecodeTask unmarshals and validates the event carried by task. The task
// type must agree with the event kind.
func DecodeTask(task *asynq.Task) (domain.AnswerEvent, error) {
	var ev domain.AnswerEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return domain.AnswerEvent{}, fmt.Errorf("%w: failed to unmarshal payload: %w", domain.ErrInvalidEvent, err)
	}
	typ, err := TaskType(ev.Kind)
	if err != nil {
		return domain.AnswerEvent{}, err
	}
	if typ != task.Type() {
		return domain.AnswerEvent{}, fmt.Errorf("%w: task type %s carries kind %s", domain.ErrInvalidEvent, task.Type(), ev.Kind)
	}
	if err := ValidateEvent(ev); err != nil {
		return domain.AnswerEvent{}, err
	}
	return ev, nil
}
