package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// WriteFunc performs the answer write inside tx and returns the event that
// describes it.
type WriteFunc func(tx *gorm.DB) (domain.AnswerEvent, error)

// CommitThenPublish runs write in a transaction and publishes its event only
// after the commit succeeds. A failed write or commit publishes nothing. A
// publish failure is returned but does not undo the committed write.
func CommitThenPublish(ctx context.Context, db *gorm.DB, publisher ports.EventPublisher, write WriteFunc) (domain.AnswerEvent, error) {
	var event domain.AnswerEvent
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := write(tx)
		if err != nil {
			return err
		}
		event = ev
		return nil
	})
	if err != nil {
		return domain.AnswerEvent{}, fmt.Errorf("answer write rolled back: %w", err)
	}

	if err := publisher.Publish(ctx, event); err != nil {
		return event, fmt.Errorf("answer committed but event publish failed: %w", err)
	}
	return event, nil
}
