package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// answerRow stands in for the answer-writing service's own table.
type answerRow struct {
	ID         int64 `gorm:"primaryKey"`
	UserID     int64
	QuestionID int64
	Body       string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AnswerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.AnswerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func writeAnswer(body string, fail error) WriteFunc {
	return func(tx *gorm.DB) (domain.AnswerEvent, error) {
		row := answerRow{UserID: 1, QuestionID: 2, Body: body}
		if err := tx.Create(&row).Error; err != nil {
			return domain.AnswerEvent{}, err
		}
		if fail != nil {
			return domain.AnswerEvent{}, fail
		}
		return domain.NewAnswerEvent(domain.AnswerCreated, row.ID, row.UserID, row.QuestionID, "q", row.Body), nil
	}
}

func TestCommitThenPublish(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&answerRow{}))
	ctx := context.Background()

	t.Run("publishes after commit", func(t *testing.T) {
		pub := &recordingPublisher{}
		ev, err := CommitThenPublish(ctx, db, pub, writeAnswer("first", nil))
		require.NoError(t, err)

		require.Len(t, pub.events, 1)
		assert.Equal(t, ev.EventID, pub.events[0].EventID)

		var row answerRow
		require.NoError(t, db.First(&row, ev.AnswerID).Error)
		assert.Equal(t, "first", row.Body)
	})

	t.Run("rollback publishes nothing", func(t *testing.T) {
		pub := &recordingPublisher{}
		writeErr := errors.New("constraint violated")

		_, err := CommitThenPublish(ctx, db, pub, writeAnswer("second", writeErr))
		require.ErrorIs(t, err, writeErr)
		assert.Empty(t, pub.events)

		var count int64
		require.NoError(t, db.Model(&answerRow{}).Where("body = ?", "second").Count(&count).Error)
		assert.Zero(t, count, "failed write should not be committed")
	})

	t.Run("publish failure keeps the write", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("queue down")}

		ev, err := CommitThenPublish(ctx, db, pub, writeAnswer("third", nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publish failed")

		var row answerRow
		assert.NoError(t, db.First(&row, ev.AnswerID).Error)
	})
}
