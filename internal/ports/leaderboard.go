package ports

import (
	"context"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// LeaderboardIndex is a ranked (user, score) index ordered by score
// descending. Ties are ordered by user ID ascending so that positions are
// stable between calls.
type LeaderboardIndex interface {
	// Upsert inserts the user or replaces their score in one atomic step.
	Upsert(ctx context.Context, userID, score int64) error

	// Rank returns the user's zero-based position, or domain.ErrNotRanked when
	// the user is absent.
	Rank(ctx context.Context, userID int64) (int64, error)

	// TopK returns at most k entries, highest score first.
	TopK(ctx context.Context, k int) ([]domain.LeaderboardEntry, error)

	// Replace swaps the whole index for entries. Readers observe either the old
	// or the new contents.
	Replace(ctx context.Context, entries []domain.LeaderboardEntry) error

	// Len returns the number of ranked users.
	Len(ctx context.Context) (int64, error)
}
