// Package leaderboard implements the ranked leaderboard index: an in-process
// skip list for single-node deployments and tests, and a Redis sorted set for
// shared deployments.
package leaderboard

import (
	"context"
	"sync"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

var _ ports.LeaderboardIndex = (*MemoryIndex)(nil)

// MemoryIndex is an in-process LeaderboardIndex. Upserts and rank lookups are
// O(log n); TopK is O(log n + k).
type MemoryIndex struct {
	mu     sync.RWMutex
	list   *skipList
	scores map[int64]int64
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		list:   newSkipList(),
		scores: make(map[int64]int64),
	}
}

// Upsert inserts the user or moves them to their new score.
func (m *MemoryIndex) Upsert(_ context.Context, userID, score int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.scores[userID]; ok {
		if old == score {
			return nil
		}
		m.list.remove(domain.LeaderboardEntry{UserID: userID, Score: old})
	}
	m.list.insert(domain.LeaderboardEntry{UserID: userID, Score: score})
	m.scores[userID] = score
	return nil
}

// Rank returns the user's zero-based position.
func (m *MemoryIndex) Rank(_ context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	score, ok := m.scores[userID]
	if !ok {
		return 0, domain.ErrNotRanked
	}
	r := m.list.rank(domain.LeaderboardEntry{UserID: userID, Score: score})
	if r == 0 {
		return 0, ports.NewIndexError("memory", "rank", domain.ErrNotRanked)
	}
	return r - 1, nil
}

// TopK returns at most k entries, highest first.
func (m *MemoryIndex) TopK(_ context.Context, k int) ([]domain.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.first(k), nil
}

// Replace rebuilds the index from entries. When a user appears more than once
// the last entry wins.
func (m *MemoryIndex) Replace(_ context.Context, entries []domain.LeaderboardEntry) error {
	scores := make(map[int64]int64, len(entries))
	for _, e := range entries {
		scores[e.UserID] = e.Score
	}
	list := newSkipList()
	for userID, score := range scores {
		list.insert(domain.LeaderboardEntry{UserID: userID, Score: score})
	}

	m.mu.Lock()
	m.list = list
	m.scores = scores
	m.mu.Unlock()
	return nil
}

// Len returns the number of ranked users.
func (m *MemoryIndex) Len(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.length, nil
}
