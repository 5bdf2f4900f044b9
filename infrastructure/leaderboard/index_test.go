package leaderboard

import (
	"context"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

type indexFactory func(t *testing.T) ports.LeaderboardIndex

func backends() map[string]indexFactory {
	return map[string]indexFactory{
		"memory": func(t *testing.T) ports.LeaderboardIndex { return NewMemoryIndex() },
		"redis": func(t *testing.T) ports.LeaderboardIndex {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisIndex(rdb, "")
		},
	}
}

func TestIndex_RankAndTopK(t *testing.T) {
	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()

			require.NoError(t, idx.Upsert(ctx, 1, 145))
			require.NoError(t, idx.Upsert(ctx, 2, 300))
			require.NoError(t, idx.Upsert(ctx, 3, 90))

			rank, err := idx.Rank(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(0), rank)

			rank, err = idx.Rank(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, int64(2), rank)

			top, err := idx.TopK(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, []domain.LeaderboardEntry{{UserID: 2, Score: 300}, {UserID: 1, Score: 145}}, top)

			all, err := idx.TopK(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, all, 3, "k larger than the index returns everything")

			empty, err := idx.TopK(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, empty)

			n, err := idx.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)
		})
	}
}

func TestIndex_MissingUserIsNotRanked(t *testing.T) {
	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			_, err := idx.Rank(context.Background(), 77)
			assert.ErrorIs(t, err, domain.ErrNotRanked)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestIndex_UpsertMovesUser(t *testing.T) {
	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()

			require.NoError(t, idx.Upsert(ctx, 1, 100))
			require.NoError(t, idx.Upsert(ctx, 2, 200))
			require.NoError(t, idx.Upsert(ctx, 1, 250))
			require.NoError(t, idx.Upsert(ctx, 1, 250), "repeated upsert is a no-op")

			rank, err := idx.Rank(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(0), rank)

			n, err := idx.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n, "an upsert must not duplicate the user")
		})
	}
}

func TestIndex_TiesAreStableByUserID(t *testing.T) {
	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()

			for _, id := range []int64{42, 7, 19, 3} {
				require.NoError(t, idx.Upsert(ctx, id, 500))
			}
			require.NoError(t, idx.Upsert(ctx, 100, 900))

			top, err := idx.TopK(ctx, 5)
			require.NoError(t, err)
			ids := make([]int64, len(top))
			for i, e := range top {
				ids[i] = e.UserID
			}
			assert.Equal(t, []int64{100, 3, 7, 19, 42}, ids)

			for i := 0; i < 3; i++ {
				rank, err := idx.Rank(ctx, 19)
				require.NoError(t, err)
				assert.Equal(t, int64(3), rank, "tied rank should not change between reads")
			}
		})
	}
}

func TestIndex_Replace(t *testing.T) {
	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()

			require.NoError(t, idx.Upsert(ctx, 99, 10_000))
			require.NoError(t, idx.Replace(ctx, []domain.LeaderboardEntry{
				{UserID: 1, Score: 145},
				{UserID: 2, Score: 320},
			}))

			_, err := idx.Rank(ctx, 99)
			assert.ErrorIs(t, err, domain.ErrNotRanked, "replace should drop stale users")

			top, err := idx.TopK(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, []domain.LeaderboardEntry{{UserID: 2, Score: 320}, {UserID: 1, Score: 145}}, top)

			require.NoError(t, idx.Replace(ctx, nil))
			n, err := idx.Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

// TestMemoryIndex_MatchesSortedReference drives random upserts and compares
// every rank and the full ordering against a sorted slice.
func TestMemoryIndex_MatchesSortedReference(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	scores := make(map[int64]int64)

	for i := 0; i < 3000; i++ {
		userID := rng.Int64N(300) + 1
		score := rng.Int64N(50)
		require.NoError(t, idx.Upsert(ctx, userID, score))
		scores[userID] = score
	}

	want := make([]domain.LeaderboardEntry, 0, len(scores))
	for id, s := range scores {
		want = append(want, domain.LeaderboardEntry{UserID: id, Score: s})
	}
	sort.Slice(want, func(i, j int) bool { return before(want[i], want[j]) })

	got, err := idx.TopK(ctx, len(want))
	require.NoError(t, err)
	require.Equal(t, want, got)

	for pos, e := range want {
		rank, err := idx.Rank(ctx, e.UserID)
		require.NoError(t, err)
		require.Equal(t, int64(pos), rank, "user %d", e.UserID)
	}
}

func TestSkipList_Remove(t *testing.T) {
	l := newSkipList()
	for i := int64(1); i <= 50; i++ {
		l.insert(domain.LeaderboardEntry{UserID: i, Score: i * 2})
	}

	assert.Equal(t, int64(1), l.rank(domain.LeaderboardEntry{UserID: 50, Score: 100}))
	assert.True(t, l.remove(domain.LeaderboardEntry{UserID: 50, Score: 100}))
	assert.False(t, l.remove(domain.LeaderboardEntry{UserID: 50, Score: 100}))
	assert.False(t, l.remove(domain.LeaderboardEntry{UserID: 49, Score: 1}), "score must match too")

	assert.Equal(t, int64(49), l.length)
	assert.Equal(t, int64(0), l.rank(domain.LeaderboardEntry{UserID: 50, Score: 100}))
	assert.Equal(t, int64(1), l.rank(domain.LeaderboardEntry{UserID: 49, Score: 98}))
	assert.Equal(t, int64(49), l.rank(domain.LeaderboardEntry{UserID: 1, Score: 2}))
}

func TestRedisMemberEncoding(t *testing.T) {
	for _, id := range []int64{0, 1, 42, 1 << 40} {
		got, err := decodeMember(encodeMember(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	assert.Greater(t, encodeMember(1), encodeMember(2), "lower ids must sort higher lexicographically")

	_, err := decodeMember("not-a-number")
	assert.Error(t, err)
}
