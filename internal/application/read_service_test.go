package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-scorekeeper/infrastructure/leaderboard"
	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/testutils"
)

func seedUser(t *testing.T, repo *testutils.MemoryRepository, index *leaderboard.MemoryIndex, userID, total int64) {
	t.Helper()
	ctx := context.Background()
	ladder := domain.DefaultTierLadder()
	require.NoError(t, repo.SaveAggregate(ctx, domain.Aggregate{
		UserID: userID, TotalScore: total, Tier: ladder.Resolve(total),
	}))
	require.NoError(t, index.Upsert(ctx, userID, total))
}

func TestReadService_GetMyRank(t *testing.T) {
	ctx := context.Background()
	repo := testutils.NewMemoryRepository()
	index := leaderboard.NewMemoryIndex()
	svc := NewReadService(repo, repo, index, domain.DefaultTierLadder())

	seedUser(t, repo, index, 1, 145)
	seedUser(t, repo, index, 2, 950)
	seedUser(t, repo, index, 3, 145)

	view, err := svc.GetMyRank(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, RankView{
		UserID:           3,
		Rank:             3,
		TotalScore:       145,
		Tier:             domain.TierUnrated,
		NextTier:         domain.TierBronze,
		PointsToNextTier: 155,
	}, view, "ties order by user id, so user 3 follows user 1")

	view, err = svc.GetMyRank(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Rank)
	assert.Equal(t, domain.TierGold, view.Tier)
	assert.Equal(t, domain.TierPlatinum, view.NextTier)
	assert.Equal(t, int64(850), view.PointsToNextTier)
}

func TestReadService_NotRanked(t *testing.T) {
	ctx := context.Background()
	repo := testutils.NewMemoryRepository()
	index := leaderboard.NewMemoryIndex()
	svc := NewReadService(repo, repo, index, domain.DefaultTierLadder())

	_, err := svc.GetMyRank(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotRanked)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, index.Upsert(ctx, 9, 10))
	_, err = svc.GetMyRank(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrNotRanked, "an index entry without an aggregate is not a rank")
}

func TestReadService_GetTopK(t *testing.T) {
	ctx := context.Background()
	repo := testutils.NewMemoryRepository()
	index := leaderboard.NewMemoryIndex()
	svc := NewReadService(repo, repo, index, domain.DefaultTierLadder())

	seedUser(t, repo, index, 10, 300)
	seedUser(t, repo, index, 11, 3100)
	seedUser(t, repo, index, 12, 20)
	require.NoError(t, index.Upsert(ctx, 13, 1000))

	views, err := svc.GetTopK(ctx, 3)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, int64(11), views[0].UserID)
	assert.Equal(t, domain.TierDiamond, views[0].Tier)
	assert.Equal(t, int64(0), views[0].PointsToNextTier)

	assert.Equal(t, int64(13), views[1].UserID, "index-only entries still rank")
	assert.Equal(t, domain.TierGold, views[1].Tier)
	assert.Equal(t, int64(2), views[1].Rank)

	assert.Equal(t, int64(10), views[2].UserID)
	assert.Equal(t, int64(3), views[2].Rank)

	for _, k := range []int{0, -5} {
		views, err := svc.GetTopK(ctx, k)
		require.NoError(t, err)
		assert.Empty(t, views)
	}
}

func TestReadService_GetFeedback(t *testing.T) {
	ctx := context.Background()
	repo := testutils.NewMemoryRepository()
	svc := NewReadService(repo, repo, leaderboard.NewMemoryIndex(), domain.DefaultTierLadder())

	_, err := svc.GetFeedback(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.UpsertFeedback(ctx, 1, 77, "mostly right")
	require.NoError(t, err)
	fb, err := svc.GetFeedback(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 77, fb.Score)
	assert.Equal(t, "mostly right", fb.Explanation)
}
