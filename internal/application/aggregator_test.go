package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
	"github.com/ahrav/go-scorekeeper/internal/testutils"
)

func TestScoreAggregator_Recompute(t *testing.T) {
	ctx := context.Background()
	repo := testutils.NewMemoryRepository()
	agg := NewScoreAggregator(domain.DefaultTierLadder())

	_, err := repo.RecordIfHigher(ctx, 1, 10, 250)
	require.NoError(t, err)
	_, err = repo.RecordIfHigher(ctx, 1, 11, 60)
	require.NoError(t, err)
	_, err = repo.RecordIfHigher(ctx, 2, 10, 999)
	require.NoError(t, err)

	got, err := agg.Recompute(ctx, repo, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(310), got.TotalScore)
	assert.Equal(t, domain.TierBronze, got.Tier)

	stored, err := repo.GetAggregate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, got.TotalScore, stored.TotalScore)
	assert.Equal(t, got.Tier, stored.Tier)
}

func TestScoreAggregator_TierBoundaries(t *testing.T) {
	ladder, err := domain.NewTierLadder([]domain.TierThreshold{
		{Tier: domain.TierUnrated, MinScore: 0},
		{Tier: domain.TierBronze, MinScore: 300},
		{Tier: domain.TierGold, MinScore: 900},
	})
	require.NoError(t, err)
	agg := NewScoreAggregator(ladder)

	tests := []struct {
		total int64
		want  domain.Tier
	}{
		{0, domain.TierUnrated},
		{299, domain.TierUnrated},
		{300, domain.TierBronze},
		{899, domain.TierBronze},
		{900, domain.TierGold},
	}
	for _, tt := range tests {
		repo := testutils.NewMemoryRepository()
		if tt.total > 0 {
			_, err := repo.RecordIfHigher(context.Background(), 5, 1, tt.total)
			require.NoError(t, err)
		}
		got, err := agg.Recompute(context.Background(), repo, 5)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Tier, "total %d", tt.total)
	}
}

func TestScoreAggregator_Corruption(t *testing.T) {
	ctx := context.Background()
	repo := testutils.NewMemoryRepository()
	repo.SetBestScore(7, 1, 5)
	repo.SetBestScore(7, 2, -17)

	_, err := NewScoreAggregator(domain.DefaultTierLadder()).Recompute(ctx, repo, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerCorruption)

	var corruption *domain.CorruptionError
	require.ErrorAs(t, err, &corruption)
	assert.Equal(t, int64(-12), corruption.Total)

	_, err = repo.GetAggregate(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a corrupt total must not be persisted")
}

func TestScoreAggregator_StoreFailure(t *testing.T) {
	repo := testutils.NewMemoryRepository()
	repo.Err = ports.NewStoreError("best_score", "sum", errors.New("connection reset"))

	_, err := NewScoreAggregator(domain.DefaultTierLadder()).Recompute(context.Background(), repo, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
