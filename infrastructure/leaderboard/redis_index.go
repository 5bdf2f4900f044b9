package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// DefaultRedisKey is the sorted set holding the global leaderboard.
const DefaultRedisKey = "leaderboard:global"

// replaceBatch bounds the members sent per ZADD during a rebuild.
const replaceBatch = 500

var _ ports.LeaderboardIndex = (*RedisIndex)(nil)

// RedisIndex is a LeaderboardIndex on a Redis sorted set.
//
// Members are user IDs encoded as math.MaxInt64-id, zero padded, so that the
// reverse lexicographic order Redis applies to equal scores lists lower user
// IDs first. User IDs must be non-negative.
type RedisIndex struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisIndex returns an index stored under key, or DefaultRedisKey when
// key is empty.
func NewRedisIndex(rdb redis.UniversalClient, key string) *RedisIndex {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisIndex{rdb: rdb, key: key}
}

func encodeMember(userID int64) string {
	return fmt.Sprintf("%019d", math.MaxInt64-userID)
}

func decodeMember(member string) (int64, error) {
	v, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed leaderboard member %q: %w", member, err)
	}
	return math.MaxInt64 - v, nil
}

// Upsert sets the user's score with a single ZADD.
func (r *RedisIndex) Upsert(ctx context.Context, userID, score int64) error {
	if userID < 0 {
		return ports.NewIndexError("redis", "upsert", fmt.Errorf("negative user id %d", userID))
	}
	err := r.rdb.ZAdd(ctx, r.key, redis.Z{Score: float64(score), Member: encodeMember(userID)}).Err()
	if err != nil {
		return ports.NewIndexError("redis", "upsert", err)
	}
	return nil
}

// Rank returns the user's zero-based position from ZREVRANK.
func (r *RedisIndex) Rank(ctx context.Context, userID int64) (int64, error) {
	if userID < 0 {
		return 0, domain.ErrNotRanked
	}
	rank, err := r.rdb.ZRevRank(ctx, r.key, encodeMember(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotRanked
	}
	if err != nil {
		return 0, ports.NewIndexError("redis", "rank", err)
	}
	return rank, nil
}

// TopK returns at most k entries from ZREVRANGE WITHSCORES.
func (r *RedisIndex) TopK(ctx context.Context, k int) ([]domain.LeaderboardEntry, error) {
	if k <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	zs, err := r.rdb.ZRevRangeWithScores(ctx, r.key, 0, int64(k-1)).Result()
	if err != nil {
		return nil, ports.NewIndexError("redis", "top_k", err)
	}

	out := make([]domain.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, ports.NewIndexError("redis", "top_k", fmt.Errorf("unexpected member type %T", z.Member))
		}
		userID, err := decodeMember(member)
		if err != nil {
			return nil, ports.NewIndexError("redis", "top_k", err)
		}
		out = append(out, domain.LeaderboardEntry{UserID: userID, Score: int64(z.Score)})
	}
	return out, nil
}

// Replace fills a staging key and renames it over the live key inside one
// MULTI block, so readers see the old set or the new one and never a mix.
func (r *RedisIndex) Replace(ctx context.Context, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
			return ports.NewIndexError("redis", "replace", err)
		}
		return nil
	}

	staging := r.key + ":rebuild:" + uuid.NewString()
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, staging)
		for start := 0; start < len(entries); start += replaceBatch {
			end := min(start+replaceBatch, len(entries))
			members := make([]redis.Z, 0, end-start)
			for _, e := range entries[start:end] {
				members = append(members, redis.Z{Score: float64(e.Score), Member: encodeMember(e.UserID)})
			}
			pipe.ZAdd(ctx, staging, members...)
		}
		pipe.Rename(ctx, staging, r.key)
		return nil
	})
	if err != nil {
		_ = r.rdb.Del(ctx, staging).Err()
		return ports.NewIndexError("redis", "replace", err)
	}
	return nil
}

// Len returns ZCARD of the live key.
func (r *RedisIndex) Len(ctx context.Context) (int64, error) {
	n, err := r.rdb.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, ports.NewIndexError("redis", "len", err)
	}
	return n, nil
}
