// Package cache wraps repositories with a redis read-through layer for
// the hot counter reads. Only Count is cached: it sits on every detail
// page, while the bulk forms already amortize their cost per page.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

const countTTL = 5 * time.Minute

// CachedVotes decorates a VoteRepository with cached counter reads.
// Writes invalidate; cache failures degrade to the underlying store and
// a warning, never to an error for the caller.
type CachedVotes struct {
	inner  repository.VoteRepository
	rdb    *redis.Client
	logger *zap.Logger
}

var _ repository.VoteRepository = (*CachedVotes)(nil)

func NewCachedVotes(inner repository.VoteRepository, rdb *redis.Client, logger *zap.Logger) *CachedVotes {
	return &CachedVotes{inner: inner, rdb: rdb, logger: logger}
}

func countKey(ref refs.Ref) string {
	return "votes:count:" + ref.String()
}

func (c *CachedVotes) Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	created, err := c.inner.Add(ctx, ref, userID)
	if err == nil && created {
		c.invalidate(ctx, ref)
	}
	return created, err
}

func (c *CachedVotes) Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	removed, err := c.inner.Remove(ctx, ref, userID)
	if err == nil && removed {
		c.invalidate(ctx, ref)
	}
	return removed, err
}

func (c *CachedVotes) Count(ctx context.Context, ref refs.Ref) (int64, error) {
	key := countKey(ref)
	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		if n, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
			return n, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("vote count cache read failed", zap.String("key", key), zap.Error(err))
	}

	n, err := c.inner.Count(ctx, ref)
	if err != nil {
		return 0, err
	}
	if serr := c.rdb.Set(ctx, key, strconv.FormatInt(n, 10), countTTL).Err(); serr != nil {
		c.logger.Warn("vote count cache write failed", zap.String("key", key), zap.Error(serr))
	}
	return n, nil
}

func (c *CachedVotes) invalidate(ctx context.Context, ref refs.Ref) {
	if err := c.rdb.Del(ctx, countKey(ref)).Err(); err != nil {
		c.logger.Warn("vote count cache invalidation failed",
			zap.String("key", countKey(ref)), zap.Error(err))
	}
}

// The remaining methods pass through untouched.

func (c *CachedVotes) Voters(ctx context.Context, ref refs.Ref) ([]models.User, error) {
	return c.inner.Voters(ctx, ref)
}

func (c *CachedVotes) IsVoted(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	return c.inner.IsVoted(ctx, ref, userID)
}

func (c *CachedVotes) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	return c.inner.Counts(ctx, kind, ids)
}

func (c *CachedVotes) VotedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	return c.inner.VotedIDs(ctx, kind, ids, userID)
}

func (c *CachedVotes) ForUser(ctx context.Context, userID uuid.UUID) ([]models.Vote, error) {
	return c.inner.ForUser(ctx, userID)
}
