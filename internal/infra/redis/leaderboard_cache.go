package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LeaderboardCache caches leaderboard pages in Redis and falls back to the
// store on a miss. All pages of a contest live in one hash so a single DEL
// invalidates them:
//
//	HSET contest:{contestID}:leaderboard {limit}:{offset} {json page}
//	INCR contest:{contestID}:leaderboard:gen
//
// Invalidate bumps the generation; a fill only writes under WATCH when the
// generation it started with is still current.
type LeaderboardCache struct {
	client *redis.Client
	source app.LeaderboardSource
	ttl    time.Duration
	sf     singleflight.Group
	logger *zap.Logger
}

type cachedPage struct {
	Participants []domain.Participant `json:"participants"`
	Total        int                  `json:"total"`
}

var _ app.LeaderboardCache = (*LeaderboardCache)(nil)

func NewLeaderboardCache(client *redis.Client, source app.LeaderboardSource, ttl time.Duration, logger *zap.Logger) *LeaderboardCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardCache{client: client, source: source, ttl: ttl, logger: logger}
}

func (c *LeaderboardCache) ListSubmitted(ctx context.Context, contestID string, limit, offset int) ([]domain.Participant, int, error) {
	key := leaderboardKey(contestID)
	field := strconv.Itoa(limit) + ":" + strconv.Itoa(offset)

	if page, ok := c.lookup(ctx, key, field); ok {
		return page.Participants, page.Total, nil
	}

	genKey := generationKey(contestID)
	gen, err := c.client.Get(ctx, genKey).Uint64()
	cacheable := err == nil || errors.Is(err, redis.Nil)
	if !cacheable {
		c.logger.Debug("leaderboard generation read failed", zap.String("key", genKey), zap.Error(err))
	}

	result, err, _ := c.sf.Do(key+"/"+strconv.FormatUint(gen, 10)+"/"+field, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if page, ok := c.lookup(ctx, key, field); ok {
			return page, nil
		}
		participants, total, err := c.source.ListSubmitted(ctx, contestID, limit, offset)
		if err != nil {
			return cachedPage{}, err
		}
		page := cachedPage{Participants: participants, Total: total}
		if !cacheable {
			return page, nil
		}
		raw, err := json.Marshal(page)
		if err != nil {
			return page, nil
		}
		if err := c.store(ctx, genKey, gen, key, field, raw); err != nil && !errors.Is(err, errStaleFill) {
			c.logger.Warn("leaderboard cache write failed", zap.String("contest_id", contestID), zap.Error(err))
		}
		return page, nil
	})
	if err != nil {
		return nil, 0, err
	}
	page := result.(cachedPage)
	return append([]domain.Participant(nil), page.Participants...), page.Total, nil
}

var errStaleFill = errors.New("leaderboard invalidated during fill")

// store writes the page only if the contest generation is still gen.
func (c *LeaderboardCache) store(ctx context.Context, genKey string, gen uint64, key, field string, raw []byte) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, raw)
			if ttl := c.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return errStaleFill
	}
	return err
}

// Invalidate drops the contest's pages and fences off fills already in flight.
func (c *LeaderboardCache) Invalidate(ctx context.Context, contestID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(contestID))
		pipe.Del(ctx, leaderboardKey(contestID))
		return nil
	})
	return err
}

func (c *LeaderboardCache) lookup(ctx context.Context, key, field string) (cachedPage, bool) {
	raw, err := c.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		}
		return cachedPage{}, false
	}
	var page cachedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return cachedPage{}, false
	}
	return page, true
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int64N(jitterMax+1))
}

func leaderboardKey(contestID string) string {
	return "contest:" + contestID + ":leaderboard"
}

func generationKey(contestID string) string {
	return leaderboardKey(contestID) + ":gen"
}
