package memory

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// LeaderboardCache caches leaderboard pages with a TTL to avoid repeated
// ranking queries against the store. Each contest carries a generation that
// Invalidate bumps; a fill started under an older generation is not stored.
type LeaderboardCache struct {
	source app.LeaderboardSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu          sync.RWMutex
	pages       map[string]map[string]cachedPage
	generations map[string]uint64
}

type cachedPage struct {
	participants []domain.Participant
	total        int
	expiresAt    time.Time
}

var _ app.LeaderboardCache = (*LeaderboardCache)(nil)

func NewLeaderboardCache(source app.LeaderboardSource, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		source:      source,
		ttl:         ttl,
		clock:       time.Now,
		pages:       make(map[string]map[string]cachedPage),
		generations: make(map[string]uint64),
	}
}

func (c *LeaderboardCache) ListSubmitted(ctx context.Context, contestID string, limit, offset int) ([]domain.Participant, int, error) {
	field := pageField(limit, offset)
	page, gen, ok := c.lookup(contestID, field)
	if ok {
		return append([]domain.Participant(nil), page.participants...), page.total, nil
	}

	key := contestID + "/" + strconv.FormatUint(gen, 10) + "/" + field
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if page, _, ok := c.lookup(contestID, field); ok {
			return page, nil
		}
		participants, total, err := c.source.ListSubmitted(ctx, contestID, limit, offset)
		if err != nil {
			return cachedPage{}, err
		}
		page := cachedPage{participants: participants, total: total, expiresAt: c.clock().Add(ttlWithJitter(c.ttl))}

		c.mu.Lock()
		if c.generations[contestID] == gen {
			if c.pages[contestID] == nil {
				c.pages[contestID] = make(map[string]cachedPage)
			}
			c.pages[contestID][field] = page
		}
		c.mu.Unlock()
		return page, nil
	})
	if err != nil {
		return nil, 0, err
	}
	page = result.(cachedPage)
	return append([]domain.Participant(nil), page.participants...), page.total, nil
}

// Invalidate drops every cached page of the contest and discards in-flight fills.
func (c *LeaderboardCache) Invalidate(_ context.Context, contestID string) error {
	c.mu.Lock()
	delete(c.pages, contestID)
	c.generations[contestID]++
	c.mu.Unlock()
	return nil
}

// lookup also reports the contest's current generation.
func (c *LeaderboardCache) lookup(contestID, field string) (cachedPage, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gen := c.generations[contestID]
	page, ok := c.pages[contestID][field]
	if !ok || !page.expiresAt.After(c.clock()) {
		return cachedPage{}, gen, false
	}
	return page, gen, true
}

func pageField(limit, offset int) string {
	return strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

func ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rand.Int64N(jitterMax+1))
}
