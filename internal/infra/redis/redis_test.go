package redis

import (
	"context"
	"testing"
	"time"

	"contest-service/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLeaderboardCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{}
	cache := NewLeaderboardCache(newClient(mr), source, time.Minute, nil)
	ctx := context.Background()

	page, total, err := cache.ListSubmitted(ctx, "c1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if source.calls != 1 || total != 1 || len(page) != 1 {
		t.Fatalf("unexpected first load: calls=%d total=%d page=%+v", source.calls, total, page)
	}

	// Second call should hit cache, source not incremented.
	page, _, _ = cache.ListSubmitted(ctx, "c1", 10, 0)
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}
	if page[0].UserID != "u1" || page[0].Score != 58 || page[0].FinishedAt == nil {
		t.Fatalf("cached page lost fields: %+v", page[0])
	}
	if !mr.Exists("contest:c1:leaderboard") {
		t.Fatalf("expected leaderboard hash in redis")
	}
	if ttl := mr.TTL("contest:c1:leaderboard"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := cache.Invalidate(ctx, "c1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _, _ = cache.ListSubmitted(ctx, "c1", 10, 0)
	if source.calls != 2 {
		t.Fatalf("expected reload after invalidate, source calls=%d", source.calls)
	}
}

func TestLeaderboardCacheSkipsFillRacingInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{}
	cache := NewLeaderboardCache(newClient(mr), source, time.Minute, nil)
	ctx := context.Background()

	// a submit commits and invalidates while the first fill is reading
	source.during = func() {
		source.during = nil
		if err := cache.Invalidate(ctx, "c1"); err != nil {
			t.Errorf("invalidate: %v", err)
		}
	}
	if _, _, err := cache.ListSubmitted(ctx, "c1", 10, 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if mr.Exists("contest:c1:leaderboard") {
		t.Fatalf("page read before invalidate must not be cached")
	}
	if got, _ := mr.Get("contest:c1:leaderboard:gen"); got != "1" {
		t.Fatalf("expected generation 1, got %q", got)
	}

	_, _, _ = cache.ListSubmitted(ctx, "c1", 10, 0)
	_, _, _ = cache.ListSubmitted(ctx, "c1", 10, 0)
	if source.calls != 2 {
		t.Fatalf("expected one refill then a hit, source calls=%d", source.calls)
	}
}

func TestEventBusRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	bus := NewEventBus(newClient(mr), nil)
	ctx := context.Background()

	events, cancel, err := bus.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := bus.Publish(ctx, domain.ContestEvent{Type: domain.EventContestEnded, ContestID: "c1", At: at}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != domain.EventContestEnded || ev.ContestID != "c1" || !ev.At.Equal(at) {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event from redis")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected channel closed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

type countingSource struct {
	calls int
	// during runs inside the source read, before the page is returned
	during func()
}

func (s *countingSource) ListSubmitted(_ context.Context, contestID string, _, _ int) ([]domain.Participant, int, error) {
	s.calls++
	if s.during != nil {
		s.during()
	}
	finished := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Participant{{
		ContestID:        contestID,
		UserID:           "u1",
		SubmissionStatus: domain.Submitted,
		Score:            58,
		FinishedAt:       &finished,
	}}, 1, nil
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
