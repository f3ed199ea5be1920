package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"

	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service *app.ContestService
	store   *memory.Store
	broker  *memory.Broker
	clock   *fakeClock
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		broker: memory.NewBroker(),
		clock:  newFakeClock(),
	}
	base := []app.Option{
		app.WithClock(f.clock.Now),
		app.WithLogger(zaptest.NewLogger(t)),
		app.WithNotifier(f.broker),
		app.WithEventSubscriber(f.broker),
	}
	f.service = app.NewContestService(f.store, append(base, opts...)...)
	return f
}

func (f *fixture) createContest(t *testing.T, visibility domain.Visibility, questions ...string) domain.Contest {
	t.Helper()
	if len(questions) == 0 {
		questions = []string{"q1", "q2", "q3"}
	}
	contest, err := f.service.CreateContest(context.Background(), "owner", app.CreateContestInput{
		Title:         "Weekly",
		QuestionIDs:   questions,
		DurationInMin: 30,
		Visibility:    visibility,
	})
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}
	return contest
}

// liveContest creates a public contest, joins users and starts it.
func (f *fixture) liveContest(t *testing.T, users ...string) domain.Contest {
	t.Helper()
	ctx := context.Background()
	contest := f.createContest(t, domain.VisibilityPublic)
	for _, u := range users {
		if _, err := f.service.Join(ctx, contest.ID, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	started, err := f.service.StartContest(ctx, contest.ID, "owner")
	if err != nil {
		t.Fatalf("start contest: %v", err)
	}
	return started
}

func (f *fixture) enter(t *testing.T, contestID, userID string) domain.LiveWindow {
	t.Helper()
	w, err := f.service.EnterLive(context.Background(), contestID, userID)
	if err != nil {
		t.Fatalf("enter live %s: %v", userID, err)
	}
	return w
}

func (f *fixture) submit(t *testing.T, contestID, userID string, attempts []domain.AttemptInput) app.SubmitOutcome {
	t.Helper()
	out, err := f.service.Submit(context.Background(), app.SubmitRequest{ContestID: contestID, UserID: userID, Attempts: attempts})
	if err != nil {
		t.Fatalf("submit %s: %v", userID, err)
	}
	return out
}
