package app_test

import (
	"context"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

func TestSweeperStartsScheduledContests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	startsAt := f.clock.Now().Add(10 * time.Minute)
	contest, err := f.service.CreateContest(ctx, "owner", app.CreateContestInput{
		Title:         "Scheduled",
		QuestionIDs:   []string{"q1"},
		DurationInMin: 20,
		Visibility:    domain.VisibilityPublic,
		StartsAt:      &startsAt,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sweeper := app.NewSweeper(f.service)

	report, err := sweeper.Run(ctx)
	if err != nil || report.Started != 0 {
		t.Fatalf("expected nothing due yet: %+v %v", report, err)
	}

	f.clock.Advance(10 * time.Minute)
	report, err = sweeper.Run(ctx)
	if err != nil || report.Started != 1 {
		t.Fatalf("expected one started: %+v %v", report, err)
	}
	got, _ := f.service.GetContest(ctx, contest.ID, "owner")
	if got.Status != domain.ContestLive || !got.EndsAt.Equal(startsAt.Add(20*time.Minute)) {
		t.Fatalf("unexpected contest %+v", got)
	}
}

func TestSweeperExpiresAndAutoSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contest := f.liveContest(t, "early", "late", "idle")
	f.enter(t, contest.ID, "early")
	f.clock.Advance(20 * time.Minute)
	f.enter(t, contest.ID, "late")

	sweeper := app.NewSweeper(f.service)
	f.clock.Advance(5 * time.Minute)
	report, err := sweeper.Run(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report != (app.SweepReport{}) {
		t.Fatalf("expected no-op sweep, got %+v", report)
	}

	f.clock.Advance(6 * time.Minute)
	report, err = sweeper.Run(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Ended != 1 || report.AutoSubmitted != 2 {
		t.Fatalf("expected contest ended and two auto submits, got %+v", report)
	}

	for _, u := range []string{"early", "late"} {
		p, _ := f.store.GetParticipant(ctx, contest.ID, u)
		if !p.HasSubmitted() {
			t.Fatalf("%s should be submitted", u)
		}
	}
	idle, _ := f.store.GetParticipant(ctx, contest.ID, "idle")
	if idle.HasSubmitted() {
		t.Fatalf("participant who never entered must not be submitted")
	}

	report, err = sweeper.Run(ctx)
	if err != nil || report != (app.SweepReport{}) {
		t.Fatalf("expected idempotent sweep, got %+v %v", report, err)
	}
	stats, _ := f.service.GetUserStats(ctx, "early")
	if stats.TotalContests != 1 {
		t.Fatalf("expected stats applied once, got %+v", stats)
	}
}

func TestSweeperAutoSubmitsPersonalDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()
	endsAt := start.Add(3 * time.Hour)
	contest, err := f.service.CreateContest(ctx, "owner", app.CreateContestInput{
		Title: "Long", QuestionIDs: []string{"q1", "q2"}, DurationInMin: 15, Visibility: domain.VisibilityPublic, EndsAt: &endsAt,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = f.service.Join(ctx, contest.ID, "u1")
	if _, err := f.service.StartContest(ctx, contest.ID, "owner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.enter(t, contest.ID, "u1")

	f.clock.Advance(16 * time.Minute)
	n, err := f.service.AutoSubmitOverdue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one auto submit, got %d %v", n, err)
	}
	got, _ := f.service.GetContest(ctx, contest.ID, "u1")
	if got.Status != domain.ContestLive {
		t.Fatalf("contest should still be live, got %s", got.Status)
	}
}
