package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"
)

func TestRankAndLeaderboardAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contest := f.liveContest(t, "alice", "bob", "carol", "dave")
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		f.enter(t, contest.ID, u)
	}

	solved := func(secs int) []domain.AttemptInput {
		return []domain.AttemptInput{{QuestionID: "q1", Status: domain.AttemptSolved, TimeSpent: secs}}
	}
	f.clock.Advance(time.Minute)
	f.submit(t, contest.ID, "bob", solved(50))
	f.submit(t, contest.ID, "carol", solved(50))
	f.clock.Advance(time.Minute)
	f.submit(t, contest.ID, "alice", []domain.AttemptInput{
		{QuestionID: "q1", Status: domain.AttemptSolved, TimeSpent: 10},
		{QuestionID: "q2", Status: domain.AttemptSolved, TimeSpent: 10},
	})
	f.submit(t, contest.ID, "dave", solved(50))

	board, err := f.service.Leaderboard(ctx, contest.ID, 0, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if board.Total != 4 || board.Limit != app.DefaultLeaderboardLimit {
		t.Fatalf("unexpected board meta %+v", board)
	}
	want := []struct {
		user string
		rank int
	}{{"alice", 1}, {"bob", 2}, {"carol", 2}, {"dave", 4}}
	for i, w := range want {
		e := board.Entries[i]
		if e.UserID != w.user || e.Rank != w.rank {
			t.Fatalf("entry %d: got %s rank %d, want %s rank %d", i, e.UserID, e.Rank, w.user, w.rank)
		}
		r, err := f.service.Rank(ctx, contest.ID, w.user)
		if err != nil {
			t.Fatalf("rank %s: %v", w.user, err)
		}
		if r.Rank != e.Rank || r.TotalParticipants != 4 {
			t.Fatalf("rank %s = %+v disagrees with leaderboard rank %d", w.user, r, e.Rank)
		}
	}

	page, err := f.service.Leaderboard(ctx, contest.ID, 1, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].UserID != "carol" || page.Entries[0].Rank != 2 {
		t.Fatalf("expected tied carol at rank 2 on second page, got %+v", page.Entries)
	}
}

func TestRankRequiresSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contest := f.liveContest(t, "u1")
	f.enter(t, contest.ID, "u1")

	_, err := f.service.Rank(ctx, contest.ID, "u1")
	if !errors.Is(err, domain.ErrNotSubmitted) || domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not submitted, got %v", err)
	}
	if _, err := f.service.Rank(ctx, contest.ID, "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}

func TestLeaderboardClampsAndChecksContest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Leaderboard(ctx, "missing", 10, 0); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected contest not found, got %v", err)
	}
	contest := f.createContest(t, domain.VisibilityPublic)
	board, err := f.service.Leaderboard(ctx, contest.ID, 10_000, -3)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if board.Limit != app.MaxLeaderboardLimit || board.Offset != 0 || len(board.Entries) != 0 {
		t.Fatalf("unexpected clamp %+v", board)
	}
}

func TestLeaderboardCacheInvalidatedOnSubmit(t *testing.T) {
	store := memory.NewStore()
	clock := newFakeClock()
	service := app.NewContestService(store,
		app.WithClock(clock.Now),
		app.WithLeaderboardCache(memory.NewLeaderboardCache(store, time.Hour)))
	ctx := context.Background()

	contest, err := service.CreateContest(ctx, "owner", app.CreateContestInput{
		Title: "Cached", QuestionIDs: []string{"q1"}, DurationInMin: 10, Visibility: domain.VisibilityPublic,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = service.Join(ctx, contest.ID, "u1")
	_, _ = service.StartContest(ctx, contest.ID, "owner")
	_, _ = service.EnterLive(ctx, contest.ID, "u1")

	empty, _ := service.Leaderboard(ctx, contest.ID, 10, 0)
	if empty.Total != 0 {
		t.Fatalf("expected empty board, got %+v", empty)
	}
	if _, err := service.Submit(ctx, app.SubmitRequest{ContestID: contest.ID, UserID: "u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	board, _ := service.Leaderboard(ctx, contest.ID, 10, 0)
	if board.Total != 1 || board.Entries[0].UserID != "u1" {
		t.Fatalf("expected cache refreshed after submit, got %+v", board)
	}
}
