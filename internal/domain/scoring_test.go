package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"
)

func TestScore(t *testing.T) {
	cases := []struct {
		solved, seconds int
		want            float64
	}{
		{3, 450, 255.0},
		{1, 420, 58.0},
		{0, 0, 0},
		{0, 1234, -123.4},
		{2, 1, 199.9},
	}
	for _, tc := range cases {
		if got := Score(tc.solved, tc.seconds); got != tc.want {
			t.Fatalf("Score(%d, %d) = %v, want %v", tc.solved, tc.seconds, got, tc.want)
		}
	}
}

func TestTallyCountsLedger(t *testing.T) {
	contest := Contest{QuestionIDs: []string{"q1", "q2", "q3"}}
	finished := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	result := Tally(contest, []Attempt{
		{QuestionID: "q1", Status: AttemptSolved, TimeSpent: 120},
		{QuestionID: "q2", Status: AttemptUnsolved, TimeSpent: 300},
		{QuestionID: "q3", Status: AttemptUnsolved, TimeSpent: -40},
	}, finished)

	if result.SolvedCount != 1 || result.UnsolvedCount != 2 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.TimeTaken != 420 || result.Score != 58.0 {
		t.Fatalf("unexpected totals %+v", result)
	}
	if !result.FinishedAt.Equal(finished) {
		t.Fatalf("finishedAt not carried: %v", result.FinishedAt)
	}
}

func TestTallySaturatesTime(t *testing.T) {
	contest := Contest{QuestionIDs: []string{"q1", "q2", "q3"}}
	result := Tally(contest, []Attempt{
		{QuestionID: "q1", Status: AttemptUnsolved, TimeSpent: math.MaxInt64},
		{QuestionID: "q2", Status: AttemptUnsolved, TimeSpent: math.MaxInt64},
		{QuestionID: "q3", Status: AttemptUnsolved, TimeSpent: MaxTimeSpent},
	}, time.Time{})
	if result.TimeTaken != MaxTimeSpent {
		t.Fatalf("time taken %d, want %d", result.TimeTaken, MaxTimeSpent)
	}
	if result.Score >= 0 {
		t.Fatalf("all-unsolved run must not score positive, got %v", result.Score)
	}
}

func TestClampSeconds(t *testing.T) {
	cases := []struct {
		seconds, limit, want int
	}{
		{-5, 60, 0},
		{30, 60, 30},
		{90, 60, 60},
		{math.MaxInt64, 0, MaxTimeSpent},
		{math.MinInt64, 0, 0},
	}
	for _, tc := range cases {
		if got := ClampSeconds(tc.seconds, tc.limit); got != tc.want {
			t.Fatalf("ClampSeconds(%d, %d) = %d, want %d", tc.seconds, tc.limit, got, tc.want)
		}
	}
}

func TestRanksAbove(t *testing.T) {
	early := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	a := Participant{UserID: "a", Score: 100, TimeTaken: 300, FinishedAt: &late}
	b := Participant{UserID: "b", Score: 100, TimeTaken: 400, FinishedAt: &early}
	if !RanksAbove(a, b) || RanksAbove(b, a) {
		t.Fatalf("lower time taken must win a score tie")
	}

	b.TimeTaken = 300
	if !RanksAbove(b, a) || RanksAbove(a, b) {
		t.Fatalf("earlier finish must win a score and time tie")
	}

	c := Participant{UserID: "c", Score: 150, TimeTaken: 900, FinishedAt: &late}
	if !RanksAbove(c, a) {
		t.Fatalf("higher score must win")
	}

	twin := a
	twin.UserID = "z"
	if RanksAbove(a, twin) || RanksAbove(twin, a) {
		t.Fatalf("identical results must not rank above each other")
	}
	if !LeaderboardLess(a, twin) {
		t.Fatalf("leaderboard order falls back to user id")
	}
}

func TestLeaderboardOrderIsTotal(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	var ps []Participant
	for i := 0; i < 40; i++ {
		finished := base.Add(time.Duration(i%3) * time.Second)
		ps = append(ps, Participant{
			UserID:     fmt.Sprintf("u%02d", i),
			Score:      float64((i % 4) * 50),
			TimeTaken:  (i % 5) * 10,
			FinishedAt: &finished,
		})
	}
	sort.Slice(ps, func(i, j int) bool { return LeaderboardLess(ps[i], ps[j]) })

	rankOf := func(p Participant) int {
		better := 0
		for _, other := range ps {
			if RanksAbove(other, p) {
				better++
			}
		}
		return better + 1
	}
	for i := 0; i+1 < len(ps); i++ {
		if rankOf(ps[i]) > rankOf(ps[i+1]) {
			t.Fatalf("leaderboard position %d ranks worse than %d", i, i+1)
		}
	}
}

func TestUserStatsApplyUsesRunningSums(t *testing.T) {
	var stats UserStats
	stats = stats.Apply(StatsDelta{Contests: 1, QuestionsSolved: 1, QuestionsAttempted: 2, TimeSpent: 420})
	if stats.AvgAccuracy != 50 || stats.AvgTimePerQuestion != 210 {
		t.Fatalf("unexpected averages after first contest: %+v", stats)
	}

	stats = stats.Apply(StatsDelta{Contests: 1, QuestionsSolved: 3, QuestionsAttempted: 3, TimeSpent: 30})
	if stats.TotalContests != 2 || stats.TotalQuestionsSolved != 4 || stats.TotalQuestionsAttempted != 5 {
		t.Fatalf("unexpected sums: %+v", stats)
	}
	// 4/5 solved, 450s over 5 questions; averaging the two contest averages would give 75 and 110.
	if stats.AvgAccuracy != 80 || stats.AvgTimePerQuestion != 90 {
		t.Fatalf("averages must come from running sums: %+v", stats)
	}
}

func TestContestStatusTransitions(t *testing.T) {
	allowed := map[[2]ContestStatus]bool{
		{ContestUpcoming, ContestLive}: true,
		{ContestLive, ContestEnded}:    true,
	}
	all := []ContestStatus{ContestUpcoming, ContestLive, ContestEnded}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]ContestStatus{from, to}] {
				t.Fatalf("CanTransition(%s -> %s) = %v", from, to, got)
			}
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("%w: question q9", ErrInvalidAttempt)
	if KindOf(wrapped) != KindBadRequest {
		t.Fatalf("expected bad request kind, got %s", KindOf(wrapped))
	}
	if !errors.Is(wrapped, ErrInvalidAttempt) {
		t.Fatalf("expected wrapped sentinel to match")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors are internal")
	}
}
