package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	pointsPerSolve = 100
	// penalty per second spent, in tenths of a point
	timePenaltyTenths = 1
)

// Score rewards solved questions and subtracts 0.1 per second spent.
// The result may be negative.
func Score(solved, timeSpentSeconds int) float64 {
	points := decimal.NewFromInt(int64(solved) * pointsPerSolve)
	penalty := decimal.New(int64(timeSpentSeconds)*timePenaltyTenths, -1)
	score, _ := points.Sub(penalty).Float64()
	return score
}

// MaxTimeSpent bounds every stored time value in seconds, so sums fit 32-bit columns.
const MaxTimeSpent = math.MaxInt32

// ClampSeconds maps reported time into [0, limit]. A non-positive limit means MaxTimeSpent.
func ClampSeconds(seconds, limit int) int {
	if limit <= 0 || limit > MaxTimeSpent {
		limit = MaxTimeSpent
	}
	switch {
	case seconds < 0:
		return 0
	case seconds > limit:
		return limit
	}
	return seconds
}

// addSeconds sums two clamped values, saturating at MaxTimeSpent.
func addSeconds(a, b int) int {
	if b > MaxTimeSpent-a {
		return MaxTimeSpent
	}
	return a + b
}

// Tally derives the submission result from a participant's ledger.
func Tally(c Contest, ledger []Attempt, finishedAt time.Time) SubmissionResult {
	solved, total := 0, 0
	for _, a := range ledger {
		if a.Status == AttemptSolved {
			solved++
		}
		total = addSeconds(total, ClampSeconds(a.TimeSpent, MaxTimeSpent))
	}
	unsolved := len(c.QuestionIDs) - solved
	if unsolved < 0 {
		unsolved = 0
	}
	return SubmissionResult{
		SolvedCount:   solved,
		UnsolvedCount: unsolved,
		TimeTaken:     total,
		Score:         Score(solved, total),
		FinishedAt:    finishedAt,
	}
}

// RanksAbove reports whether a is strictly better than b:
// higher score, then lower time taken, then earlier finish.
func RanksAbove(a, b Participant) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.TimeTaken != b.TimeTaken {
		return a.TimeTaken < b.TimeTaken
	}
	return finishedBefore(a.FinishedAt, b.FinishedAt)
}

// LeaderboardLess is RanksAbove with user id as the final key, giving a total order.
func LeaderboardLess(a, b Participant) bool {
	if RanksAbove(a, b) {
		return true
	}
	if RanksAbove(b, a) {
		return false
	}
	return a.UserID < b.UserID
}

func finishedBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

// StatsDelta is the increment one finalization applies to a user's aggregates.
type StatsDelta struct {
	Contests           int
	QuestionsSolved    int
	QuestionsAttempted int
	TimeSpent          int
}

// DeltaFor builds the stats increment for a finalized result.
func DeltaFor(r SubmissionResult) StatsDelta {
	return StatsDelta{
		Contests:           1,
		QuestionsSolved:    r.SolvedCount,
		QuestionsAttempted: r.SolvedCount + r.UnsolvedCount,
		TimeSpent:          r.TimeTaken,
	}
}

// UserStats keeps running sums; the averages are derived from them, never averaged.
type UserStats struct {
	UserID                  string  `json:"userId"`
	TotalContests           int     `json:"totalContests"`
	TotalQuestionsSolved    int     `json:"totalQuestionsSolved"`
	TotalQuestionsAttempted int     `json:"totalQuestionsAttempted"`
	TotalTimeSpent          int     `json:"totalTimeSpent"`
	AvgAccuracy             float64 `json:"avgAccuracy"`
	AvgTimePerQuestion      float64 `json:"avgTimePerQuestion"`
}

// Apply adds d to the running sums and re-derives both averages.
func (s UserStats) Apply(d StatsDelta) UserStats {
	s.TotalContests += d.Contests
	s.TotalQuestionsSolved += d.QuestionsSolved
	s.TotalQuestionsAttempted += d.QuestionsAttempted
	s.TotalTimeSpent += d.TimeSpent
	return s.Derive()
}

// Derive recomputes AvgAccuracy (percent) and AvgTimePerQuestion (seconds).
func (s UserStats) Derive() UserStats {
	if s.TotalQuestionsAttempted <= 0 {
		s.AvgAccuracy, s.AvgTimePerQuestion = 0, 0
		return s
	}
	attempted := decimal.NewFromInt(int64(s.TotalQuestionsAttempted))
	s.AvgAccuracy, _ = decimal.NewFromInt(int64(s.TotalQuestionsSolved)).
		Mul(decimal.NewFromInt(100)).
		DivRound(attempted, 2).
		Float64()
	s.AvgTimePerQuestion, _ = decimal.NewFromInt(int64(s.TotalTimeSpent)).
		DivRound(attempted, 2).
		Float64()
	return s
}
