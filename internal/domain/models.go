package domain

import "time"

// ContestStatus moves forward only: upcoming -> live -> ended.
type ContestStatus string

const (
	ContestUpcoming ContestStatus = "upcoming"
	ContestLive     ContestStatus = "live"
	ContestEnded    ContestStatus = "ended"
)

func (s ContestStatus) rank() int {
	switch s {
	case ContestUpcoming:
		return 0
	case ContestLive:
		return 1
	case ContestEnded:
		return 2
	}
	return -1
}

// CanTransition reports whether a contest may move from s to next.
func (s ContestStatus) CanTransition(next ContestStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to == from+1
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

type SubmissionStatus string

const (
	NotSubmitted SubmissionStatus = "not_submitted"
	Submitted    SubmissionStatus = "submitted"
)

type AttemptStatus string

const (
	AttemptUnsolved AttemptStatus = "unsolved"
	AttemptSolved   AttemptStatus = "solved"
)

// Contest is a timed set of questions owned by one user.
type Contest struct {
	ID            string        `json:"id"`
	JoinCode      string        `json:"joinCode"`
	OwnerID       string        `json:"ownerId"`
	Title         string        `json:"title"`
	QuestionIDs   []string      `json:"questionIds"`
	DurationInMin int           `json:"durationInMin"`
	Visibility    Visibility    `json:"visibility"`
	Status        ContestStatus `json:"status"`
	StartsAt      *time.Time    `json:"startsAt,omitempty"`
	EndsAt        *time.Time    `json:"endsAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Duration is the personal time window every participant gets.
func (c Contest) Duration() time.Duration {
	return time.Duration(c.DurationInMin) * time.Minute
}

// EndPassed reports whether the contest has a scheduled end at or before now.
func (c Contest) EndPassed(now time.Time) bool {
	return c.EndsAt != nil && !now.Before(*c.EndsAt)
}

// Participant is a user's enrollment and run state within one contest.
type Participant struct {
	ID               string           `json:"id"`
	ContestID        string           `json:"contestId"`
	UserID           string           `json:"userId"`
	JoinedAt         time.Time        `json:"joinedAt"`
	StartedAt        *time.Time       `json:"startedAt,omitempty"`
	SubmissionStatus SubmissionStatus `json:"submissionStatus"`
	FinishedAt       *time.Time       `json:"finishedAt,omitempty"`
	SolvedCount      int              `json:"solvedCount"`
	UnsolvedCount    int              `json:"unsolvedCount"`
	Score            float64          `json:"score"`
	TimeTaken        int              `json:"timeTaken"`
}

func (p Participant) HasSubmitted() bool {
	return p.SubmissionStatus == Submitted
}

// Deadline is the end of the participant's personal window; zero if they never entered.
func (p Participant) Deadline(c Contest) time.Time {
	if p.StartedAt == nil {
		return time.Time{}
	}
	return p.StartedAt.Add(c.Duration())
}

// Attempt is one question's outcome for one participant.
type Attempt struct {
	ContestID  string        `json:"contestId"`
	UserID     string        `json:"userId"`
	QuestionID string        `json:"questionId"`
	Status     AttemptStatus `json:"status"`
	TimeSpent  int           `json:"timeSpent"`
}

// AttemptInput is a validated client-reported attempt.
type AttemptInput struct {
	QuestionID string        `json:"questionId" validate:"required"`
	Status     AttemptStatus `json:"status" validate:"required,oneof=solved unsolved"`
	TimeSpent  int           `json:"timeSpent"`
}

// SubmissionResult holds the fields written together with the submitted transition.
type SubmissionResult struct {
	SolvedCount   int       `json:"solvedCount"`
	UnsolvedCount int       `json:"unsolvedCount"`
	TimeTaken     int       `json:"timeTaken"`
	Score         float64   `json:"score"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// LiveWindow is returned by EnterLive.
type LiveWindow struct {
	ContestID   string      `json:"contestId"`
	StartedAt   time.Time   `json:"startedAt"`
	Deadline    time.Time   `json:"deadline"`
	Submitted   bool        `json:"submitted"`
	Participant Participant `json:"participant"`
	Attempts    []Attempt   `json:"attempts"`
}

// RankResult is a participant's standing among submitted participants.
type RankResult struct {
	ContestID         string  `json:"contestId"`
	UserID            string  `json:"userId"`
	Rank              int     `json:"rank"`
	TotalParticipants int     `json:"totalParticipants"`
	Score             float64 `json:"score"`
	SolvedCount       int     `json:"solvedCount"`
	TimeTaken         int     `json:"timeTaken"`
}

// LeaderboardEntry is one row of a contest leaderboard.
type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	UserID        string    `json:"userId"`
	Score         float64   `json:"score"`
	SolvedCount   int       `json:"solvedCount"`
	UnsolvedCount int       `json:"unsolvedCount"`
	TimeTaken     int       `json:"timeTaken"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// Leaderboard is an ordered page of submitted participants.
type Leaderboard struct {
	ContestID string             `json:"contestId"`
	Entries   []LeaderboardEntry `json:"entries"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// EventType names a contest notification.
type EventType string

const (
	EventContestStarted       EventType = "contest.started"
	EventContestEnded         EventType = "contest.ended"
	EventParticipantSubmitted EventType = "participant.submitted"
)

// ContestEvent is broadcast best-effort to clients watching a contest.
type ContestEvent struct {
	Type      EventType `json:"type"`
	ContestID string    `json:"contestId"`
	UserID    string    `json:"userId,omitempty"`
	At        time.Time `json:"at"`
}
