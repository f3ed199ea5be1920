package app

import (
	"context"
	"time"

	"contest-service/internal/domain"
)

// ContestRepository stores contest definitions and their status.
// Status changes are conditional writes: they report false when the row was
// not in the expected state.
type ContestRepository interface {
	CreateContest(ctx context.Context, contest domain.Contest) error
	GetContest(ctx context.Context, id string) (domain.Contest, error)
	GetContestByCode(ctx context.Context, code string) (domain.Contest, error)
	UpdateContestQuestions(ctx context.Context, id string, questionIDs []string) (bool, error)
	// StartContest moves an upcoming contest to live and fills in its window.
	StartContest(ctx context.Context, id string, startsAt, endsAt time.Time) (bool, error)
	EndContest(ctx context.Context, id string, endsAt time.Time) (bool, error)
	// StartDueContests flips upcoming contests with startsAt <= now to live.
	StartDueContests(ctx context.Context, now time.Time) ([]string, error)
	// ExpireContests flips live contests with endsAt <= now to ended.
	ExpireContests(ctx context.Context, now time.Time) ([]string, error)
}

// ParticipantRepository stores one record per (contest, user).
type ParticipantRepository interface {
	// InsertParticipant creates p unless a record exists for (p.ContestID, p.UserID);
	// it returns the stored record and whether it was created.
	InsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error)
	GetParticipant(ctx context.Context, contestID, userID string) (domain.Participant, error)
	DeleteParticipant(ctx context.Context, contestID, userID string) (bool, error)
	// MarkStarted sets startedAt only if it is unset and returns the stored record.
	MarkStarted(ctx context.Context, contestID, userID string, at time.Time) (domain.Participant, error)
	// ClaimSubmission flips not_submitted -> submitted; false means another call won.
	ClaimSubmission(ctx context.Context, contestID, userID string, at time.Time) (bool, error)
	SaveResult(ctx context.Context, contestID, userID string, result domain.SubmissionResult) error
	// ListPendingParticipants returns entered participants that have not submitted.
	ListPendingParticipants(ctx context.Context) ([]domain.Participant, error)
	// RankPosition counts submitted participants strictly better than p, and all submitted.
	RankPosition(ctx context.Context, p domain.Participant) (better int, total int, err error)
	LeaderboardSource
}

// LeaderboardSource pages submitted participants in leaderboard order.
type LeaderboardSource interface {
	ListSubmitted(ctx context.Context, contestID string, limit, offset int) ([]domain.Participant, int, error)
}

// AttemptRepository stores the attempt ledger.
type AttemptRepository interface {
	// SeedAttempts inserts an unsolved, zero-time attempt per question that has
	// none yet and returns how many rows were created.
	SeedAttempts(ctx context.Context, contestID, userID string, questionIDs []string) (int, error)
	ListAttempts(ctx context.Context, contestID, userID string) ([]domain.Attempt, error)
	UpdateAttempts(ctx context.Context, contestID, userID string, updates []domain.AttemptInput) error
}

// StatsRepository stores per-user aggregates.
type StatsRepository interface {
	GetStats(ctx context.Context, userID string) (domain.UserStats, error)
	// ApplyStats adds delta to the user's running sums, creating the row if needed.
	ApplyStats(ctx context.Context, userID string, delta domain.StatsDelta) (domain.UserStats, error)
}

// Repository is the full set of storage operations.
type Repository interface {
	ContestRepository
	ParticipantRepository
	AttemptRepository
	StatsRepository
}

// Store is a Repository that can run a function inside one transaction.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}

// LeaderboardCache serves leaderboard pages and drops them when a contest changes.
type LeaderboardCache interface {
	LeaderboardSource
	Invalidate(ctx context.Context, contestID string) error
}

// Notifier delivers contest events to whatever realtime transport is wired in.
type Notifier interface {
	Publish(ctx context.Context, event domain.ContestEvent) error
}

// EventSubscriber streams events for one contest. The cancel func must be called.
type EventSubscriber interface {
	Subscribe(ctx context.Context, contestID string) (<-chan domain.ContestEvent, func(), error)
}
