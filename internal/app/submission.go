package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contest-service/internal/domain"

	"go.uber.org/zap"
)

// Trigger says who initiated a submission.
type Trigger int

const (
	// TriggerManual is a client submit; it is rejected after the personal deadline.
	TriggerManual Trigger = iota
	// TriggerAuto is the server-side deadline firing (the sweeper).
	TriggerAuto
	// TriggerExpiry is a client reporting that its window closed. It tallies the
	// stored ledger like TriggerAuto but only once the deadline has passed.
	TriggerExpiry
)

func (t Trigger) String() string {
	switch t {
	case TriggerAuto:
		return "auto"
	case TriggerExpiry:
		return "expiry"
	}
	return "manual"
}

// SubmitRequest is the validated input of Submit. A nil Attempts slice means
// the ledger is tallied as stored; auto submits always ignore Attempts.
type SubmitRequest struct {
	ContestID string                `validate:"required"`
	UserID    string                `validate:"required"`
	Attempts  []domain.AttemptInput `validate:"omitempty,dive"`
	Trigger   Trigger
}

// SubmitOutcome reports what Submit did.
type SubmitOutcome struct {
	// Applied is false when a concurrent submit had already sealed the run.
	Applied     bool                    `json:"applied"`
	Result      domain.SubmissionResult `json:"result"`
	Participant domain.Participant      `json:"participant"`
}

// Submit checks the submit preconditions and seals the participant's run.
func (s *ContestService) Submit(ctx context.Context, req SubmitRequest) (SubmitOutcome, error) {
	if req.Trigger != TriggerManual {
		req.Attempts = nil
	}
	if err := s.validate.Struct(req); err != nil {
		return SubmitOutcome{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}

	contest, err := s.store.GetContest(ctx, req.ContestID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	participant, err := s.store.GetParticipant(ctx, req.ContestID, req.UserID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if participant.HasSubmitted() {
		return SubmitOutcome{}, domain.ErrAlreadySubmitted
	}
	if participant.StartedAt == nil {
		return SubmitOutcome{}, domain.ErrNotStarted
	}
	now := s.clock()
	switch req.Trigger {
	case TriggerManual:
		if now.After(participant.Deadline(contest)) {
			return SubmitOutcome{}, domain.ErrTimeExpired
		}
	case TriggerExpiry:
		if now.Before(participant.Deadline(contest)) && contest.Status != domain.ContestEnded && !contest.EndPassed(now) {
			return SubmitOutcome{}, domain.ErrDeadlineNotReached
		}
	}

	return s.Finalize(ctx, contest, participant, req.Attempts)
}

// Finalize seals a participant's run at most once. It assumes the caller checked
// preconditions. A participant already submitted, or a concurrent call that wins
// the claim, makes this a silent no-op. With attempts != nil the ledger is
// updated first; invalid entries abort the whole call with no writes.
func (s *ContestService) Finalize(ctx context.Context, contest domain.Contest, participant domain.Participant, attempts []domain.AttemptInput) (SubmitOutcome, error) {
	if participant.HasSubmitted() {
		return SubmitOutcome{Participant: participant}, nil
	}
	userID := participant.UserID
	now := s.clock()

	var (
		outcome SubmitOutcome
		stats   domain.UserStats
	)
	err := s.store.WithinTx(ctx, func(tx Repository) error {
		claimed, err := tx.ClaimSubmission(ctx, contest.ID, userID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		ledger, err := tx.ListAttempts(ctx, contest.ID, userID)
		if err != nil {
			return err
		}
		if attempts != nil {
			updates, err := reconcile(ledger, attempts, int(contest.Duration()/time.Second))
			if err != nil {
				return err
			}
			if err := tx.UpdateAttempts(ctx, contest.ID, userID, updates); err != nil {
				return err
			}
			if ledger, err = tx.ListAttempts(ctx, contest.ID, userID); err != nil {
				return err
			}
		}

		result := domain.Tally(contest, ledger, now)
		if err := tx.SaveResult(ctx, contest.ID, userID, result); err != nil {
			return err
		}
		if stats, err = tx.ApplyStats(ctx, userID, domain.DeltaFor(result)); err != nil {
			return err
		}
		outcome.Applied = true
		outcome.Result = result
		return nil
	})
	if err != nil {
		return SubmitOutcome{}, err
	}

	if !outcome.Applied {
		s.logger.Debug("submission already finalized", zap.String("contest_id", contest.ID), zap.String("user_id", userID))
		stored, err := s.store.GetParticipant(ctx, contest.ID, userID)
		if err != nil {
			return SubmitOutcome{}, err
		}
		return SubmitOutcome{Participant: stored}, nil
	}

	participant.SubmissionStatus = domain.Submitted
	participant.SolvedCount = outcome.Result.SolvedCount
	participant.UnsolvedCount = outcome.Result.UnsolvedCount
	participant.TimeTaken = outcome.Result.TimeTaken
	participant.Score = outcome.Result.Score
	participant.FinishedAt = &outcome.Result.FinishedAt
	outcome.Participant = participant

	s.logger.Info("participant finalized",
		zap.String("contest_id", contest.ID),
		zap.String("user_id", userID),
		zap.Int("solved", outcome.Result.SolvedCount),
		zap.Int("time_taken", outcome.Result.TimeTaken),
		zap.Float64("score", outcome.Result.Score),
		zap.Int("total_contests", stats.TotalContests))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, contest.ID); err != nil {
			s.logger.Warn("leaderboard cache invalidation failed", zap.String("contest_id", contest.ID), zap.Error(err))
		}
	}
	s.publish(ctx, domain.ContestEvent{Type: domain.EventParticipantSubmitted, ContestID: contest.ID, UserID: userID, At: now})
	return outcome, nil
}

// reconcile checks every entry against the ledger before anything is written
// and clamps reported time to the contest window.
func reconcile(ledger []domain.Attempt, attempts []domain.AttemptInput, maxSeconds int) ([]domain.AttemptInput, error) {
	known := make(map[string]struct{}, len(ledger))
	for _, a := range ledger {
		known[a.QuestionID] = struct{}{}
	}
	updates := make([]domain.AttemptInput, 0, len(attempts))
	for _, in := range attempts {
		if _, ok := known[in.QuestionID]; !ok {
			return nil, fmt.Errorf("%w: question %q is not part of this contest", domain.ErrInvalidAttempt, in.QuestionID)
		}
		if in.Status != domain.AttemptSolved && in.Status != domain.AttemptUnsolved {
			return nil, fmt.Errorf("%w: status %q", domain.ErrInvalidAttempt, in.Status)
		}
		in.TimeSpent = domain.ClampSeconds(in.TimeSpent, maxSeconds)
		updates = append(updates, in)
	}
	return updates, nil
}

// IsAlreadySubmitted reports whether err is the double-submit rejection.
func IsAlreadySubmitted(err error) bool {
	return errors.Is(err, domain.ErrAlreadySubmitted)
}
