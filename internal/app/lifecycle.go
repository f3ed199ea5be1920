package app

import (
	"context"
	"errors"
	"strings"

	"contest-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Join enrolls the user in the contest identified by id or join code.
// Joining twice returns the existing participant.
func (s *ContestService) Join(ctx context.Context, contestIDOrCode, userID string) (domain.Participant, error) {
	contest, err := s.resolveForJoin(ctx, contestIDOrCode, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	switch contest.Status {
	case domain.ContestLive:
		return domain.Participant{}, domain.ErrContestAlreadyLive
	case domain.ContestEnded:
		return domain.Participant{}, domain.ErrContestEnded
	}

	participant, created, err := s.store.InsertParticipant(ctx, domain.Participant{
		ID:               uuid.NewString(),
		ContestID:        contest.ID,
		UserID:           userID,
		JoinedAt:         s.clock(),
		SubmissionStatus: domain.NotSubmitted,
	})
	if err != nil {
		return domain.Participant{}, err
	}
	if created {
		s.logger.Info("participant joined", zap.String("contest_id", contest.ID), zap.String("user_id", userID))
	}
	return participant, nil
}

// resolveForJoin looks a contest up by id, then by join code. Private contests
// are only reachable by id for their owner; everyone else needs the code.
func (s *ContestService) resolveForJoin(ctx context.Context, key, userID string) (domain.Contest, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	contest, err := s.store.GetContest(ctx, key)
	switch {
	case err == nil:
		if contest.Visibility == domain.VisibilityPrivate && contest.OwnerID != userID {
			return domain.Contest{}, domain.ErrContestNotFound
		}
		return contest, nil
	case !errors.Is(err, domain.ErrContestNotFound):
		return domain.Contest{}, err
	}
	return s.store.GetContestByCode(ctx, strings.ToUpper(key))
}

// Leave removes the participant before the contest starts.
func (s *ContestService) Leave(ctx context.Context, contestID, userID string) error {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return err
	}
	switch contest.Status {
	case domain.ContestLive:
		return domain.ErrCannotLeaveLive
	case domain.ContestEnded:
		return domain.ErrContestEnded
	}
	deleted, err := s.store.DeleteParticipant(ctx, contestID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrParticipantNotFound
	}
	s.logger.Info("participant left", zap.String("contest_id", contestID), zap.String("user_id", userID))
	return nil
}

// EnterLive opens (or resumes) the participant's personal window. The first
// call sets startedAt and seeds the attempt ledger; later calls change nothing.
func (s *ContestService) EnterLive(ctx context.Context, contestID, userID string) (domain.LiveWindow, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return domain.LiveWindow{}, err
	}
	now := s.clock()
	if contest.Status != domain.ContestLive {
		return domain.LiveWindow{}, domain.ErrContestNotLive
	}
	if contest.EndPassed(now) {
		return domain.LiveWindow{}, domain.ErrContestExpired
	}

	participant, err := s.store.GetParticipant(ctx, contestID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.LiveWindow{}, domain.ErrNotJoined
		}
		return domain.LiveWindow{}, err
	}
	if participant.HasSubmitted() {
		return s.window(ctx, contest, participant)
	}

	if participant.StartedAt == nil {
		participant, err = s.store.MarkStarted(ctx, contestID, userID, now)
		if err != nil {
			return domain.LiveWindow{}, err
		}
	}
	seeded, err := s.store.SeedAttempts(ctx, contestID, userID, contest.QuestionIDs)
	if err != nil {
		return domain.LiveWindow{}, err
	}
	if seeded > 0 {
		s.logger.Info("participant entered live contest",
			zap.String("contest_id", contestID),
			zap.String("user_id", userID),
			zap.Int("attempts_seeded", seeded))
	}
	return s.window(ctx, contest, participant)
}

func (s *ContestService) window(ctx context.Context, contest domain.Contest, p domain.Participant) (domain.LiveWindow, error) {
	attempts, err := s.store.ListAttempts(ctx, contest.ID, p.UserID)
	if err != nil {
		return domain.LiveWindow{}, err
	}
	w := domain.LiveWindow{
		ContestID:   contest.ID,
		Submitted:   p.HasSubmitted(),
		Participant: p,
		Attempts:    attempts,
	}
	if p.StartedAt != nil {
		w.StartedAt = *p.StartedAt
		w.Deadline = p.Deadline(contest)
	}
	return w, nil
}

// ListAttempts returns the participant's attempt ledger.
func (s *ContestService) ListAttempts(ctx context.Context, contestID, userID string) ([]domain.Attempt, error) {
	if _, err := s.store.GetParticipant(ctx, contestID, userID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, contestID, userID)
}
