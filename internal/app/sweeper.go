package app

import (
	"context"
	"errors"

	"contest-service/internal/domain"

	"go.uber.org/zap"
)

// SweepReport counts what one sweep pass changed.
type SweepReport struct {
	Started       int `json:"started"`
	Ended         int `json:"ended"`
	AutoSubmitted int `json:"autoSubmitted"`
}

// Sweeper runs the periodic contest maintenance. Every step is a conditional
// write, so overlapping runs are safe.
type Sweeper struct {
	service *ContestService
}

func NewSweeper(service *ContestService) *Sweeper {
	return &Sweeper{service: service}
}

// Run starts due contests, expires finished ones, then auto-submits overdue participants.
func (w *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	var errs []error

	started, err := w.service.StartDueContests(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	report.Started = started

	ended, err := w.service.ExpireSweep(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	report.Ended = ended

	submitted, err := w.service.AutoSubmitOverdue(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	report.AutoSubmitted = submitted

	if report != (SweepReport{}) {
		w.service.logger.Info("sweep finished",
			zap.Int("started", report.Started),
			zap.Int("ended", report.Ended),
			zap.Int("auto_submitted", report.AutoSubmitted))
	}
	return report, errors.Join(errs...)
}

// StartDueContests flips scheduled contests whose start time has come to live.
func (s *ContestService) StartDueContests(ctx context.Context) (int, error) {
	now := s.clock()
	ids, err := s.store.StartDueContests(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.logger.Info("scheduled contest started", zap.String("contest_id", id))
		s.publish(ctx, domain.ContestEvent{Type: domain.EventContestStarted, ContestID: id, At: now})
	}
	return len(ids), nil
}

// ExpireSweep flips every live contest whose end has passed to ended and returns how many changed.
func (s *ContestService) ExpireSweep(ctx context.Context) (int, error) {
	now := s.clock()
	ids, err := s.store.ExpireContests(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.logger.Info("contest expired", zap.String("contest_id", id))
		s.publish(ctx, domain.ContestEvent{Type: domain.EventContestEnded, ContestID: id, At: now})
	}
	return len(ids), nil
}

// AutoSubmitOverdue finalizes entered participants whose window has closed,
// either by their personal deadline or by the contest ending.
func (s *ContestService) AutoSubmitOverdue(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingParticipants(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock()
	contests := make(map[string]domain.Contest)
	submitted := 0
	var errs []error
	for _, p := range pending {
		contest, ok := contests[p.ContestID]
		if !ok {
			contest, err = s.store.GetContest(ctx, p.ContestID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			contests[p.ContestID] = contest
		}
		if contest.Status != domain.ContestEnded && !now.After(p.Deadline(contest)) {
			continue
		}

		outcome, err := s.Submit(ctx, SubmitRequest{ContestID: p.ContestID, UserID: p.UserID, Trigger: TriggerAuto})
		switch {
		case IsAlreadySubmitted(err):
			continue
		case err != nil:
			s.logger.Warn("auto-submit failed",
				zap.String("contest_id", p.ContestID),
				zap.String("user_id", p.UserID),
				zap.Error(err))
			errs = append(errs, err)
		case outcome.Applied:
			submitted++
		}
	}
	return submitted, errors.Join(errs...)
}
