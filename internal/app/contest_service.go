package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"contest-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEventsDisabled is returned by Subscribe when no event transport is configured.
var ErrEventsDisabled = errors.New("contest events are not enabled")

const (
	defaultJoinCodeLength = 8
	joinCodeAttempts      = 5
	joinCodeCharset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ContestService implements the contest lifecycle, submission and ranking use cases.
type ContestService struct {
	store        Store
	leaderboards LeaderboardSource
	cache        LeaderboardCache
	notifier     Notifier
	events       EventSubscriber
	logger       *zap.Logger
	validate     *validator.Validate
	now          func() time.Time
	codeLength   int
}

// Option customises a ContestService.
type Option func(*ContestService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ContestService) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *ContestService) { s.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(s *ContestService) { s.notifier = n }
}

// WithEventSubscriber enables Subscribe.
func WithEventSubscriber(e EventSubscriber) Option {
	return func(s *ContestService) { s.events = e }
}

// WithLeaderboardCache serves leaderboard pages through c and invalidates it after each finalization.
func WithLeaderboardCache(c LeaderboardCache) Option {
	return func(s *ContestService) {
		s.cache = c
		s.leaderboards = c
	}
}

func WithJoinCodeLength(n int) Option {
	return func(s *ContestService) {
		if n > 0 {
			s.codeLength = n
		}
	}
}

func NewContestService(store Store, opts ...Option) *ContestService {
	s := &ContestService{
		store:        store,
		leaderboards: store,
		logger:       zap.NewNop(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		now:          time.Now,
		codeLength:   defaultJoinCodeLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at the precision every store keeps.
func (s *ContestService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateContestInput is the owner's contest definition.
type CreateContestInput struct {
	Title         string            `json:"title" validate:"required,max=200"`
	QuestionIDs   []string          `json:"questionIds" validate:"required,min=1,unique,dive,required"`
	DurationInMin int               `json:"durationInMin" validate:"required,gt=0,lte=10080"`
	Visibility    domain.Visibility `json:"visibility" validate:"required,oneof=private shared public"`
	StartsAt      *time.Time        `json:"startsAt"`
	EndsAt        *time.Time        `json:"endsAt"`
}

// CreateContest stores a new upcoming contest, regenerating the join code on collisions.
func (s *ContestService) CreateContest(ctx context.Context, ownerID string, in CreateContestInput) (domain.Contest, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Contest{}, fmt.Errorf("%w: %v", domain.ErrInvalidContest, err)
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return domain.Contest{}, fmt.Errorf("%w: endsAt must be after startsAt", domain.ErrInvalidContest)
	}

	contest := domain.Contest{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(in.Title),
		QuestionIDs:   append([]string(nil), in.QuestionIDs...),
		DurationInMin: in.DurationInMin,
		Visibility:    in.Visibility,
		Status:        domain.ContestUpcoming,
		StartsAt:      utcPtr(in.StartsAt),
		EndsAt:        utcPtr(in.EndsAt),
		CreatedAt:     s.clock(),
	}

	var err error
	for i := 0; i < joinCodeAttempts; i++ {
		contest.JoinCode = s.joinCode()
		err = s.store.CreateContest(ctx, contest)
		if !errors.Is(err, domain.ErrJoinCodeTaken) {
			break
		}
		s.logger.Debug("join code collision, regenerating", zap.String("contest_id", contest.ID))
	}
	if err != nil {
		return domain.Contest{}, err
	}
	s.logger.Info("contest created", zap.String("contest_id", contest.ID), zap.String("owner_id", ownerID))
	return contest, nil
}

// GetContest returns a contest the user may see.
func (s *ContestService) GetContest(ctx context.Context, contestID, userID string) (domain.Contest, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	if contest.Visibility == domain.VisibilityPrivate && contest.OwnerID != userID {
		if _, err := s.store.GetParticipant(ctx, contestID, userID); err != nil {
			if errors.Is(err, domain.ErrParticipantNotFound) {
				return domain.Contest{}, domain.ErrContestNotFound
			}
			return domain.Contest{}, err
		}
	}
	return contest, nil
}

// Subscribe streams events of a contest the user may see.
func (s *ContestService) Subscribe(ctx context.Context, contestID, userID string) (<-chan domain.ContestEvent, func(), error) {
	if s.events == nil {
		return nil, nil, ErrEventsDisabled
	}
	if _, err := s.GetContest(ctx, contestID, userID); err != nil {
		return nil, nil, err
	}
	return s.events.Subscribe(ctx, contestID)
}

// UpdateQuestions replaces the question list while the contest is still upcoming.
func (s *ContestService) UpdateQuestions(ctx context.Context, contestID, ownerID string, questionIDs []string) (domain.Contest, error) {
	if err := s.validate.Var(questionIDs, "required,min=1,unique,dive,required"); err != nil {
		return domain.Contest{}, fmt.Errorf("%w: %v", domain.ErrInvalidContest, err)
	}
	contest, err := s.ownedContest(ctx, contestID, ownerID)
	if err != nil {
		return domain.Contest{}, err
	}
	ok, err := s.store.UpdateContestQuestions(ctx, contestID, questionIDs)
	if err != nil {
		return domain.Contest{}, err
	}
	if !ok {
		return domain.Contest{}, domain.ErrQuestionsLocked
	}
	contest.QuestionIDs = append([]string(nil), questionIDs...)
	return contest, nil
}

// StartContest moves the owner's contest from upcoming to live.
func (s *ContestService) StartContest(ctx context.Context, contestID, ownerID string) (domain.Contest, error) {
	contest, err := s.ownedContest(ctx, contestID, ownerID)
	if err != nil {
		return domain.Contest{}, err
	}
	if !contest.Status.CanTransition(domain.ContestLive) {
		return domain.Contest{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, contest.Status, domain.ContestLive)
	}

	now := s.clock()
	endsAt := now.Add(contest.Duration())
	if contest.EndsAt != nil && contest.EndsAt.After(now) {
		endsAt = *contest.EndsAt
	}
	ok, err := s.store.StartContest(ctx, contestID, now, endsAt)
	if err != nil {
		return domain.Contest{}, err
	}
	if !ok {
		return domain.Contest{}, fmt.Errorf("%w: contest is no longer upcoming", domain.ErrInvalidTransition)
	}
	contest.Status = domain.ContestLive
	contest.StartsAt = &now
	contest.EndsAt = &endsAt

	s.logger.Info("contest started", zap.String("contest_id", contestID))
	s.publish(ctx, domain.ContestEvent{Type: domain.EventContestStarted, ContestID: contestID, At: now})
	return contest, nil
}

// EndContest moves the owner's live contest to ended.
func (s *ContestService) EndContest(ctx context.Context, contestID, ownerID string) (domain.Contest, error) {
	contest, err := s.ownedContest(ctx, contestID, ownerID)
	if err != nil {
		return domain.Contest{}, err
	}
	if !contest.Status.CanTransition(domain.ContestEnded) {
		return domain.Contest{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, contest.Status, domain.ContestEnded)
	}

	now := s.clock()
	ok, err := s.store.EndContest(ctx, contestID, now)
	if err != nil {
		return domain.Contest{}, err
	}
	if !ok {
		return domain.Contest{}, fmt.Errorf("%w: contest is no longer live", domain.ErrInvalidTransition)
	}
	contest.Status = domain.ContestEnded
	contest.EndsAt = &now

	s.logger.Info("contest ended by owner", zap.String("contest_id", contestID))
	s.publish(ctx, domain.ContestEvent{Type: domain.EventContestEnded, ContestID: contestID, At: now})
	return contest, nil
}

// GetUserStats returns the user's aggregates; users without finalized contests get zeros.
func (s *ContestService) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	return s.store.GetStats(ctx, userID)
}

func (s *ContestService) ownedContest(ctx context.Context, contestID, ownerID string) (domain.Contest, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	if contest.OwnerID != ownerID {
		return domain.Contest{}, domain.ErrNotContestOwner
	}
	return contest, nil
}

// publish is best-effort; realtime delivery never affects the state machine.
func (s *ContestService) publish(ctx context.Context, event domain.ContestEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("publish contest event failed",
			zap.String("type", string(event.Type)),
			zap.String("contest_id", event.ContestID),
			zap.Error(err))
	}
}

func (s *ContestService) joinCode() string {
	var sb strings.Builder
	sb.Grow(s.codeLength)
	for i := 0; i < s.codeLength; i++ {
		sb.WriteByte(joinCodeCharset[rand.IntN(len(joinCodeCharset))])
	}
	return sb.String()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}
