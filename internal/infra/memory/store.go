package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

type participantKey struct {
	contestID string
	userID    string
}

type state struct {
	contests     map[string]domain.Contest
	codes        map[string]string
	participants map[participantKey]domain.Participant
	attempts     map[participantKey][]domain.Attempt
	stats        map[string]domain.UserStats
}

func newState() *state {
	return &state{
		contests:     make(map[string]domain.Contest),
		codes:        make(map[string]string),
		participants: make(map[participantKey]domain.Participant),
		attempts:     make(map[participantKey][]domain.Attempt),
		stats:        make(map[string]domain.UserStats),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.contests {
		v.QuestionIDs = append([]string(nil), v.QuestionIDs...)
		c.contests[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.attempts {
		c.attempts[k] = append([]domain.Attempt(nil), v...)
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	return c
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// repo implements app.Repository over a state. Outside a transaction mu is the
// store mutex; inside one the store is already locked and mu is a no-op.
type repo struct {
	mu sync.Locker
	st *state
}

// Store is an in-memory implementation of app.Store. Transactions hold the
// store lock and roll back by restoring a snapshot.
type Store struct {
	repo
	txMu sync.Mutex
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{}
	s.repo = repo{mu: &s.txMu, st: newState()}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx app.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&repo{mu: noLock{}, st: s.st}); err != nil {
		*s.st = *snapshot
		return err
	}
	return ctx.Err()
}

func (r *repo) CreateContest(_ context.Context, contest domain.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.st.codes[contest.JoinCode]; taken {
		return domain.ErrJoinCodeTaken
	}
	contest.QuestionIDs = append([]string(nil), contest.QuestionIDs...)
	r.st.contests[contest.ID] = contest
	r.st.codes[contest.JoinCode] = contest.ID
	return nil
}

func (r *repo) GetContest(_ context.Context, id string) (domain.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contestLocked(id)
}

func (r *repo) contestLocked(id string) (domain.Contest, error) {
	contest, ok := r.st.contests[id]
	if !ok {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	contest.QuestionIDs = append([]string(nil), contest.QuestionIDs...)
	return contest, nil
}

func (r *repo) GetContestByCode(_ context.Context, code string) (domain.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.st.codes[code]
	if !ok {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	return r.contestLocked(id)
}

func (r *repo) UpdateContestQuestions(_ context.Context, id string, questionIDs []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contest, ok := r.st.contests[id]
	if !ok || contest.Status != domain.ContestUpcoming {
		return false, nil
	}
	contest.QuestionIDs = append([]string(nil), questionIDs...)
	r.st.contests[id] = contest
	return true, nil
}

func (r *repo) StartContest(_ context.Context, id string, startsAt, endsAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contest, ok := r.st.contests[id]
	if !ok || contest.Status != domain.ContestUpcoming {
		return false, nil
	}
	contest.Status = domain.ContestLive
	contest.StartsAt = &startsAt
	contest.EndsAt = &endsAt
	r.st.contests[id] = contest
	return true, nil
}

func (r *repo) EndContest(_ context.Context, id string, endsAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contest, ok := r.st.contests[id]
	if !ok || contest.Status != domain.ContestLive {
		return false, nil
	}
	contest.Status = domain.ContestEnded
	contest.EndsAt = &endsAt
	r.st.contests[id] = contest
	return true, nil
}

func (r *repo) StartDueContests(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, contest := range r.st.contests {
		if contest.Status != domain.ContestUpcoming || contest.StartsAt == nil || contest.StartsAt.After(now) {
			continue
		}
		contest.Status = domain.ContestLive
		if contest.EndsAt == nil {
			endsAt := contest.StartsAt.Add(contest.Duration())
			contest.EndsAt = &endsAt
		}
		r.st.contests[id] = contest
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *repo) ExpireContests(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, contest := range r.st.contests {
		if contest.Status != domain.ContestLive || !contest.EndPassed(now) {
			continue
		}
		contest.Status = domain.ContestEnded
		r.st.contests[id] = contest
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *repo) InsertParticipant(_ context.Context, p domain.Participant) (domain.Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{p.ContestID, p.UserID}
	if existing, ok := r.st.participants[key]; ok {
		return existing, false, nil
	}
	r.st.participants[key] = p
	return p, true, nil
}

func (r *repo) GetParticipant(_ context.Context, contestID, userID string) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.st.participants[participantKey{contestID, userID}]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (r *repo) DeleteParticipant(_ context.Context, contestID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{contestID, userID}
	if _, ok := r.st.participants[key]; !ok {
		return false, nil
	}
	delete(r.st.participants, key)
	delete(r.st.attempts, key)
	return true, nil
}

func (r *repo) MarkStarted(_ context.Context, contestID, userID string, at time.Time) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{contestID, userID}
	p, ok := r.st.participants[key]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if p.StartedAt == nil {
		p.StartedAt = &at
		r.st.participants[key] = p
	}
	return p, nil
}

func (r *repo) ClaimSubmission(_ context.Context, contestID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{contestID, userID}
	p, ok := r.st.participants[key]
	if !ok || p.SubmissionStatus == domain.Submitted {
		return false, nil
	}
	p.SubmissionStatus = domain.Submitted
	p.FinishedAt = &at
	r.st.participants[key] = p
	return true, nil
}

func (r *repo) SaveResult(_ context.Context, contestID, userID string, result domain.SubmissionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{contestID, userID}
	p, ok := r.st.participants[key]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	finished := result.FinishedAt
	p.SolvedCount = result.SolvedCount
	p.UnsolvedCount = result.UnsolvedCount
	p.TimeTaken = result.TimeTaken
	p.Score = result.Score
	p.FinishedAt = &finished
	r.st.participants[key] = p
	return nil
}

func (r *repo) ListPendingParticipants(_ context.Context) ([]domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Participant
	for _, p := range r.st.participants {
		if p.StartedAt != nil && !p.HasSubmitted() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContestID != out[j].ContestID {
			return out[i].ContestID < out[j].ContestID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *repo) RankPosition(_ context.Context, p domain.Participant) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	better, total := 0, 0
	for _, other := range r.submittedLocked(p.ContestID) {
		total++
		if domain.RanksAbove(other, p) {
			better++
		}
	}
	return better, total, nil
}

func (r *repo) ListSubmitted(_ context.Context, contestID string, limit, offset int) ([]domain.Participant, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.submittedLocked(contestID)
	sort.Slice(all, func(i, j int) bool { return domain.LeaderboardLess(all[i], all[j]) })
	total := len(all)
	if offset >= total {
		return []domain.Participant{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *repo) submittedLocked(contestID string) []domain.Participant {
	var out []domain.Participant
	for key, p := range r.st.participants {
		if key.contestID == contestID && p.HasSubmitted() {
			out = append(out, p)
		}
	}
	return out
}

func (r *repo) SeedAttempts(_ context.Context, contestID, userID string, questionIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{contestID, userID}
	existing := make(map[string]struct{}, len(r.st.attempts[key]))
	for _, a := range r.st.attempts[key] {
		existing[a.QuestionID] = struct{}{}
	}
	created := 0
	for _, qid := range questionIDs {
		if _, ok := existing[qid]; ok {
			continue
		}
		r.st.attempts[key] = append(r.st.attempts[key], domain.Attempt{
			ContestID:  contestID,
			UserID:     userID,
			QuestionID: qid,
			Status:     domain.AttemptUnsolved,
		})
		existing[qid] = struct{}{}
		created++
	}
	return created, nil
}

func (r *repo) ListAttempts(_ context.Context, contestID, userID string) ([]domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Attempt{}, r.st.attempts[participantKey{contestID, userID}]...), nil
}

func (r *repo) UpdateAttempts(_ context.Context, contestID, userID string, updates []domain.AttemptInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey{contestID, userID}
	ledger := r.st.attempts[key]
	index := make(map[string]int, len(ledger))
	for i, a := range ledger {
		index[a.QuestionID] = i
	}
	for _, u := range updates {
		if _, ok := index[u.QuestionID]; !ok {
			return domain.ErrInvalidAttempt
		}
	}
	for _, u := range updates {
		i := index[u.QuestionID]
		ledger[i].Status = u.Status
		ledger[i].TimeSpent = u.TimeSpent
	}
	return nil
}

func (r *repo) GetStats(_ context.Context, userID string) (domain.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.st.stats[userID]
	if !ok {
		return domain.UserStats{UserID: userID}, nil
	}
	return stats, nil
}

func (r *repo) ApplyStats(_ context.Context, userID string, delta domain.StatsDelta) (domain.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.st.stats[userID]
	stats.UserID = userID
	stats = stats.Apply(delta)
	r.st.stats[userID] = stats
	return stats, nil
}
