package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repo struct {
	q querier
}

// Store implements app.Store on Postgres.
type Store struct {
	repo
	pool *pgxpool.Pool
}

var _ app.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{repo: repo{q: pool}, pool: pool}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx app.Repository) error) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&repo{q: tx})
	})
}

const contestColumns = `id, join_code, owner_id, title, question_ids, duration_in_min, visibility, status, starts_at, ends_at, created_at`

func (r *repo) CreateContest(ctx context.Context, c domain.Contest) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO contests (`+contestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.JoinCode, c.OwnerID, c.Title, c.QuestionIDs, c.DurationInMin,
		string(c.Visibility), string(c.Status), c.StartsAt, c.EndsAt, c.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "contests_join_code_key" {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert contest: %w", err)
	}
	return nil
}

func (r *repo) GetContest(ctx context.Context, id string) (domain.Contest, error) {
	row := r.q.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id)
	return scanContest(row)
}

func (r *repo) GetContestByCode(ctx context.Context, code string) (domain.Contest, error) {
	row := r.q.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE join_code = $1`, code)
	return scanContest(row)
}

func (r *repo) UpdateContestQuestions(ctx context.Context, id string, questionIDs []string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE contests SET question_ids = $2
		WHERE id = $1 AND status = 'upcoming'`, id, questionIDs)
	if err != nil {
		return false, fmt.Errorf("update questions: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) StartContest(ctx context.Context, id string, startsAt, endsAt time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE contests SET status = 'live', starts_at = $2, ends_at = $3
		WHERE id = $1 AND status = 'upcoming'`, id, startsAt, endsAt)
	if err != nil {
		return false, fmt.Errorf("start contest: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) EndContest(ctx context.Context, id string, endsAt time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE contests SET status = 'ended', ends_at = $2
		WHERE id = $1 AND status = 'live'`, id, endsAt)
	if err != nil {
		return false, fmt.Errorf("end contest: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) StartDueContests(ctx context.Context, now time.Time) ([]string, error) {
	return r.collectIDs(ctx, `
		UPDATE contests
		SET status = 'live',
		    ends_at = COALESCE(ends_at, starts_at + make_interval(mins => duration_in_min))
		WHERE status = 'upcoming' AND starts_at IS NOT NULL AND starts_at <= $1
		RETURNING id`, now)
}

func (r *repo) ExpireContests(ctx context.Context, now time.Time) ([]string, error) {
	return r.collectIDs(ctx, `
		UPDATE contests SET status = 'ended'
		WHERE status = 'live' AND ends_at IS NOT NULL AND ends_at <= $1
		RETURNING id`, now)
}

func (r *repo) collectIDs(ctx context.Context, sql string, args ...interface{}) ([]string, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("update contests: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const participantColumns = `id, contest_id, user_id, joined_at, started_at, submission_status, finished_at, solved_count, unsolved_count, score, time_taken`

func (r *repo) InsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO participants (id, contest_id, user_id, joined_at, submission_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (contest_id, user_id) DO NOTHING
		RETURNING `+participantColumns,
		p.ID, p.ContestID, p.UserID, p.JoinedAt, string(domain.NotSubmitted))
	created, err := scanParticipant(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Participant{}, false, fmt.Errorf("insert participant: %w", err)
	}
	existing, err := r.GetParticipant(ctx, p.ContestID, p.UserID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return existing, false, nil
}

func (r *repo) GetParticipant(ctx context.Context, contestID, userID string) (domain.Participant, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE contest_id = $1 AND user_id = $2`, contestID, userID)
	return scanParticipant(row)
}

func (r *repo) DeleteParticipant(ctx context.Context, contestID, userID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM participants WHERE contest_id = $1 AND user_id = $2`, contestID, userID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) MarkStarted(ctx context.Context, contestID, userID string, at time.Time) (domain.Participant, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE participants SET started_at = COALESCE(started_at, $3)
		WHERE contest_id = $1 AND user_id = $2
		RETURNING `+participantColumns, contestID, userID, at)
	return scanParticipant(row)
}

func (r *repo) ClaimSubmission(ctx context.Context, contestID, userID string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE participants SET submission_status = 'submitted', finished_at = $3
		WHERE contest_id = $1 AND user_id = $2 AND submission_status = 'not_submitted'`,
		contestID, userID, at)
	if err != nil {
		return false, fmt.Errorf("claim submission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) SaveResult(ctx context.Context, contestID, userID string, res domain.SubmissionResult) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE participants
		SET solved_count = $3, unsolved_count = $4, time_taken = $5, score = $6, finished_at = $7
		WHERE contest_id = $1 AND user_id = $2`,
		contestID, userID, res.SolvedCount, res.UnsolvedCount, res.TimeTaken, res.Score, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (r *repo) ListPendingParticipants(ctx context.Context) ([]domain.Participant, error) {
	return r.queryParticipants(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE submission_status = 'not_submitted' AND started_at IS NOT NULL
		ORDER BY contest_id, user_id`)
}

func (r *repo) RankPosition(ctx context.Context, p domain.Participant) (int, int, error) {
	var better, total int
	err := r.q.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE score > $2
				OR (score = $2 AND time_taken < $3)
				OR (score = $2 AND time_taken = $3 AND finished_at < $4)),
			count(*)
		FROM participants
		WHERE contest_id = $1 AND submission_status = 'submitted'`,
		p.ContestID, p.Score, p.TimeTaken, p.FinishedAt).Scan(&better, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("rank position: %w", err)
	}
	return better, total, nil
}

func (r *repo) ListSubmitted(ctx context.Context, contestID string, limit, offset int) ([]domain.Participant, int, error) {
	var total int
	if err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM participants
		WHERE contest_id = $1 AND submission_status = 'submitted'`, contestID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submitted: %w", err)
	}
	page, err := r.queryParticipants(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE contest_id = $1 AND submission_status = 'submitted'
		ORDER BY score DESC, time_taken ASC, finished_at ASC, user_id ASC
		LIMIT $2 OFFSET $3`, contestID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func (r *repo) queryParticipants(ctx context.Context, sql string, args ...interface{}) ([]domain.Participant, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()
	out := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) SeedAttempts(ctx context.Context, contestID, userID string, questionIDs []string) (int, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO attempts (contest_id, user_id, question_id, position, status, time_spent)
		SELECT $1, $2, q.question_id, q.position, 'unsolved', 0
		FROM unnest($3::text[]) WITH ORDINALITY AS q(question_id, position)
		ON CONFLICT (contest_id, user_id, question_id) DO NOTHING`,
		contestID, userID, questionIDs)
	if err != nil {
		return 0, fmt.Errorf("seed attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repo) ListAttempts(ctx context.Context, contestID, userID string) ([]domain.Attempt, error) {
	rows, err := r.q.Query(ctx, `
		SELECT question_id, status, time_spent FROM attempts
		WHERE contest_id = $1 AND user_id = $2
		ORDER BY position`, contestID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	out := []domain.Attempt{}
	for rows.Next() {
		a := domain.Attempt{ContestID: contestID, UserID: userID}
		var status string
		if err := rows.Scan(&a.QuestionID, &status, &a.TimeSpent); err != nil {
			return nil, err
		}
		a.Status = domain.AttemptStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAttempts is expected to run inside WithinTx; an unknown question
// aborts with ErrInvalidAttempt and the caller's rollback discards earlier rows.
func (r *repo) UpdateAttempts(ctx context.Context, contestID, userID string, updates []domain.AttemptInput) error {
	for _, u := range updates {
		tag, err := r.q.Exec(ctx, `
			UPDATE attempts SET status = $4, time_spent = $5
			WHERE contest_id = $1 AND user_id = $2 AND question_id = $3`,
			contestID, userID, u.QuestionID, string(u.Status), u.TimeSpent)
		if err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: question %q", domain.ErrInvalidAttempt, u.QuestionID)
		}
	}
	return nil
}

const statsColumns = `user_id, total_contests, total_questions_solved, total_questions_attempted, total_time_spent, avg_accuracy, avg_time_per_question`

func (r *repo) GetStats(ctx context.Context, userID string) (domain.UserStats, error) {
	stats, err := scanStats(r.q.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

// ApplyStats increments the sums atomically, then stores averages derived from the new sums.
func (r *repo) ApplyStats(ctx context.Context, userID string, d domain.StatsDelta) (domain.UserStats, error) {
	stats, err := scanStats(r.q.QueryRow(ctx, `
		INSERT INTO user_stats (user_id, total_contests, total_questions_solved, total_questions_attempted, total_time_spent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			total_contests = user_stats.total_contests + EXCLUDED.total_contests,
			total_questions_solved = user_stats.total_questions_solved + EXCLUDED.total_questions_solved,
			total_questions_attempted = user_stats.total_questions_attempted + EXCLUDED.total_questions_attempted,
			total_time_spent = user_stats.total_time_spent + EXCLUDED.total_time_spent
		RETURNING `+statsColumns,
		userID, d.Contests, d.QuestionsSolved, d.QuestionsAttempted, d.TimeSpent))
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("apply stats: %w", err)
	}
	stats = stats.Derive()
	if _, err := r.q.Exec(ctx, `
		UPDATE user_stats SET avg_accuracy = $2, avg_time_per_question = $3
		WHERE user_id = $1`, userID, stats.AvgAccuracy, stats.AvgTimePerQuestion); err != nil {
		return domain.UserStats{}, fmt.Errorf("store averages: %w", err)
	}
	return stats, nil
}

func scanContest(row pgx.Row) (domain.Contest, error) {
	var (
		c                  domain.Contest
		visibility, status string
	)
	err := row.Scan(&c.ID, &c.JoinCode, &c.OwnerID, &c.Title, &c.QuestionIDs, &c.DurationInMin,
		&visibility, &status, &c.StartsAt, &c.EndsAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	if err != nil {
		return domain.Contest{}, fmt.Errorf("scan contest: %w", err)
	}
	c.Visibility = domain.Visibility(visibility)
	c.Status = domain.ContestStatus(status)
	c.StartsAt = utc(c.StartsAt)
	c.EndsAt = utc(c.EndsAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var (
		p      domain.Participant
		status string
	)
	err := row.Scan(&p.ID, &p.ContestID, &p.UserID, &p.JoinedAt, &p.StartedAt, &status,
		&p.FinishedAt, &p.SolvedCount, &p.UnsolvedCount, &p.Score, &p.TimeTaken)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("scan participant: %w", err)
	}
	p.SubmissionStatus = domain.SubmissionStatus(status)
	p.JoinedAt = p.JoinedAt.UTC()
	p.StartedAt = utc(p.StartedAt)
	p.FinishedAt = utc(p.FinishedAt)
	return p, nil
}

func scanStats(row pgx.Row) (domain.UserStats, error) {
	var s domain.UserStats
	err := row.Scan(&s.UserID, &s.TotalContests, &s.TotalQuestionsSolved, &s.TotalQuestionsAttempted,
		&s.TotalTimeSpent, &s.AvgAccuracy, &s.AvgTimePerQuestion)
	return s, err
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
