package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open creates the database file if needed and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		zap.L().Info("database file not found, creating directory", zap.String("path", path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also serializes transactions.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&contestRow{}, &participantRow{}, &attemptRow{}, &userStatsRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

type repo struct {
	db *gorm.DB
}

// Store implements app.Store with gorm on sqlite. Ranking is computed in Go.
type Store struct {
	repo
}

var _ app.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{repo: repo{db: db}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx app.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx})
	})
}

func (r *repo) CreateContest(ctx context.Context, c domain.Contest) error {
	row := contestFromDomain(c)
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var n int64
		if cerr := r.db.WithContext(ctx).Model(&contestRow{}).Where("join_code = ?", c.JoinCode).Count(&n).Error; cerr == nil && n > 0 {
			return domain.ErrJoinCodeTaken
		}
	}
	return err
}

func (r *repo) GetContest(ctx context.Context, id string) (domain.Contest, error) {
	return r.findContest(ctx, "id = ?", id)
}

func (r *repo) GetContestByCode(ctx context.Context, code string) (domain.Contest, error) {
	return r.findContest(ctx, "join_code = ?", code)
}

func (r *repo) findContest(ctx context.Context, query string, arg string) (domain.Contest, error) {
	var row contestRow
	err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	if err != nil {
		return domain.Contest{}, err
	}
	return row.toDomain(), nil
}

func (r *repo) UpdateContestQuestions(ctx context.Context, id string, questionIDs []string) (bool, error) {
	return r.updateContest(ctx, id, domain.ContestUpcoming, map[string]interface{}{
		"question_ids": stringList(questionIDs),
	})
}

func (r *repo) StartContest(ctx context.Context, id string, startsAt, endsAt time.Time) (bool, error) {
	return r.updateContest(ctx, id, domain.ContestUpcoming, map[string]interface{}{
		"status":    string(domain.ContestLive),
		"starts_at": startsAt,
		"ends_at":   endsAt,
	})
}

func (r *repo) EndContest(ctx context.Context, id string, endsAt time.Time) (bool, error) {
	return r.updateContest(ctx, id, domain.ContestLive, map[string]interface{}{
		"status":  string(domain.ContestEnded),
		"ends_at": endsAt,
	})
}

func (r *repo) updateContest(ctx context.Context, id string, from domain.ContestStatus, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&contestRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Time filters run in Go because sqlite stores timestamps as text.
func (r *repo) StartDueContests(ctx context.Context, now time.Time) ([]string, error) {
	var rows []contestRow
	if err := r.db.WithContext(ctx).Where("status = ? AND starts_at IS NOT NULL", string(domain.ContestUpcoming)).Find(&rows).Error; err != nil {
		return nil, err
	}
	var ids []string
	for _, row := range rows {
		c := row.toDomain()
		if c.StartsAt.After(now) {
			continue
		}
		endsAt := c.StartsAt.Add(c.Duration())
		if c.EndsAt != nil {
			endsAt = *c.EndsAt
		}
		ok, err := r.updateContest(ctx, c.ID, domain.ContestUpcoming, map[string]interface{}{
			"status":  string(domain.ContestLive),
			"ends_at": endsAt,
		})
		if err != nil {
			return ids, err
		}
		if ok {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *repo) ExpireContests(ctx context.Context, now time.Time) ([]string, error) {
	var rows []contestRow
	if err := r.db.WithContext(ctx).Where("status = ? AND ends_at IS NOT NULL", string(domain.ContestLive)).Find(&rows).Error; err != nil {
		return nil, err
	}
	var ids []string
	for _, row := range rows {
		c := row.toDomain()
		if !c.EndPassed(now) {
			continue
		}
		ok, err := r.updateContest(ctx, c.ID, domain.ContestLive, map[string]interface{}{
			"status": string(domain.ContestEnded),
		})
		if err != nil {
			return ids, err
		}
		if ok {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *repo) InsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error) {
	row := participantRow{
		ID:               p.ID,
		ContestID:        p.ContestID,
		UserID:           p.UserID,
		JoinedAt:         p.JoinedAt,
		SubmissionStatus: string(domain.NotSubmitted),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contest_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return domain.Participant{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return row.toDomain(), true, nil
	}
	existing, err := r.GetParticipant(ctx, p.ContestID, p.UserID)
	return existing, false, err
}

func (r *repo) GetParticipant(ctx context.Context, contestID, userID string) (domain.Participant, error) {
	var row participantRow
	err := r.db.WithContext(ctx).Where("contest_id = ? AND user_id = ?", contestID, userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return row.toDomain(), nil
}

func (r *repo) DeleteParticipant(ctx context.Context, contestID, userID string) (bool, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("contest_id = ? AND user_id = ?", contestID, userID).Delete(&participantRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return tx.Where("contest_id = ? AND user_id = ?", contestID, userID).Delete(&attemptRow{}).Error
	})
	return deleted == 1, err
}

func (r *repo) MarkStarted(ctx context.Context, contestID, userID string, at time.Time) (domain.Participant, error) {
	err := r.db.WithContext(ctx).Model(&participantRow{}).
		Where("contest_id = ? AND user_id = ? AND started_at IS NULL", contestID, userID).
		Update("started_at", at).Error
	if err != nil {
		return domain.Participant{}, err
	}
	return r.GetParticipant(ctx, contestID, userID)
}

func (r *repo) ClaimSubmission(ctx context.Context, contestID, userID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&participantRow{}).
		Where("contest_id = ? AND user_id = ? AND submission_status = ?", contestID, userID, string(domain.NotSubmitted)).
		Updates(map[string]interface{}{
			"submission_status": string(domain.Submitted),
			"finished_at":       at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SaveResult(ctx context.Context, contestID, userID string, result domain.SubmissionResult) error {
	res := r.db.WithContext(ctx).Model(&participantRow{}).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		Updates(map[string]interface{}{
			"solved_count":   result.SolvedCount,
			"unsolved_count": result.UnsolvedCount,
			"time_taken":     result.TimeTaken,
			"score":          result.Score,
			"finished_at":    result.FinishedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (r *repo) ListPendingParticipants(ctx context.Context) ([]domain.Participant, error) {
	var rows []participantRow
	err := r.db.WithContext(ctx).
		Where("submission_status = ? AND started_at IS NOT NULL", string(domain.NotSubmitted)).
		Order("contest_id, user_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *repo) submitted(ctx context.Context, contestID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND submission_status = ?", contestID, string(domain.Submitted)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *repo) RankPosition(ctx context.Context, p domain.Participant) (int, int, error) {
	all, err := r.submitted(ctx, p.ContestID)
	if err != nil {
		return 0, 0, err
	}
	better := 0
	for _, other := range all {
		if domain.RanksAbove(other, p) {
			better++
		}
	}
	return better, len(all), nil
}

func (r *repo) ListSubmitted(ctx context.Context, contestID string, limit, offset int) ([]domain.Participant, int, error) {
	all, err := r.submitted(ctx, contestID)
	if err != nil {
		return nil, 0, err
	}
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

func (r *repo) SeedAttempts(ctx context.Context, contestID, userID string, questionIDs []string) (int, error) {
	created := 0
	for i, qid := range questionIDs {
		row := attemptRow{
			ContestID:  contestID,
			UserID:     userID,
			QuestionID: qid,
			Position:   i,
			Status:     string(domain.AttemptUnsolved),
		}
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return created, res.Error
		}
		created += int(res.RowsAffected)
	}
	return created, nil
}

func (r *repo) ListAttempts(ctx context.Context, contestID, userID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Attempt{
			ContestID:  row.ContestID,
			UserID:     row.UserID,
			QuestionID: row.QuestionID,
			Status:     domain.AttemptStatus(row.Status),
			TimeSpent:  row.TimeSpent,
		})
	}
	return out, nil
}

// UpdateAttempts is expected to run inside WithinTx so an unknown question rolls back earlier rows.
func (r *repo) UpdateAttempts(ctx context.Context, contestID, userID string, updates []domain.AttemptInput) error {
	for _, u := range updates {
		res := r.db.WithContext(ctx).Model(&attemptRow{}).
			Where("contest_id = ? AND user_id = ? AND question_id = ?", contestID, userID, u.QuestionID).
			Updates(map[string]interface{}{
				"status":     string(u.Status),
				"time_spent": u.TimeSpent,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: question %q", domain.ErrInvalidAttempt, u.QuestionID)
		}
	}
	return nil
}

func (r *repo) GetStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var row userStatsRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserStats{}, err
	}
	return row.toDomain(), nil
}

func (r *repo) ApplyStats(ctx context.Context, userID string, d domain.StatsDelta) (domain.UserStats, error) {
	row := userStatsRow{
		UserID:                  userID,
		TotalContests:           d.Contests,
		TotalQuestionsSolved:    d.QuestionsSolved,
		TotalQuestionsAttempted: d.QuestionsAttempted,
		TotalTimeSpent:          d.TimeSpent,
	}
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_contests":            gorm.Expr("total_contests + ?", d.Contests),
			"total_questions_solved":    gorm.Expr("total_questions_solved + ?", d.QuestionsSolved),
			"total_questions_attempted": gorm.Expr("total_questions_attempted + ?", d.QuestionsAttempted),
			"total_time_spent":          gorm.Expr("total_time_spent + ?", d.TimeSpent),
		}),
	}).Create(&row).Error
	if err != nil {
		return domain.UserStats{}, err
	}

	var stored userStatsRow
	if err := db.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return domain.UserStats{}, err
	}
	stats := stored.toDomain().Derive()
	err = db.Model(&userStatsRow{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"avg_accuracy":          stats.AvgAccuracy,
		"avg_time_per_question": stats.AvgTimePerQuestion,
	}).Error
	if err != nil {
		return domain.UserStats{}, err
	}
	return stats, nil
}
