package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"contest-service/internal/domain"
)

// stringList stores a string slice as a JSON text column.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		l = stringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *stringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return fmt.Errorf("stringList: unsupported type %T", value)
}

type contestRow struct {
	ID            string     `gorm:"primaryKey"`
	JoinCode      string     `gorm:"uniqueIndex;not null"`
	OwnerID       string     `gorm:"index;not null"`
	Title         string     `gorm:"not null"`
	QuestionIDs   stringList `gorm:"type:text;not null"`
	DurationInMin int        `gorm:"not null"`
	Visibility    string     `gorm:"not null"`
	Status        string     `gorm:"index;not null"`
	StartsAt      *time.Time
	EndsAt        *time.Time
	CreatedAt     time.Time
}

func (contestRow) TableName() string { return "contests" }

func (r contestRow) toDomain() domain.Contest {
	return domain.Contest{
		ID:            r.ID,
		JoinCode:      r.JoinCode,
		OwnerID:       r.OwnerID,
		Title:         r.Title,
		QuestionIDs:   append([]string(nil), r.QuestionIDs...),
		DurationInMin: r.DurationInMin,
		Visibility:    domain.Visibility(r.Visibility),
		Status:        domain.ContestStatus(r.Status),
		StartsAt:      utc(r.StartsAt),
		EndsAt:        utc(r.EndsAt),
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func contestFromDomain(c domain.Contest) contestRow {
	return contestRow{
		ID:            c.ID,
		JoinCode:      c.JoinCode,
		OwnerID:       c.OwnerID,
		Title:         c.Title,
		QuestionIDs:   stringList(c.QuestionIDs),
		DurationInMin: c.DurationInMin,
		Visibility:    string(c.Visibility),
		Status:        string(c.Status),
		StartsAt:      c.StartsAt,
		EndsAt:        c.EndsAt,
		CreatedAt:     c.CreatedAt,
	}
}

type participantRow struct {
	ID               string `gorm:"primaryKey"`
	ContestID        string `gorm:"uniqueIndex:idx_participant_contest_user;not null"`
	UserID           string `gorm:"uniqueIndex:idx_participant_contest_user;not null"`
	JoinedAt         time.Time
	StartedAt        *time.Time
	SubmissionStatus string `gorm:"index;not null"`
	FinishedAt       *time.Time
	SolvedCount      int
	UnsolvedCount    int
	Score            float64
	TimeTaken        int
}

func (participantRow) TableName() string { return "participants" }

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:               r.ID,
		ContestID:        r.ContestID,
		UserID:           r.UserID,
		JoinedAt:         r.JoinedAt.UTC(),
		StartedAt:        utc(r.StartedAt),
		SubmissionStatus: domain.SubmissionStatus(r.SubmissionStatus),
		FinishedAt:       utc(r.FinishedAt),
		SolvedCount:      r.SolvedCount,
		UnsolvedCount:    r.UnsolvedCount,
		Score:            r.Score,
		TimeTaken:        r.TimeTaken,
	}
}

type attemptRow struct {
	ContestID  string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	QuestionID string `gorm:"primaryKey"`
	Position   int
	Status     string `gorm:"not null"`
	TimeSpent  int
}

func (attemptRow) TableName() string { return "attempts" }

type userStatsRow struct {
	UserID                  string `gorm:"primaryKey"`
	TotalContests           int
	TotalQuestionsSolved    int
	TotalQuestionsAttempted int
	TotalTimeSpent          int
	AvgAccuracy             float64
	AvgTimePerQuestion      float64
}

func (userStatsRow) TableName() string { return "user_stats" }

func (r userStatsRow) toDomain() domain.UserStats {
	return domain.UserStats{
		UserID:                  r.UserID,
		TotalContests:           r.TotalContests,
		TotalQuestionsSolved:    r.TotalQuestionsSolved,
		TotalQuestionsAttempted: r.TotalQuestionsAttempted,
		TotalTimeSpent:          r.TotalTimeSpent,
		AvgAccuracy:             r.AvgAccuracy,
		AvgTimePerQuestion:      r.AvgTimePerQuestion,
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
