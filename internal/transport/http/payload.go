package http

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"contest-service/internal/domain"
)

// flexSeconds accepts a JSON number or numeric string; anything else decodes as 0.
// Values are bounded to [0, domain.MaxTimeSpent].
type flexSeconds int

func (s *flexSeconds) UnmarshalJSON(data []byte) error {
	*s = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	} else {
		raw = string(data)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	switch {
	case err != nil, math.IsNaN(f), f <= 0:
		return nil
	case f >= domain.MaxTimeSpent:
		*s = domain.MaxTimeSpent
		return nil
	}
	*s = flexSeconds(int(f))
	return nil
}

type attemptPayload struct {
	QuestionID string      `json:"questionId"`
	Status     string      `json:"status"`
	TimeSpent  flexSeconds `json:"timeSpent"`
}

type submitPayload struct {
	Attempts []attemptPayload `json:"attempts"`
	Auto     bool             `json:"auto"`
}

// inputs keeps nil for an absent attempts field so the stored ledger is tallied as is.
func (p submitPayload) inputs() []domain.AttemptInput {
	if p.Attempts == nil {
		return nil
	}
	out := make([]domain.AttemptInput, 0, len(p.Attempts))
	for _, a := range p.Attempts {
		out = append(out, domain.AttemptInput{
			QuestionID: a.QuestionID,
			Status:     domain.AttemptStatus(strings.ToLower(strings.TrimSpace(a.Status))),
			TimeSpent:  int(a.TimeSpent),
		})
	}
	return out
}

type joinPayload struct {
	Contest string `json:"contest"`
}

type questionsPayload struct {
	QuestionIDs []string `json:"questionIds"`
}
