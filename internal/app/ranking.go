package app

import (
	"context"

	"contest-service/internal/domain"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 200
)

// Rank returns the participant's standing: one plus the number of submitted
// participants strictly better by score, time taken, then finish time.
func (s *ContestService) Rank(ctx context.Context, contestID, userID string) (domain.RankResult, error) {
	participant, err := s.store.GetParticipant(ctx, contestID, userID)
	if err != nil {
		return domain.RankResult{}, err
	}
	if !participant.HasSubmitted() {
		return domain.RankResult{}, domain.ErrNotSubmitted
	}
	better, total, err := s.store.RankPosition(ctx, participant)
	if err != nil {
		return domain.RankResult{}, err
	}
	return domain.RankResult{
		ContestID:         contestID,
		UserID:            userID,
		Rank:              better + 1,
		TotalParticipants: total,
		Score:             participant.Score,
		SolvedCount:       participant.SolvedCount,
		TimeTaken:         participant.TimeTaken,
	}, nil
}

// Leaderboard returns a page of submitted participants in rank order.
// Participants tied on every ranking key share a rank.
func (s *ContestService) Leaderboard(ctx context.Context, contestID string, limit, offset int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.store.GetContest(ctx, contestID); err != nil {
		return domain.Leaderboard{}, err
	}

	page, total, err := s.leaderboards.ListSubmitted(ctx, contestID, limit, offset)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(page))
	for i, p := range page {
		rank := offset + i + 1
		switch {
		case i > 0 && !domain.RanksAbove(page[i-1], p):
			rank = entries[i-1].Rank
		case i == 0 && offset > 0:
			better, _, err := s.store.RankPosition(ctx, p)
			if err != nil {
				return domain.Leaderboard{}, err
			}
			rank = better + 1
		}
		entry := domain.LeaderboardEntry{
			Rank:          rank,
			UserID:        p.UserID,
			Score:         p.Score,
			SolvedCount:   p.SolvedCount,
			UnsolvedCount: p.UnsolvedCount,
			TimeTaken:     p.TimeTaken,
		}
		if p.FinishedAt != nil {
			entry.FinishedAt = *p.FinishedAt
		}
		entries = append(entries, entry)
	}

	return domain.Leaderboard{
		ContestID: contestID,
		Entries:   entries,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	}, nil
}
