package services

import (
	"context"
	"time"

	"leaps-tracker/models"
)

type LeaderboardWindow string

const (
	WindowAll LeaderboardWindow = "all"
	Window30d LeaderboardWindow = "30d"

	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100
)

// LeaderboardQuery is the raw query string of GET /leaderboard.
type LeaderboardQuery struct {
	Window string `query:"window" validate:"omitempty,oneof=all 30d"`
	Cohort string `query:"cohort" validate:"omitempty,max=64"`
	Limit  *int   `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `query:"offset" validate:"min=0"`
}

type LeaderboardEntry struct {
	Rank           int        `json:"rank"`
	UserID         string     `json:"userId"`
	Handle         string     `json:"handle"`
	Name           string     `json:"name"`
	School         string     `json:"school"`
	Cohort         string     `json:"cohort"`
	TotalPoints    int64      `json:"totalPoints"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

type Leaderboard struct {
	Window  LeaderboardWindow  `json:"window"`
	Cohort  string             `json:"cohort"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	Total   int64              `json:"total"`
	Entries []LeaderboardEntry `json:"entries"`
}

type leaderboardRow struct {
	UserID         string
	Handle         string
	Name           string
	School         string
	Cohort         string
	TotalPoints    int64
	LastActivityAt *time.Time
}

type leaderboardParams struct {
	window LeaderboardWindow
	cohort string
	limit  int
	offset int
}

func (q LeaderboardQuery) params() (leaderboardParams, error) {
	if err := ValidateStruct(q); err != nil {
		return leaderboardParams{}, err
	}
	p := leaderboardParams{
		window: WindowAll,
		cohort: normalizeCohort(q.Cohort),
		limit:  DefaultLeaderboardLimit,
		offset: q.Offset,
	}
	if q.Window != "" {
		p.window = LeaderboardWindow(q.Window)
	}
	if q.Limit != nil {
		p.limit = *q.Limit
	}
	return p, nil
}

// Leaderboard ranks participants with at least one ledger entry by total points,
// ties broken by handle.
func (s *AnalyticsService) Leaderboard(ctx context.Context, q LeaderboardQuery) (*Leaderboard, error) {
	p, err := q.params()
	if err != nil {
		return nil, err
	}
	from := s.source.leaderboard(p.window)

	var b queryBuilder
	b.add("lb.role = ?", models.RoleParticipant)
	if p.cohort != "" {
		b.add("lb.cohort = ?", p.cohort)
	}

	var total int64
	if err := s.q.Scan(ctx, Query{
		Name: "leaderboard.count",
		SQL:  "SELECT COUNT(*) FROM " + from + " " + b.where(),
		Args: b.args,
	}, &total); err != nil {
		return nil, err
	}

	var rows []leaderboardRow
	args := append(append([]interface{}{}, b.args...), p.limit, p.offset)
	if err := s.q.Scan(ctx, Query{
		Name: "leaderboard.page",
		SQL: `SELECT lb.user_id, lb.handle, lb.name, lb.school, lb.cohort, lb.total_points, lb.last_activity_at
FROM ` + from + " " + b.where() + `
ORDER BY lb.total_points DESC, lb.handle ASC
LIMIT ? OFFSET ?`,
		Args: args,
	}, &rows); err != nil {
		return nil, err
	}

	cohort := p.cohort
	if cohort == "" {
		cohort = AllCohorts
	}
	lb := &Leaderboard{
		Window:  p.window,
		Cohort:  cohort,
		Limit:   p.limit,
		Offset:  p.offset,
		Total:   total,
		Entries: make([]LeaderboardEntry, 0, len(rows)),
	}
	for i, r := range rows {
		lb.Entries = append(lb.Entries, LeaderboardEntry{
			Rank:           p.offset + i + 1,
			UserID:         r.UserID,
			Handle:         r.Handle,
			Name:           r.Name,
			School:         r.School,
			Cohort:         r.Cohort,
			TotalPoints:    r.TotalPoints,
			LastActivityAt: r.LastActivityAt,
		})
	}
	return lb, nil
}
