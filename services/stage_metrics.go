package services

import (
	"context"

	"leaps-tracker/models"
)

type SchoolCount struct {
	School      string `json:"school"`
	Submissions int64  `json:"submissions"`
	Approved    int64  `json:"approved"`
}

type MonthPoint struct {
	Month       string `json:"month"`
	Submissions int64  `json:"submissions"`
	Approvals   int64  `json:"approvals"`
}

// StageMetrics describes one activity stage.
type StageMetrics struct {
	Activity             models.ActivityCode `json:"activity"`
	Name                 string              `json:"name"`
	TotalSubmissions     int64               `json:"totalSubmissions"`
	Approved             int64               `json:"approved"`
	Pending              int64               `json:"pending"`
	Rejected             int64               `json:"rejected"`
	UniqueSubmitters     int64               `json:"uniqueSubmitters"`
	TotalPoints          int64               `json:"totalPoints"`
	AvgPointsPerApproved float64             `json:"avgPointsPerApproved"`
	CompletionRate       float64             `json:"completionRate"`
	ApprovalRate         float64             `json:"approvalRate"`
	TopSchools           []SchoolCount       `json:"topSchools"`
	Cohorts              []KeyCount          `json:"cohorts"`
	MonthlyTrend         []MonthPoint        `json:"monthlyTrend"`
}

type schoolRow struct {
	School      string
	Submissions int64
	Approved    int64
}

type cohortRow struct {
	Cohort string
	Count  int64
}

type monthRow struct {
	Month       string
	Submissions int64
	Approvals   int64
}

// StageMetrics aggregates a single stage. An unknown code is a validation error; a
// stage without submissions yields zeros and empty lists.
func (s *AnalyticsService) StageMetrics(ctx context.Context, code string, f ReportFilter) (*StageMetrics, error) {
	activity, ok := models.ParseActivityCode(code)
	if !ok {
		return nil, NewValidationError("invalid request parameters", map[string]string{
			"code": "code must be one of LEARN, EXPLORE, AMPLIFY, PRESENT, SHINE",
		})
	}
	key := "stage:" + string(activity) + ":" + f.CacheKey()
	return cached(ctx, s.cache, s.cacheTTL, key, func(ctx context.Context) (*StageMetrics, error) {
		return s.stageMetrics(ctx, s.q, activity, f)
	})
}

func (s *AnalyticsService) stageMetrics(ctx context.Context, q Querier, activity models.ActivityCode, f ReportFilter) (*StageMetrics, error) {
	m := &StageMetrics{
		Activity:     activity,
		Name:         ActivityName(activity),
		TopSchools:   []SchoolCount{},
		Cohorts:      []KeyCount{},
		MonthlyTrend: []MonthPoint{},
	}

	rows, err := s.activityMetrics(ctx, q, f)
	if err != nil {
		return nil, err
	}
	var approvedPoints int64
	for _, r := range rows {
		if r.ActivityCode != string(activity) {
			continue
		}
		m.TotalSubmissions = r.TotalSubmissions
		m.Approved = r.Approved
		m.Pending = r.Pending
		m.Rejected = r.Rejected
		m.UniqueSubmitters = r.UniqueSubmitters
		m.TotalPoints = r.TotalPoints
		approvedPoints = r.ApprovedPoints
	}
	if m.Approved > 0 {
		m.AvgPointsPerApproved = Round2(float64(approvedPoints) / float64(m.Approved))
	}
	m.CompletionRate = Round2(CompletionRate(m.Approved, m.TotalSubmissions))
	m.ApprovalRate = Round2(ApprovalRate(m.Approved, m.Rejected))
	if m.TotalSubmissions == 0 {
		return m, nil
	}

	var b queryBuilder
	b.add("s.activity_code = ?", activity)
	f.conditions(&b, "s.created_at", "u.cohort")
	from := " FROM submissions s JOIN users u ON u.id = s.user_id " + b.where()

	var schools []schoolRow
	if err := q.Scan(ctx, Query{
		Name: "stage.schools",
		SQL: `SELECT LOWER(TRIM(COALESCE(u.school, ''))) AS school,
       COUNT(*)::bigint AS submissions,
       (COUNT(*) FILTER (WHERE s.status = 'APPROVED'))::bigint AS approved` + from + `
GROUP BY 1
ORDER BY submissions DESC, 1 ASC
LIMIT ?`,
		Args: append(append([]interface{}{}, b.args...), topGroupLimit),
	}, &schools); err != nil {
		return nil, err
	}
	for _, r := range schools {
		m.TopSchools = append(m.TopSchools, SchoolCount{School: SchoolName(r.School), Submissions: r.Submissions, Approved: r.Approved})
	}

	var cohorts []cohortRow
	if err := q.Scan(ctx, Query{
		Name: "stage.cohorts",
		SQL: `SELECT COALESCE(u.cohort, '') AS cohort, COUNT(*)::bigint AS count` + from + `
GROUP BY 1
ORDER BY count DESC, 1 ASC`,
		Args: b.args,
	}, &cohorts); err != nil {
		return nil, err
	}
	for _, r := range cohorts {
		key := r.Cohort
		if key == "" {
			key = UnassignedCohort
		}
		m.Cohorts = append(m.Cohorts, KeyCount{Key: key, Count: r.Count})
	}

	var months []monthRow
	if err := q.Scan(ctx, Query{
		Name: "stage.monthly",
		SQL: `SELECT to_char(date_trunc('month', s.created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
       COUNT(*)::bigint AS submissions,
       (COUNT(*) FILTER (WHERE s.status = 'APPROVED'))::bigint AS approvals` + from + `
GROUP BY 1
ORDER BY 1 ASC`,
		Args: b.args,
	}, &months); err != nil {
		return nil, err
	}
	for _, r := range months {
		m.MonthlyTrend = append(m.MonthlyTrend, MonthPoint{Month: r.Month, Submissions: r.Submissions, Approvals: r.Approvals})
	}
	return m, nil
}
