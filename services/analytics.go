package services

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"leaps-tracker/logger"
	"leaps-tracker/models"
)

const (
	maxTrendDays      = 366
	defaultTrendDays  = 30
	topGroupLimit     = 10
	topReviewerLimit  = 20
	defaultSectionTTL = 15 * time.Second
)

type AnalyticsOptions struct {
	Source         string
	Snapshot       bool
	SectionTimeout time.Duration
	Cache          ReportCache
	CacheTTL       time.Duration
}

// AnalyticsService answers every admin report and the leaderboard. All SQL goes
// through q; aggregates are read from views or live tables according to source.
type AnalyticsService struct {
	q              Querier
	source         DataSource
	snapshot       bool
	sectionTimeout time.Duration
	cache          ReportCache
	cacheTTL       time.Duration
	log            logger.Logger
	now            func() time.Time
}

func NewAnalyticsService(q Querier, log logger.Logger, opts AnalyticsOptions) *AnalyticsService {
	s := &AnalyticsService{
		q:              q,
		source:         NewDataSource(opts.Source),
		snapshot:       opts.Snapshot,
		sectionTimeout: opts.SectionTimeout,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		log:            log,
		now:            time.Now,
	}
	if s.sectionTimeout <= 0 {
		s.sectionTimeout = defaultSectionTTL
	}
	if s.cache == nil {
		s.cache = NopCache{}
	}
	return s
}

// ── Overview ──────────────────────────────────────────────────────────────────

type ActivitySummary struct {
	Activity         models.ActivityCode `json:"activity"`
	Name             string              `json:"name"`
	Submissions      int64               `json:"submissions"`
	Approved         int64               `json:"approved"`
	Pending          int64               `json:"pending"`
	Rejected         int64               `json:"rejected"`
	UniqueSubmitters int64               `json:"uniqueSubmitters"`
	Points           int64               `json:"points"`
	CompletionRate   float64             `json:"completionRate"`
}

type Overview struct {
	TotalUsers           int64             `json:"totalUsers"`
	ActiveUsers          int64             `json:"activeUsers"`
	ActivationRate       float64           `json:"activationRate"`
	TotalSubmissions     int64             `json:"totalSubmissions"`
	ApprovedSubmissions  int64             `json:"approvedSubmissions"`
	PendingSubmissions   int64             `json:"pendingSubmissions"`
	RejectedSubmissions  int64             `json:"rejectedSubmissions"`
	ApprovalRate         float64           `json:"approvalRate"`
	TotalPoints          int64             `json:"totalPoints"`
	AveragePointsPerUser float64           `json:"averagePointsPerUser"`
	PointsDistribution   PointsSummary     `json:"pointsDistribution"`
	BadgesEarned         int64             `json:"badgesEarned"`
	Activities           []ActivitySummary `json:"activities"`
}

type userCounts struct {
	Total  int64
	Active int64
}

type statusCounts struct {
	Total    int64
	Approved int64
	Pending  int64
	Rejected int64
}

type userPoints struct {
	Points int64
}

type activityMetricsRow struct {
	ActivityCode     string
	TotalSubmissions int64
	Approved         int64
	Pending          int64
	Rejected         int64
	UniqueSubmitters int64
	TotalPoints      int64
	ApprovedPoints   int64
}

func (s *AnalyticsService) Overview(ctx context.Context, f ReportFilter) (*Overview, error) {
	return cached(ctx, s.cache, s.cacheTTL, "overview:"+f.CacheKey(), func(ctx context.Context) (*Overview, error) {
		return s.overview(ctx, s.q, f)
	})
}

func (s *AnalyticsService) overview(ctx context.Context, q Querier, f ReportFilter) (*Overview, error) {
	var users userCounts
	var sub, outer queryBuilder
	f.conditions(&sub, "s.created_at", "")
	outer.add("u.role = ?", models.RoleParticipant)
	f.conditions(&outer, "", "u.cohort")
	if err := q.Scan(ctx, Query{
		Name: "overview.users",
		SQL: `SELECT COUNT(*)::bigint AS total,
       (COUNT(*) FILTER (WHERE EXISTS (
           SELECT 1 FROM submissions s WHERE s.user_id = u.id` + sub.and() + `
       )))::bigint AS active
FROM users u ` + outer.where(),
		Args: append(append([]interface{}{}, sub.args...), outer.args...),
	}, &users); err != nil {
		return nil, err
	}

	var counts statusCounts
	var sb queryBuilder
	f.conditions(&sb, "s.created_at", "u.cohort")
	if err := q.Scan(ctx, Query{
		Name: "overview.submissions",
		SQL: `SELECT COUNT(*)::bigint AS total,
       (COUNT(*) FILTER (WHERE s.status = 'APPROVED'))::bigint AS approved,
       (COUNT(*) FILTER (WHERE s.status = 'PENDING'))::bigint AS pending,
       (COUNT(*) FILTER (WHERE s.status = 'REJECTED'))::bigint AS rejected
FROM submissions s JOIN users u ON u.id = s.user_id ` + sb.where(),
		Args: sb.args,
	}, &counts); err != nil {
		return nil, err
	}

	points, err := s.userPointTotals(ctx, q, f)
	if err != nil {
		return nil, err
	}

	var badges int64
	var bb queryBuilder
	f.conditions(&bb, "eb.earned_at", "u.cohort")
	if err := q.Scan(ctx, Query{
		Name: "overview.badges",
		SQL:  "SELECT COUNT(*) FROM earned_badges eb JOIN users u ON u.id = eb.user_id " + bb.where(),
		Args: bb.args,
	}, &badges); err != nil {
		return nil, err
	}

	activities, err := s.activityMetrics(ctx, q, f)
	if err != nil {
		return nil, err
	}

	var totalPoints int64
	for _, p := range points {
		totalPoints += p
	}
	var avg float64
	if users.Total > 0 {
		avg = float64(totalPoints) / float64(users.Total)
	}

	o := &Overview{
		TotalUsers:           users.Total,
		ActiveUsers:          users.Active,
		ActivationRate:       Round2(ActivationRate(users.Active, users.Total)),
		TotalSubmissions:     counts.Total,
		ApprovedSubmissions:  counts.Approved,
		PendingSubmissions:   counts.Pending,
		RejectedSubmissions:  counts.Rejected,
		ApprovalRate:         Round2(ApprovalRate(counts.Approved, counts.Rejected)),
		TotalPoints:          totalPoints,
		AveragePointsPerUser: Round2(avg),
		PointsDistribution:   SummarizePoints(points),
		BadgesEarned:         badges,
		Activities:           make([]ActivitySummary, 0, len(activities)),
	}
	for _, a := range activities {
		o.Activities = append(o.Activities, ActivitySummary{
			Activity:         models.ActivityCode(a.ActivityCode),
			Name:             ActivityName(models.ActivityCode(a.ActivityCode)),
			Submissions:      a.TotalSubmissions,
			Approved:         a.Approved,
			Pending:          a.Pending,
			Rejected:         a.Rejected,
			UniqueSubmitters: a.UniqueSubmitters,
			Points:           a.TotalPoints,
			CompletionRate:   Round2(CompletionRate(a.Approved, a.TotalSubmissions)),
		})
	}
	return o, nil
}

// userPointTotals returns one total per participant with ledger entries in the window.
func (s *AnalyticsService) userPointTotals(ctx context.Context, q Querier, f ReportFilter) ([]int64, error) {
	var rows []userPoints
	var query Query
	if f.Start == nil && f.End == nil {
		var b queryBuilder
		b.add("lb.role = ?", models.RoleParticipant)
		f.conditions(&b, "", "lb.cohort")
		query = Query{
			Name: "overview.points",
			SQL:  "SELECT lb.total_points AS points FROM " + s.source.leaderboard(WindowAll) + " " + b.where(),
			Args: b.args,
		}
	} else {
		var b queryBuilder
		b.add("u.role = ?", models.RoleParticipant)
		f.conditions(&b, "pl.created_at", "u.cohort")
		query = Query{
			Name: "overview.points",
			SQL: `SELECT SUM(pl.delta)::bigint AS points
FROM points_ledger pl JOIN users u ON u.id = pl.user_id ` + b.where() + `
GROUP BY pl.user_id`,
			Args: b.args,
		}
	}
	if err := q.Scan(ctx, query, &rows); err != nil {
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.Points
	}
	return out, nil
}

// activityMetrics returns one row per known activity in program order.
func (s *AnalyticsService) activityMetrics(ctx context.Context, q Querier, f ReportFilter) ([]activityMetricsRow, error) {
	from, args := s.source.activityMetrics(f)
	var rows []activityMetricsRow
	if err := q.Scan(ctx, Query{
		Name: "activity_metrics",
		SQL: `SELECT am.activity_code, am.total_submissions, am.approved, am.pending, am.rejected,
       am.unique_submitters, am.total_points, am.approved_points
FROM ` + from,
		Args: args,
	}, &rows); err != nil {
		return nil, err
	}
	order := make(map[string]int, len(models.ActivityCodes))
	for i, c := range models.ActivityCodes {
		order[string(c)] = i
	}
	known := make([]activityMetricsRow, 0, len(rows))
	for _, r := range rows {
		if _, ok := order[r.ActivityCode]; ok {
			known = append(known, r)
		}
	}
	sort.SliceStable(known, func(i, j int) bool { return order[known[i].ActivityCode] < order[known[j].ActivityCode] })
	return known, nil
}

// ── Distributions ─────────────────────────────────────────────────────────────

func (s *AnalyticsService) Distributions(ctx context.Context, f ReportFilter) (*Distributions, error) {
	return cached(ctx, s.cache, s.cacheTTL, "distributions:"+f.CacheKey(), func(ctx context.Context) (*Distributions, error) {
		return s.distributions(ctx, s.q, f)
	})
}

func (s *AnalyticsService) distributions(ctx context.Context, q Querier, f ReportFilter) (*Distributions, error) {
	var status, activity, role, cohort, points queryBuilder
	f.conditions(&status, "s.created_at", "u.cohort")
	f.conditions(&activity, "s.created_at", "u.cohort")
	f.conditions(&role, "", "u.cohort")
	cohort.add("u.role = ?", models.RoleParticipant)
	f.conditions(&cohort, "", "u.cohort")
	f.conditions(&points, "pl.created_at", "u.cohort")

	sql := `SELECT 'status' AS category, s.status AS "key", COUNT(*)::bigint AS "count", 0::bigint AS points
FROM submissions s JOIN users u ON u.id = s.user_id ` + status.where() + `
GROUP BY s.status
UNION ALL
SELECT 'activity', s.activity_code, COUNT(*)::bigint, 0::bigint
FROM submissions s JOIN users u ON u.id = s.user_id ` + activity.where() + `
GROUP BY s.activity_code
UNION ALL
SELECT 'role', u.role, COUNT(*)::bigint, 0::bigint
FROM users u ` + role.where() + `
GROUP BY u.role
UNION ALL
SELECT 'cohort', COALESCE(u.cohort, ''), COUNT(*)::bigint, 0::bigint
FROM users u ` + cohort.where() + `
GROUP BY COALESCE(u.cohort, '')
UNION ALL
SELECT 'points_by_activity', pl.activity_code, COUNT(*)::bigint, COALESCE(SUM(pl.delta), 0)::bigint
FROM points_ledger pl JOIN users u ON u.id = pl.user_id ` + points.where() + `
GROUP BY pl.activity_code`

	var args []interface{}
	for _, b := range []*queryBuilder{&status, &activity, &role, &cohort, &points} {
		args = append(args, b.args...)
	}

	var rows []DistributionRow
	if err := q.Scan(ctx, Query{Name: "distributions", SQL: sql, Args: args}, &rows); err != nil {
		return nil, err
	}
	d, rejected := MapDistributions(rows)
	for _, r := range rejected {
		s.log.Warn("skipping distribution row", "category", r.Row.Category, "key", r.Row.Key, "reason", r.Reason)
	}
	return &d, nil
}

// ── Trends ────────────────────────────────────────────────────────────────────

type TrendPoint struct {
	Date        string `json:"date"`
	Submissions int64  `json:"submissions"`
	Approvals   int64  `json:"approvals"`
	Points      int64  `json:"points"`
}

type Trends struct {
	StartDate string       `json:"startDate"`
	EndDate   string       `json:"endDate"`
	Days      []TrendPoint `json:"days"`
}

type trendRow struct {
	Day         string
	Submissions int64
	Approvals   int64
	Points      int64
}

// trendWindow resolves missing bounds to the trailing 30 days and truncates to UTC
// days. The returned end is exclusive.
func (s *AnalyticsService) trendWindow(f ReportFilter) (time.Time, time.Time, error) {
	day := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	end := day(s.now()).AddDate(0, 0, 1)
	if f.End != nil {
		end = day(f.End.Add(-time.Nanosecond)).AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -defaultTrendDays)
	if f.Start != nil {
		start = day(*f.Start)
		// equal bounds on a midnight still cover that day
		if f.End != nil && f.End.Equal(*f.Start) {
			end = start.AddDate(0, 0, 1)
		}
	}
	if !end.After(start) {
		return start, end, NewValidationError("invalid request parameters", map[string]string{
			"endDate": "endDate must not be before startDate",
		})
	}
	if end.Sub(start) > maxTrendDays*24*time.Hour {
		return start, end, NewValidationError("invalid request parameters", map[string]string{
			"startDate": "trend window is limited to 366 days",
		})
	}
	return start, end, nil
}

func (s *AnalyticsService) Trends(ctx context.Context, f ReportFilter) (*Trends, error) {
	return cached(ctx, s.cache, s.cacheTTL, "trends:"+f.CacheKey(), func(ctx context.Context) (*Trends, error) {
		return s.trends(ctx, s.q, f)
	})
}

func (s *AnalyticsService) trends(ctx context.Context, q Querier, f ReportFilter) (*Trends, error) {
	start, end, err := s.trendWindow(f)
	if err != nil {
		return nil, err
	}
	window := ReportFilter{Start: &start, End: &end, Cohort: f.Cohort}
	var subs, approvals, points queryBuilder
	window.conditions(&subs, "s.created_at", "u.cohort")
	approvals.add("s.status = ?", models.StatusApproved)
	window.conditions(&approvals, "s.reviewed_at", "u.cohort")
	window.conditions(&points, "pl.created_at", "u.cohort")

	lastDay := end.AddDate(0, 0, -1)
	args := []interface{}{start.Format("2006-01-02"), lastDay.Format("2006-01-02")}
	args = append(args, subs.args...)
	args = append(args, approvals.args...)
	args = append(args, points.args...)

	var rows []trendRow
	if err := q.Scan(ctx, Query{
		Name: "trends.daily",
		SQL: `WITH days AS (
    SELECT generate_series(?::date, ?::date, INTERVAL '1 day')::date AS day
),
subs AS (
    SELECT (s.created_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)::bigint AS submissions
    FROM submissions s JOIN users u ON u.id = s.user_id ` + subs.where() + `
    GROUP BY 1
),
approvals AS (
    SELECT (s.reviewed_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)::bigint AS approvals
    FROM submissions s JOIN users u ON u.id = s.user_id ` + approvals.where() + `
    GROUP BY 1
),
pts AS (
    SELECT (pl.created_at AT TIME ZONE 'UTC')::date AS day, SUM(pl.delta)::bigint AS points
    FROM points_ledger pl JOIN users u ON u.id = pl.user_id ` + points.where() + `
    GROUP BY 1
)
SELECT to_char(days.day, 'YYYY-MM-DD') AS day,
       COALESCE(subs.submissions, 0) AS submissions,
       COALESCE(approvals.approvals, 0) AS approvals,
       COALESCE(pts.points, 0) AS points
FROM days
LEFT JOIN subs ON subs.day = days.day
LEFT JOIN approvals ON approvals.day = days.day
LEFT JOIN pts ON pts.day = days.day
ORDER BY days.day`,
		Args: args,
	}, &rows); err != nil {
		return nil, err
	}

	t := &Trends{
		StartDate: start.Format("2006-01-02"),
		EndDate:   lastDay.Format("2006-01-02"),
		Days:      make([]TrendPoint, 0, len(rows)),
	}
	for _, r := range rows {
		t.Days = append(t.Days, TrendPoint{Date: r.Day, Submissions: r.Submissions, Approvals: r.Approvals, Points: r.Points})
	}
	return t, nil
}

// ── Performance ───────────────────────────────────────────────────────────────

type ReviewerStats struct {
	ReviewerID     string  `json:"reviewerId"`
	Handle         string  `json:"handle"`
	Name           string  `json:"name"`
	Reviewed       int64   `json:"reviewed"`
	Approved       int64   `json:"approved"`
	Rejected       int64   `json:"rejected"`
	ApprovalRate   float64 `json:"approvalRate"`
	AvgReviewHours float64 `json:"avgReviewHours"`
}

type GroupStats struct {
	Key          string  `json:"key"`
	Participants int64   `json:"participants"`
	Submissions  int64   `json:"submissions"`
	Approved     int64   `json:"approved"`
	Rejected     int64   `json:"rejected"`
	ApprovalRate float64 `json:"approvalRate"`
}

type Performance struct {
	Reviewers          []ReviewerStats `json:"reviewers"`
	TopSchools         []GroupStats    `json:"topSchools"`
	Cohorts            []GroupStats    `json:"cohorts"`
	PendingBacklog     int64           `json:"pendingBacklog"`
	OldestPendingHours float64         `json:"oldestPendingHours"`
}

type reviewerRow struct {
	ReviewerID     string
	Handle         string
	Name           string
	Reviewed       int64
	Approved       int64
	Rejected       int64
	AvgReviewHours float64
}

type groupRow struct {
	Key          string
	Participants int64
	Submissions  int64
	Approved     int64
	Rejected     int64
}

type backlogRow struct {
	Pending     int64
	OldestHours float64
}

func (s *AnalyticsService) Performance(ctx context.Context, f ReportFilter) (*Performance, error) {
	return cached(ctx, s.cache, s.cacheTTL, "performance:"+f.CacheKey(), func(ctx context.Context) (*Performance, error) {
		return s.performance(ctx, s.q, f)
	})
}

func (s *AnalyticsService) performance(ctx context.Context, q Querier, f ReportFilter) (*Performance, error) {
	var rb queryBuilder
	rb.add("s.reviewed_at IS NOT NULL")
	f.conditions(&rb, "s.reviewed_at", "u.cohort")
	var reviewers []reviewerRow
	if err := q.Scan(ctx, Query{
		Name: "performance.reviewers",
		SQL: `SELECT r.id AS reviewer_id, r.handle, r.name,
       COUNT(*)::bigint AS reviewed,
       (COUNT(*) FILTER (WHERE s.status = 'APPROVED'))::bigint AS approved,
       (COUNT(*) FILTER (WHERE s.status = 'REJECTED'))::bigint AS rejected,
       COALESCE(AVG(EXTRACT(EPOCH FROM (s.reviewed_at - s.created_at))) / 3600.0, 0)::float8 AS avg_review_hours
FROM submissions s
JOIN users r ON r.id = s.reviewer_id
JOIN users u ON u.id = s.user_id ` + rb.where() + `
GROUP BY r.id, r.handle, r.name
ORDER BY reviewed DESC, r.handle ASC
LIMIT ?`,
		Args: append(append([]interface{}{}, rb.args...), topReviewerLimit),
	}, &reviewers); err != nil {
		return nil, err
	}

	schools, err := s.groupStats(ctx, q, f, "performance.schools", "LOWER(TRIM(COALESCE(u.school, '')))")
	if err != nil {
		return nil, err
	}
	cohorts, err := s.groupStats(ctx, q, f, "performance.cohorts", "COALESCE(u.cohort, '')")
	if err != nil {
		return nil, err
	}

	var backlog backlogRow
	var bb queryBuilder
	bb.add("s.status = ?", models.StatusPending)
	f.conditions(&bb, "", "u.cohort")
	if err := q.Scan(ctx, Query{
		Name: "performance.backlog",
		SQL: `SELECT COUNT(*)::bigint AS pending,
       COALESCE(EXTRACT(EPOCH FROM (NOW() - MIN(s.created_at))) / 3600.0, 0)::float8 AS oldest_hours
FROM submissions s JOIN users u ON u.id = s.user_id ` + bb.where(),
		Args: bb.args,
	}, &backlog); err != nil {
		return nil, err
	}

	p := &Performance{
		Reviewers:          make([]ReviewerStats, 0, len(reviewers)),
		TopSchools:         make([]GroupStats, 0, len(schools)),
		Cohorts:            make([]GroupStats, 0, len(cohorts)),
		PendingBacklog:     backlog.Pending,
		OldestPendingHours: Round2(backlog.OldestHours),
	}
	for _, r := range reviewers {
		p.Reviewers = append(p.Reviewers, ReviewerStats{
			ReviewerID:     r.ReviewerID,
			Handle:         r.Handle,
			Name:           r.Name,
			Reviewed:       r.Reviewed,
			Approved:       r.Approved,
			Rejected:       r.Rejected,
			ApprovalRate:   Round2(ApprovalRate(r.Approved, r.Rejected)),
			AvgReviewHours: Round2(r.AvgReviewHours),
		})
	}
	for _, g := range schools {
		p.TopSchools = append(p.TopSchools, g.stats(SchoolName(g.Key)))
	}
	for _, g := range cohorts {
		key := g.Key
		if key == "" {
			key = UnassignedCohort
		}
		p.Cohorts = append(p.Cohorts, g.stats(key))
	}
	return p, nil
}

func (g groupRow) stats(key string) GroupStats {
	return GroupStats{
		Key:          key,
		Participants: g.Participants,
		Submissions:  g.Submissions,
		Approved:     g.Approved,
		Rejected:     g.Rejected,
		ApprovalRate: Round2(ApprovalRate(g.Approved, g.Rejected)),
	}
}

// groupStats counts participants and their submissions per keyExpr, busiest first.
// keyExpr is a fixed SQL expression over u.
func (s *AnalyticsService) groupStats(ctx context.Context, q Querier, f ReportFilter, name, keyExpr string) ([]groupRow, error) {
	var join, where queryBuilder
	f.conditions(&join, "s.created_at", "")
	where.add("u.role = ?", models.RoleParticipant)
	f.conditions(&where, "", "u.cohort")

	args := append(append([]interface{}{}, join.args...), where.args...)
	args = append(args, topGroupLimit)

	var rows []groupRow
	if err := q.Scan(ctx, Query{
		Name: name,
		SQL: `SELECT ` + keyExpr + ` AS "key",
       COUNT(DISTINCT u.id)::bigint AS participants,
       COUNT(s.id)::bigint AS submissions,
       (COUNT(s.id) FILTER (WHERE s.status = 'APPROVED'))::bigint AS approved,
       (COUNT(s.id) FILTER (WHERE s.status = 'REJECTED'))::bigint AS rejected
FROM users u
LEFT JOIN submissions s ON s.user_id = u.id` + join.and() + `
` + where.where() + `
GROUP BY 1
ORDER BY submissions DESC, 1 ASC
LIMIT ?`,
		Args: args,
	}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ── Composite report ──────────────────────────────────────────────────────────

type Report struct {
	GeneratedAt   time.Time      `json:"generatedAt"`
	Snapshot      bool           `json:"snapshot"`
	Overview      *Overview      `json:"overview"`
	Distributions *Distributions `json:"distributions"`
	Trends        *Trends        `json:"trends"`
	Performance   *Performance   `json:"performance"`
}

type reportSection struct {
	name string
	run  func(ctx context.Context, q Querier) error
}

// Report builds all four sections. Sections run concurrently unless snapshot mode is
// on, in which case they run one after another inside a single read-only transaction.
// Any failing section fails the whole report.
func (s *AnalyticsService) Report(ctx context.Context, f ReportFilter) (*Report, error) {
	return cached(ctx, s.cache, s.cacheTTL, "report:"+f.CacheKey(), func(ctx context.Context) (*Report, error) {
		return s.report(ctx, f)
	})
}

func (s *AnalyticsService) report(ctx context.Context, f ReportFilter) (*Report, error) {
	r := &Report{GeneratedAt: s.now().UTC(), Snapshot: s.snapshot}
	sections := []reportSection{
		{"overview", func(ctx context.Context, q Querier) (err error) {
			r.Overview, err = s.overview(ctx, q, f)
			return err
		}},
		{"distributions", func(ctx context.Context, q Querier) (err error) {
			r.Distributions, err = s.distributions(ctx, q, f)
			return err
		}},
		{"trends", func(ctx context.Context, q Querier) (err error) {
			r.Trends, err = s.trends(ctx, q, f)
			return err
		}},
		{"performance", func(ctx context.Context, q Querier) (err error) {
			r.Performance, err = s.performance(ctx, q, f)
			return err
		}},
	}

	if s.snapshot {
		err := s.q.Snapshot(ctx, func(tx Querier) error {
			for _, sec := range sections {
				if err := s.runSection(ctx, tx, sec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sec := range sections {
		sec := sec
		g.Go(func() error {
			return s.runSection(gctx, s.q, sec)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *AnalyticsService) runSection(ctx context.Context, q Querier, sec reportSection) error {
	ctx, cancel := context.WithTimeout(ctx, s.sectionTimeout)
	defer cancel()
	started := time.Now()
	if err := sec.run(ctx, q); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return errors.Wrapf(err, "report section %s", sec.name)
	}
	s.log.Debug("report section done", "section", sec.name, "took", time.Since(started))
	return nil
}
