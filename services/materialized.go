package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"leaps-tracker/config"
	"leaps-tracker/logger"
)

const (
	viewLeaderboardTotals = "leaderboard_totals"
	viewLeaderboard30d    = "leaderboard_30d"
	viewActivityMetrics   = "activity_metrics"

	// refreshLockKey serializes REFRESH statements across instances.
	refreshLockKey = 7_362_011
)

// leaderboardSelect aggregates ledger totals per user. The 30d window only counts
// entries from the last 30 days. User attributes are joined at read time.
func leaderboardSelect(window LeaderboardWindow) string {
	where := ""
	if window == Window30d {
		where = "WHERE pl.created_at >= NOW() - INTERVAL '30 days'"
	}
	return fmt.Sprintf(`SELECT pl.user_id,
       SUM(pl.delta)::bigint AS total_points,
       COUNT(pl.id)::bigint AS entries,
       MAX(pl.created_at) AS last_activity_at
FROM points_ledger pl
%s
GROUP BY pl.user_id`, where)
}

// activityMetricsSelect counts submissions and ledger points per activity. subs filters
// the submissions side (aliases s, u), ledger the points side (aliases pl, u).
// Args are ordered subs first, then ledger. total_points covers every source;
// approved_points only the credits of approved submissions in the subs window.
func activityMetricsSelect(subs, ledger *queryBuilder) (string, []interface{}) {
	sql := fmt.Sprintf(`SELECT a.code AS activity_code,
       COUNT(s.id)::bigint AS total_submissions,
       (COUNT(s.id) FILTER (WHERE s.status = 'APPROVED'))::bigint AS approved,
       (COUNT(s.id) FILTER (WHERE s.status = 'PENDING'))::bigint AS pending,
       (COUNT(s.id) FILTER (WHERE s.status = 'REJECTED'))::bigint AS rejected,
       COUNT(DISTINCT s.user_id)::bigint AS unique_submitters,
       COALESCE(MAX(p.points), 0)::bigint AS total_points,
       COALESCE(SUM(s.credited) FILTER (WHERE s.status = 'APPROVED'), 0)::bigint AS approved_points
FROM activities a
LEFT JOIN (
    SELECT s.id, s.user_id, s.activity_code, s.status,
           (SELECT COALESCE(SUM(sl.delta), 0) FROM points_ledger sl
            WHERE sl.user_id = s.user_id AND sl.external_event_id = '%s' || s.id::text) AS credited
    FROM submissions s JOIN users u ON u.id = s.user_id
    %s
) s ON s.activity_code = a.code
LEFT JOIN (
    SELECT pl.activity_code, SUM(pl.delta) AS points
    FROM points_ledger pl JOIN users u ON u.id = pl.user_id
    %s
    GROUP BY pl.activity_code
) p ON p.activity_code = a.code
GROUP BY a.code`, submissionEventPrefix, subs.where(), ledger.where())
	args := append(append([]interface{}{}, subs.args...), ledger.args...)
	return sql, args
}

// DataSource picks where aggregates are read from. Materialized views carry no date
// dimension, so a filter with dates always reads live tables.
type DataSource struct {
	Materialized bool
}

func NewDataSource(source string) DataSource {
	return DataSource{Materialized: source != config.SourceLive}
}

// leaderboard returns a FROM item aliased lb. Role, cohort and profile fields come
// from users at read time so role changes apply before the next refresh.
func (d DataSource) leaderboard(window LeaderboardWindow) string {
	totals := "(" + leaderboardSelect(window) + ")"
	if d.Materialized {
		totals = viewLeaderboardTotals
		if window == Window30d {
			totals = viewLeaderboard30d
		}
	}
	return `(SELECT t.user_id, u.handle, u.name, u.school, u.cohort, u.role,
       t.total_points, t.entries, t.last_activity_at
FROM ` + totals + ` t JOIN users u ON u.id = t.user_id) lb`
}

// activityMetrics returns a FROM item aliased am plus its args.
func (d DataSource) activityMetrics(f ReportFilter) (string, []interface{}) {
	if d.Materialized && f.Start == nil && f.End == nil && f.Cohort == "" {
		return viewActivityMetrics + " am", nil
	}
	var subs, ledger queryBuilder
	f.conditions(&subs, "s.created_at", "u.cohort")
	f.conditions(&ledger, "pl.created_at", "u.cohort")
	sql, args := activityMetricsSelect(&subs, &ledger)
	return "(" + sql + ") am", args
}

// MaterializedViews owns creation and refresh of the aggregate views.
type MaterializedViews struct {
	DB    *gorm.DB
	Log   logger.Logger
	Cache ReportCache
}

func NewMaterializedViews(db *gorm.DB, log logger.Logger, cache ReportCache) *MaterializedViews {
	if cache == nil {
		cache = NopCache{}
	}
	return &MaterializedViews{DB: db, Log: log, Cache: cache}
}

// viewDefinitions returns CREATE statements. Each view gets a unique index so it can be
// refreshed concurrently.
func viewDefinitions() []string {
	metrics, _ := activityMetricsSelect(&queryBuilder{}, &queryBuilder{})
	return []string{
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS %s", viewLeaderboardTotals, leaderboardSelect(WindowAll)),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)", viewLeaderboardTotals, viewLeaderboardTotals),
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS %s", viewLeaderboard30d, leaderboardSelect(Window30d)),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)", viewLeaderboard30d, viewLeaderboard30d),
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS %s", viewActivityMetrics, metrics),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_code ON %s (activity_code)", viewActivityMetrics, viewActivityMetrics),
	}
}

func refreshStatements() []string {
	views := []string{viewLeaderboardTotals, viewLeaderboard30d, viewActivityMetrics}
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = "REFRESH MATERIALIZED VIEW CONCURRENTLY " + v
	}
	return out
}

// viewColumns lists the current column set of every view. A view whose stored
// columns differ was built by an older release and is recreated by Ensure.
var viewColumns = map[string][]string{
	viewLeaderboardTotals: {"user_id", "total_points", "entries", "last_activity_at"},
	viewLeaderboard30d:    {"user_id", "total_points", "entries", "last_activity_at"},
	viewActivityMetrics: {"activity_code", "total_submissions", "approved", "pending", "rejected",
		"unique_submitters", "total_points", "approved_points"},
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Ensure creates missing views and rebuilds outdated ones. Safe to call on every start.
func (m *MaterializedViews) Ensure(ctx context.Context) error {
	db := m.DB.WithContext(ctx)
	for _, view := range []string{viewLeaderboardTotals, viewLeaderboard30d, viewActivityMetrics} {
		var cols []string
		if err := db.Raw(`SELECT attname FROM pg_attribute
WHERE attrelid = to_regclass(?) AND attnum > 0 AND NOT attisdropped
ORDER BY attnum`, view).Scan(&cols).Error; err != nil {
			return errors.Wrapf(err, "inspect view %s", view)
		}
		if len(cols) == 0 || sameColumns(cols, viewColumns[view]) {
			continue
		}
		m.Log.Warn("⚠️  [VIEWS] rebuilding outdated materialized view", "view", view)
		if err := db.Exec("DROP MATERIALIZED VIEW IF EXISTS " + view + " CASCADE").Error; err != nil {
			return errors.Wrapf(err, "drop view %s", view)
		}
	}
	for _, stmt := range viewDefinitions() {
		if err := m.DB.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "create materialized view")
		}
	}
	return nil
}

// Refresh rebuilds every view under a transaction-scoped advisory lock, then drops
// cached reports. Concurrent callers queue on the lock; the last one to run wins.
func (m *MaterializedViews) Refresh(ctx context.Context) (time.Duration, error) {
	started := time.Now()
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", refreshLockKey).Error; err != nil {
			return errors.Wrap(err, "acquire refresh lock")
		}
		for _, stmt := range refreshStatements() {
			if err := tx.Exec(stmt).Error; err != nil {
				return errors.Wrapf(err, "refresh: %s", stmt)
			}
		}
		return nil
	})
	took := time.Since(started)
	if err != nil {
		m.Log.Error("materialized view refresh failed", err, "took", took)
		return took, err
	}
	m.Cache.Invalidate(ctx)
	m.Log.Info("🔄 [VIEWS] materialized views refreshed", "took", took)
	return took, nil
}
