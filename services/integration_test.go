package services

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"leaps-tracker/config"
	"leaps-tracker/logger"
	"leaps-tracker/models"
)

// setupTestDB connects to TEST_DATABASE_URL and rebuilds the schema. Tests using it
// are skipped when the variable is unset.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
		DROP MATERIALIZED VIEW IF EXISTS leaderboard_totals, leaderboard_30d, activity_metrics CASCADE;
		DROP TABLE IF EXISTS earned_badges, badges, points_ledger, submission_attachments,
			submissions, activities, users CASCADE;
	`).Error)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Activity{},
		&models.Submission{},
		&models.SubmissionAttachment{},
		&models.PointsLedgerEntry{},
		&models.Badge{},
		&models.EarnedBadge{},
	))
	require.NoError(t, NewCatalogService(db).Seed(context.Background()))
	require.NoError(t, NewMaterializedViews(db, logger.Discard(), nil).Ensure(context.Background()))
	return db
}

func createUser(t *testing.T, db *gorm.DB, handle string, role models.Role, cohort string) *models.User {
	t.Helper()
	u := &models.User{
		ID:     uuid.NewString(),
		Handle: handle,
		Name:   handle,
		Email:  handle + "@example.org",
		Role:   role,
		Cohort: cohort,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestIntegrationLedgerBalance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	log := logger.Discard()
	ledger := NewLedgerService(db, NewBadgeService(db, log, nil), nil, log)
	u := createUser(t, db, "ada", models.RoleParticipant, "2024-A")

	var res *CreditResult
	var err error
	for _, c := range []struct {
		activity string
		delta    int
	}{{"LEARN", 20}, {"EXPLORE", 50}, {"LEARN", -5}} {
		res, err = ledger.Credit(ctx, CreditInput{UserID: u.ID, ActivityCode: c.activity, Delta: c.delta}, models.SourceManual)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 65, res.Balance)

	pts, err := ledger.Points(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 65, pts.Balance)
	assert.Equal(t, []ActivityBalance{
		{Activity: models.ActivityLearn, Points: 15},
		{Activity: models.ActivityExplore, Points: 50},
	}, pts.ByActivity)

	in := CreditInput{UserID: u.ID, ActivityCode: "AMPLIFY", Delta: 10, ExternalEventID: "evt-1"}
	first, err := ledger.Credit(ctx, in, models.SourceWebhook)
	require.NoError(t, err)
	again, err := ledger.Credit(ctx, in, models.SourceWebhook)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, again.Duplicate)
	assert.EqualValues(t, 75, again.Balance)
}

func TestIntegrationPayloadRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	log := logger.Discard()
	subs := NewSubmissionService(db, NewBadgeService(db, log, nil), nil, nil, log)
	u := createUser(t, db, "grace", models.RoleParticipant, "")

	payload := `{"peersTrained":12,"studentsTrained":40,"notes":"spring term"}`
	created, err := subs.Create(ctx, u.ID, CreateSubmissionInput{ActivityCode: "amplify", Payload: []byte(payload)})
	require.NoError(t, err)

	got, err := subs.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got.Payload))
}

func TestIntegrationReviewAndLeaderboard(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	log := logger.Discard()
	badges := NewBadgeService(db, log, nil)
	subs := NewSubmissionService(db, badges, nil, nil, log)
	ledger := NewLedgerService(db, badges, nil, log)
	views := NewMaterializedViews(db, log, nil)

	a := createUser(t, db, "user-a", models.RoleParticipant, "2024-A")
	b := createUser(t, db, "user-b", models.RoleParticipant, "2024-B")
	rev := createUser(t, db, "rev", models.RoleReviewer, "")

	sub, err := subs.Create(ctx, a.ID, CreateSubmissionInput{ActivityCode: "LEARN", Payload: []byte(`{}`)})
	require.NoError(t, err)
	res, err := subs.Review(ctx, rev.ID, sub.ID, ReviewInput{Decision: "APPROVED"})
	require.NoError(t, err)
	assert.Equal(t, 20, res.PointsAwarded)

	_, err = subs.Review(ctx, rev.ID, sub.ID, ReviewInput{Decision: "REJECTED"})
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = ledger.Credit(ctx, CreditInput{UserID: a.ID, ActivityCode: "EXPLORE", Delta: 130}, models.SourceManual)
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, CreditInput{UserID: b.ID, ActivityCode: "EXPLORE", Delta: 90}, models.SourceManual)
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, CreditInput{UserID: rev.ID, ActivityCode: "LEARN", Delta: 500}, models.SourceManual)
	require.NoError(t, err)

	_, err = views.Refresh(ctx)
	require.NoError(t, err)

	for _, source := range []string{config.SourceMaterialized, config.SourceLive} {
		t.Run(source, func(t *testing.T) {
			svc := NewAnalyticsService(NewGormQuerier(db), log, AnalyticsOptions{Source: source})
			lb, err := svc.Leaderboard(ctx, LeaderboardQuery{Cohort: "ALL"})
			require.NoError(t, err)
			require.Len(t, lb.Entries, 2)
			assert.Equal(t, a.ID, lb.Entries[0].UserID)
			assert.EqualValues(t, 150, lb.Entries[0].TotalPoints)
			assert.Equal(t, b.ID, lb.Entries[1].UserID)
			assert.EqualValues(t, 90, lb.Entries[1].TotalPoints)
			assert.Equal(t, []int{1, 2}, []int{lb.Entries[0].Rank, lb.Entries[1].Rank})

			stage, err := svc.StageMetrics(ctx, "LEARN", ReportFilter{})
			require.NoError(t, err)
			assert.EqualValues(t, 1, stage.TotalSubmissions)
			assert.EqualValues(t, 1, stage.Approved)
			assert.EqualValues(t, 520, stage.TotalPoints)
			assert.Equal(t, 20.0, stage.AvgPointsPerApproved)
		})
	}

	t.Run("role change applies before refresh", func(t *testing.T) {
		_, err := NewUserService(db).SetRole(ctx, b.ID, RoleInput{Role: string(models.RoleReviewer)})
		require.NoError(t, err)
		svc := NewAnalyticsService(NewGormQuerier(db), log, AnalyticsOptions{Source: config.SourceMaterialized})
		lb, err := svc.Leaderboard(ctx, LeaderboardQuery{})
		require.NoError(t, err)
		require.Len(t, lb.Entries, 1)
		assert.Equal(t, a.ID, lb.Entries[0].UserID)
	})

	t.Run("snapshot report", func(t *testing.T) {
		svc := NewAnalyticsService(NewGormQuerier(db), log, AnalyticsOptions{Source: config.SourceLive, Snapshot: true})
		rep, err := svc.Report(ctx, ReportFilter{})
		require.NoError(t, err)
		assert.True(t, rep.Snapshot)
		assert.EqualValues(t, 1, rep.Overview.TotalUsers)
		assert.EqualValues(t, 1, rep.Overview.ApprovedSubmissions)
	})
}
