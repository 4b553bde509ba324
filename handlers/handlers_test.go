package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"leaps-tracker/logger"
	"leaps-tracker/middleware"
	"leaps-tracker/models"
	"leaps-tracker/services"
	"leaps-tracker/tracking"
)

type stubRoles map[string]models.Role

func (s stubRoles) Role(_ context.Context, id string) (models.Role, error) {
	if r, ok := s[id]; ok {
		return r, nil
	}
	return "", services.ErrNotFound
}

type stubCatalog struct{}

func (stubCatalog) Activities(context.Context) ([]models.Activity, error) {
	return []models.Activity{{Code: models.ActivityLearn, Name: "Learn"}}, nil
}

type stubAnalytics struct {
	filter  services.ReportFilter
	code    string
	lbQuery services.LeaderboardQuery
	err     error
}

func (s *stubAnalytics) Overview(_ context.Context, f services.ReportFilter) (*services.Overview, error) {
	s.filter = f
	if s.err != nil {
		return nil, s.err
	}
	return &services.Overview{TotalUsers: 2, Activities: []services.ActivitySummary{}}, nil
}

func (s *stubAnalytics) Distributions(_ context.Context, f services.ReportFilter) (*services.Distributions, error) {
	s.filter = f
	d, _ := services.MapDistributions(nil)
	return &d, s.err
}

func (s *stubAnalytics) Trends(_ context.Context, f services.ReportFilter) (*services.Trends, error) {
	s.filter = f
	return &services.Trends{Days: []services.TrendPoint{}}, s.err
}

func (s *stubAnalytics) Performance(_ context.Context, f services.ReportFilter) (*services.Performance, error) {
	s.filter = f
	return &services.Performance{}, s.err
}

func (s *stubAnalytics) Report(_ context.Context, f services.ReportFilter) (*services.Report, error) {
	s.filter = f
	if s.err != nil {
		return nil, s.err
	}
	return &services.Report{}, nil
}

func (s *stubAnalytics) StageMetrics(_ context.Context, code string, f services.ReportFilter) (*services.StageMetrics, error) {
	s.code, s.filter = code, f
	return &services.StageMetrics{Activity: models.ActivityCode(code)}, s.err
}

func (s *stubAnalytics) Leaderboard(_ context.Context, q services.LeaderboardQuery) (*services.Leaderboard, error) {
	s.lbQuery = q
	return &services.Leaderboard{Entries: []services.LeaderboardEntry{}}, s.err
}

type stubViews struct{ calls int }

func (v *stubViews) Refresh(context.Context) (time.Duration, error) {
	v.calls++
	return 1500 * time.Millisecond, nil
}

type stubSubmissions struct {
	userID    string
	reviewErr error
}

func (s *stubSubmissions) Create(_ context.Context, userID string, in services.CreateSubmissionInput) (*models.Submission, error) {
	s.userID = userID
	return &models.Submission{ID: "s1", UserID: userID, ActivityCode: models.ActivityCode(in.ActivityCode), Payload: datatypes.JSON(in.Payload)}, nil
}

func (s *stubSubmissions) Mine(context.Context, string) ([]models.Submission, error) {
	return []models.Submission{}, nil
}

func (s *stubSubmissions) Public(context.Context, services.PageQuery) (*services.Page[services.PublicSubmission], error) {
	return &services.Page[services.PublicSubmission]{Items: []services.PublicSubmission{}}, nil
}

func (s *stubSubmissions) Queue(context.Context, services.PageQuery) (*services.Page[models.Submission], error) {
	return &services.Page[models.Submission]{Items: []models.Submission{}}, nil
}

func (s *stubSubmissions) Get(_ context.Context, id string) (*models.Submission, error) {
	if id != "s1" {
		return nil, services.ErrNotFound
	}
	return &models.Submission{ID: id}, nil
}

func (s *stubSubmissions) Review(_ context.Context, reviewerID, id string, in services.ReviewInput) (*services.ReviewResult, error) {
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	return &services.ReviewResult{Submission: &models.Submission{ID: id}, NewBadges: []string{}}, nil
}

func (s *stubSubmissions) AddAttachment(_ context.Context, userID, submissionID, filename, contentType string, body []byte) (*models.SubmissionAttachment, error) {
	return &models.SubmissionAttachment{SubmissionID: submissionID, Path: filename, Size: int64(len(body)), ContentType: contentType}, nil
}

type stubLedger struct {
	source    models.PointsSource
	duplicate bool
}

func (l *stubLedger) Credit(_ context.Context, in services.CreditInput, source models.PointsSource) (*services.CreditResult, error) {
	l.source = source
	return &services.CreditResult{Duplicate: l.duplicate, Balance: 65, NewBadges: []string{}}, nil
}

func (l *stubLedger) Points(context.Context, string) (*services.UserPoints, error) {
	return &services.UserPoints{Balance: 65}, nil
}

type stubBadges struct{}

func (stubBadges) Earned(context.Context, string) ([]models.EarnedBadge, error) {
	return []models.EarnedBadge{}, nil
}

type stubUsers struct{ roleSet string }

func (u *stubUsers) Search(context.Context, services.SearchQuery) ([]services.UserSummary, error) {
	return []services.UserSummary{}, nil
}

func (u *stubUsers) SetRole(_ context.Context, id string, in services.RoleInput) (*services.UserSummary, error) {
	u.roleSet = in.Role
	return &services.UserSummary{ID: id, Role: models.Role(in.Role)}, nil
}

type recordingTracker struct{ events []tracking.Event }

func (r *recordingTracker) Track(e tracking.Event) { r.events = append(r.events, e) }

type testEnv struct {
	app         *fiber.App
	analytics   *stubAnalytics
	views       *stubViews
	submissions *stubSubmissions
	ledger      *stubLedger
	users       *stubUsers
	tracker     *recordingTracker
}

func newTestEnv() *testEnv {
	log := logger.Discard()
	env := &testEnv{
		analytics:   &stubAnalytics{},
		views:       &stubViews{},
		submissions: &stubSubmissions{},
		ledger:      &stubLedger{},
		users:       &stubUsers{},
		tracker:     &recordingTracker{},
	}
	roles := stubRoles{
		"part": models.RoleParticipant,
		"rev":  models.RoleReviewer,
		"adm":  models.RoleAdmin,
		"root": models.RoleSuperadmin,
	}
	env.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	Register(env.app, Deps{
		Catalog:     stubCatalog{},
		Analytics:   env.analytics,
		Views:       env.views,
		Submissions: env.submissions,
		Ledger:      env.ledger,
		Badges:      stubBadges{},
		Users:       env.users,
		Tracker:     env.tracker,
		Log:         log,
		UserContext: middleware.UserContextMiddleware(roles, log),
		ServiceAuth: middleware.ServiceTokenMiddleware("svc", log),
	})
	return env
}

type envelope struct {
	Data   json.RawMessage   `json:"data"`
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func (env *testEnv) do(t *testing.T, method, path, user string, body io.Reader) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out envelope
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthNeedsNoUser(t *testing.T) {
	env := newTestEnv()
	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body.Data))
}

func TestAnalyticsRequiresAdmin(t *testing.T) {
	env := newTestEnv()
	for _, user := range []string{"part", "rev"} {
		status, body := env.do(t, http.MethodGet, "/admin/analytics/overview", user, nil)
		assert.Equal(t, http.StatusForbidden, status, user)
		assert.Equal(t, "FORBIDDEN", body.Code)
	}
	status, body := env.do(t, http.MethodGet, "/admin/analytics/overview?cohort=ALL&startDate=2024-01-01", "adm", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), `"totalUsers":2`)
	assert.Empty(t, env.analytics.filter.Cohort)
	require.NotNil(t, env.analytics.filter.Start)
	assert.Equal(t, "2024-01-01", env.analytics.filter.Start.Format("2006-01-02"))
}

func TestAnalyticsValidationEnvelope(t *testing.T) {
	env := newTestEnv()
	status, body := env.do(t, http.MethodGet, "/admin/analytics/report?startDate=yesterday", "adm", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Contains(t, body.Fields, "startDate")

	status, body = env.do(t, http.MethodGet, "/admin/analytics/trends?startDate=2024-02-01&endDate=2024-01-01", "adm", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Fields, "endDate")

	status, _ = env.do(t, http.MethodGet, "/admin/analytics/overview?startDate=2024-01-01T10:00:00Z&endDate=2024-01-01T10:00:00Z", "adm", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAnalyticsInternalError(t *testing.T) {
	env := newTestEnv()
	env.analytics.err = errors.New("pq: relation does not exist")
	status, body := env.do(t, http.MethodGet, "/admin/analytics/report", "adm", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Equal(t, "internal server error", body.Error)
}

func TestEveryReportRoute(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{"overview", "distributions", "trends", "performance", "report", "stages/amplify"} {
		status, body := env.do(t, http.MethodGet, "/admin/analytics/"+path, "adm", nil)
		assert.Equal(t, http.StatusOK, status, path)
		assert.NotEmpty(t, body.Data, path)
	}
	assert.Equal(t, "amplify", env.analytics.code)

	status, body := env.do(t, http.MethodPost, "/admin/analytics/refresh", "adm", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"refreshed":true,"tookMs":1500}`, string(body.Data))
	assert.Equal(t, 1, env.views.calls)
	require.Len(t, env.tracker.events, 1)
	assert.Equal(t, tracking.ViewsRefreshed("adm", 1500*time.Millisecond), env.tracker.events[0])
}

func TestLeaderboardQuery(t *testing.T) {
	env := newTestEnv()
	status, _ := env.do(t, http.MethodGet, "/leaderboard?window=30d&cohort=2024-A&limit=10&offset=20", "part", nil)
	assert.Equal(t, http.StatusOK, status)
	q := env.analytics.lbQuery
	assert.Equal(t, "30d", q.Window)
	assert.Equal(t, "2024-A", q.Cohort)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 10, *q.Limit)
	assert.Equal(t, 20, q.Offset)

	status, body := env.do(t, http.MethodGet, "/leaderboard?limit=lots", "part", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestCreateSubmission(t *testing.T) {
	env := newTestEnv()
	status, body := env.do(t, http.MethodPost, "/submissions", "part",
		strings.NewReader(`{"activityCode":"LEARN","payload":{"course":"AI 101"}}`))
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "part", env.submissions.userID)
	assert.Contains(t, string(body.Data), `"payload":{"course":"AI 101"}`)
}

func TestReviewRoutes(t *testing.T) {
	env := newTestEnv()
	status, _ := env.do(t, http.MethodGet, "/review/submissions", "part", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodGet, "/review/submissions/missing", "rev", nil)
	assert.Equal(t, http.StatusNotFound, status)

	env.submissions.reviewErr = &services.ConflictError{Message: "submission is already APPROVED"}
	status, body := env.do(t, http.MethodPost, "/review/submissions/s1", "rev", strings.NewReader(`{"decision":"APPROVED"}`))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body.Code)
}

func TestWebhookPoints(t *testing.T) {
	env := newTestEnv()
	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/points",
			strings.NewReader(`{"userId":"u","activityCode":"LEARN","delta":5,"externalEventId":"evt-1"}`))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("X-Service-Token", token)
		}
		resp, err := env.app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusCreated, send("svc"))
	assert.Equal(t, models.SourceWebhook, env.ledger.source)

	env.ledger.duplicate = true
	assert.Equal(t, http.StatusOK, send("svc"))
}

func TestAdminAdjustAndRoles(t *testing.T) {
	env := newTestEnv()
	status, _ := env.do(t, http.MethodPost, "/admin/points/adjust", "adm",
		strings.NewReader(`{"userId":"u","activityCode":"LEARN","delta":-5}`))
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.SourceManual, env.ledger.source)

	status, _ = env.do(t, http.MethodPatch, "/admin/users/u1/role", "adm", strings.NewReader(`{"role":"reviewer"}`))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPatch, "/admin/users/u1/role", "root", strings.NewReader(`{"role":"reviewer"}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "reviewer", env.users.roleSet)

	status, _ = env.do(t, http.MethodPatch, "/admin/users/root/role", "root", strings.NewReader(`{"role":"participant"}`))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestUserRoutes(t *testing.T) {
	env := newTestEnv()
	status, body := env.do(t, http.MethodGet, "/user/points", "part", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), `"balance":65`)

	status, body = env.do(t, http.MethodGet, "/user/badges", "part", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body.Data))

	status, _ = env.do(t, http.MethodGet, "/activities", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{"/nope", "/api/v1/leaderboard", "/health/details"} {
		status, body := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, "NOT_FOUND", body.Code, path)
	}

	status, _ := env.do(t, http.MethodGet, "/leaderboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
