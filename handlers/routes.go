package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"leaps-tracker/logger"
	"leaps-tracker/middleware"
	"leaps-tracker/models"
	"leaps-tracker/services"
)

type ActivityLister interface {
	Activities(ctx context.Context) ([]models.Activity, error)
}

type AnalyticsReader interface {
	Overview(ctx context.Context, f services.ReportFilter) (*services.Overview, error)
	Distributions(ctx context.Context, f services.ReportFilter) (*services.Distributions, error)
	Trends(ctx context.Context, f services.ReportFilter) (*services.Trends, error)
	Performance(ctx context.Context, f services.ReportFilter) (*services.Performance, error)
	Report(ctx context.Context, f services.ReportFilter) (*services.Report, error)
	StageMetrics(ctx context.Context, code string, f services.ReportFilter) (*services.StageMetrics, error)
	Leaderboard(ctx context.Context, q services.LeaderboardQuery) (*services.Leaderboard, error)
}

type ViewRefresher interface {
	Refresh(ctx context.Context) (time.Duration, error)
}

type SubmissionManager interface {
	Create(ctx context.Context, userID string, in services.CreateSubmissionInput) (*models.Submission, error)
	Mine(ctx context.Context, userID string) ([]models.Submission, error)
	Public(ctx context.Context, q services.PageQuery) (*services.Page[services.PublicSubmission], error)
	Queue(ctx context.Context, q services.PageQuery) (*services.Page[models.Submission], error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	Review(ctx context.Context, reviewerID, id string, in services.ReviewInput) (*services.ReviewResult, error)
	AddAttachment(ctx context.Context, userID, submissionID, filename, contentType string, body []byte) (*models.SubmissionAttachment, error)
}

type PointsManager interface {
	Credit(ctx context.Context, in services.CreditInput, source models.PointsSource) (*services.CreditResult, error)
	Points(ctx context.Context, userID string) (*services.UserPoints, error)
}

type BadgeLister interface {
	Earned(ctx context.Context, userID string) ([]models.EarnedBadge, error)
}

type UserManager interface {
	Search(ctx context.Context, q services.SearchQuery) ([]services.UserSummary, error)
	SetRole(ctx context.Context, userID string, in services.RoleInput) (*services.UserSummary, error)
}

// Deps is everything the HTTP surface needs.
type Deps struct {
	Catalog     ActivityLister
	Analytics   AnalyticsReader
	Views       ViewRefresher
	Submissions SubmissionManager
	Ledger      PointsManager
	Badges      BadgeLister
	Users       UserManager
	Tracker     services.Tracker
	Log         logger.Logger

	// UserContext attaches the caller; ServiceAuth guards webhooks.
	UserContext fiber.Handler
	ServiceAuth fiber.Handler
}

// securedPrefixes are the path prefixes that need a caller identity. Anything else
// falls through to the 404 handler.
var securedPrefixes = []string{"/activities", "/leaderboard", "/user", "/submissions", "/review", "/admin"}

// Register mounts every route. Health and webhooks need no X-User-ID.
func Register(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return ok(c, fiber.Map{"status": "ok"})
	})
	SetupWebhookRoutes(app.Group("/webhooks", d.ServiceAuth), d.Ledger)

	for _, prefix := range securedPrefixes {
		app.Use(prefix, d.UserContext)
	}
	SetupCatalogRoutes(app, d.Catalog, d.Analytics)
	SetupUserRoutes(app, d.Ledger, d.Badges)
	SetupSubmissionRoutes(app, d.Submissions)

	review := app.Group("/review", middleware.RequireRole(models.RoleReviewer))
	SetupReviewRoutes(review, d.Submissions)

	admin := app.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	SetupAnalyticsRoutes(admin.Group("/analytics"), d.Analytics, d.Views, d.Tracker)
	SetupAdminRoutes(admin, d.Ledger, d.Users)
}
