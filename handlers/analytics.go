package handlers

import (
	"github.com/gofiber/fiber/v2"

	"leaps-tracker/middleware"
	"leaps-tracker/services"
	"leaps-tracker/tracking"
)

// SetupCatalogRoutes serves the activity catalog and the leaderboard to any caller.
func SetupCatalogRoutes(r fiber.Router, catalog ActivityLister, analytics AnalyticsReader) {
	r.Get("/activities", func(c *fiber.Ctx) error {
		activities, err := catalog.Activities(c.UserContext())
		if err != nil {
			return err
		}
		return ok(c, activities)
	})

	r.Get("/leaderboard", func(c *fiber.Ctx) error {
		var q services.LeaderboardQuery
		if err := parseQuery(c, &q); err != nil {
			return err
		}
		lb, err := analytics.Leaderboard(c.UserContext(), q)
		if err != nil {
			return err
		}
		return ok(c, lb)
	})
}

// SetupAnalyticsRoutes mounts the admin reports under r.
func SetupAnalyticsRoutes(r fiber.Router, analytics AnalyticsReader, views ViewRefresher, tracker services.Tracker) {
	r.Get("/overview", func(c *fiber.Ctx) error {
		f, err := reportFilter(c)
		if err != nil {
			return err
		}
		o, err := analytics.Overview(c.UserContext(), f)
		if err != nil {
			return err
		}
		return ok(c, o)
	})

	r.Get("/distributions", func(c *fiber.Ctx) error {
		f, err := reportFilter(c)
		if err != nil {
			return err
		}
		d, err := analytics.Distributions(c.UserContext(), f)
		if err != nil {
			return err
		}
		return ok(c, d)
	})

	r.Get("/trends", func(c *fiber.Ctx) error {
		f, err := reportFilter(c)
		if err != nil {
			return err
		}
		t, err := analytics.Trends(c.UserContext(), f)
		if err != nil {
			return err
		}
		return ok(c, t)
	})

	r.Get("/performance", func(c *fiber.Ctx) error {
		f, err := reportFilter(c)
		if err != nil {
			return err
		}
		p, err := analytics.Performance(c.UserContext(), f)
		if err != nil {
			return err
		}
		return ok(c, p)
	})

	r.Get("/report", func(c *fiber.Ctx) error {
		f, err := reportFilter(c)
		if err != nil {
			return err
		}
		rep, err := analytics.Report(c.UserContext(), f)
		if err != nil {
			return err
		}
		return ok(c, rep)
	})

	r.Get("/stages/:code", func(c *fiber.Ctx) error {
		f, err := reportFilter(c)
		if err != nil {
			return err
		}
		m, err := analytics.StageMetrics(c.UserContext(), c.Params("code"), f)
		if err != nil {
			return err
		}
		return ok(c, m)
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		took, err := views.Refresh(c.UserContext())
		if err != nil {
			return err
		}
		if tracker != nil {
			tracker.Track(tracking.ViewsRefreshed(middleware.UserID(c), took))
		}
		return ok(c, fiber.Map{"refreshed": true, "tookMs": took.Milliseconds()})
	})
}
