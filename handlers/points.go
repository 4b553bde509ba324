package handlers

import (
	"github.com/gofiber/fiber/v2"

	"leaps-tracker/middleware"
	"leaps-tracker/models"
	"leaps-tracker/services"
)

// SetupUserRoutes serves the caller's own points and badges.
func SetupUserRoutes(r fiber.Router, ledger PointsManager, badges BadgeLister) {
	r.Get("/user/points", func(c *fiber.Ctx) error {
		pts, err := ledger.Points(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return ok(c, pts)
	})

	r.Get("/user/badges", func(c *fiber.Ctx) error {
		earned, err := badges.Earned(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return ok(c, earned)
	})
}

// SetupWebhookRoutes accepts point credits from external systems. Retries with the same
// externalEventId are answered with duplicate=true and change nothing.
func SetupWebhookRoutes(r fiber.Router, ledger PointsManager) {
	r.Post("/points", func(c *fiber.Ctx) error {
		var in services.CreditInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		res, err := ledger.Credit(c.UserContext(), in, models.SourceWebhook)
		if err != nil {
			return err
		}
		if res.Duplicate {
			return ok(c, res)
		}
		return created(c, res)
	})
}

// SetupAdminRoutes mounts manual adjustments and user management under r.
func SetupAdminRoutes(r fiber.Router, ledger PointsManager, users UserManager) {
	r.Post("/points/adjust", func(c *fiber.Ctx) error {
		var in services.CreditInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		res, err := ledger.Credit(c.UserContext(), in, models.SourceManual)
		if err != nil {
			return err
		}
		return created(c, res)
	})

	r.Get("/users/search", func(c *fiber.Ctx) error {
		var q services.SearchQuery
		if err := parseQuery(c, &q); err != nil {
			return err
		}
		res, err := users.Search(c.UserContext(), q)
		if err != nil {
			return err
		}
		return ok(c, res)
	})

	r.Patch("/users/:id/role", middleware.RequireRole(models.RoleSuperadmin), func(c *fiber.Ctx) error {
		var in services.RoleInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		if c.Params("id") == middleware.UserID(c) {
			return services.ErrForbidden
		}
		u, err := users.SetRole(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return err
		}
		return ok(c, u)
	})
}
