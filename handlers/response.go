package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"leaps-tracker/logger"
	"leaps-tracker/services"
)

// ok wraps a successful payload as {"data": ...}.
func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"data": data})
}

func created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": data})
}

// ErrorHandler turns handler errors into {"error", "code"} envelopes. Anything
// unrecognized is logged and reported as a 500 without details.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			verr     *services.ValidationError
			conflict *services.ConflictError
			ferr     *fiber.Error
		)
		switch {
		case errors.As(err, &verr):
			body := fiber.Map{"error": verr.Message, "code": "VALIDATION_ERROR"}
			if len(verr.Fields) > 0 {
				body["fields"] = verr.Fields
			}
			return c.Status(fiber.StatusBadRequest).JSON(body)
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found", "code": "NOT_FOUND"})
		case errors.Is(err, services.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied", "code": "FORBIDDEN"})
		case errors.As(err, &conflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": conflict.Message, "code": "CONFLICT"})
		case errors.As(err, &ferr):
			return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message, "code": httpCode(ferr.Code)})
		}
		log.Error("request failed", err, "method", c.Method(), "path", c.Path())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
			"code":  "INTERNAL_ERROR",
		})
	}
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "BAD_REQUEST"
}

// parseQuery binds the query string into dst.
func parseQuery(c *fiber.Ctx, dst interface{}) error {
	if err := c.QueryParser(dst); err != nil {
		return services.NewValidationError("invalid query parameters", map[string]string{"query": err.Error()})
	}
	return nil
}

// parseBody binds a JSON body into dst.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return services.NewValidationError("invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}

// reportFilter parses and validates the shared report parameters.
func reportFilter(c *fiber.Ctx) (services.ReportFilter, error) {
	var q services.ReportQuery
	if err := parseQuery(c, &q); err != nil {
		return services.ReportFilter{}, err
	}
	return q.Filter()
}
