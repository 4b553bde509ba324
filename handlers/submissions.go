package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"leaps-tracker/middleware"
	"leaps-tracker/services"
)

func SetupSubmissionRoutes(r fiber.Router, submissions SubmissionManager) {
	r.Post("/submissions", func(c *fiber.Ctx) error {
		var in services.CreateSubmissionInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		sub, err := submissions.Create(c.UserContext(), middleware.UserID(c), in)
		if err != nil {
			return err
		}
		return created(c, sub)
	})

	r.Get("/submissions/mine", func(c *fiber.Ctx) error {
		subs, err := submissions.Mine(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return ok(c, subs)
	})

	r.Get("/submissions/public", func(c *fiber.Ctx) error {
		var q services.PageQuery
		if err := parseQuery(c, &q); err != nil {
			return err
		}
		page, err := submissions.Public(c.UserContext(), q)
		if err != nil {
			return err
		}
		return ok(c, page)
	})

	r.Post("/submissions/:id/attachments", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return services.NewValidationError("invalid upload", map[string]string{"file": "multipart field \"file\" is required"})
		}
		if fh.Size > services.MaxAttachmentSize {
			return services.NewValidationError("invalid upload", map[string]string{"file": "file is too large"})
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		body, err := io.ReadAll(io.LimitReader(f, services.MaxAttachmentSize+1))
		if err != nil {
			return err
		}
		att, err := submissions.AddAttachment(c.UserContext(), middleware.UserID(c), c.Params("id"),
			fh.Filename, fh.Header.Get(fiber.HeaderContentType), body)
		if err != nil {
			return err
		}
		return created(c, att)
	})
}

// SetupReviewRoutes mounts the reviewer queue under r.
func SetupReviewRoutes(r fiber.Router, submissions SubmissionManager) {
	r.Get("/submissions", func(c *fiber.Ctx) error {
		var q services.PageQuery
		if err := parseQuery(c, &q); err != nil {
			return err
		}
		page, err := submissions.Queue(c.UserContext(), q)
		if err != nil {
			return err
		}
		return ok(c, page)
	})

	r.Get("/submissions/:id", func(c *fiber.Ctx) error {
		sub, err := submissions.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, sub)
	})

	r.Post("/submissions/:id", func(c *fiber.Ctx) error {
		var in services.ReviewInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		res, err := submissions.Review(c.UserContext(), middleware.UserID(c), c.Params("id"), in)
		if err != nil {
			return err
		}
		return ok(c, res)
	})
}
