package session

import (
	"errors"

	"backend-attendhub/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Session
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.InstructorID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "instructor_id required")
		}
		sess, err := svc.Create(c.Context(), req)
		if err != nil {
			if errors.Is(err, geo.ErrInvalidCoordinate) || errors.Is(err, geo.ErrInvalidRadius) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		instructorID := c.Query("instructor")
		if instructorID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "instructor query param required")
		}
		sessions, err := svc.List(c.Context(), instructorID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sessions)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sess)
	})

	r.Post("/:id/end", authMiddleware, func(c *fiber.Ctx) error {
		result, err := svc.End(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(result)
	})

	r.Get("/:id/stats", func(c *fiber.Ctx) error {
		stats, err := svc.Stats(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stats)
	})
}
