package attendance

import (
	"errors"

	"backend-attendhub/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/checkin", authMiddleware, func(c *fiber.Ctx) error {
		var req CheckInRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rec, err := svc.CheckIn(c.Context(), req)
		if err != nil {
			if errors.Is(err, ErrSessionEnded) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	r.Post("/:id/heartbeat", authMiddleware, func(c *fiber.Ctx) error {
		var req HeartbeatRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		resp, err := svc.Heartbeat(c.Context(), c.Params("id"), req)
		if err != nil {
			if errors.Is(err, geo.ErrInvalidCoordinate) || errors.Is(err, geo.ErrInvalidRadius) ||
				errors.Is(err, ErrInvalidAccuracy) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(resp)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		rec, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(rec)
	})

	r.Get("/:id/logs", func(c *fiber.Ctx) error {
		logs, err := svc.RecentLogs(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(logs)
	})
}
