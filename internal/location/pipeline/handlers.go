package pipeline

import (
	"errors"

	"backend-attendhub/internal/location/gpsfilter"
	"backend-attendhub/internal/location/pdr"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes exposes the per-device estimation pipeline: raw samples in,
// fused position out.
func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/:deviceID/gps", authMiddleware, func(c *fiber.Ctx) error {
		var fix gpsfilter.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := mgr.Get(c.Params("deviceID")).OfferFix(fix); err != nil {
			if errors.Is(err, ErrQueueFull) {
				return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
			}
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/:deviceID/inertial", authMiddleware, func(c *fiber.Ctx) error {
		var frame pdr.InertialFrame
		if err := c.BodyParser(&frame); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := mgr.Get(c.Params("deviceID")).OfferFrame(frame); err != nil {
			if errors.Is(err, ErrQueueFull) {
				return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
			}
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/:deviceID/position", func(c *fiber.Ctx) error {
		pos, ok := mgr.Get(c.Params("deviceID")).Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no fused position yet")
		}
		return c.JSON(pos)
	})

	r.Post("/:deviceID/reset", authMiddleware, func(c *fiber.Ctx) error {
		mgr.Get(c.Params("deviceID")).Reset()
		return c.JSON(fiber.Map{"status": "reset"})
	})
}
