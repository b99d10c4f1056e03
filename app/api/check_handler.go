package api

import (
	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	configured func() bool
}

func NewCheckHandler(configured func() bool) *CheckHandler {
	return &CheckHandler{configured: configured}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"result":           "ok",
		"model_configured": h.configured(),
	})
}
