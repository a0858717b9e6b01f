package routes

import (
	"github.com/anjiri1684/payment_gateway/handlers"
	"github.com/gofiber/fiber/v2"
)

func WebhookRoutes(app *fiber.App, h *handlers.WebhookTestHandler) {
	app.Post("/webhook", h.Receive)
}
