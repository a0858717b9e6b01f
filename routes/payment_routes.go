package routes

import (
	"log/slog"

	"github.com/anjiri1684/payment_gateway/handlers"
	"github.com/anjiri1684/payment_gateway/middleware"
	"github.com/anjiri1684/payment_gateway/store"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, h *handlers.PaymentHandler, st store.Store, logger *slog.Logger) {
	api := app.Group("/api/payments", middleware.PaymentLogger(st, logger))

	api.Post("/initiate", h.Initiate)
	api.Post("/callback/success", h.SuccessCallback)
	api.Post("/callback/fail", h.FailCallback)
	api.Get("/callback/cancel", h.CancelCallback)
	api.Post("/callback/pg-webhook", h.PGWebhook)
}
