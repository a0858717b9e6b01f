package handlers

import (
	"encoding/json"

	"github.com/anjiri1684/payment_gateway/signature"
	"github.com/gofiber/fiber/v2"
)

// WebhookTestHandler is the built-in receiver used to exercise the outbound
// webhook pipeline end to end. It always answers 200; the body says whether
// the signature checked out.
type WebhookTestHandler struct {
	secret string
}

func NewWebhookTestHandler(secret string) *WebhookTestHandler {
	return &WebhookTestHandler{secret: secret}
}

func (h *WebhookTestHandler) Receive(c *fiber.Ctx) error {
	body := c.Body()

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		data = string(body)
	}

	sig := c.Get("X-Webhook-Signature")
	if sig == "" {
		return c.JSON(fiber.Map{"status": false, "message": "no webhook signature provided", "data": data})
	}
	if len(body) == 0 {
		return c.JSON(fiber.Map{"status": false, "message": "empty webhook payload", "data": data})
	}
	if h.secret == "" {
		return c.JSON(fiber.Map{"status": false, "message": "webhook secret not configured", "data": data})
	}

	if !signature.Verify(body, h.secret, sig) {
		return c.JSON(fiber.Map{"status": false, "message": "signature mismatch", "data": data})
	}
	return c.JSON(fiber.Map{"status": true, "message": "signature verified", "data": data})
}
