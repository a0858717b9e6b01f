package handlers

import (
	"errors"

	"github.com/anjiri1684/payment_gateway/payments"
	"github.com/anjiri1684/payment_gateway/services"
	"github.com/anjiri1684/payment_gateway/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

// PaymentLogIDKey is the ctx local under which the audit middleware stores
// the id of the row it created for the current request.
const PaymentLogIDKey = "payment_log_id"

type InitiatePaymentRequest struct {
	Amount      float64 `json:"amount" validate:"required,gte=1"`
	Name        string  `json:"name" validate:"required"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"required"`
	ReferenceID string  `json:"reference_id" validate:"required"`
	ServiceFrom string  `json:"service_from" validate:"required"`
	ReturnURL   string  `json:"return_url" validate:"required"`
	Currency    string  `json:"currency"`
	WebhookURL  string  `json:"webhook_url"`
	Metadata    *string `json:"metadata"`
}

type PaymentHandler struct {
	orchestrator *services.Orchestrator
}

func NewPaymentHandler(o *services.Orchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: o}
}

func (h *PaymentHandler) Initiate(c *fiber.Ctx) error {
	var req InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}

	logID, _ := c.Locals(PaymentLogIDKey).(uuid.UUID)

	out, err := h.orchestrator.Initiate(services.InitiateRequest{
		Amount:      req.Amount,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		ReferenceID: req.ReferenceID,
		ServiceFrom: req.ServiceFrom,
		ReturnURL:   req.ReturnURL,
		Currency:    req.Currency,
		WebhookURL:  req.WebhookURL,
		Metadata:    req.Metadata,
		LogID:       logID,
	})
	if err != nil {
		message := "Aamarpay failed"
		switch {
		case errors.Is(err, services.ErrAlreadyPaid):
			message = "Payment for this product is already done"
		case errors.Is(err, payments.ErrGatewayUnavailable):
			message = "Connection error"
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error", "message": message})
	}

	return c.Redirect(out.PaymentURL, fiber.StatusSeeOther)
}

func (h *PaymentHandler) SuccessCallback(c *fiber.Ctx) error {
	cb := callbackFromForm(c)
	if cb.ReturnURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Missing return URL"})
	}

	out := h.orchestrator.HandleRedirectSuccess(cb)
	return c.Redirect(out.Location, fiber.StatusSeeOther)
}

func (h *PaymentHandler) FailCallback(c *fiber.Ctx) error {
	cb := callbackFromForm(c)
	if cb.ReturnURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Missing return URL"})
	}

	out := h.orchestrator.HandleRedirectFail(cb, string(c.Body()))
	return c.Redirect(out.Location, fiber.StatusSeeOther)
}

func (h *PaymentHandler) CancelCallback(c *fiber.Ctx) error {
	cb := callbackFromForm(c)
	h.orchestrator.HandleRedirectCancel(cb, c.OriginalURL())
	return c.JSON(fiber.Map{"status": "cancel", "data": c.Queries()})
}

func (h *PaymentHandler) PGWebhook(c *fiber.Ctx) error {
	cb := callbackFromForm(c)
	if cb.ReferenceID == "" || cb.ServiceFrom == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Missing required fields",
		})
	}

	out, err := h.orchestrator.HandleAsyncWebhook(cb)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "error",
				"message": "Payment record not found",
			})
		}
		// 500 so the gateway's delivery mechanism retries
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Webhook processing failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":       "success",
		"message":      out.Message,
		"reference_id": out.ReferenceID,
		"bank_txn_id":  out.BankTxnID,
	})
}

// callbackFromForm reads the gateway's callback fields from form, query or
// multipart data; bank_txn is the redirect-path spelling, bank_trxid the
// webhook-path one.
func callbackFromForm(c *fiber.Ctx) services.Callback {
	bankTxn := c.FormValue("bank_trxid")
	if bankTxn == "" {
		bankTxn = c.FormValue("bank_txn")
	}
	return services.Callback{
		ReferenceID:   c.FormValue("mer_txnid"),
		ServiceFrom:   c.FormValue("opt_a"),
		ReturnURL:     c.FormValue("opt_b"),
		PgTxnID:       c.FormValue("pg_txnid"),
		BankTxnID:     bankTxn,
		DateProcessed: c.FormValue("date_processed"),
	}
}
