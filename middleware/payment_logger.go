package middleware

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/anjiri1684/payment_gateway/handlers"
	"github.com/anjiri1684/payment_gateway/models"
	"github.com/anjiri1684/payment_gateway/payments"
	"github.com/anjiri1684/payment_gateway/store"
	"github.com/gofiber/fiber/v2"
)

const (
	stateInitiate  = "Initiate"
	stateSuccess   = "Success"
	stateFail      = "Fail"
	stateCancel    = "Cancel"
	statePGWebhook = "PG Webhook"
	stateError     = "Error"
)

// PaymentLogger appends an audit row for every payments request before the
// handler runs, exposes its id via ctx locals, and patches the response onto
// the row afterwards. Redirect responses are logged as their target location,
// with the gateway track id extracted on the initiate path.
func PaymentLogger(st store.Store, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state, ref, svc, pgID, bankID := classify(c)

		body := string(c.Body())
		entry := &models.PaymentLog{
			State:          state,
			ReferenceID:    ref,
			ServiceFrom:    svc,
			RequestPayload: &body,
		}
		if pgID != "" {
			entry.PgTxnID = &pgID
		}
		if bankID != "" {
			entry.BankTxnID = &bankID
		}
		if err := st.AppendLog(entry); err != nil {
			logger.Error("payment audit row write failed", "path", c.Path(), "error", err)
		} else {
			c.Locals(handlers.PaymentLogIDKey, entry.ID)
		}

		err := c.Next()

		var respPayload string
		var pgTxnID *string
		status := c.Response().StatusCode()
		switch {
		case err != nil:
			respPayload = err.Error()
		case status >= 300 && status < 400:
			loc := string(c.Response().Header.Peek("Location"))
			respPayload = "Redirected to: " + loc
			if state == stateInitiate {
				if track := payments.TrackIDFromURL(loc); track != "" {
					pgTxnID = &track
				}
			}
		default:
			respBody := c.Response().Body()
			contentType := string(c.Response().Header.ContentType())
			if len(respBody) > 5000 && strings.Contains(contentType, "text/html") {
				respPayload = "HTML Response (truncated)"
			} else {
				respPayload = string(respBody)
			}
		}

		if patchErr := st.UpdateLogResponse(entry.ID, respPayload, pgTxnID); patchErr != nil {
			logger.Error("payment audit row patch failed", "path", c.Path(), "error", patchErr)
		}

		return err
	}
}

func classify(c *fiber.Ctx) (state, referenceID, serviceFrom, pgTxnID, bankTxnID string) {
	switch c.Path() {
	case "/api/payments/initiate":
		var req struct {
			ReferenceID string `json:"reference_id"`
			ServiceFrom string `json:"service_from"`
		}
		_ = json.Unmarshal(c.Body(), &req)
		return stateInitiate, req.ReferenceID, req.ServiceFrom, "", ""
	case "/api/payments/callback/success":
		return stateSuccess, c.FormValue("mer_txnid"), c.FormValue("opt_a"), c.FormValue("pg_txnid"), c.FormValue("bank_txn")
	case "/api/payments/callback/fail":
		return stateFail, c.FormValue("mer_txnid"), c.FormValue("opt_a"), c.FormValue("pg_txnid"), c.FormValue("bank_txn")
	case "/api/payments/callback/cancel":
		return stateCancel, c.FormValue("mer_txnid"), c.FormValue("opt_a"), c.FormValue("pg_txnid"), c.FormValue("bank_txn")
	case "/api/payments/callback/pg-webhook":
		return statePGWebhook, c.FormValue("mer_txnid"), c.FormValue("opt_a"), c.FormValue("pg_txnid"), c.FormValue("bank_trxid")
	}
	return stateError, "", "", "", ""
}
