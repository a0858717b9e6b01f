package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "github.com/anjiri1684/payment_gateway/configs"
	"github.com/anjiri1684/payment_gateway/models"
	"github.com/anjiri1684/payment_gateway/signature"
	"github.com/anjiri1684/payment_gateway/store"
)

const stateNotifyService = "Notify Service"

// NotifyResult is what the orchestrator needs to know: whether the origin
// service acknowledged the event, and why not if it didn't. Delivery failure
// is a result, never a fault escaping up the stack.
type NotifyResult struct {
	Delivered bool
	Skipped   bool
	Message   string
}

type webhookEvent struct {
	Event       string          `json:"event"`
	Timestamp   int64           `json:"timestamp"`
	ReferenceID string          `json:"reference_id"`
	Amount      float64         `json:"amount"`
	Status      string          `json:"status"`
	BankTxnID   *string         `json:"bank_txn_id"`
	PgTxnID     *string         `json:"pg_txn_id"`
	VerifiedAt  string          `json:"verified_at"`
	Metadata    json.RawMessage `json:"metadata"`
}

type webhookAck struct {
	Status string `json:"status"`
}

// Notifier delivers the signed outcome webhook to the origin service and
// records every attempt on the payment and in the audit trail.
type Notifier struct {
	store store.Store
	cfg   *config.Gateway
	http  *http.Client
	log   *slog.Logger
}

func NewNotifier(st store.Store, cfg *config.Gateway, logger *slog.Logger) *Notifier {
	return &Notifier{
		store: st,
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   logger,
	}
}

// Notify signs and POSTs the event to the payment's webhook URL. The secret
// comes from the authorized-services registry; a missing secret is a
// configuration error and is not retried. service_provided is set only on an
// acknowledged delivery and never regresses.
func (n *Notifier) Notify(payment *models.Payment, status, paymentDate string) NotifyResult {
	if payment.WebhookURL == "" {
		return NotifyResult{Skipped: true, Message: "no webhook configured"}
	}

	service, ok := n.cfg.ServiceFor(payment.ServiceFrom)
	if !ok || service.WebhookSecret == "" {
		msg := "service webhook secret not configured"
		n.log.Error("service webhook delivery failed",
			"service_from", payment.ServiceFrom, "reference_id", payment.ReferenceID, "error", msg)
		n.appendLog(payment, nil, &msg)
		return NotifyResult{Delivered: false, Message: msg}
	}

	event := webhookEvent{
		Event:       "payment." + status,
		Timestamp:   time.Now().Unix(),
		ReferenceID: payment.ReferenceID,
		Amount:      payment.Amount,
		Status:      status,
		BankTxnID:   payment.BankTxnID,
		PgTxnID:     payment.PgTxnID,
		VerifiedAt:  paymentDate,
	}
	if payment.Metadata != nil {
		event.Metadata = json.RawMessage(*payment.Metadata)
	}

	body, err := signature.Canonicalize(event)
	if err != nil {
		msg := err.Error()
		n.appendLog(payment, nil, &msg)
		return NotifyResult{Delivered: false, Message: "failed to build webhook payload"}
	}
	payloadStr := string(body)
	entry := n.appendLog(payment, &payloadStr, nil)

	sig := signature.Sign(body, service.WebhookSecret)
	respBody, attempts, err := n.post(payment.WebhookURL, body, sig, event.Timestamp)

	delivered := false
	lastResponse := respBody
	if err != nil {
		n.log.Error("service webhook delivery failed",
			"service_from", payment.ServiceFrom,
			"webhook_url", payment.WebhookURL,
			"reference_id", payment.ReferenceID,
			"error", err)
		lastResponse = err.Error()
	} else {
		var ack webhookAck
		delivered = json.Unmarshal([]byte(respBody), &ack) == nil && ack.Status == "success"
	}
	n.patchLog(entry, lastResponse)

	// apply the outcome to the freshly locked row so a concurrent writer's
	// flags are never clobbered; service_provided only ever goes true
	saveErr := n.store.WithLock(payment.ServiceFrom, payment.ReferenceID, func(tx store.Store, p *models.Payment) error {
		now := time.Now()
		p.WebhookAttempts += attempts
		p.WebhookSentAt = &now
		p.WebhookLastResponse = &lastResponse
		if delivered && !p.ServiceProvided {
			p.ServiceProvided = true
			p.ServiceProvidedAt = &now
		}
		if err := tx.Save(p); err != nil {
			return err
		}
		*payment = *p
		return nil
	})
	if saveErr != nil {
		n.log.Error("failed to record webhook outcome", "reference_id", payment.ReferenceID, "error", saveErr)
		return NotifyResult{Delivered: false, Message: "failed to persist webhook outcome"}
	}

	if err != nil {
		return NotifyResult{Delivered: false, Message: "service webhook delivery failed"}
	}

	if delivered {
		n.log.Info("service webhook delivered",
			"service_from", payment.ServiceFrom,
			"webhook_url", payment.WebhookURL,
			"reference_id", payment.ReferenceID,
			"attempts", attempts)
		return NotifyResult{Delivered: true, Message: "service provided successfully"}
	}
	return NotifyResult{Delivered: false, Message: "origin service did not acknowledge"}
}

// post sends the signed payload with the fixed retry budget and reports how
// many attempts were actually made. Transport errors and 5xx answers retry;
// any parsed response ends the sequence.
func (n *Notifier) post(url string, body []byte, sig string, timestamp int64) (string, int, error) {
	attempts := n.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	made := 0
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(n.cfg.RetryDelay)
		}
		made++

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", made, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", sig)
		req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", timestamp))

		resp, err := n.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
			continue
		}
		return string(respBody), made, nil
	}
	return "", made, lastErr
}

func (n *Notifier) appendLog(payment *models.Payment, request, response *string) *models.PaymentLog {
	entry := &models.PaymentLog{
		State:           stateNotifyService,
		ServiceFrom:     payment.ServiceFrom,
		ReferenceID:     payment.ReferenceID,
		PgTxnID:         payment.PgTxnID,
		BankTxnID:       payment.BankTxnID,
		RequestPayload:  request,
		ResponsePayload: response,
	}
	if err := n.store.AppendLog(entry); err != nil {
		n.log.Error("notify payment log write failed", "reference_id", payment.ReferenceID, "error", err)
	}
	return entry
}

func (n *Notifier) patchLog(entry *models.PaymentLog, response string) {
	if err := n.store.UpdateLogResponse(entry.ID, response, nil); err != nil {
		n.log.Error("notify payment log patch failed", "reference_id", entry.ReferenceID, "error", err)
	}
}
