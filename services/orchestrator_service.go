package services

import (
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	config "github.com/anjiri1684/payment_gateway/configs"
	"github.com/anjiri1684/payment_gateway/models"
	"github.com/anjiri1684/payment_gateway/payments"
	"github.com/anjiri1684/payment_gateway/store"
	"github.com/google/uuid"
)

var (
	// ErrAlreadyPaid rejects re-initiation of an already-verified reference.
	ErrAlreadyPaid = errors.New("payment for this product is already done")
	// ErrWebhookProcessing tells the pg-webhook handler to answer 500 so the
	// gateway's own retry mechanism compensates.
	ErrWebhookProcessing = errors.New("webhook processing failed")
)

type InitiateRequest struct {
	Amount      float64
	Name        string
	Email       string
	Phone       string
	ReferenceID string
	ServiceFrom string
	ReturnURL   string
	Currency    string
	WebhookURL  string
	Metadata    *string
	// LogID, when set, is the audit row the inbound middleware created; the
	// gateway's raw answer is patched onto it.
	LogID uuid.UUID
}

type InitiateOutcome struct {
	PaymentURL string
}

// Callback carries the fields the gateway sends on every callback path.
type Callback struct {
	ReferenceID   string // mer_txnid
	ServiceFrom   string // opt_a
	ReturnURL     string // opt_b
	PgTxnID       string
	BankTxnID     string
	DateProcessed string
}

type RedirectOutcome struct {
	Location string
	Success  bool
}

type WebhookOutcome struct {
	Message     string
	ReferenceID string
	BankTxnID   *string
}

// Orchestrator is the per-payment state machine:
// Created → Initiated → (redirect success | gateway webhook) → Verified → ServiceNotified.
// A per-key mutex serializes the two verification trigger paths in-process;
// the store's row lock guards the verified transition across processes.
type Orchestrator struct {
	store    store.Store
	gateway  GatewayAPI
	verifier *Verifier
	notifier *Notifier
	cfg      *config.Gateway
	log      *slog.Logger

	mu       sync.Mutex
	rowLocks map[string]*sync.Mutex
}

func NewOrchestrator(st store.Store, gw GatewayAPI, verifier *Verifier, notifier *Notifier, cfg *config.Gateway, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		gateway:  gw,
		verifier: verifier,
		notifier: notifier,
		cfg:      cfg,
		log:      logger,
		rowLocks: make(map[string]*sync.Mutex),
	}
}

// Initiate finds or creates the payment row and asks the gateway for a hosted
// payment page. An existing verified row is rejected with no mutation; a
// gateway failure leaves no state change beyond the initial create.
func (o *Orchestrator) Initiate(req InitiateRequest) (*InitiateOutcome, error) {
	if req.Currency == "" {
		req.Currency = "BDT"
	}

	payment, created, err := o.store.FindOrCreate(&models.Payment{
		ServiceFrom: req.ServiceFrom,
		ReferenceID: req.ReferenceID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		ReturnURL:   req.ReturnURL,
		WebhookURL:  req.WebhookURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if !created && payment.Verified {
		o.log.Warn("initiate rejected: already verified", "reference_id", req.ReferenceID, "service_from", req.ServiceFrom)
		return nil, ErrAlreadyPaid
	}

	tranID := req.ReferenceID
	if tranID == "" {
		tranID = "TXN_" + uuid.NewString()
	}

	res, err := o.gateway.Initiate(payments.InitiateParams{
		TranID:      tranID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		ServiceFrom: req.ServiceFrom,
		ReturnURL:   req.ReturnURL,
		Desc:        "Payment via centralized API",
	})
	if err != nil {
		return nil, err
	}

	if req.LogID != uuid.Nil {
		if logErr := o.store.UpdateLogAPIResponse(req.LogID, res.RawBody); logErr != nil {
			o.log.Error("failed to patch initiate audit row", "reference_id", req.ReferenceID, "error", logErr)
		}
	}

	now := time.Now()
	payment.PgTxnID = &res.TrackID
	payment.Initiated = true
	payment.InitiatedAt = &now
	if err := o.store.Save(payment); err != nil {
		return nil, err
	}

	o.log.Info("payment initiated", "reference_id", req.ReferenceID, "service_from", req.ServiceFrom, "track_id", res.TrackID)
	return &InitiateOutcome{PaymentURL: res.PaymentURL}, nil
}

// HandleRedirectSuccess processes the browser's return from the gateway. The
// succeed flag is set unconditionally because it records what the browser
// observed; verification and notification outcomes are tracked independently.
func (o *Orchestrator) HandleRedirectSuccess(cb Callback) *RedirectOutcome {
	err := o.store.WithLock(cb.ServiceFrom, cb.ReferenceID, func(tx store.Store, p *models.Payment) error {
		if p.Succeed {
			return nil
		}
		now := time.Now()
		p.Succeed = true
		p.SucceedAt = &now
		return tx.Save(p)
	})
	if err != nil {
		o.log.Error("success callback: failed to mark succeed", "reference_id", cb.ReferenceID, "service_from", cb.ServiceFrom, "error", err)
		return failRedirect(cb.ReturnURL, "Payment Verification Failed")
	}

	lock := o.keyLock(cb.ServiceFrom, cb.ReferenceID)
	lock.Lock()
	defer lock.Unlock()

	outcome, err := o.verifier.Verify(cb.ServiceFrom, cb.ReferenceID, StateVerified)
	if err != nil {
		return failRedirect(cb.ReturnURL, "Payment Verification Failed")
	}

	payment, err := o.store.Find(cb.ServiceFrom, cb.ReferenceID)
	if err != nil {
		return failRedirect(cb.ReturnURL, "Payment Verification Failed")
	}

	if payment.WebhookURL != "" && !payment.ServiceProvided {
		res := o.notifier.Notify(payment, "success", outcome.DateProcessed)
		if !res.Delivered {
			return failRedirect(cb.ReturnURL, "Service update failed")
		}
	}

	return &RedirectOutcome{Location: redirectLocation(cb.ReturnURL, "Payment Successful", "success"), Success: true}
}

// HandleRedirectFail only audits and sends the user back; no state mutation.
func (o *Orchestrator) HandleRedirectFail(cb Callback, raw string) *RedirectOutcome {
	o.log.Warn("gateway fail callback", "reference_id", cb.ReferenceID, "service_from", cb.ServiceFrom, "payload", raw)
	return failRedirect(cb.ReturnURL, "Payment Failed")
}

// HandleRedirectCancel only audits; the handler acknowledges with JSON.
func (o *Orchestrator) HandleRedirectCancel(cb Callback, raw string) {
	o.log.Warn("gateway cancel callback", "reference_id", cb.ReferenceID, "service_from", cb.ServiceFrom, "payload", raw)
}

// HandleAsyncWebhook processes the gateway's server-to-server notification.
// Safe against duplicate deliveries and against racing the redirect-success
// path: flags are re-checked after the locks are held, the verified
// transition commits before any outbound call, and failures are surfaced as
// ErrWebhookProcessing so the gateway retries.
func (o *Orchestrator) HandleAsyncWebhook(cb Callback) (*WebhookOutcome, error) {
	lock := o.keyLock(cb.ServiceFrom, cb.ReferenceID)
	lock.Lock()
	defer lock.Unlock()

	var snapshot models.Payment
	alreadyProvided := false
	err := o.store.WithLock(cb.ServiceFrom, cb.ReferenceID, func(tx store.Store, p *models.Payment) error {
		// flags are only trustworthy once the row lock is held
		snapshot = *p
		alreadyProvided = p.ServiceProvided
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			o.log.Error("pg webhook: payment not found", "reference_id", cb.ReferenceID, "service_from", cb.ServiceFrom)
			return nil, err
		}
		return nil, errors.Join(ErrWebhookProcessing, err)
	}

	if alreadyProvided {
		o.log.Info("pg webhook: service already provided", "reference_id", cb.ReferenceID)
		return &WebhookOutcome{
			Message:     "Service already provided",
			ReferenceID: cb.ReferenceID,
			BankTxnID:   snapshot.BankTxnID,
		}, nil
	}

	dateProcessed := cb.DateProcessed
	if !snapshot.Verified {
		outcome, err := o.verifier.Verify(cb.ServiceFrom, cb.ReferenceID, StateVerifiedByWebhook)
		if err != nil {
			return nil, errors.Join(ErrWebhookProcessing, err)
		}
		if outcome.DateProcessed != "" {
			dateProcessed = outcome.DateProcessed
		}
	} else {
		o.log.Info("pg webhook: payment already verified", "reference_id", cb.ReferenceID, "verified_at", snapshot.VerifiedAt)
	}

	// committed state; no lock is held across the notify call below
	payment, err := o.store.Find(cb.ServiceFrom, cb.ReferenceID)
	if err != nil {
		return nil, errors.Join(ErrWebhookProcessing, err)
	}

	if payment.WebhookURL != "" && !payment.ServiceProvided {
		res := o.notifier.Notify(payment, "success", dateProcessed)
		if !res.Delivered {
			return nil, errors.Join(ErrWebhookProcessing, errors.New(res.Message))
		}
	}

	return &WebhookOutcome{
		Message:     "Webhook processed successfully",
		ReferenceID: cb.ReferenceID,
		BankTxnID:   payment.BankTxnID,
	}, nil
}

func (o *Orchestrator) keyLock(serviceFrom, referenceID string) *sync.Mutex {
	key := serviceFrom + "|" + referenceID
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.rowLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.rowLocks[key] = lock
	}
	return lock
}

func redirectLocation(returnURL, message, status string) string {
	return returnURL + "?message=" + url.QueryEscape(message) + "&status=" + status
}

func failRedirect(returnURL, message string) *RedirectOutcome {
	return &RedirectOutcome{Location: redirectLocation(returnURL, message, "fail")}
}
