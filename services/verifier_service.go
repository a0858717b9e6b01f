package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/anjiri1684/payment_gateway/models"
	"github.com/anjiri1684/payment_gateway/payments"
	"github.com/anjiri1684/payment_gateway/store"
)

const payStatusSuccessful = "Successful"

const (
	StateVerified          = "Verified"
	StateVerifiedByWebhook = "Verified by Webhook"
)

var (
	// ErrVerificationFailed means the gateway answered but the transaction is
	// not in a successful state. Business failure, not a system error.
	ErrVerificationFailed = errors.New("payment verification failed")
	// ErrAmountMismatch means the gateway reported a different amount than the
	// one stored at initiation. Security fault; the payment is never verified.
	ErrAmountMismatch = errors.New("payment amount mismatch")
)

// GatewayAPI is the slice of the Aamarpay client the services need.
type GatewayAPI interface {
	Initiate(p payments.InitiateParams) (*payments.InitiateResult, error)
	VerifyTransaction(referenceID string) (*payments.VerifyResult, error)
}

// VerifyOutcome reports how a verification attempt ended. Exactly one of
// Transitioned and AlreadyVerified is set on success.
type VerifyOutcome struct {
	Transitioned    bool
	AlreadyVerified bool
	BankTxnID       string
	DateProcessed   string
}

// Verifier runs the authoritative server-to-server check and owns the
// transition of a payment to verified.
type Verifier struct {
	store   store.Store
	gateway GatewayAPI
	log     *slog.Logger
}

func NewVerifier(st store.Store, gw GatewayAPI, logger *slog.Logger) *Verifier {
	return &Verifier{store: st, gateway: gw, log: logger}
}

// Verify checks the transaction against the gateway and marks the payment
// verified on success. Idempotent: an already-verified payment returns its
// cached outcome without a gateway call. The network call happens with no
// database lock held; the verified transition is re-checked under the row
// lock so concurrent triggers commit it at most once.
func (v *Verifier) Verify(serviceFrom, referenceID, logState string) (*VerifyOutcome, error) {
	var cached *VerifyOutcome
	var storedAmount float64
	err := v.store.WithLock(serviceFrom, referenceID, func(tx store.Store, p *models.Payment) error {
		if p.Verified {
			out := &VerifyOutcome{AlreadyVerified: true}
			if p.BankTxnID != nil {
				out.BankTxnID = *p.BankTxnID
			}
			if p.VerifiedAt != nil {
				out.DateProcessed = p.VerifiedAt.Format(time.DateTime)
			}
			cached = out
		}
		storedAmount = p.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cached != nil {
		v.log.Info("payment already verified", "reference_id", referenceID, "service_from", serviceFrom)
		return cached, nil
	}

	res, err := v.gateway.VerifyTransaction(referenceID)
	if err != nil {
		v.log.Error("transaction verify error", "reference_id", referenceID, "error", err)
		return nil, err
	}

	v.appendVerifyLog(serviceFrom, referenceID, logState, res)

	if res.PayStatus != payStatusSuccessful {
		status := res.PayStatus
		if status == "" {
			status = "Unknown"
		}
		v.log.Warn("payment verification failed", "reference_id", referenceID, "pay_status", status)
		return nil, fmt.Errorf("%w: status is %s", ErrVerificationFailed, status)
	}

	if res.AmountCurrency != "" {
		returned, perr := strconv.ParseFloat(res.AmountCurrency, 64)
		if perr != nil || returned != storedAmount {
			v.log.Error("CRITICAL: amount mismatch detected",
				"reference_id", referenceID,
				"expected_amount", storedAmount,
				"received_amount", res.AmountCurrency)
			return nil, ErrAmountMismatch
		}
	}

	out := &VerifyOutcome{BankTxnID: res.BankTxnID, DateProcessed: res.DateProcessed}
	err = v.store.WithLock(serviceFrom, referenceID, func(tx store.Store, p *models.Payment) error {
		if p.Verified {
			// a concurrent trigger won the transition
			out.AlreadyVerified = true
			if p.BankTxnID != nil {
				out.BankTxnID = *p.BankTxnID
			}
			return nil
		}
		now := time.Now()
		p.Verified = true
		p.VerifiedAt = &now
		if res.BankTxnID != "" {
			p.BankTxnID = &res.BankTxnID
		}
		out.Transitioned = true
		return tx.Save(p)
	})
	if err != nil {
		return nil, err
	}

	if out.Transitioned {
		v.log.Info("transaction verified", "reference_id", referenceID, "bank_txn_id", res.BankTxnID, "service_from", serviceFrom)
	}
	return out, nil
}

func (v *Verifier) appendVerifyLog(serviceFrom, referenceID, state string, res *payments.VerifyResult) {
	entry := &models.PaymentLog{
		State:           state,
		ServiceFrom:     serviceFrom,
		ReferenceID:     referenceID,
		RequestPayload:  &res.RequestPayload,
		ResponsePayload: &res.RawBody,
	}
	if res.PgTxnID != "" {
		entry.PgTxnID = &res.PgTxnID
	}
	if res.BankTxnID != "" {
		entry.BankTxnID = &res.BankTxnID
	}
	if err := v.store.AppendLog(entry); err != nil {
		// the audit trail must not break verification itself
		v.log.Error("verify payment log write failed", "reference_id", referenceID, "error", err)
	}
}
