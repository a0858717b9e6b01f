package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/anjiri1684/payment_gateway/configs"
)

var (
	// ErrGatewayRejected means the gateway answered but refused the request.
	// Business failure, never retried.
	ErrGatewayRejected = errors.New("gateway rejected the request")
	// ErrGatewayUnavailable means the gateway could not be reached within the
	// retry budget.
	ErrGatewayUnavailable = errors.New("gateway unreachable")
)

const maskedKey = "********"

type InitiateParams struct {
	TranID      string
	Amount      float64
	Currency    string
	Name        string
	Email       string
	Phone       string
	ServiceFrom string
	ReturnURL   string
	Desc        string
}

type InitiateResult struct {
	PaymentURL string
	TrackID    string
	RawBody    string
}

type VerifyResult struct {
	PayStatus      string
	AmountCurrency string
	BankTxnID      string
	PgTxnID        string
	DateProcessed  string
	// RequestPayload is the verify request with the signature key masked,
	// kept for the audit trail.
	RequestPayload string
	RawBody        string
}

type initiateResponse struct {
	Result     string `json:"result"`
	PaymentURL string `json:"payment_url"`
}

type verifyResponse struct {
	PayStatus      string `json:"pay_status"`
	AmountCurrency string `json:"amount_currency"`
	BankTrxID      string `json:"bank_trxid"`
	PgTxnID        string `json:"pg_txnid"`
	DateProcessed  string `json:"date_processed"`
}

// Client wraps the two Aamarpay endpoints the pipeline uses: hosted-page
// initiate and server-to-server transaction verify. It keeps no state beyond
// configuration and an HTTP client with a fixed timeout.
type Client struct {
	cfg  *config.Gateway
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg *config.Gateway, logger *slog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

// Initiate asks the gateway for a hosted payment page. Signing credentials are
// read from config per call, so sandbox/live switching needs no client rebuild.
func (c *Client) Initiate(p InitiateParams) (*InitiateResult, error) {
	form := url.Values{}
	form.Set("store_id", c.cfg.StoreID)
	form.Set("signature_key", c.cfg.SignatureKey)
	form.Set("tran_id", p.TranID)
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("fail_url", c.cfg.FailURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("amount", fmt.Sprintf("%.2f", p.Amount))
	form.Set("currency", p.Currency)
	form.Set("desc", p.Desc)
	form.Set("cus_name", p.Name)
	form.Set("cus_email", p.Email)
	form.Set("cus_phone", p.Phone)
	form.Set("type", "json")
	form.Set("opt_a", p.ServiceFrom)
	form.Set("opt_b", p.ReturnURL)

	body := form.Encode()
	status, raw, err := c.doWithRetry(func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.cfg.InitiateURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		c.log.Error("aamarpay initiate request failed", "tran_id", p.TranID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if status != http.StatusOK {
		c.log.Error("aamarpay initiate failed", "tran_id", p.TranID, "status", status, "body", string(raw))
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, status)
	}

	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode initiate response: %w", err)
	}
	if resp.Result != "true" {
		c.log.Warn("aamarpay initiate rejected", "tran_id", p.TranID, "body", string(raw))
		return nil, ErrGatewayRejected
	}

	return &InitiateResult{
		PaymentURL: resp.PaymentURL,
		TrackID:    TrackIDFromURL(resp.PaymentURL),
		RawBody:    string(raw),
	}, nil
}

// VerifyTransaction runs the authoritative status check for a reference id.
// Non-2xx answers and transport failures are errors; interpreting pay_status
// is the verification engine's job.
func (c *Client) VerifyTransaction(referenceID string) (*VerifyResult, error) {
	q := url.Values{}
	q.Set("request_id", referenceID)
	q.Set("store_id", c.cfg.StoreID)
	q.Set("signature_key", c.cfg.SignatureKey)
	q.Set("type", "json")

	target := c.cfg.VerifyURL + "?" + q.Encode()
	status, raw, err := c.doWithRetry(func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, target, nil)
	})
	if err != nil {
		c.log.Error("aamarpay verify request failed", "reference_id", referenceID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if status != http.StatusOK {
		c.log.Error("aamarpay verify failed", "reference_id", referenceID, "status", status)
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, status)
	}

	var resp verifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	masked, _ := json.Marshal(map[string]string{
		"request_id":    referenceID,
		"store_id":      c.cfg.StoreID,
		"signature_key": maskedKey,
		"type":          "json",
	})

	return &VerifyResult{
		PayStatus:      resp.PayStatus,
		AmountCurrency: resp.AmountCurrency,
		BankTxnID:      resp.BankTrxID,
		PgTxnID:        resp.PgTxnID,
		DateProcessed:  resp.DateProcessed,
		RequestPayload: string(masked),
		RawBody:        string(raw),
	}, nil
}

// doWithRetry sends the request up to the configured attempt budget with a
// fixed delay between attempts. Only transport errors and 5xx answers are
// retried; anything else passes through for the caller to interpret. The retry
// sequence always runs to completion once started.
func (c *Client) doWithRetry(build func() (*http.Request, error)) (int, []byte, error) {
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(c.cfg.RetryDelay)
		}

		req, err := build()
		if err != nil {
			return 0, nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("gateway returned status %d", resp.StatusCode)
			continue
		}

		return resp.StatusCode, body, nil
	}

	return 0, nil, lastErr
}

// TrackIDFromURL extracts the gateway transaction id from a hosted payment
// page URL of the form ...?track=<id>.
func TrackIDFromURL(paymentURL string) string {
	if i := strings.Index(paymentURL, "track="); i >= 0 {
		return paymentURL[i+len("track="):]
	}
	return ""
}
