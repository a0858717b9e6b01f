package payments

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/anjiri1684/payment_gateway/configs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(initiateURL, verifyURL string) *config.Gateway {
	return &config.Gateway{
		StoreID:       "teststore",
		SignatureKey:  "testkey",
		InitiateURL:   initiateURL,
		VerifyURL:     verifyURL,
		SuccessURL:    "http://localhost:8080/api/payments/callback/success",
		FailURL:       "http://localhost:8080/api/payments/callback/fail",
		CancelURL:     "http://localhost:8080/api/payments/callback/cancel",
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func TestClientInitiate(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"store_id":      r.PostFormValue("store_id"),
			"signature_key": r.PostFormValue("signature_key"),
			"tran_id":       r.PostFormValue("tran_id"),
			"amount":        r.PostFormValue("amount"),
			"type":          r.PostFormValue("type"),
			"opt_a":         r.PostFormValue("opt_a"),
			"opt_b":         r.PostFormValue("opt_b"),
		}
		w.Write([]byte(`{"result":"true","payment_url":"https://sandbox.aamarpay.com/paynow.php?track=XYZ"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), testLogger())
	res, err := client.Initiate(InitiateParams{
		TranID:      "TXN1",
		Amount:      100,
		Currency:    "BDT",
		Name:        "Customer",
		Email:       "customer@example.com",
		Phone:       "01700000000",
		ServiceFrom: "svc_a",
		ReturnURL:   "https://svc-a.example/return",
	})
	require.NoError(t, err)
	require.Equal(t, "XYZ", res.TrackID)
	require.Equal(t, "https://sandbox.aamarpay.com/paynow.php?track=XYZ", res.PaymentURL)

	require.Equal(t, "teststore", gotForm["store_id"])
	require.Equal(t, "testkey", gotForm["signature_key"])
	require.Equal(t, "TXN1", gotForm["tran_id"])
	require.Equal(t, "100.00", gotForm["amount"])
	require.Equal(t, "json", gotForm["type"])
	require.Equal(t, "svc_a", gotForm["opt_a"])
	require.Equal(t, "https://svc-a.example/return", gotForm["opt_b"])
}

func TestClientInitiateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"false","message":"invalid store"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), testLogger())
	_, err := client.Initiate(InitiateParams{TranID: "TXN1", Amount: 100, Currency: "BDT"})
	require.ErrorIs(t, err, ErrGatewayRejected)
}

func TestClientVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TXN1", r.URL.Query().Get("request_id"))
		require.Equal(t, "teststore", r.URL.Query().Get("store_id"))
		require.Equal(t, "json", r.URL.Query().Get("type"))
		w.Write([]byte(`{"pay_status":"Successful","amount_currency":"500.00","bank_trxid":"BANK9","pg_txnid":"XYZ","date_processed":"2026-01-15 10:00:00"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), testLogger())
	res, err := client.VerifyTransaction("TXN1")
	require.NoError(t, err)
	require.Equal(t, "Successful", res.PayStatus)
	require.Equal(t, "500.00", res.AmountCurrency)
	require.Equal(t, "BANK9", res.BankTxnID)
	require.Equal(t, "XYZ", res.PgTxnID)
	require.Equal(t, "2026-01-15 10:00:00", res.DateProcessed)

	// credentials never appear unmasked in the audit payload
	require.Contains(t, res.RequestPayload, "********")
	require.NotContains(t, res.RequestPayload, "testkey")
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"pay_status":"Successful","amount_currency":"500.00"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), testLogger())
	res, err := client.VerifyTransaction("TXN1")
	require.NoError(t, err)
	require.Equal(t, "Successful", res.PayStatus)
	require.Equal(t, int32(3), calls.Load())
}

func TestClientRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), testLogger())
	_, err := client.VerifyTransaction("TXN1")
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	require.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryBusinessFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown transaction"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), testLogger())
	_, err := client.VerifyTransaction("TXN1")
	require.ErrorIs(t, err, ErrGatewayRejected)
	require.Equal(t, int32(1), calls.Load())
}

func TestTrackIDFromURL(t *testing.T) {
	require.Equal(t, "XYZ", TrackIDFromURL("https://sandbox.aamarpay.com/paynow.php?track=XYZ"))
	require.Equal(t, "", TrackIDFromURL("https://sandbox.aamarpay.com/paynow.php"))
}
