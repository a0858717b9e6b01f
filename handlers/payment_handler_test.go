package handlers_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	config "github.com/anjiri1684/payment_gateway/configs"
	"github.com/anjiri1684/payment_gateway/handlers"
	"github.com/anjiri1684/payment_gateway/models"
	"github.com/anjiri1684/payment_gateway/payments"
	"github.com/anjiri1684/payment_gateway/routes"
	"github.com/anjiri1684/payment_gateway/services"
	"github.com/anjiri1684/payment_gateway/signature"
	"github.com/anjiri1684/payment_gateway/store"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-webhook-secret"

type stubGateway struct {
	initiateRes *payments.InitiateResult
	initiateErr error
	verifyRes   *payments.VerifyResult
	verifyErr   error
}

func (g *stubGateway) Initiate(p payments.InitiateParams) (*payments.InitiateResult, error) {
	return g.initiateRes, g.initiateErr
}

func (g *stubGateway) VerifyTransaction(referenceID string) (*payments.VerifyResult, error) {
	return g.verifyRes, g.verifyErr
}

func newTestApp(gw services.GatewayAPI) (*fiber.App, *store.MemoryStore) {
	st := store.NewMemoryStore()
	cfg := config.NewGatewayForTest([]config.Service{
		{Name: "Service A", ServiceFrom: "svc_a", WebhookSecret: "sekret"},
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier := services.NewVerifier(st, gw, logger)
	notifier := services.NewNotifier(st, cfg, logger)
	orchestrator := services.NewOrchestrator(st, gw, verifier, notifier, cfg, logger)

	app := fiber.New()
	routes.PaymentRoutes(app, handlers.NewPaymentHandler(orchestrator), st, logger)
	routes.WebhookRoutes(app, handlers.NewWebhookTestHandler(testSecret))
	return app, st
}

func formRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestInitiateValidation(t *testing.T) {
	app, _ := newTestApp(&stubGateway{})

	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate",
		strings.NewReader(`{"amount":100,"name":"Customer"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestInitiateRedirectsToGateway(t *testing.T) {
	gw := &stubGateway{initiateRes: &payments.InitiateResult{
		PaymentURL: "https://sandbox.aamarpay.com/paynow.php?track=XYZ",
		TrackID:    "XYZ",
		RawBody:    `{"result":"true"}`,
	}}
	app, st := newTestApp(gw)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate",
		strings.NewReader(`{"amount":100,"name":"Customer","email":"customer@example.com","phone":"01700000000","reference_id":"TXN1","service_from":"svc_a","return_url":"https://svc-a.example/return"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "https://sandbox.aamarpay.com/paynow.php?track=XYZ", resp.Header.Get("Location"))

	p, err := st.Find("svc_a", "TXN1")
	require.NoError(t, err)
	require.True(t, p.Initiated)
	require.Equal(t, "XYZ", *p.PgTxnID)

	// the audit middleware patched its row with the redirect target and track id
	logs := st.Logs()
	require.NotEmpty(t, logs)
	first := logs[0]
	require.Equal(t, "Initiate", first.State)
	require.Equal(t, "TXN1", first.ReferenceID)
	require.NotNil(t, first.ResponsePayload)
	require.Contains(t, *first.ResponsePayload, "Redirected to:")
	require.NotNil(t, first.PgTxnID)
	require.Equal(t, "XYZ", *first.PgTxnID)
	require.NotNil(t, first.APIResponse)
}

func TestPGWebhookMissingFields(t *testing.T) {
	app, _ := newTestApp(&stubGateway{})

	resp, err := app.Test(formRequest("/api/payments/callback/pg-webhook", "bank_trxid=BANK9"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "Missing required fields", body["message"])
}

func TestPGWebhookUnknownPayment(t *testing.T) {
	app, _ := newTestApp(&stubGateway{})

	resp, err := app.Test(formRequest("/api/payments/callback/pg-webhook", "mer_txnid=NOPE&opt_a=svc_a"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "Payment record not found", body["message"])
}

func TestPGWebhookProcessesPayment(t *testing.T) {
	gw := &stubGateway{verifyRes: &payments.VerifyResult{
		PayStatus:      "Successful",
		AmountCurrency: "100.00",
		BankTxnID:      "BANK9",
		DateProcessed:  "2026-01-15 10:00:00",
		RequestPayload: `{"signature_key":"********"}`,
		RawBody:        `{"pay_status":"Successful"}`,
	}}
	app, st := newTestApp(gw)

	_, _, err := st.FindOrCreate(&models.Payment{
		ServiceFrom: "svc_a",
		ReferenceID: "TXN1",
		Amount:      100,
		Currency:    "BDT",
		Initiated:   true,
	})
	require.NoError(t, err)

	resp, err := app.Test(formRequest("/api/payments/callback/pg-webhook",
		"mer_txnid=TXN1&opt_a=svc_a&bank_trxid=BANK9&date_processed=2026-01-15+10%3A00%3A00"), 10000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "success", body["status"])
	require.Equal(t, "TXN1", body["reference_id"])

	p, err := st.Find("svc_a", "TXN1")
	require.NoError(t, err)
	require.True(t, p.Verified)
}

func TestSuccessCallbackRedirects(t *testing.T) {
	gw := &stubGateway{verifyRes: &payments.VerifyResult{
		PayStatus:      "Successful",
		AmountCurrency: "100.00",
		BankTxnID:      "BANK9",
		RawBody:        `{"pay_status":"Successful"}`,
	}}
	app, st := newTestApp(gw)

	_, _, err := st.FindOrCreate(&models.Payment{
		ServiceFrom: "svc_a",
		ReferenceID: "TXN1",
		Amount:      100,
		Currency:    "BDT",
		Initiated:   true,
	})
	require.NoError(t, err)

	resp, err := app.Test(formRequest("/api/payments/callback/success",
		"mer_txnid=TXN1&opt_a=svc_a&opt_b=https%3A%2F%2Fsvc-a.example%2Freturn"), 10000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Location"), "status=success")

	p, err := st.Find("svc_a", "TXN1")
	require.NoError(t, err)
	require.True(t, p.Succeed)
	require.True(t, p.Verified)
}

func TestSuccessCallbackMissingReturnURL(t *testing.T) {
	app, _ := newTestApp(&stubGateway{})

	resp, err := app.Test(formRequest("/api/payments/callback/success", "mer_txnid=TXN1&opt_a=svc_a"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWebhookTestEndpoint(t *testing.T) {
	app, _ := newTestApp(&stubGateway{})

	payload := []byte(`{"event":"payment.success","reference_id":"TXN1"}`)
	sig := signature.Sign(payload, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sig)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, true, body["status"])

	// tampered payload still answers 200, but invalid
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"event":"payment.success","reference_id":"TXN2"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sig)

	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.Equal(t, false, body["status"])
}
