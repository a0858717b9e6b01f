package config

import (
	"strconv"
	"time"
)

const (
	sandboxInitiateURL = "https://sandbox.aamarpay.com/index.php"
	sandboxVerifyURL   = "https://sandbox.aamarpay.com/api/v1/trxcheck/request.php"
	liveInitiateURL    = "https://secure.aamarpay.com/index.php"
	liveVerifyURL      = "https://secure.aamarpay.com/api/v1/trxcheck/request.php"
)

// Service is one authorized origin service. AllowedIPs is carried from
// configuration for operators; an empty list means no restriction is applied.
type Service struct {
	Name          string
	ServiceFrom   string
	WebhookSecret string
	AllowedIPs    []string
}

// Gateway holds everything the payment pipeline needs: processor credentials for
// the active environment, callback URLs derived from APP_URL, outbound retry
// policy and the immutable authorized-services registry.
type Gateway struct {
	SandboxMode  bool
	StoreID      string
	SignatureKey string
	InitiateURL  string
	VerifyURL    string

	AppURL     string
	SuccessURL string
	FailURL    string
	CancelURL  string

	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	TestWebhookSecret string

	services map[string]Service
}

// Load reads the gateway configuration once at startup. Secrets come from the
// environment; URLs and the service registry are fixed per deployment.
func Load() *Gateway {
	sandbox := envBool("AAMARPAY_SANDBOX_MODE", true)

	g := &Gateway{
		SandboxMode:       sandbox,
		AppURL:            envDefault("APP_URL", "http://localhost:8080"),
		Timeout:           time.Duration(envInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
		RetryAttempts:     envInt("GATEWAY_RETRY_ATTEMPTS", 3),
		RetryDelay:        time.Duration(envInt("WEBHOOK_RETRY_DELAY_MS", 200)) * time.Millisecond,
		TestWebhookSecret: Config("TEST_WEBHOOK_SECRET"),
	}

	if sandbox {
		g.StoreID = Config("AAMARPAY_SANDBOX_STORE_ID")
		g.SignatureKey = Config("AAMARPAY_SANDBOX_SIGNATURE_KEY")
		g.InitiateURL = sandboxInitiateURL
		g.VerifyURL = sandboxVerifyURL
	} else {
		g.StoreID = Config("AAMARPAY_LIVE_STORE_ID")
		g.SignatureKey = Config("AAMARPAY_LIVE_SIGNATURE_KEY")
		g.InitiateURL = liveInitiateURL
		g.VerifyURL = liveVerifyURL
	}

	g.SuccessURL = g.AppURL + "/api/payments/callback/success"
	g.FailURL = g.AppURL + "/api/payments/callback/fail"
	g.CancelURL = g.AppURL + "/api/payments/callback/cancel"

	g.services = buildRegistry([]Service{
		{
			Name:          "Wedding Site",
			ServiceFrom:   "wedding_site",
			WebhookSecret: Config("SERVICE_WEDDING_SITE_WEBHOOK_SECRET"),
			AllowedIPs:    []string{},
		},
		{
			Name:          "Booking Platform",
			ServiceFrom:   "BookingPlatform",
			WebhookSecret: Config("SERVICE_BOOKING_WEBHOOK_SECRET"),
			AllowedIPs:    []string{},
		},
	})

	return g
}

// NewGatewayForTest builds a Gateway with the given registry, bypassing the
// environment. Used by tests and callable from any package.
func NewGatewayForTest(services []Service) *Gateway {
	return &Gateway{
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
		services:      buildRegistry(services),
	}
}

// ServiceFor looks up an authorized service by its service_from key or its
// display name. The map is built once at startup and never mutated.
func (g *Gateway) ServiceFor(serviceFrom string) (Service, bool) {
	s, ok := g.services[serviceFrom]
	return s, ok
}

func buildRegistry(entries []Service) map[string]Service {
	m := make(map[string]Service, len(entries)*2)
	for _, s := range entries {
		m[s.ServiceFrom] = s
		m[s.Name] = s
	}
	return m
}

func envDefault(key, fallback string) string {
	if v := Config(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := Config(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := Config(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
