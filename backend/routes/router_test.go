package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ravigill3969/examly/backend/billing"
	"github.com/ravigill3969/examly/backend/credits"
	"github.com/ravigill3969/examly/backend/database"
	"github.com/ravigill3969/examly/backend/handlers"
	middleware "github.com/ravigill3969/examly/backend/middlewares"
	"github.com/ravigill3969/examly/backend/plans"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const (
	jwtSecret     = "router-test-secret-with-enough-bytes"
	webhookSecret = "whsec_router_test"
)

type fakeGateway struct {
	mu        sync.Mutex
	customers int
	checkouts []billing.CheckoutRequest
}

func (g *fakeGateway) CreateCustomer(context.Context, string, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	return fmt.Sprintf("cus_%d", g.customers), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	return "https://checkout.stripe.test/c/pay/cs_test_1", nil
}

func (g *fakeGateway) ChargeOffSession(context.Context, billing.ChargeRequest) (*billing.Charge, error) {
	return &billing.Charge{ID: "pi_recharge", Status: "requires_action"}, nil
}

func (g *fakeGateway) PaymentMethodForIntent(context.Context, string) (string, error) {
	return "pm_card_visa", nil
}

type testEnv struct {
	handler http.Handler
	service *credits.Service
	gateway *fakeGateway
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, filepath.Join(t.TempDir(), "examly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	gw := &fakeGateway{}
	svc := credits.NewService(credits.NewSQLStore(db), gw, credits.Options{PriceID: "price_pro"})

	verifier, err := middleware.NewHMACVerifier([]byte(jwtSecret), "", "authenticated")
	require.NoError(t, err)

	env := &testEnv{service: svc, gateway: gw, now: time.Now().UTC()}
	svc.SetClock(func() time.Time { return env.now })

	env.handler = NewRouter(Deps{
		DB:      db,
		Logger:  zerolog.Nop(),
		Auth:    &middleware.Authenticator{Verifier: verifier},
		Credits: &handlers.CreditsHandler{Service: svc},
		Stripe:  &handlers.Stripe{Service: svc, WebhookSecret: webhookSecret},
		Plans:   &handlers.PlanHandler{Store: plans.NewStore(db, nil)},
	})
	return env
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.com",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any, headers ...string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func checkoutEvent(t *testing.T, eventID, sessionID, userID, paymentStatus string) ([]byte, string) {
	t.Helper()

	metadata := map[string]string{}
	if userID != "" {
		metadata["user_id"] = userID
	}
	payload, err := json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":             sessionID,
				"object":         "checkout.session",
				"payment_status": paymentStatus,
				"payment_intent": "pi_checkout",
				"customer":       "cus_checkout",
				"metadata":       metadata,
			},
		},
	})
	require.NoError(t, err)

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestHealthAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body.Status)

	status, body = env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/me", "/api/entitlement", "/api/plan/history"} {
		status, body := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, "UNAUTHORIZED", body.Code, path)
	}
}

func TestFreshUserHasNoEntitlement(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/entitlement", "anna", nil)
	require.Equal(t, http.StatusOK, status)
	ent := decode[credits.Entitlement](t, body.Data)
	assert.False(t, ent.OK)
	assert.Zero(t, ent.Credits)
	assert.Zero(t, ent.FreeRemaining)

	status, body = env.do(t, http.MethodPost, "/api/generation/consume", "anna", nil)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "NO_CREDITS", body.Code)
	data := decode[map[string]credits.RechargeResult](t, body.Data)
	assert.False(t, data["autoRecharge"].Attempted)
}

func TestFreeTrialFlow(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/free/activate", "anna", map[string]string{"fullName": "A", "phone": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)

	status, _ = env.do(t, http.MethodPost, "/api/free/activate", "anna", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPost, "/api/free/activate", "anna", map[string]string{"fullName": "Anna Kovacs", "phone": "+36301234567"})
	require.Equal(t, http.StatusOK, status)
	activated := decode[struct {
		Entitlement credits.Entitlement `json:"entitlement"`
	}](t, body.Data)
	assert.True(t, activated.Entitlement.FreeActive)
	assert.Equal(t, 10, activated.Entitlement.FreeRemaining)
	require.NotNil(t, activated.Entitlement.FreeExpiresAt)
	assert.WithinDuration(t, env.now.Add(48*time.Hour), *activated.Entitlement.FreeExpiresAt, time.Second)

	for i := 0; i < 10; i++ {
		status, body = env.do(t, http.MethodPost, "/api/generation/consume", "anna", nil)
		require.Equal(t, http.StatusOK, status, "consume %d", i+1)
		assert.Equal(t, "free", decode[map[string]any](t, body.Data)["mode"])
	}

	status, body = env.do(t, http.MethodPost, "/api/generation/consume", "anna", nil)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "NO_CREDITS", body.Code)

	env.now = env.now.Add(49 * time.Hour)
	status, body = env.do(t, http.MethodPost, "/api/free/activate", "anna", map[string]string{"fullName": "Anna Kovacs", "phone": "+36301234567"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FREE_ALREADY_USED", body.Code)
}

func TestWebhookCreditsOncePerSession(t *testing.T) {
	env := newTestEnv(t)

	payload, header := checkoutEvent(t, "evt_1", "sess_123", "anna", "paid")

	status, body := env.do(t, http.MethodPost, "/api/stripe/webhook", "", payload, "Stripe-Signature", header)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]bool{"received": true}, decode[map[string]bool](t, body.Data))

	// Stripe redelivers the same session under a new event id.
	payload, header = checkoutEvent(t, "evt_2", "sess_123", "anna", "paid")
	status, body = env.do(t, http.MethodPost, "/api/stripe/webhook", "", payload, "Stripe-Signature", header)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[map[string]bool](t, body.Data)["duplicate"])

	status, body = env.do(t, http.MethodGet, "/api/me", "anna", nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[struct {
		Profile struct {
			Credits      int  `json:"credits"`
			AutoRecharge bool `json:"autoRecharge"`
			HasCard      bool `json:"hasCard"`
		} `json:"profile"`
		HasAnyEntitlement bool `json:"hasAnyEntitlement"`
	}](t, body.Data)
	assert.Equal(t, 30, me.Profile.Credits)
	assert.True(t, me.Profile.AutoRecharge)
	assert.True(t, me.Profile.HasCard)
	assert.True(t, me.HasAnyEntitlement)

	status, body = env.do(t, http.MethodPost, "/api/generation/consume", "anna", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pro", decode[map[string]any](t, body.Data)["mode"])
}

func TestWebhookRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	payload, _ := checkoutEvent(t, "evt_1", "sess_1", "anna", "paid")
	status, body := env.do(t, http.MethodPost, "/api/stripe/webhook", "", payload, "Stripe-Signature", "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", body.Code)

	payload, header := checkoutEvent(t, "evt_2", "sess_2", "", "paid")
	status, _ = env.do(t, http.MethodPost, "/api/stripe/webhook", "", payload, "Stripe-Signature", header)
	assert.Equal(t, http.StatusBadRequest, status)

	payload, header = checkoutEvent(t, "evt_3", "sess_3", "anna", "unpaid")
	status, body = env.do(t, http.MethodPost, "/api/stripe/webhook", "", payload, "Stripe-Signature", header)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, decode[map[string]bool](t, body.Data)["ignored"])

	_, body = env.do(t, http.MethodGet, "/api/entitlement", "anna", nil)
	assert.Zero(t, decode[credits.Entitlement](t, body.Data).Credits)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(`{"id":"evt_9","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	status, body := env.do(t, http.MethodPost, "/api/stripe/webhook", "", signed.Payload, "Stripe-Signature", signed.Header)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, decode[map[string]bool](t, body.Data)["received"])
}

func TestCheckoutUsesForwardedHost(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/billing/checkout", "anna", nil,
		"X-Forwarded-Host", "app.examly.hu", "X-Forwarded-Proto", "https")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://checkout.stripe.test/c/pay/cs_test_1", decode[map[string]string](t, body.Data)["url"])

	require.Len(t, env.gateway.checkouts, 1)
	assert.Equal(t, "https://app.examly.hu/billing/success?session_id={CHECKOUT_SESSION_ID}", env.gateway.checkouts[0].SuccessURL)
	assert.Equal(t, "https://app.examly.hu/billing?canceled=1", env.gateway.checkouts[0].CancelURL)
	assert.Equal(t, "price_pro", env.gateway.checkouts[0].PriceID)
}

func TestAutoRechargeToggle(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/billing/auto-recharge", "anna", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)

	status, body = env.do(t, http.MethodPost, "/api/billing/auto-recharge", "anna", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)

	payload, header := checkoutEvent(t, "evt_1", "sess_1", "anna", "paid")
	status, _ = env.do(t, http.MethodPost, "/api/stripe/webhook", "", payload, "Stripe-Signature", header)
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodPost, "/api/billing/auto-recharge", "anna", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[map[string]bool](t, body.Data)["autoRecharge"])

	status, body = env.do(t, http.MethodPost, "/api/billing/auto-recharge", "anna", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[map[string]bool](t, body.Data)["autoRecharge"])
}

func TestPlanRoutes(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/plan", "anna", map[string]any{
		"title": "Calculus",
		"raw":   "Here is your plan:\n```json\n{\"topic\": \"\\sqrt{x}\", \"days\": 3}\n```",
	})
	require.Equal(t, http.StatusCreated, status, body.Message)
	saved := decode[map[string]any](t, body.Data)
	id := saved["id"].(string)
	assert.Equal(t, `\sqrt{x}`, saved["result"].(map[string]any)["topic"])

	status, _ = env.do(t, http.MethodPost, "/api/plan", "anna", map[string]any{"title": "Empty"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/plan/history", "anna", nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[map[string][]map[string]any](t, body.Data)
	require.Len(t, history["plans"], 1)
	assert.Equal(t, "Calculus", history["plans"][0]["title"])

	status, _ = env.do(t, http.MethodGet, "/api/plan/"+id, "bela", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, http.MethodGet, "/api/plan/"+id, "anna", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/api/plan/current", "anna", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, decode[map[string]any](t, body.Data)["plan_id"])

	status, _ = env.do(t, http.MethodPost, "/api/plan/current", "bela", map[string]string{"plan_id": id})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/api/plan/current", "anna", map[string]string{"plan_id": id})
	require.Equal(t, http.StatusOK, status)
	_, body = env.do(t, http.MethodGet, "/api/plan/current", "anna", nil)
	assert.Equal(t, id, decode[map[string]any](t, body.Data)["plan_id"])

	status, _ = env.do(t, http.MethodDelete, "/api/plan/history", "anna", nil)
	require.Equal(t, http.StatusOK, status)
	_, body = env.do(t, http.MethodGet, "/api/plan/history", "anna", nil)
	assert.Empty(t, decode[map[string][]map[string]any](t, body.Data)["plans"])
	_, body = env.do(t, http.MethodGet, "/api/plan/current", "anna", nil)
	assert.Nil(t, decode[map[string]any](t, body.Data)["plan_id"])
}
