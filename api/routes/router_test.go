package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook/fieldbook-backend/internal/payments"
	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/internal/webhooks/marketplace"
	"github.com/fieldbook/fieldbook-backend/pkg/auth"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, counts: map[string]int64{}}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *memStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (s *memStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

type countingCheckout struct{ calls int }

func (c *countingCheckout) CreateCheckout(_ context.Context, in payments.CheckoutInput) (*payments.CheckoutResult, error) {
	c.calls++
	return &payments.CheckoutResult{PaymentID: uuid.New(), Provider: enums.PaymentProviderPayDunya}, nil
}

type noopStatus struct{}

func (noopStatus) GetPaymentStatus(_ context.Context, id uuid.UUID, _ payments.Caller) (*payments.PaymentStatus, error) {
	return &payments.PaymentStatus{PaymentID: id, Status: enums.MarketplacePaymentPending}, nil
}

type noopReconciler struct{ provider enums.PaymentProvider }

func (n *noopReconciler) HandleWebhook(_ context.Context, in marketplace.WebhookInput) (*marketplace.Result, error) {
	n.provider = in.Provider
	return &marketplace.Result{Provider: in.Provider}, nil
}

type noopPayouts struct{}

func (noopPayouts) Cancel(_ context.Context, payoutID, _ uuid.UUID) (*models.Payout, error) {
	return &models.Payout{ID: payoutID, Status: enums.PayoutStatusCancelled}, nil
}

func (noopPayouts) RetryDue(context.Context) (payouts.SweepResult, error) {
	return payouts.SweepResult{}, nil
}

type routerFixture struct {
	cfg        *config.Config
	handler    http.Handler
	checkout   *countingCheckout
	reconciler *noopReconciler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:       config.JWTConfig{Secret: "router-secret", Issuer: "fieldbook-accounts", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{Window: time.Minute, IPLimit: 100, UserLimit: 100},
	}
	f := &routerFixture{cfg: cfg, checkout: &countingCheckout{}, reconciler: &noopReconciler{}}
	f.handler = NewRouter(cfg, logger.Nop(), newMemStore(), prometheus.NewRegistry(), Probes{}, Services{
		Checkout:   f.checkout,
		Status:     noopStatus{},
		Reconciler: f.reconciler,
		Payouts:    noopPayouts{},
	})
	return f
}

func (f *routerFixture) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(f.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role, JTI: uuid.NewString()})
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newRouterFixture(t)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
}

func TestMarketplaceRoutesRequireAuth(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/marketplace/payment/"+uuid.NewString()+"/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRoutesSkipAuth(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/marketplace/webhook/stripe", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.PaymentProviderStripe, f.reconciler.provider)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newRouterFixture(t)
	path := "/marketplace/admin/payouts/" + uuid.NewString() + "/cancel"

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.UserRoleOwner))
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.UserRoleAdmin))
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestCheckoutReplaysIdempotentRequest(t *testing.T) {
	f := newRouterFixture(t)
	token := f.token(t, enums.UserRolePlayer)
	body := `{"reservation_id":"` + uuid.NewString() + `"}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/marketplace/checkout", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "checkout-1")
		return f.do(req)
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.checkout.calls)
}
