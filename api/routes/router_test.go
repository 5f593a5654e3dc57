package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickflow-backend/api/controllers"
	"github.com/angelmondragon/pickflow-backend/internal/quotesync"
	"github.com/angelmondragon/pickflow-backend/internal/runs"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/internal/webhooks/reconciler"
	pkgAuth "github.com/angelmondragon/pickflow-backend/pkg/auth"
	"github.com/angelmondragon/pickflow-backend/pkg/config"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubTenants struct{}

func (stubTenants) FindByID(context.Context, uuid.UUID) (*models.Tenant, error) {
	return &models.Tenant{}, nil
}

type stubConnections struct{}

func (stubConnections) AuthorizeURL(context.Context, uuid.UUID, enums.Provider) (string, error) {
	return "https://consent.example", nil
}

func (stubConnections) Complete(context.Context, tokens.CallbackParams) (uuid.UUID, enums.Provider, error) {
	return uuid.Nil, enums.ProviderQBO, nil
}

func (stubConnections) Disconnect(context.Context, uuid.UUID) error {
	return nil
}

type stubSyncer struct{}

func (stubSyncer) SyncAllPendingQuotes(context.Context, uuid.UUID, enums.Provider) (quotesync.Result, error) {
	return quotesync.Result{}, nil
}

type stubRuns struct {
	runs.Service
	listedFor uuid.UUID
}

func (s *stubRuns) List(_ context.Context, tenantID uuid.UUID, _ enums.RunStatus) ([]runs.RunDTO, error) {
	s.listedFor = tenantID
	return []runs.RunDTO{}, nil
}

type stubProcessor struct{}

func (stubProcessor) ProcessNotification(context.Context, reconciler.Notification) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Env: "test"},
		JWT:  config.JWTConfig{Secret: "secret", Issuer: "pickflow", ExpirationMinutes: 5},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestRouter(t *testing.T, pingers map[string]controllers.Pinger, runService runs.Service) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	sm := metrics.NewSyncMetrics(reg)
	sm.IncWebhookEvent("qbo", "estimate", "applied")
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(
		testConfig(), logg, pingers, nil, reg,
		stubTenants{}, stubConnections{}, stubSyncer{},
		nil, runService, nil,
		stubProcessor{}, nil,
	)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, map[string]controllers.Pinger{"db": stubPinger{}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyFailsWhenDependencyDown(t *testing.T) {
	router := newTestRouter(t, map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("connection refused")}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "webhook_events_total")
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, nil, &stubRuns{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIScopesRequestsToTokenTenant(t *testing.T) {
	runService := &stubRuns{}
	router := newTestRouter(t, nil, runService)
	tenantID := uuid.New()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{TenantID: tenantID})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, tenantID, runService.listedFor)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestWebhookRouteIsPublic(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/qbo", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
}
