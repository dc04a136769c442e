package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithttp "github.com/odyssey-erp/odyssey-rvu/internal/audit/http"
	"github.com/odyssey-erp/odyssey-rvu/internal/identity"
	"github.com/odyssey-erp/odyssey-rvu/internal/observability"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
	_ "github.com/odyssey-erp/odyssey-rvu/testing"
)

func testRouter(ready func(*http.Request) error) (http.Handler, *identity.Provider) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := identity.NewProvider("test-secret", "odyssey-identity")
	cfg := &Config{AppRequestTimeout: time.Second, RateLimitPerMinute: 100}
	return NewRouter(RouterParams{
		Logger:       logger,
		Config:       cfg,
		Identity:     provider,
		AuditHandler: audithttp.NewHandler(logger, nil),
		Metrics:      observability.NewMetrics(),
		Ready:        ready,
	}), provider
}

func TestHealthAndReadiness(t *testing.T) {
	router, _ := testRouter(func(*http.Request) error { return errors.New("db down") })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, provider := testRouter(nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/history?page=x", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := provider.Issue(shared.Principal{UserID: 1, CompanyIDs: []int64{10}}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?page=x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "authenticated request reaches the filter parser")
}

func TestTestModeIsDetected(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("NEAR_TERM_MONTHS", "0")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("NEAR_TERM_MONTHS", "24")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.NearTermMonths)
	assert.Equal(t, 5, cfg.AuditRetryMax)
	assert.Equal(t, 30*time.Second, cfg.MassLockTTL)
}
