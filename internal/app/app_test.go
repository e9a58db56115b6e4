package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rukunwarga/rukun/internal/observability"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
	"github.com/rukunwarga/rukun/jobs"
)

// unsetenv clears keys for the test; t.Setenv restores them afterwards.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	unsetenv(t, "DUES_PRIVILEGED_ROLES", "REJECT_REASON_MIN_LEN", "DOCUMENT_COMPLETION_ENABLED", "APP_TIMEZONE", "BULK_LOCK_TTL")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.RejectReasonMinLen)
	require.False(t, cfg.DocumentCompletionEnabled)

	roles, err := cfg.PrivilegedRoles()
	require.NoError(t, err)
	require.Equal(t, []rbac.RoleID{rbac.RoleSuperAdmin}, roles)

	model, err := cfg.LoadModel()
	require.NoError(t, err)
	require.True(t, model.Has(rbac.RoleSuperAdmin, shared.CapFinancesManage))
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	unsetenv(t, "APP_TIMEZONE", "BULK_LOCK_TTL")
	t.Setenv("DUES_PRIVILEGED_ROLES", "SUPER_ADMIN,BUPATI")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "BUPATI")

	t.Setenv("DUES_PRIVILEGED_ROLES", "super_admin, ketua_rt")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	roles, err := cfg.PrivilegedRoles()
	require.NoError(t, err)
	require.Equal(t, []rbac.RoleID{rbac.RoleSuperAdmin, rbac.RoleKetuaRT}, roles)

	t.Setenv("REJECT_REASON_MIN_LEN", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf).Info("hello")
	require.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	newLogger(&Config{LogFormat: "text"}, &buf).Debug("quiet")
	require.Contains(t, buf.String(), "msg=quiet")
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, token string) (rbac.Principal, error) {
	switch token {
	case "good":
		return rbac.Principal{ID: "u-1", Role: rbac.RoleBendahara}, nil
	case "resident":
		return rbac.Principal{ID: "w-1", Role: rbac.RoleWarga}, nil
	}
	return rbac.Principal{}, fmt.Errorf("%w: unknown token", shared.ErrUnauthenticated)
}

func newTestRouter() (http.Handler, *observability.Metrics) {
	metrics := observability.NewMetrics()
	return NewRouter(RouterParams{
		Config:              &Config{AppEnv: "test", RateLimitRPM: 1000},
		Resolver:            stubResolver{},
		Capabilities:        rbac.DefaultModel(),
		CapabilitiesHandler: rbac.NewHandler(rbac.DefaultModel()),
		JobHandler:          jobs.NewHandler(nil, nil),
		Metrics:             metrics,
	}), metrics
}

func TestRouterResolvesPrincipal(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"role":"BENDAHARA"`)
	require.Contains(t, rr.Body.String(), shared.CapFinancesManage)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `rukun_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRequestMetaReachesContext(t *testing.T) {
	var meta shared.RequestMeta
	handler := requestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = shared.RequestMetaFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.7"
	req.Header.Set("User-Agent", "rukun-test")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, shared.RequestMeta{IP: "10.0.0.7", UserAgent: "rukun-test"}, meta)
}

func TestRouterGuardsJobEndpoints(t *testing.T) {
	router, _ := newTestRouter()

	for token, want := range map[string]int{"good": http.StatusOK, "resident": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code, token)
	}
}
