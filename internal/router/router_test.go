package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/handler"
	"github.com/supdinner/tables/internal/middleware"
	"github.com/supdinner/tables/internal/service"
	"github.com/supdinner/tables/internal/testutil"
	"github.com/supdinner/tables/internal/utils"
)

const (
	secret = "router-secret"
	origin = "https://app.example.com"
)

type idleRunner struct{}

func (idleRunner) RunOnce(context.Context) (service.Summary, bool) {
	return service.Summary{CleanupMessage: "no expired tables"}, true
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	store := testutil.NewStore()
	gw := testutil.NewGateway()
	disp := &testutil.Dispatcher{}
	stores := service.Stores{Tables: store, Signups: store, Waitlists: store, Holds: store, Users: store}
	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	windows := config.DefaultWindows()

	recon := service.NewReconciler(stores, gw, disp, metrics, log)
	tables := handler.NewTableHandler(service.NewCatalog(stores, windows, log), log)
	h := Handlers{
		Signups:  handler.NewSignupHandler(service.NewLedger(stores, disp, metrics, log), service.NewWaitlist(stores, disp, metrics, log), log),
		Holds:    handler.NewHoldHandler(service.NewHoldManager(stores, gw, windows, metrics, log), recon, log),
		Tables:   tables,
		Requests: handler.NewRequestHandler(service.NewTableRequests(disp, log), log),
		Admin:    handler.NewAdminHandler(tables, idleRunner{}, log),
		Webhook:  handler.NewWebhookHandler(recon, log),
	}
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	Register(e, h, Options{
		JWTSecret:   secret,
		CORSOrigins: []string{origin},
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return e
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func send(e *echo.Echo, method, path, auth string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderOrigin, origin)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	e := newServer(t)
	rec := send(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = send(e, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientRoutesRequireToken(t *testing.T) {
	e := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, send(e, http.MethodGet, "/v1/tables", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, send(e, http.MethodPost, "/v1/join", "", `{"tableId":1}`).Code)

	rec := send(e, http.MethodGet, "/v1/tables", bearer(t, 5, "USER"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.JSONEq(t, `{"tables":[]}`, rec.Body.String())
}

func TestAdminRoutesRequireRole(t *testing.T) {
	e := newServer(t)
	rec := send(e, http.MethodPost, "/v1/admin/maintenance/run", bearer(t, 5, "USER"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = send(e, http.MethodPost, "/v1/admin/maintenance/run", bearer(t, 1, middleware.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no expired tables")
}

func TestWebhookSkipsIdentityAndCORS(t *testing.T) {
	e := newServer(t)
	rec := send(e, http.MethodPost, "/webhooks/payments", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestPreflight(t *testing.T) {
	e := newServer(t)
	preflight := func(from string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v1/join", nil)
		req.Header.Set(echo.HeaderOrigin, from)
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}
	rec := preflight(origin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = preflight("https://evil.example.com")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
