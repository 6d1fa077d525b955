// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/supdinner/tables/internal/handler"
	"github.com/supdinner/tables/internal/middleware"
)

// Handlers bundles the endpoint groups.
type Handlers struct {
	Signups  *handler.SignupHandler
	Holds    *handler.HoldHandler
	Tables   *handler.TableHandler
	Requests *handler.RequestHandler
	Admin    *handler.AdminHandler
	Webhook  *handler.WebhookHandler
}

// Options carries the middleware shared by the client routes.  Nil
// RateLimit or Cache leave the routes unthrottled or uncached.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	RateLimit   echo.MiddlewareFunc
	Cache       echo.MiddlewareFunc
	Metrics     http.Handler
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// RegisterRoutes registers the health checks: /healthz and, when a handler is
// given, /metrics.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// WebhookPrefix groups the gateway callbacks.
const WebhookPrefix = "/webhooks/"

// RegisterWebhook registers the gateway callback.  It is server to server
// so it skips CORS and JWT; the payload signature authenticates it.
func RegisterWebhook(e *echo.Echo, h *handler.WebhookHandler) {
	e.POST(WebhookPrefix+"payments", h.Receive)
}

// RegisterClient registers the /v1 routes behind JWTAuth.  Mutations are
// rate limited and table reads are cached.
func RegisterClient(e *echo.Echo, h Handlers, opt Options) {
	limit, cache := opt.RateLimit, opt.Cache
	if limit == nil {
		limit = passThrough
	}
	if cache == nil {
		cache = passThrough
	}

	g := e.Group("/v1", middleware.JWTAuth(opt.JWTSecret))

	g.GET("/tables", h.Tables.List, cache)
	g.GET("/tables/:id", h.Tables.Get, cache)
	g.PUT("/me", h.Tables.UpdateProfile, limit)
	g.POST("/table-requests", h.Requests.Create, limit)

	g.POST("/join", h.Signups.Join, limit)
	g.POST("/leave", h.Signups.Leave, limit)
	g.POST("/join-waitlist", h.Signups.JoinWaitlist, limit)
	g.POST("/leave-waitlist", h.Signups.LeaveWaitlist, limit)

	g.POST("/customers", h.Holds.Customer, limit)
	g.POST("/create-hold", h.Holds.CreateHold, limit)
	g.POST("/create-deferred-setup", h.Holds.CreateDeferredSetup, limit)
	g.POST("/place-day-of-hold", h.Holds.PlaceDayOfHold, limit)
	g.POST("/cancel-hold", h.Holds.CancelHold, limit)
	g.POST("/join-after-confirm", h.Holds.JoinAfterConfirm, limit)

	admin := g.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/tables", h.Admin.CreateTable)
	admin.GET("/tables/:id/guests", h.Admin.Guests)
	admin.POST("/maintenance/run", h.Admin.RunMaintenance)
}

// Register wires every route of the service.  The CORS allow-list runs
// on the echo instance so preflight requests reach it; the webhook is
// exempt.
func Register(e *echo.Echo, h Handlers, opt Options) {
	e.Use(middleware.CORS(opt.CORSOrigins, WebhookPrefix))
	RegisterRoutes(e, opt.Metrics)
	RegisterWebhook(e, h.Webhook)
	RegisterClient(e, h, opt)
}
