package routes

import (
	"net/http"

	"waitlist/cmd/internal/http/handler"
	"waitlist/cmd/internal/metrics"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Waitlist *handler.DefaultWaitlistRoute
	Referral *handler.DefaultReferralRoute
	Events   *handler.DefaultEventRoute
}

type Middlewares struct {
	// Auth resolves the session user, JoinLimiter throttles signups.
	Auth        echo.MiddlewareFunc
	JoinLimiter echo.MiddlewareFunc
}

func Register(e *echo.Echo, h *Handlers, mw *Middlewares) {
	api := e.Group("/api")

	// Waitlist
	api.POST("/waitlist", h.Waitlist.Join, mw.JoinLimiter)
	api.GET("/waitlist/stats", h.Waitlist.GetStats)
	api.GET("/waitlist/me", h.Waitlist.GetStatus, mw.Auth)

	// Referrals
	api.POST("/referrals/claim", h.Referral.ClaimReferral, mw.Auth)

	// Live updates
	api.GET("/events", h.Events.Stream, mw.Auth)
	api.GET("/events/stats", h.Events.GetStats)

	e.GET("/metrics", metrics.Handler())

	// Docker Compose healthcheck
	e.GET("/health", healthCheckRoute)
}

func healthCheckRoute(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
