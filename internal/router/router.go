package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/ticket-waitroom/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/ticket-waitroom/internal/middleware" // import middleware for JWT and session authentication
	"github.com/iliyamo/ticket-waitroom/internal/session"    // session registry backing the session middleware
)

// Handlers bundles every handler the router needs so callers wire the
// application in one place.
type Handlers struct {
	Auth     *handler.AuthHandler
	Sessions *handler.SessionHandler
	Events   *handler.EventHandler
	Queue    *handler.QueueHandler
	Seats    *handler.SeatHandler
	Bookings *handler.BookingHandler
}

// RegisterRoutes registers routes that require no credentials at all:
// the health check, the event catalog, the pre-sale waiting page and
// session creation itself.
func RegisterRoutes(e *echo.Echo, h Handlers, cacheMW echo.MiddlewareFunc) {
	// Health check for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	// The catalog changes rarely, so event reads go through the
	// response cache when one is configured.
	events := e.Group("/v1/events")
	if cacheMW != nil {
		events.Use(cacheMW)
	}
	events.GET("", h.Events.List)
	events.GET("/:id", h.Events.Get)

	// The waiting page is polled every few seconds per client and must
	// reflect the countdown live, so it stays uncached.
	e.GET("/v1/events/:id/waiting", h.Events.Waiting)

	// Session creation is the entry point of the whole flow.
	e.POST("/v1/sessions", h.Sessions.Create)
}

// RegisterSession registers every endpoint scoped to a waiting-room
// session.  The session middleware resolves the X-Session-ID header,
// rejects unknown ids and slides the idle TTL before any handler runs.
func RegisterSession(e *echo.Echo, h Handlers, reg *session.Registry) {
	g := e.Group("/v1", middleware.SessionAuth(reg))

	g.GET("/sessions/current", h.Sessions.Get)
	g.DELETE("/sessions/current", h.Sessions.Delete)

	// Admission queue.
	g.POST("/queue/enter", h.Queue.Enter)
	g.GET("/queue/position", h.Queue.Position)
	g.POST("/queue/leave", h.Queue.Leave)

	// Seat map and holds; handlers enforce that the session was
	// admitted before serving these.
	g.GET("/events/:id/seats", h.Seats.List)
	g.POST("/seats/lock", h.Seats.Lock)
	g.POST("/seats/release", h.Seats.Release)

	// Booking lifecycle.
	g.POST("/booking/confirm", h.Bookings.Confirm)
	g.POST("/bookings/:id/cancel", h.Bookings.Cancel)
	g.GET("/bookings/:id", h.Bookings.Get)
}

// RegisterAuth registers account endpoints and the payment outcome
// callback.  Accounts are optional for queueing and holding seats;
// /v1/me is the only JWT-protected route.  The outcome callback
// authenticates by payment id alone, the way a gateway webhook would.
func RegisterAuth(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", h.Auth.Register)
	g.POST("/login", h.Auth.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", h.Auth.Me)

	e.POST("/v1/payments/outcome", h.Bookings.PaymentOutcome)
}
