package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/handler"
	"github.com/iliyamo/two-step-auth/internal/middleware"
)

// Deps carries the shared pieces every route group needs.
type Deps struct {
	Auth    *handler.AuthHandler
	Code    *handler.CodeHandler
	Gate    *middleware.Gate
	Limiter echo.MiddlewareFunc
}

// Register wires all routes on the provided Echo instance.
//
// Three tiers, matching the token state machine:
//   - open routes (register, login, logout, health) run outside any gate;
//     the brute-forceable ones carry the rate limiter,
//   - the code endpoints require a pre_auth token and nothing more,
//   - everything else under /v1 requires a full auth token.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	open := e.Group("/v1/auth")
	open.POST("/register", d.Auth.Register, d.Limiter)
	open.POST("/login", d.Auth.Login, d.Limiter)
	open.POST("/logout", d.Auth.Logout)

	// The code endpoints reject both unauthenticated callers and fully
	// authenticated ones: only the pre_auth stage belongs here.
	preAuth := e.Group("/v1/auth/code", d.Gate.RequireScope(middleware.ScopePreAuth))
	preAuth.POST("/validate", d.Code.Validate, d.Limiter)
	preAuth.POST("/claim", d.Code.Claim, d.Limiter)

	protected := e.Group("/v1", d.Gate.RequireScope(middleware.ScopeAuth))
	protected.Use(middleware.RequireRole("USER", "ADMIN"))
	protected.GET("/me", handler.Me)
}
