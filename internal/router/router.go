package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/quiz-auth/internal/handler"    // handlers that call into the session flows
	"github.com/iliyamo/quiz-auth/internal/middleware" // access-token authentication
)

// RegisterRoutes registers routes that do not belong to any flow.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers the session and activation endpoints under /api.
// Flows that act on a session read the refresh token from its cookie;
// only GET /api/user needs a Bearer access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens middleware.AccessValidator) {
	g := e.Group("/api")

	g.POST("/registration", a.Register)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	// Rotates the refresh token held in the cookie.
	g.GET("/refresh", a.Refresh)

	g.PUT("/user", a.UpdateProfile)
	g.GET("/user", a.Me, middleware.AccessAuth(tokens))

	// Target of the link in the activation mail.
	g.GET("/activate/:link", a.Activate)
	g.POST("/activation/resend", a.ResendActivation)
}
