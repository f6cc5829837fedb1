package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/quiz-auth/internal/model"
)

// AccessValidator verifies access tokens. The token codec satisfies it.
type AccessValidator interface {
	ValidateAccess(raw string) (model.Claims, error)
}

// AccessAuth returns an Echo middleware that validates a Bearer access
// token and injects its account id into the request context.  Refresh
// tokens are rejected because they are signed with a different key.
// Handlers read the caller through UserID.
func AccessAuth(v AccessValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := v.ValidateAccess(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "invalid or expired access token"})
			}

			c.Set(ctxUserID, claims.ID)
			return next(c)
		}
	}
}
