package middleware

// identity.go holds the accessor for the identity AccessAuth stores in
// the Echo context.

import "github.com/labstack/echo/v4"

const ctxUserID = "user_id"

// UserID returns the authenticated account id, or "" when the request
// did not pass through AccessAuth.
func UserID(c echo.Context) string {
	if v, ok := c.Get(ctxUserID).(string); ok {
		return v
	}
	return ""
}
