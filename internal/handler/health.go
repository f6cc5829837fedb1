package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger checks one backing store.
type Pinger func(ctx context.Context) error

// Health is a health‑check endpoint used by load balancers and
// monitoring systems.  It pings every dependency and answers 200 when
// all of them respond, 503 otherwise.  The body lists each check.
func Health(checks map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		return c.JSON(status, echo.Map{"status": http.StatusText(status), "checks": report})
	}
}
