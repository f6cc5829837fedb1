package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"

	"github.com/iliyamo/quiz-auth/internal/service"
)

const defaultLocale = "en"

// fail renders a flow error as {"error": kind, "message": reason, "field": f}.
// Only server-side failures are reported to Sentry.
func fail(c echo.Context, err error) error {
	status, kind := classify(err)

	body := echo.Map{"error": kind}
	var se *service.Error
	if errors.As(err, &se) {
		body["message"] = se.Reason
		if se.Field != "" {
			body["field"] = se.Field
		}
	}

	if status >= http.StatusInternalServerError {
		log.Printf("http: %s %s failed: %v", c.Request().Method, c.Path(), err)
		sentry.CaptureException(err)
		if se == nil {
			body["message"] = "internal server error"
		}
	}
	return c.JSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrAuth):
		return http.StatusUnauthorized, "auth"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation", "message": "invalid body"})
}

// locale is the primary language of the Accept-Language header.
func locale(c echo.Context) string {
	tags, _, err := language.ParseAcceptLanguage(c.Request().Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return defaultLocale
	}
	base, conf := tags[0].Base()
	if conf == language.No {
		return defaultLocale
	}
	return base.String()
}
