package handler

import (
	"context"  // request-scoped timeouts for service calls
	"net/http" // HTTP status codes and primitives
	"time"     // cookie lifetime and timeouts

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/quiz-auth/internal/config"
	"github.com/iliyamo/quiz-auth/internal/middleware"
	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/service"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

// RefreshCookie is the cookie that carries the refresh token.
const RefreshCookie = "refreshToken"

// requestTimeout bounds every service call made by a handler.
const requestTimeout = 5 * time.Second

// AuthService is what the auth endpoints need from the session flows.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (model.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput) (model.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (model.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	UpdateProfile(ctx context.Context, refreshToken string, in service.UpdateInput) (model.PublicUser, error)
	Me(ctx context.Context, accountID string) (model.PublicUser, error)
	Activate(ctx context.Context, link string) (model.PublicUser, bool, error)
	ResendActivation(ctx context.Context, refreshToken, locale string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc          AuthService
	ClientURL    string
	CookieSecure bool
	CookieMaxAge time.Duration
}

func NewAuthHandler(svc AuthService, cfg config.Config) *AuthHandler {
	maxAge := cfg.RefreshTTL()
	if maxAge <= 0 {
		maxAge = utils.DefaultRefreshTTL
	}
	return &AuthHandler{
		Svc:          svc,
		ClientURL:    cfg.ClientURL,
		CookieSecure: cfg.CookieSecure,
		CookieMaxAge: maxAge,
	}
}

// Register: create the account, mail its activation link and sign it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	in.Locale = locale(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Svc.Register(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, res)
}

// Login: verify credentials and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var in service.LoginInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Svc.Login(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, res)
}

// Logout: drop the session behind the cookie and clear it.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.Logout(ctx, refreshToken(c)); err != nil {
		return fail(c, err)
	}
	h.clearRefreshCookie(c)
	return h.done(c)
}

// Refresh: rotate the refresh token from the cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Svc.Refresh(ctx, refreshToken(c))
	if err != nil {
		return fail(c, err)
	}
	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, res)
}

// UpdateProfile: change username, email or password of the cookie's account.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	var in service.UpdateInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.UpdateProfile(ctx, refreshToken(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Me: public projection of the access token holder.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.Me(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Activate: consume the activation link from the mail.
func (h *AuthHandler) Activate(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	_, ok, err := h.Svc.Activate(ctx, c.Param("link"))
	if err != nil {
		return fail(c, err)
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation", "field": "link", "message": "activation link is unknown"})
	}
	return h.done(c)
}

// ResendActivation: mail a fresh activation link to the cookie's account.
func (h *AuthHandler) ResendActivation(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.ResendActivation(ctx, refreshToken(c), locale(c)); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// done finishes a browser-facing flow: mobile clients get an empty 200,
// browsers are sent back to the client application.
func (h *AuthHandler) done(c echo.Context) error {
	if c.Request().Header.Get("client-type") == "mobile" || h.ClientURL == "" {
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusFound, h.ClientURL)
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.CookieMaxAge / time.Second),
		Expires:  time.Now().Add(h.CookieMaxAge),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

func refreshToken(c echo.Context) string {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}
