package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/quiz-auth/internal/handler"
	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/router"
	"github.com/iliyamo/quiz-auth/internal/service"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

// stubService answers every flow from fixed values and records inputs.
type stubService struct {
	result model.AuthResult
	user   model.PublicUser
	err    error
	found  bool

	gotToken  string
	gotLocale string
	gotID     string
	gotUpdate service.UpdateInput
}

func (s *stubService) Register(_ context.Context, in service.RegisterInput) (model.AuthResult, error) {
	s.gotLocale = in.Locale
	return s.result, s.err
}

func (s *stubService) Login(context.Context, service.LoginInput) (model.AuthResult, error) {
	return s.result, s.err
}

func (s *stubService) Refresh(_ context.Context, token string) (model.AuthResult, error) {
	s.gotToken = token
	return s.result, s.err
}

func (s *stubService) Logout(_ context.Context, token string) error {
	s.gotToken = token
	return s.err
}

func (s *stubService) UpdateProfile(_ context.Context, token string, in service.UpdateInput) (model.PublicUser, error) {
	s.gotToken = token
	s.gotUpdate = in
	return s.user, s.err
}

func (s *stubService) Me(_ context.Context, id string) (model.PublicUser, error) {
	s.gotID = id
	return s.user, s.err
}

func (s *stubService) Activate(context.Context, string) (model.PublicUser, bool, error) {
	return s.user, s.found, s.err
}

func (s *stubService) ResendActivation(_ context.Context, token, locale string) error {
	s.gotToken = token
	s.gotLocale = locale
	return s.err
}

type harness struct {
	e     *echo.Echo
	svc   *stubService
	codec *utils.TokenCodec
}

func newHarness() *harness {
	svc := &stubService{
		result: model.AuthResult{
			TokenPair: model.TokenPair{AccessToken: "acc", RefreshToken: "ref"},
			User:      model.PublicUser{ID: "acc-1", Username: "alice1", Email: "a@x.com"},
		},
		user: model.PublicUser{ID: "acc-1", Username: "alice1", Email: "a@x.com"},
	}
	codec := utils.NewTokenCodec("access", "refresh", 0, 0)
	h := &handler.AuthHandler{Svc: svc, ClientURL: "http://client.local", CookieSecure: true, CookieMaxAge: utils.DefaultRefreshTTL}

	e := echo.New()
	router.RegisterAuth(e, h, codec)
	return &harness{e: e, svc: svc, codec: codec}
}

func (h *harness) do(method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func withCookie(v string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: handler.RefreshCookie, Value: v}) }
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == handler.RefreshCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", handler.RefreshCookie)
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestRegister_SetsCookieAndReturnsPair(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/registration",
		`{"username":"alice1","email":"a@x.com","password":"pass1","repeatPassword":"pass1"}`,
		func(r *http.Request) { r.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8") })

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "acc", body["accessToken"])
	assert.Equal(t, "ref", body["refreshToken"])
	assert.Equal(t, "alice1", body["user"].(map[string]any)["username"])
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.Equal(t, "ru", h.svc.gotLocale)

	ck := refreshCookie(t, rec)
	assert.Equal(t, "ref", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
	assert.Equal(t, int(30*24*time.Hour/time.Second), ck.MaxAge)
}

func TestRegister_DefaultLocale(t *testing.T) {
	h := newHarness()
	h.do(http.MethodPost, "/api/registration", `{}`, nil)
	assert.Equal(t, "en", h.svc.gotLocale)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{&service.Error{Kind: service.ErrValidation, Field: "email", Reason: "email is not a valid address"}, http.StatusBadRequest, "validation"},
		{&service.Error{Kind: service.ErrConflict, Field: "username", Reason: "username is already registered"}, http.StatusConflict, "conflict"},
		{&service.Error{Kind: service.ErrAuth, Reason: "invalid email or password"}, http.StatusUnauthorized, "auth"},
		{&service.Error{Kind: service.ErrUnauthenticated, Reason: "session has ended"}, http.StatusUnauthorized, "unauthenticated"},
		{&service.Error{Kind: service.ErrStoreUnavailable, Reason: "storage is temporarily unavailable"}, http.StatusServiceUnavailable, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			h := newHarness()
			h.svc.err = tt.err

			rec := h.do(http.MethodPost, "/api/login", `{"email":"a@x.com","password":"x"}`, nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.kind, body["error"])
			assert.NotEmpty(t, body["message"])
			assert.Empty(t, rec.Result().Cookies())

			var se *service.Error
			if errors.As(tt.err, &se) && se.Field != "" {
				assert.Equal(t, se.Field, body["field"])
			}
		})
	}
}

func TestLogin_BadBody(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/api/login", `{"email":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_UsesCookie(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodGet, "/api/refresh", "", withCookie("old-ref"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old-ref", h.svc.gotToken)
	assert.Equal(t, "ref", refreshCookie(t, rec).Value)

	h.svc.gotToken = "unset"
	h.do(http.MethodGet, "/api/refresh", "", nil)
	assert.Equal(t, "", h.svc.gotToken)
}

func TestLogout(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/logout", "", withCookie("ref"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://client.local", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "ref", h.svc.gotToken)
	ck := refreshCookie(t, rec)
	assert.Empty(t, ck.Value)
	assert.Negative(t, ck.MaxAge)

	rec = h.do(http.MethodPost, "/api/logout", "", func(r *http.Request) { r.Header.Set("client-type", "mobile") })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPut, "/api/user", `{"password":"pass1","username":"alice2"}`, withCookie("ref"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ref", h.svc.gotToken)
	assert.Equal(t, "pass1", h.svc.gotUpdate.Password)
	require.NotNil(t, h.svc.gotUpdate.Username)
	assert.Equal(t, "alice2", *h.svc.gotUpdate.Username)
	assert.Nil(t, h.svc.gotUpdate.Email)
	assert.Nil(t, h.svc.gotUpdate.NewPassword)
}

func TestMe_RequiresAccessToken(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodGet, "/api/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	pair, err := h.codec.Generate(model.Claims{ID: "acc-1", Username: "alice1", Email: "a@x.com"})
	require.NoError(t, err)

	rec = h.do(http.MethodGet, "/api/user", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+pair.RefreshToken) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/user", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+pair.AccessToken) })
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-1", h.svc.gotID)
	assert.Equal(t, "alice1", decode(t, rec)["username"])
}

func TestActivate(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodGet, "/api/activate/nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, "link", body["field"])

	h.svc.found = true
	rec = h.do(http.MethodGet, "/api/activate/link-1", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://client.local", rec.Header().Get(echo.HeaderLocation))

	rec = h.do(http.MethodGet, "/api/activate/link-1", "", func(r *http.Request) { r.Header.Set("client-type", "mobile") })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResendActivation(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/activation/resend", "", func(r *http.Request) {
		withCookie("ref")(r)
		r.Header.Set("Accept-Language", "de")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ref", h.svc.gotToken)
	assert.Equal(t, "de", h.svc.gotLocale)
}
