package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

func serve(t *testing.T, codec *utils.TokenCodec, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var seen string
	e.GET("/me", func(c echo.Context) error {
		seen = UserID(c)
		return c.NoContent(http.StatusOK)
	}, AccessAuth(codec))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestAccessAuth(t *testing.T) {
	codec := utils.NewTokenCodec("access", "refresh", 0, 0)
	pair, err := codec.Generate(model.Claims{ID: "acc-1", Username: "alice1", Email: "a@x.com"})
	require.NoError(t, err)

	rec, id := serve(t, codec, "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-1", id)

	for name, header := range map[string]string{
		"missing":       "",
		"not bearer":    "Basic abc",
		"garbage":       "Bearer nope",
		"refresh token": "Bearer " + pair.RefreshToken,
	} {
		rec, id := serve(t, codec, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Empty(t, id, name)
	}
}

func TestUserIDWithoutAuth(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "", UserID(c))
}
