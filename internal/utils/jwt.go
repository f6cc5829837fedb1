package utils // package utils provides token, password and identifier helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/quiz-auth/internal/model"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// DefaultAccessTTL is the lifetime of an access token.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is the lifetime of a refresh token and of the
	// cookie that carries it.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken is returned when a token has a bad signature, is
// expired, was signed for the other token kind or is malformed.
var ErrInvalidToken = errors.New("invalid token")

// tokenClaims is the JWT payload shared by access and refresh tokens.
// Both kinds carry the same identity; the typ claim and the signing
// key tell them apart.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Type     string `json:"typ"`
}

// TokenCodec signs and verifies the access/refresh pair. Access and
// refresh tokens use distinct HS256 secrets so that one kind can never
// be replayed as the other. The codec is stateless; expiry is checked
// against Now.
type TokenCodec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

// NewTokenCodec builds a codec with the default lifetimes and the wall
// clock. Zero TTLs fall back to the defaults.
func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenCodec{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Now:           time.Now,
	}
}

func (c *TokenCodec) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

// Generate signs a new access/refresh pair for the given identity.
// Every call gets its own jti, so two pairs issued within the same
// second still differ.
func (c *TokenCodec) Generate(claims model.Claims) (model.TokenPair, error) {
	now := c.now()

	access, accessExp, err := c.sign(claims, tokenTypeAccess, c.AccessSecret, now, c.AccessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, refreshExp, err := c.sign(claims, tokenTypeRefresh, c.RefreshSecret, now, c.RefreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess verifies an access token and returns its identity.
func (c *TokenCodec) ValidateAccess(raw string) (model.Claims, error) {
	return c.parse(raw, c.AccessSecret, tokenTypeAccess)
}

// ValidateRefresh verifies a refresh token and returns its identity.
func (c *TokenCodec) ValidateRefresh(raw string) (model.Claims, error) {
	return c.parse(raw, c.RefreshSecret, tokenTypeRefresh)
}

func (c *TokenCodec) sign(claims model.Claims, typ string, secret []byte, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   claims.ID,
		Username: claims.Username,
		Email:    claims.Email,
		Type:     typ,
	})
	signed, err := t.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

func (c *TokenCodec) parse(raw string, secret []byte, typ string) (model.Claims, error) {
	if raw == "" {
		return model.Claims{}, ErrInvalidToken
	}

	claims := &tokenClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Type != typ || claims.UserID == "" {
		return model.Claims{}, ErrInvalidToken
	}

	return model.Claims{
		ID:       claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string. Only the hash is persisted by the session store.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
