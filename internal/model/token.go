package model

import "time"

// Claims is the identity carried by both access and refresh tokens.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ClaimsOf builds token claims from an account.
func ClaimsOf(a Account) Claims {
	return Claims{ID: a.ID, Username: a.Username, Email: a.Email}
}

// TokenPair is a freshly minted access/refresh pair together with the
// moment each one stops being valid.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Session maps an account to its single current refresh token.
type Session struct {
	AccountID    string
	RefreshToken string
}

// AuthResult is returned by every flow that issues tokens.
type AuthResult struct {
	TokenPair
	User PublicUser `json:"user"`
}
