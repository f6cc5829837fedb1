// Package service implements the session lifecycle: registration, login,
// refresh-token rotation, logout, profile updates and account activation.
// It owns every decision about when tokens are minted or revoked. The
// credential store, the session store and the notifier are passive
// collaborators behind narrow interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/repository"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

// notifyTimeout bounds a single detached notifier call.
const notifyTimeout = 10 * time.Second

// CredentialStore persists accounts. Lookups return repository.ErrNotFound
// for a missing account; create and update return repository.ErrConflict
// when a username or email is taken. Delete of a missing account is not an
// error.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (model.Account, error)
	FindByUsername(ctx context.Context, username string) (model.Account, error)
	FindByID(ctx context.Context, id string) (model.Account, error)
	FindByIDFull(ctx context.Context, id string) (model.Account, error)
	FindByEmailFull(ctx context.Context, email string) (model.Account, error)
	FindByActivationLink(ctx context.Context, link string) (model.Account, error)
	Create(ctx context.Context, a model.Account) error
	Update(ctx context.Context, id string, u model.AccountUpdate) error
	MarkActivated(ctx context.Context, id string, at time.Time) error
	SetActivationLink(ctx context.Context, id, link string) error
	Delete(ctx context.Context, id string) error
}

// SessionStore keeps the single current refresh token of each account.
// Save must be atomic per account: with concurrent saves exactly one
// token survives.
type SessionStore interface {
	Save(ctx context.Context, accountID, refreshToken string) error
	Get(ctx context.Context, refreshToken string) (model.Session, error)
	Delete(ctx context.Context, refreshToken string) (int64, error)
}

// Notifier delivers activation links. Its failures never fail a flow.
type Notifier interface {
	SendActivationMail(ctx context.Context, email, activationURL, locale string) error
}

// TokenIssuer mints and verifies token pairs.
type TokenIssuer interface {
	Generate(claims model.Claims) (model.TokenPair, error)
	ValidateRefresh(raw string) (model.Claims, error)
}

// Deps are the collaborators of AuthService. Notifier and Clock are optional.
type Deps struct {
	Accounts CredentialStore
	Sessions SessionStore
	Tokens   TokenIssuer
	Notifier Notifier
	Clock    func() time.Time
}

// Options carry the configuration the flows need.
type Options struct {
	// APIURL is the public base URL activation links are built on.
	APIURL     string
	BcryptCost int
}

// AuthService runs the session flows.
type AuthService struct {
	accounts CredentialStore
	sessions SessionStore
	tokens   TokenIssuer
	notifier Notifier
	now      func() time.Time
	opts     Options

	pending sync.WaitGroup
}

func NewAuthService(d Deps, o Options) *AuthService {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = utils.DefaultBcryptCost
	}
	o.APIURL = strings.TrimRight(o.APIURL, "/")
	return &AuthService{
		accounts: d.Accounts,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		notifier: d.Notifier,
		now:      d.Clock,
		opts:     o,
	}
}

type RegisterInput struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeatPassword"`
	Locale         string `json:"-"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateInput holds a profile change. Password is the current password
// and is always required; the other fields are optional and an empty
// string counts as not provided.
type UpdateInput struct {
	Password    string  `json:"password"`
	NewPassword *string `json:"newPassword,omitempty"`
	Username    *string `json:"username,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// Register creates a not-yet-activated account, sends its activation
// link and signs the new account in. When the session cannot be saved the
// account is removed again and no mail goes out.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)

	if err := firstViolation(
		on("username", in.Username, required("username")),
		on("email", in.Email, required("email")),
		on("password", in.Password, required("password")),
		on("repeatPassword", in.RepeatPassword, required("repeatPassword")),
		on("username", in.Username, usernameRule),
		on("email", in.Email, emailRule),
		on("repeatPassword", in.RepeatPassword, sameAs(in.Password, "passwords do not match")),
		on("password", in.Password, passwordRule),
	); err != nil {
		return model.AuthResult{}, err
	}

	if err := s.ensureFree(ctx, "email", in.Email, "", s.accounts.FindByEmail); err != nil {
		return model.AuthResult{}, err
	}
	if err := s.ensureFree(ctx, "username", in.Username, "", s.accounts.FindByUsername); err != nil {
		return model.AuthResult{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	acc := model.Account{
		ID:               uuid.NewString(),
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     hash,
		ActivationLink:   utils.NewActivationLink(),
		RegistrationDate: s.now().UTC().Truncate(time.Second),
	}
	pair, err := s.tokens.Generate(model.ClaimsOf(acc))
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("generate tokens: %w", err)
	}

	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.AuthResult{}, conflictErr("", "username or email is already registered")
		}
		return model.AuthResult{}, storeErr("create account", err)
	}
	if err := s.sessions.Save(ctx, acc.ID, pair.RefreshToken); err != nil {
		s.discard(ctx, acc.ID)
		return model.AuthResult{}, storeErr("save session", err)
	}

	s.notify(acc.Email, acc.ActivationLink, in.Locale)

	return model.AuthResult{TokenPair: pair, User: acc.Public()}, nil
}

// discard removes an account whose registration could not finish. It
// runs past the request deadline so a timed-out save still rolls back.
func (s *AuthService) discard(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.accounts.Delete(ctx, id); err != nil {
		log.Printf("register: discard account %s failed: %v", id, err)
	}
}

// Login signs an existing account in. An unknown email and a wrong
// password fail with the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (model.AuthResult, error) {
	in.Email = normalizeEmail(in.Email)

	if err := firstViolation(
		on("email", in.Email, required("email")),
		on("password", in.Password, required("password")),
		on("email", in.Email, emailRule),
	); err != nil {
		return model.AuthResult{}, err
	}

	acc, err := s.accounts.FindByEmailFull(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.AuthResult{}, authErr("invalid email or password")
		}
		return model.AuthResult{}, storeErr("find account", err)
	}
	if !utils.VerifyPassword(acc.PasswordHash, in.Password) {
		return model.AuthResult{}, authErr("invalid email or password")
	}

	return s.issue(ctx, acc)
}

// Refresh rotates a refresh token. The presented token stops working as
// soon as the new pair is saved.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.AuthResult, error) {
	session, err := s.session(ctx, refreshToken)
	if err != nil {
		return model.AuthResult{}, err
	}

	acc, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.AuthResult{}, unauthenticated("account no longer exists", err)
		}
		return model.AuthResult{}, storeErr("find account", err)
	}

	return s.issue(ctx, acc)
}

// Logout drops the session that holds refreshToken. Unknown or empty
// tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.sessions.Delete(ctx, refreshToken); err != nil {
		return storeErr("delete session", err)
	}
	return nil
}

// UpdateProfile changes username, email or password after checking the
// current password. It does not issue new tokens.
func (s *AuthService) UpdateProfile(ctx context.Context, refreshToken string, in UpdateInput) (model.PublicUser, error) {
	claims, err := s.claims(refreshToken)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := firstViolation(on("password", in.Password, required("password"))); err != nil {
		return model.PublicUser{}, err
	}
	in.Email, in.Username, in.NewPassword = given(in.Email), given(in.Username), given(in.NewPassword)

	var upd model.AccountUpdate

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := firstViolation(on("email", email, required("email"), emailRule)); err != nil {
			return model.PublicUser{}, err
		}
		if email != claims.Email {
			if err := s.ensureFree(ctx, "email", email, claims.ID, s.accounts.FindByEmail); err != nil {
				return model.PublicUser{}, err
			}
		}
		upd.Email = &email
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := firstViolation(on("username", username, required("username"), usernameRule)); err != nil {
			return model.PublicUser{}, err
		}
		if username != claims.Username {
			if err := s.ensureFree(ctx, "username", username, claims.ID, s.accounts.FindByUsername); err != nil {
				return model.PublicUser{}, err
			}
		}
		upd.Username = &username
	}

	if in.NewPassword != nil {
		if err := firstViolation(on("newPassword", *in.NewPassword, required("newPassword"), passwordRule)); err != nil {
			return model.PublicUser{}, err
		}
	}

	session, err := s.lookupSession(ctx, refreshToken, claims)
	if err != nil {
		return model.PublicUser{}, err
	}

	acc, err := s.accounts.FindByIDFull(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, unauthenticated("account no longer exists", err)
		}
		return model.PublicUser{}, storeErr("find account", err)
	}
	if !utils.VerifyPassword(acc.PasswordHash, in.Password) {
		return model.PublicUser{}, authErr("wrong password")
	}

	if in.NewPassword != nil {
		hash, err := utils.HashPassword(*in.NewPassword, s.opts.BcryptCost)
		if err != nil {
			return model.PublicUser{}, fmt.Errorf("hash password: %w", err)
		}
		upd.PasswordHash = &hash
	}

	if err := s.accounts.Update(ctx, acc.ID, upd); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.PublicUser{}, conflictErr("", "username or email is already registered")
		}
		return model.PublicUser{}, storeErr("update account", err)
	}

	if upd.Username != nil {
		acc.Username = *upd.Username
	}
	if upd.Email != nil {
		acc.Email = *upd.Email
	}
	return acc.Public(), nil
}

// Me returns the public projection of an authenticated account.
func (s *AuthService) Me(ctx context.Context, accountID string) (model.PublicUser, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, unauthenticated("account no longer exists", err)
		}
		return model.PublicUser{}, storeErr("find account", err)
	}
	return acc.Public(), nil
}

// Wait blocks until every detached notification has finished.
func (s *AuthService) Wait() { s.pending.Wait() }

// issue mints a pair for acc and makes its refresh token the account's
// only valid one.
func (s *AuthService) issue(ctx context.Context, acc model.Account) (model.AuthResult, error) {
	pair, err := s.tokens.Generate(model.ClaimsOf(acc))
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("generate tokens: %w", err)
	}
	if err := s.sessions.Save(ctx, acc.ID, pair.RefreshToken); err != nil {
		return model.AuthResult{}, storeErr("save session", err)
	}
	return model.AuthResult{TokenPair: pair, User: acc.Public()}, nil
}

// claims decodes a refresh token without touching the session store.
func (s *AuthService) claims(refreshToken string) (model.Claims, error) {
	if refreshToken == "" {
		return model.Claims{}, unauthenticated("refresh token is missing", nil)
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return model.Claims{}, unauthenticated("refresh token is invalid or expired", err)
	}
	return claims, nil
}

// session decodes refreshToken and requires it to be the current token
// of the account it names.
func (s *AuthService) session(ctx context.Context, refreshToken string) (model.Session, error) {
	claims, err := s.claims(refreshToken)
	if err != nil {
		return model.Session{}, err
	}
	return s.lookupSession(ctx, refreshToken, claims)
}

func (s *AuthService) lookupSession(ctx context.Context, refreshToken string, claims model.Claims) (model.Session, error) {
	session, err := s.sessions.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, unauthenticated("session has ended", err)
		}
		return model.Session{}, storeErr("get session", err)
	}
	if session.AccountID != claims.ID {
		return model.Session{}, unauthenticated("session has ended", nil)
	}
	return session, nil
}

// ensureFree fails with a conflict when value already belongs to an
// account other than self.
func (s *AuthService) ensureFree(ctx context.Context, field, value, self string,
	find func(context.Context, string) (model.Account, error)) error {
	acc, err := find(ctx, value)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return storeErr("find account by "+field, err)
	case acc.ID == self:
		return nil
	}
	return conflictErr(field, field+" is already registered")
}

// notify hands the activation link to the notifier without waiting for it.
func (s *AuthService) notify(email, link, locale string) {
	if s.notifier == nil {
		return
	}
	url := s.ActivationURL(link)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.SendActivationMail(ctx, email, url, locale); err != nil {
			log.Printf("notifier: activation mail to %s failed: %v", email, err)
		}
	}()
}

// ActivationURL is the link mailed to the account owner.
func (s *AuthService) ActivationURL(link string) string {
	return s.opts.APIURL + "/api/activate/" + link
}

// given drops optional fields that were sent empty.
func given(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
