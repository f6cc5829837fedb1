package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/repository"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

// Activate consumes an activation link. The bool is false when no
// account owns the link. Activating twice is a successful no-op and
// keeps the first activation date.
func (s *AuthService) Activate(ctx context.Context, link string) (model.PublicUser, bool, error) {
	if link == "" {
		return model.PublicUser{}, false, nil
	}

	acc, err := s.accounts.FindByActivationLink(ctx, link)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, false, nil
		}
		return model.PublicUser{}, false, storeErr("find account by activation link", err)
	}
	if acc.IsActivated {
		return acc.Public(), true, nil
	}

	at := s.now().UTC().Truncate(time.Second)
	if err := s.accounts.MarkActivated(ctx, acc.ID, at); err != nil {
		return model.PublicUser{}, false, storeErr("activate account", err)
	}
	acc.IsActivated = true
	acc.ActivationDate = &at
	return acc.Public(), true, nil
}

// Reissue replaces the pending activation link of accountID and mails
// the new one. Activated accounts are left alone.
func (s *AuthService) Reissue(ctx context.Context, accountID, locale string) error {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return unauthenticated("account no longer exists", err)
		}
		return storeErr("find account", err)
	}
	if acc.IsActivated {
		return nil
	}

	link := utils.NewActivationLink()
	if err := s.accounts.SetActivationLink(ctx, acc.ID, link); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// activated in the meantime
			return nil
		}
		return storeErr("set activation link", err)
	}

	s.notify(acc.Email, link, locale)
	return nil
}

// ResendActivation reissues the activation link of the account signed
// in with refreshToken.
func (s *AuthService) ResendActivation(ctx context.Context, refreshToken, locale string) error {
	session, err := s.session(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.Reissue(ctx, session.AccountID, locale)
}
