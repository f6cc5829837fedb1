package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/repository"
)

// memAccounts is an in-memory CredentialStore.
type memAccounts struct {
	mu   sync.Mutex
	byID map[string]model.Account
	err  error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]model.Account{}}
}

func (m *memAccounts) find(match func(model.Account) bool, full bool) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Account{}, m.err
	}
	for _, a := range m.byID {
		if match(a) {
			if !full {
				a.PasswordHash = ""
				a.ActivationLink = ""
			}
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (model.Account, error) {
	return m.find(func(a model.Account) bool { return a.Email == email }, false)
}

func (m *memAccounts) FindByUsername(_ context.Context, username string) (model.Account, error) {
	return m.find(func(a model.Account) bool { return a.Username == username }, false)
}

func (m *memAccounts) FindByID(_ context.Context, id string) (model.Account, error) {
	return m.find(func(a model.Account) bool { return a.ID == id }, false)
}

func (m *memAccounts) FindByIDFull(_ context.Context, id string) (model.Account, error) {
	return m.find(func(a model.Account) bool { return a.ID == id }, true)
}

func (m *memAccounts) FindByEmailFull(_ context.Context, email string) (model.Account, error) {
	return m.find(func(a model.Account) bool { return a.Email == email }, true)
}

func (m *memAccounts) FindByActivationLink(_ context.Context, link string) (model.Account, error) {
	return m.find(func(a model.Account) bool { return a.ActivationLink == link }, true)
}

func (m *memAccounts) Create(_ context.Context, a model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, o := range m.byID {
		if o.Email == a.Email || o.Username == a.Username {
			return fmt.Errorf("insert account: %w", repository.ErrConflict)
		}
	}
	m.byID[a.ID] = a
	return nil
}

func (m *memAccounts) Update(_ context.Context, id string, u model.AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	a := m.byID[id]
	if u.Username != nil {
		a.Username = *u.Username
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	m.byID[id] = a
	return nil
}

func (m *memAccounts) MarkActivated(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID[id]
	if !a.IsActivated {
		a.IsActivated = true
		a.ActivationDate = &at
		m.byID[id] = a
	}
	return nil
}

func (m *memAccounts) SetActivationLink(_ context.Context, id, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.IsActivated {
		return repository.ErrNotFound
	}
	a.ActivationLink = link
	m.byID[id] = a
	return nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.byID, id)
	return nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memAccounts) get(id string) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// memSessions is an in-memory SessionStore with one token per account.
type memSessions struct {
	mu        sync.Mutex
	byAccount map[string]string
	byToken   map[string]string
	err       error
}

func newMemSessions() *memSessions {
	return &memSessions{byAccount: map[string]string{}, byToken: map[string]string{}}
}

func (m *memSessions) Save(_ context.Context, accountID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if prev, ok := m.byAccount[accountID]; ok {
		delete(m.byToken, prev)
	}
	m.byAccount[accountID] = token
	m.byToken[token] = accountID
	return nil
}

func (m *memSessions) Get(_ context.Context, token string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Session{}, m.err
	}
	id, ok := m.byToken[token]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return model.Session{AccountID: id, RefreshToken: token}, nil
}

func (m *memSessions) Delete(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	id, ok := m.byToken[token]
	if !ok {
		return 0, nil
	}
	delete(m.byToken, token)
	if m.byAccount[id] == token {
		delete(m.byAccount, id)
	}
	return 1, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byAccount)
}

type sentMail struct {
	email, url, locale string
}

// recordingNotifier remembers every activation mail it was asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) SendActivationMail(_ context.Context, email, url, locale string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{email: email, url: url, locale: locale})
	return n.err
}

func (n *recordingNotifier) mails() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}
