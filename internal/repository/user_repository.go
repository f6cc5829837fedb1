package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/quiz-auth/internal/model"
)

// mysqlDuplicateEntry is the server error number for a UNIQUE violation.
const mysqlDuplicateEntry = 1062

const (
	publicColumns = "id,username,email,is_activated,activation_date,registration_date"
	fullColumns   = "id,username,email,password_hash,is_activated,activation_link,activation_date,registration_date"
)

// UserRepo is the credential store. It persists accounts in the
// 'accounts' table and holds no business rules of its own.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// FindByEmail fetches the public fields of an account by email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.findPublic(ctx, "email", email)
}

// FindByUsername fetches the public fields of an account by username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.findPublic(ctx, "username", username)
}

// FindByID fetches the public fields of an account by id.
func (r *UserRepo) FindByID(ctx context.Context, id string) (model.Account, error) {
	return r.findPublic(ctx, "id", id)
}

// FindByIDFull fetches an account by id including its password hash.
func (r *UserRepo) FindByIDFull(ctx context.Context, id string) (model.Account, error) {
	return r.findFull(ctx, "id", id)
}

// FindByEmailFull fetches an account by email including its password hash.
func (r *UserRepo) FindByEmailFull(ctx context.Context, email string) (model.Account, error) {
	return r.findFull(ctx, "email", email)
}

// FindByActivationLink fetches the account that owns an activation link.
func (r *UserRepo) FindByActivationLink(ctx context.Context, link string) (model.Account, error) {
	return r.findFull(ctx, "activation_link", link)
}

// Create inserts a new account. A duplicate username or email yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, a model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts ("+fullColumns+") VALUES (?,?,?,?,?,?,?,?)",
		a.ID, a.Username, a.Email, a.PasswordHash, a.IsActivated, a.ActivationLink,
		nullTime(a.ActivationDate), a.RegistrationDate.UTC())
	if err != nil {
		return classify("insert account", err)
	}
	return nil
}

// Update applies the non-nil fields of u to the account.
func (r *UserRepo) Update(ctx context.Context, id string, u model.AccountUpdate) error {
	if u.Empty() {
		return nil
	}

	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if u.Username != nil {
		sets = append(sets, "username=?")
		args = append(args, *u.Username)
	}
	if u.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, *u.Email)
	}
	if u.PasswordHash != nil {
		sets = append(sets, "password_hash=?")
		args = append(args, *u.PasswordHash)
	}
	args = append(args, id)

	_, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
	if err != nil {
		return classify("update account", err)
	}
	return nil
}

// MarkActivated flags the account as activated and stamps the time.
// Accounts that are already activated keep their original timestamp.
func (r *UserRepo) MarkActivated(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET is_activated=1, activation_date=? WHERE id=? AND is_activated=0",
		at.UTC(), id)
	if err != nil {
		return classify("activate account", err)
	}
	return nil
}

// SetActivationLink replaces the pending activation link of a
// not-yet-activated account. ErrNotFound means the account is gone or
// was activated in the meantime.
func (r *UserRepo) SetActivationLink(ctx context.Context, id, link string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET activation_link=? WHERE id=? AND is_activated=0",
		link, id)
	if err != nil {
		return classify("set activation link", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("set activation link", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an account. A missing account is not an error.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM accounts WHERE id=?", id); err != nil {
		return classify("delete account", err)
	}
	return nil
}

func (r *UserRepo) findPublic(ctx context.Context, column, value string) (model.Account, error) {
	var (
		a         model.Account
		activated sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+publicColumns+" FROM accounts WHERE "+column+"=? LIMIT 1", value).
		Scan(&a.ID, &a.Username, &a.Email, &a.IsActivated, &activated, &a.RegistrationDate)
	if err != nil {
		return model.Account{}, classify("query account by "+column, err)
	}
	a.ActivationDate = timePtr(activated)
	return a, nil
}

func (r *UserRepo) findFull(ctx context.Context, column, value string) (model.Account, error) {
	var (
		a         model.Account
		link      sql.NullString
		activated sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+fullColumns+" FROM accounts WHERE "+column+"=? LIMIT 1", value).
		Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActivated, &link, &activated, &a.RegistrationDate)
	if err != nil {
		return model.Account{}, classify("query account by "+column, err)
	}
	a.ActivationLink = link.String
	a.ActivationDate = timePtr(activated)
	return a, nil
}

// classify maps driver errors onto the repository sentinels.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
