package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

// SQLSessionRepo is the MySQL session store, for deployments without
// Redis. account_id is the primary key of 'sessions', so the upsert in
// Save is the per-account serialization point; token_hash is a unique
// secondary key for lookups. Only hashes are stored.
type SQLSessionRepo struct {
	DB  *sql.DB
	TTL time.Duration
	Now func() time.Time
}

func NewSQLSessionRepo(db *sql.DB, ttl time.Duration) *SQLSessionRepo {
	if ttl <= 0 {
		ttl = utils.DefaultRefreshTTL
	}
	return &SQLSessionRepo{DB: db, TTL: ttl, Now: time.Now}
}

// Save replaces the account's session row in a single statement.
func (r *SQLSessionRepo) Save(ctx context.Context, accountID, refreshToken string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (account_id, token_hash, expires_at) VALUES (?,?,?) "+
			"ON DUPLICATE KEY UPDATE token_hash=VALUES(token_hash), expires_at=VALUES(expires_at)",
		accountID, utils.HashRefreshRaw(refreshToken), r.Now().UTC().Add(r.TTL))
	if err != nil {
		return classify("save session", err)
	}
	return nil
}

// Get returns the session holding refreshToken. Expired rows count as absent.
func (r *SQLSessionRepo) Get(ctx context.Context, refreshToken string) (model.Session, error) {
	var (
		accountID string
		expiresAt time.Time
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT account_id, expires_at FROM sessions WHERE token_hash=? LIMIT 1",
		utils.HashRefreshRaw(refreshToken)).Scan(&accountID, &expiresAt)
	if err != nil {
		return model.Session{}, classify("get session", err)
	}
	if !r.Now().UTC().Before(expiresAt) {
		return model.Session{}, ErrNotFound
	}
	return model.Session{AccountID: accountID, RefreshToken: refreshToken}, nil
}

// Delete removes the session holding refreshToken, if any.
func (r *SQLSessionRepo) Delete(ctx context.Context, refreshToken string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE token_hash=?", utils.HashRefreshRaw(refreshToken))
	if err != nil {
		return 0, classify("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete session", err)
	}
	return n, nil
}

// PurgeExpired deletes sessions whose refresh token has expired.
func (r *SQLSessionRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", r.Now().UTC())
	if err != nil {
		return 0, classify("purge sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("purge sessions", err)
	}
	return n, nil
}
