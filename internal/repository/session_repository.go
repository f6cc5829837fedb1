package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/quiz-auth/internal/model"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

// DefaultSessionPrefix namespaces session keys in Redis.
const DefaultSessionPrefix = "session"

// saveScript installs the new token hash for an account and drops the
// token key of the hash it replaces, in one step. Redis runs scripts
// atomically, so concurrent saves for one account serialize here and
// the last writer wins.
//
// KEYS[1] user key, KEYS[2] new token key
// ARGV[1] new hash, ARGV[2] account id, ARGV[3] token key prefix, ARGV[4] ttl ms
var saveScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev and prev ~= ARGV[1] then
    redis.call('DEL', ARGV[3] .. prev)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[4])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[4])
return 1
`)

// deleteScript removes a token key and, when the token is still the
// account's current one, the account key as well.
//
// KEYS[1] token key
// ARGV[1] user key prefix, ARGV[2] token hash
var deleteScript = redis.NewScript(`
local account = redis.call('GET', KEYS[1])
if not account then
    return 0
end
redis.call('DEL', KEYS[1])
local userKey = ARGV[1] .. account
if redis.call('GET', userKey) == ARGV[2] then
    redis.call('DEL', userKey)
end
return 1
`)

// SessionRepo is the session store. It keeps exactly one refresh token
// per account, keyed by account id, with a secondary index from the
// token hash back to the account. Raw tokens are never stored.
//
// Precondition: all writers go through Save/Delete so that both keys
// change together. The scripts reach keys derived from stored values,
// which Redis Cluster rejects, so the store needs a single-node client.
type SessionRepo struct {
	RDB    *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewSessionRepo(rdb *redis.Client, prefix string, ttl time.Duration) *SessionRepo {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	if ttl <= 0 {
		ttl = utils.DefaultRefreshTTL
	}
	return &SessionRepo{RDB: rdb, Prefix: prefix, TTL: ttl}
}

func (r *SessionRepo) userKeyPrefix() string  { return r.Prefix + ":user:" }
func (r *SessionRepo) tokenKeyPrefix() string { return r.Prefix + ":token:" }

// Save upserts the session for accountID. Saving the same token twice
// is a no-op apart from refreshing the expiry.
func (r *SessionRepo) Save(ctx context.Context, accountID, refreshToken string) error {
	hash := utils.HashRefreshRaw(refreshToken)
	keys := []string{r.userKeyPrefix() + accountID, r.tokenKeyPrefix() + hash}
	err := saveScript.Run(ctx, r.RDB, keys, hash, accountID, r.tokenKeyPrefix(), r.TTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("save session: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// Get looks a session up by the refresh token value.
func (r *SessionRepo) Get(ctx context.Context, refreshToken string) (model.Session, error) {
	accountID, err := r.RDB.Get(ctx, r.tokenKeyPrefix()+utils.HashRefreshRaw(refreshToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("get session: %w: %w", ErrUnavailable, err)
	}
	return model.Session{AccountID: accountID, RefreshToken: refreshToken}, nil
}

// Delete removes the session holding refreshToken and reports how many
// sessions were removed. Unknown tokens are not an error.
func (r *SessionRepo) Delete(ctx context.Context, refreshToken string) (int64, error) {
	hash := utils.HashRefreshRaw(refreshToken)
	n, err := deleteScript.Run(ctx, r.RDB, []string{r.tokenKeyPrefix() + hash}, r.userKeyPrefix(), hash).Int64()
	if err != nil {
		return 0, fmt.Errorf("delete session: %w: %w", ErrUnavailable, err)
	}
	return n, nil
}
