package directory

import (
	"context"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// DefaultCredentialsKey is the Redis hash holding email -> bcrypt hash.
const DefaultCredentialsKey = "authgate:credentials"

// HashCommander is the part of [redis.Client] the store needs.
type HashCommander interface {
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
}

var _ HashCommander = (*redis.Client)(nil)

// RedisStore keeps credentials in a single Redis hash.
type RedisStore struct {
	client HashCommander
	key    string
}

var _ auth.CredentialStore = (*RedisStore)(nil)

// NewRedisStore returns a store over the hash at key. An empty key means
// DefaultCredentialsKey.
func NewRedisStore(client HashCommander, key string) *RedisStore {
	if key == "" {
		key = DefaultCredentialsKey
	}
	return &RedisStore{client: client, key: key}
}

// Lookup implements [auth.CredentialStore].
func (s *RedisStore) Lookup(ctx context.Context, email string) (auth.CredentialRecord, bool, error) {
	email = auth.NormalizeEmail(email)
	hash, found, err := s.client.HGet(ctx, s.key, email)
	if err != nil || !found {
		return auth.CredentialRecord{}, false, err
	}
	return auth.CredentialRecord{Email: email, PasswordHash: hash}, true, nil
}

// Put sets the bcrypt hash for email.
func (s *RedisStore) Put(ctx context.Context, email, passwordHash string) error {
	email = auth.NormalizeEmail(email)
	if email == "" || passwordHash == "" {
		return sserr.New(sserr.CodeValidationRequired, "directory: email and password hash are required")
	}
	_, err := s.client.HSet(ctx, s.key, email, passwordHash)
	return err
}

// Delete removes email and reports whether it existed.
func (s *RedisStore) Delete(ctx context.Context, email string) (bool, error) {
	n, err := s.client.HDel(ctx, s.key, auth.NormalizeEmail(email))
	return n > 0, err
}
