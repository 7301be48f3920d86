// Package directory provides the credential stores the gateway logs users
// in against: an in-memory [StaticStore], a PostgreSQL-backed
// [PostgresStore] and a Redis-backed [RedisStore]. All of them implement
// [auth.CredentialStore] and normalise emails the same way.
package directory

import (
	"context"
	"maps"
	"slices"

	"golang.org/x/crypto/bcrypt"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// Demo account served by DemoStore.
const (
	DemoEmail    = "test@test.com"
	DemoPassword = "testpassword"
)

// StaticStore is an immutable in-memory credential store.
type StaticStore struct {
	records map[string]auth.CredentialRecord
}

var _ auth.CredentialStore = (*StaticStore)(nil)

// NewStaticStore hashes each plaintext password in users with bcrypt at the
// given cost and returns a store over the result. A cost of zero means
// bcrypt.DefaultCost.
func NewStaticStore(users map[string]string, cost int) (*StaticStore, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	records := make(map[string]auth.CredentialRecord, len(users))
	// Sorted so a failure always names the same entry.
	for _, raw := range slices.Sorted(maps.Keys(users)) {
		email := auth.NormalizeEmail(raw)
		if email == "" {
			return nil, sserr.New(sserr.CodeValidationRequired, "directory: static user has an empty email")
		}
		if _, dup := records[email]; dup {
			return nil, sserr.Newf(sserr.CodeValidation, "directory: duplicate static user %q", email)
		}
		if users[raw] == "" {
			return nil, sserr.Newf(sserr.CodeValidationRequired, "directory: static user %q has an empty password", email)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(users[raw]), cost)
		if err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeValidation, "directory: cannot hash password for %q", email)
		}
		records[email] = auth.CredentialRecord{Email: email, PasswordHash: string(hash)}
	}
	return &StaticStore{records: records}, nil
}

// NewStaticStoreFromRecords builds a store from already hashed records.
func NewStaticStoreFromRecords(records ...auth.CredentialRecord) *StaticStore {
	m := make(map[string]auth.CredentialRecord, len(records))
	for _, r := range records {
		r.Email = auth.NormalizeEmail(r.Email)
		m[r.Email] = r
	}
	return &StaticStore{records: m}
}

// DemoStore returns a store holding only the demo account.
func DemoStore() *StaticStore {
	s, err := NewStaticStore(map[string]string{DemoEmail: DemoPassword}, bcrypt.DefaultCost)
	if err != nil {
		panic("directory: build demo store: " + err.Error())
	}
	return s
}

// Lookup implements [auth.CredentialStore].
func (s *StaticStore) Lookup(_ context.Context, email string) (auth.CredentialRecord, bool, error) {
	r, ok := s.records[auth.NormalizeEmail(email)]
	return r, ok, nil
}

// Len reports the number of records.
func (s *StaticStore) Len() int { return len(s.records) }
