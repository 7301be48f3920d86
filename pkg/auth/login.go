package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// CredentialRecord is what a CredentialStore knows about one identity.
// PasswordHash is a bcrypt hash.
type CredentialRecord struct {
	Email        string
	PasswordHash string
}

// CredentialStore looks up credential records by email. Lookup returns
// found == false, with a nil error, for an unknown email; a non-nil error
// means the store itself failed.
type CredentialStore interface {
	Lookup(ctx context.Context, email string) (record CredentialRecord, found bool, err error)
}

// dummyHash is compared against when the email is unknown so that unknown
// and known emails cost the same bcrypt work.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("authgate-unknown-identity"), bcrypt.DefaultCost)
	if err != nil {
		panic("auth: generate dummy hash: " + err.Error())
	}
	return h
})

// Authenticator runs the login flow: it checks credentials against a
// CredentialStore and issues a token on success.
type Authenticator struct {
	store  CredentialStore
	issuer *TokenIssuer
	logger *slog.Logger
	tracer trace.Tracer
}

// NewAuthenticator returns an Authenticator backed by store and issuer.
func NewAuthenticator(store CredentialStore, issuer *TokenIssuer, opts ...Option) (*Authenticator, error) {
	if store == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: credential store is required")
	}
	if issuer == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: token issuer is required")
	}
	o := newOptions(opts)
	return &Authenticator{
		store:  store,
		issuer: issuer,
		logger: o.logger,
		tracer: o.tracer,
	}, nil
}

// MaxPasswordBytes is the longest password bcrypt compares in full. Longer
// passwords are rejected instead of being silently truncated.
const MaxPasswordBytes = 72

// Login verifies creds and returns a signed token.
//
// Missing fields and passwords longer than MaxPasswordBytes yield
// CodeValidationRequired. An unknown email and a wrong
// password both yield CodeAuthenticationCredentials with the same message.
// Store failures are returned wrapped and count as server faults.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (string, error) {
	ctx, span := startSpan(ctx, a.tracer, "auth.Login")
	defer span.End()

	token, err := a.login(ctx, creds)
	if err != nil {
		finishSpan(span, err)
		if sserr.IsServerError(err) {
			a.logger.ErrorContext(ctx, "auth: login failed", slog.Any("error", err))
		} else {
			a.logger.InfoContext(ctx, "auth: login rejected",
				slog.Any("credentials", creds),
				slog.String("code", sserr.GetCode(err).String()),
			)
		}
		return "", err
	}
	return token, nil
}

func (a *Authenticator) login(ctx context.Context, creds Credentials) (string, error) {
	email := NormalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return "", sserr.New(sserr.CodeValidationRequired, MsgCredentialsMissing)
	}
	if len(creds.Password) > MaxPasswordBytes {
		return "", errPasswordTooLong()
	}

	record, found, err := a.store.Lookup(ctx, email)
	if err != nil {
		if _, ok := sserr.AsError(err); ok {
			return "", err
		}
		return "", sserr.Wrap(err, sserr.CodeInternalDatabase, MsgServerError)
	}

	hash := []byte(record.PasswordHash)
	if !found {
		hash = dummyHash()
	}

	err = bcrypt.CompareHashAndPassword(hash, []byte(creds.Password))
	switch {
	case !found, errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return "", errCredentialMismatch()
	case err != nil:
		return "", sserr.Wrap(err, sserr.CodeInternal, MsgServerError).WithDetail("email", email)
	}

	return a.issuer.Issue(ctx, IdentityClaims{Email: record.Email})
}

// HashPassword returns the bcrypt hash stores expect in
// CredentialRecord.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "auth: password is required")
	}
	if len(password) > MaxPasswordBytes {
		return "", errPasswordTooLong()
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeValidation, "auth: password cannot be hashed")
	}
	return string(h), nil
}
