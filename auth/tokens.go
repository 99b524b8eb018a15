/*
tokens.go - Session-token issuance and resolution

PURPOSE:
  Maps bearer tokens to operators. A token is "<id>.<secret>": the id is
  the lookup key and the secret is stored only as a bcrypt hash, so a leaked
  token table cannot be replayed. The ledger engine never sees a token; the
  API middleware resolves it to an OperatorID first.

SEE ALSO:
  - api/server.go: the middleware that calls Resolve on every request
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/cash-ledger/ledger"
)

var (
	// ErrInvalidToken covers malformed, unknown and secret-mismatch tokens.
	// Deliberately one error: callers must not learn which part failed.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrExpiredToken is returned for a well-formed token past its TTL.
	ErrExpiredToken = errors.New("session token expired")
)

// DefaultTTL applies when a Manager is constructed without one.
const DefaultTTL = 12 * time.Hour

// Token is the stored session record. SecretHash is the bcrypt hash of the
// secret half of the bearer token; the plaintext secret exists only in the
// Issue return value.
type Token struct {
	ID         string
	SecretHash []byte
	OperatorID ledger.OperatorID
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// TokenStore persists session records. A nil token with a nil error means
// "unknown id".
type TokenStore interface {
	SaveToken(ctx context.Context, t Token) error
	GetToken(ctx context.Context, id string) (*Token, error)
	DeleteToken(ctx context.Context, id string) error
}

// Manager issues and resolves session tokens.
type Manager struct {
	Store TokenStore

	// TTL for issued tokens; zero means DefaultTTL.
	TTL time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultTTL
}

// Issue creates a session for the operator and returns the bearer token.
// The plaintext secret is not recoverable afterwards.
func (m *Manager) Issue(ctx context.Context, operatorID ledger.OperatorID) (string, error) {
	id := uuid.NewString()
	secret := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	now := m.now()
	t := Token{
		ID:         id,
		SecretHash: hash,
		OperatorID: operatorID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.ttl()),
	}
	if err := m.Store.SaveToken(ctx, t); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return id + "." + secret, nil
}

// Resolve maps a bearer token to its operator. Expired tokens are deleted
// on sight.
func (m *Manager) Resolve(ctx context.Context, bearer string) (ledger.OperatorID, error) {
	id, secret, ok := splitToken(bearer)
	if !ok {
		return "", ErrInvalidToken
	}

	t, err := m.Store.GetToken(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}
	if t == nil {
		return "", ErrInvalidToken
	}
	if m.now().After(t.ExpiresAt) {
		// Best effort cleanup; the expiry verdict stands either way.
		_ = m.Store.DeleteToken(ctx, id)
		return "", ErrExpiredToken
	}
	if bcrypt.CompareHashAndPassword(t.SecretHash, []byte(secret)) != nil {
		return "", ErrInvalidToken
	}
	return t.OperatorID, nil
}

// Revoke ends the session. Revoking an unknown or malformed token is a
// no-op, not an error.
func (m *Manager) Revoke(ctx context.Context, bearer string) error {
	id, _, ok := splitToken(bearer)
	if !ok {
		return nil
	}
	return m.Store.DeleteToken(ctx, id)
}

func splitToken(bearer string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(bearer, ".")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}
