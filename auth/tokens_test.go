package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cash-ledger/auth"
	"github.com/warp/cash-ledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// memoryTokens is a map-backed TokenStore for exercising the manager
// without a database.
type memoryTokens struct {
	tokens map[string]auth.Token
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: make(map[string]auth.Token)}
}

func (m *memoryTokens) SaveToken(_ context.Context, t auth.Token) error {
	m.tokens[t.ID] = t
	return nil
}

func (m *memoryTokens) GetToken(_ context.Context, id string) (*auth.Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memoryTokens) DeleteToken(_ context.Context, id string) error {
	delete(m.tokens, id)
	return nil
}

func newTestManager(store auth.TokenStore, now time.Time) *auth.Manager {
	return &auth.Manager{
		Store: store,
		Now:   func() time.Time { return now },
	}
}

var issuedAt = time.Date(2026, time.May, 12, 10, 0, 0, 0, time.UTC)

// =============================================================================
// ISSUE / RESOLVE TESTS
// =============================================================================

func TestIssueAndResolve(t *testing.T) {
	store := newMemoryTokens()
	mgr := newTestManager(store, issuedAt)

	bearer, err := mgr.Issue(context.Background(), "op-1")
	require.NoError(t, err)
	require.NotEmpty(t, bearer)

	operatorID, err := mgr.Resolve(context.Background(), bearer)
	require.NoError(t, err)
	assert.Equal(t, ledger.OperatorID("op-1"), operatorID)
}

func TestIssue_SecretIsNotStoredInPlaintext(t *testing.T) {
	store := newMemoryTokens()
	mgr := newTestManager(store, issuedAt)

	bearer, err := mgr.Issue(context.Background(), "op-1")
	require.NoError(t, err)

	for _, tok := range store.tokens {
		assert.NotContains(t, bearer, string(tok.SecretHash))
		assert.NotEqual(t, bearer, tok.ID)
	}
}

func TestResolve_MalformedTokens(t *testing.T) {
	mgr := newTestManager(newMemoryTokens(), issuedAt)

	for _, bearer := range []string{"", "nodot", ".secretonly", "idonly.", "unknown.secret"} {
		_, err := mgr.Resolve(context.Background(), bearer)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "bearer %q", bearer)
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	store := newMemoryTokens()
	mgr := newTestManager(store, issuedAt)

	bearer, err := mgr.Issue(context.Background(), "op-1")
	require.NoError(t, err)

	// Same id, tampered secret.
	id := bearer[:len(bearer)-3]
	_, err = mgr.Resolve(context.Background(), id+"bad")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestResolve_Expired_DeletesOnSight(t *testing.T) {
	store := newMemoryTokens()
	mgr := newTestManager(store, issuedAt)

	bearer, err := mgr.Issue(context.Background(), "op-1")
	require.NoError(t, err)

	// Move past the default 12h TTL.
	mgr.Now = func() time.Time { return issuedAt.Add(13 * time.Hour) }

	_, err = mgr.Resolve(context.Background(), bearer)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
	assert.Empty(t, store.tokens, "expired token should be cleaned up")
}

func TestResolve_CustomTTL(t *testing.T) {
	store := newMemoryTokens()
	mgr := newTestManager(store, issuedAt)
	mgr.TTL = time.Minute

	bearer, err := mgr.Issue(context.Background(), "op-1")
	require.NoError(t, err)

	mgr.Now = func() time.Time { return issuedAt.Add(30 * time.Second) }
	_, err = mgr.Resolve(context.Background(), bearer)
	assert.NoError(t, err)

	mgr.Now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = mgr.Resolve(context.Background(), bearer)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

// =============================================================================
// REVOKE TESTS
// =============================================================================

func TestRevoke_EndsSession(t *testing.T) {
	store := newMemoryTokens()
	mgr := newTestManager(store, issuedAt)

	bearer, err := mgr.Issue(context.Background(), "op-1")
	require.NoError(t, err)

	require.NoError(t, mgr.Revoke(context.Background(), bearer))

	_, err = mgr.Resolve(context.Background(), bearer)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRevoke_UnknownOrMalformed_NoError(t *testing.T) {
	mgr := newTestManager(newMemoryTokens(), issuedAt)

	assert.NoError(t, mgr.Revoke(context.Background(), "unknown.secret"))
	assert.NoError(t, mgr.Revoke(context.Background(), "malformed"))
}
