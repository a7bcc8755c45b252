package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/store"
)

func TestResolvePrefersUserKey(t *testing.T) {
	driver := newFakeDriver()
	prof := testProfile()
	st := store.New(driver, prof)

	cipher, err := store.EncryptAPIKey("user-key", prof.Secret)
	require.NoError(t, err)
	_, err = st.UpsertUserCredential(context.Background(), &store.UserCredential{
		UserID:    1,
		Provider:  "openrouter",
		KeyCipher: cipher,
	})
	require.NoError(t, err)

	resolver := NewCredentialResolver(st, prof)
	key, err := resolver.Resolve(context.Background(), 1, "openrouter")
	require.NoError(t, err)
	assert.Equal(t, "user-key", key)
}

func TestResolveFallsBackToInstanceKey(t *testing.T) {
	driver := newFakeDriver()
	prof := testProfile()
	st := store.New(driver, prof)

	resolver := NewCredentialResolver(st, prof)
	key, err := resolver.Resolve(context.Background(), 1, "openrouter")
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", key)
}

func TestResolveUndecryptableKeyFallsThrough(t *testing.T) {
	driver := newFakeDriver()
	prof := testProfile()
	st := store.New(driver, prof)

	_, err := st.UpsertUserCredential(context.Background(), &store.UserCredential{
		UserID:    1,
		Provider:  "openrouter",
		KeyCipher: "not-a-valid-cipher",
	})
	require.NoError(t, err)

	resolver := NewCredentialResolver(st, prof)
	key, err := resolver.Resolve(context.Background(), 1, "openrouter")
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", key)
}

func TestResolveNotConfigured(t *testing.T) {
	driver := newFakeDriver()
	prof := testProfile()
	st := store.New(driver, prof)

	resolver := NewCredentialResolver(st, prof)
	_, err := resolver.Resolve(context.Background(), 1, "unknown-provider")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
