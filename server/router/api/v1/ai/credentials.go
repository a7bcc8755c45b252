package ai

import (
	"context"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/store"
)

// ErrNotConfigured is returned when neither the user nor the instance
// has a usable API key for a provider.
var ErrNotConfigured = errors.New("no API key configured for provider")

// CredentialResolver picks the API key to use for a provider: the
// user's own stored key when present, otherwise the instance fallback
// key from the environment.
type CredentialResolver struct {
	store   *store.Store
	profile *profile.Profile
}

// NewCredentialResolver creates a resolver.
func NewCredentialResolver(st *store.Store, prof *profile.Profile) *CredentialResolver {
	return &CredentialResolver{store: st, profile: prof}
}

// Resolve returns the plaintext API key for a provider. User keys are
// stored encrypted and are decrypted with the instance secret; a key
// that fails to decrypt falls through to the instance fallback.
func (r *CredentialResolver) Resolve(ctx context.Context, userID int32, provider string) (string, error) {
	credentials, err := r.store.ListUserCredentials(ctx, &store.FindUserCredential{
		UserID:   &userID,
		Provider: &provider,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to list user credentials")
	}
	if len(credentials) > 0 {
		key, err := store.DecryptAPIKey(credentials[0].KeyCipher, r.profile.Secret)
		if err == nil && key != "" {
			return key, nil
		}
	}

	if key, ok := r.profile.FallbackKeys[provider]; ok && key != "" {
		return key, nil
	}
	return "", errors.Wrapf(ErrNotConfigured, "provider %s", provider)
}
