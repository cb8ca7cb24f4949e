// Package credentials resolves ServerSpec environment placeholders
// that reference a stored OAuth credential into a live bearer token
// before the supervisor spawns a child, and persists refreshed tokens
// to a platform keychain backend.
//
// Grounded on mcp-scooter's internal/domain/integration package: the
// OAuthHandler (oauth.go) PKCE flow and CredentialManager/Keychain
// (credentials.go, keychain.go) secret-storage split, generalized from
// "fetch a credential for a discovered tool's declared auth" into
// "resolve a ServerSpec env placeholder for a daemon-managed child".
package credentials

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// placeholderPrefix marks a ServerSpec.Env value as an OAuth token
// reference rather than a literal value, e.g. "oauth:github".
const placeholderPrefix = "oauth:"

// Store persists opaque secrets (refresh tokens) by key. Implemented
// per-platform: keychain_windows.go backs it with wincred, and
// keychain_unix.go backs it with a mode-0600 file, since the daemon
// has no GUI keychain prompt to drive on Linux/macOS.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// ProviderConfig is one named OAuth provider's client configuration,
// supplied by the loaded configuration.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// TokenStore resolves "oauth:<provider>" placeholders into live
// bearer tokens by exchanging the stored refresh token via oauth2 on
// every resolution; access tokens are not cached between resolutions.
type TokenStore struct {
	store     Store
	providers map[string]ProviderConfig
}

// NewTokenStore creates a resolver backed by store, aware of the given
// providers (keyed by provider name, matching the placeholder suffix).
func NewTokenStore(store Store, providers []ProviderConfig) *TokenStore {
	byName := make(map[string]ProviderConfig, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}
	return &TokenStore{store: store, providers: byName}
}

// ResolveEnv returns a copy of env with every "oauth:<provider>" value
// replaced by a live access token. Non-placeholder values pass
// through unchanged.
func (ts *TokenStore) ResolveEnv(ctx context.Context, env map[string]string) (map[string]string, error) {
	if len(env) == 0 {
		return env, nil
	}

	resolved := make(map[string]string, len(env))
	for k, v := range env {
		if !strings.HasPrefix(v, placeholderPrefix) {
			resolved[k] = v
			continue
		}
		provider := strings.TrimPrefix(v, placeholderPrefix)
		token, err := ts.resolveProvider(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("resolving oauth credential for %q: %w", k, err)
		}
		resolved[k] = token
	}
	return resolved, nil
}

func (ts *TokenStore) resolveProvider(ctx context.Context, provider string) (string, error) {
	cfg, ok := ts.providers[provider]
	if !ok {
		return "", fmt.Errorf("no oauth provider configured named %q", provider)
	}

	refreshToken, found, err := ts.store.Get(refreshKey(provider))
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no stored credential for provider %q; run the login flow first", provider)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
		Scopes:       cfg.Scopes,
	}

	src := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("refreshing token for %q: %w", provider, err)
	}

	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if err := ts.store.Set(refreshKey(provider), token.RefreshToken); err != nil {
			return "", fmt.Errorf("persisting refreshed token for %q: %w", provider, err)
		}
	}

	return token.AccessToken, nil
}

// StoreRefreshToken saves a provider's refresh token, the step a login
// flow performs once after the user completes the OAuth dance.
func (ts *TokenStore) StoreRefreshToken(provider, refreshToken string) error {
	return ts.store.Set(refreshKey(provider), refreshToken)
}

func refreshKey(provider string) string {
	return "mcpgate:oauth:" + provider
}
