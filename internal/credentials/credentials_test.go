package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memStore) Set(key, value string) error { m.data[key] = value; return nil }
func (m *memStore) Delete(key string) error     { delete(m.data, key); return nil }

func TestResolveEnvPassesThroughLiterals(t *testing.T) {
	ts := NewTokenStore(newMemStore(), nil)
	resolved, err := ts.ResolveEnv(context.Background(), map[string]string{"API_KEY": "literal-value"})
	require.NoError(t, err)
	assert.Equal(t, "literal-value", resolved["API_KEY"])
}

func TestResolveEnvMissingProviderErrors(t *testing.T) {
	ts := NewTokenStore(newMemStore(), nil)
	_, err := ts.ResolveEnv(context.Background(), map[string]string{"TOKEN": "oauth:github"})
	assert.Error(t, err)
}

func TestResolveEnvMissingStoredTokenErrors(t *testing.T) {
	ts := NewTokenStore(newMemStore(), []ProviderConfig{{Name: "github", ClientID: "id", ClientSecret: "secret", AuthURL: "https://example.com/auth", TokenURL: "https://example.com/token"}})
	_, err := ts.ResolveEnv(context.Background(), map[string]string{"TOKEN": "oauth:github"})
	assert.Error(t, err)
}

func TestStoreRefreshTokenPersists(t *testing.T) {
	store := newMemStore()
	ts := NewTokenStore(store, nil)
	require.NoError(t, ts.StoreRefreshToken("github", "refresh-abc"))

	v, ok, err := store.Get(refreshKey("github"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "refresh-abc", v)
}
