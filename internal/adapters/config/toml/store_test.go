package toml

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()

	cfg := viper.New()
	cfg.Set(KeyConfigPath, path)

	store, err := NewStore(cfg)
	require.NoError(t, err)
	return store
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "config.toml"))

	config, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, config.APIURL)
	assert.Equal(t, DefaultLoginListen, config.LoginListen)
	assert.Equal(t, DefaultRefreshInterval, config.RefreshInterval)
	assert.True(t, strings.HasSuffix(config.TokenFile, filepath.Join(".planqk", "token.json")))
	assert.Empty(t, config.LoginAssetsDir)
}

func TestSetPersistsAndReloads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	store := newTestStore(t, path)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyAPIURL, "https://staging.example.com"))
	require.NoError(t, store.Set(ctx, KeyRefreshInterval, "10m"))
	require.NoError(t, store.Set(ctx, KeyLoginListen, "127.0.0.1:8765"))

	config, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", config.APIURL)
	assert.Equal(t, 10*time.Minute, config.RefreshInterval)

	reloaded, err := newTestStore(t, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", reloaded.APIURL)
	assert.Equal(t, 10*time.Minute, reloaded.RefreshInterval)
	assert.Equal(t, "127.0.0.1:8765", reloaded.LoginListen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "[api]")
	assert.NotContains(t, string(data), "assets_dir")
}

func TestSetKeepsUnrelatedKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n\n[auth]\ntoken_file = '/tmp/pqk.json'\n"), 0o600))

	store := newTestStore(t, path)
	require.NoError(t, store.Set(context.Background(), KeyLoginAssetsDir, "/srv/login"))

	reloaded, err := newTestStore(t, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pqk.json", reloaded.TokenFile)
	assert.Equal(t, "/srv/login", reloaded.LoginAssetsDir)
}

func TestSetRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	store := newTestStore(t, path)
	ctx := context.Background()

	cases := []struct {
		key   string
		value string
		want  error
	}{
		{"nope.key", "x", domain.ErrInvalidArgument},
		{KeyAPIURL, "ftp://example.com", domain.ErrConfiguration},
		{KeyAPIURL, "not a url", domain.ErrConfiguration},
		{KeyRefreshInterval, "soon", domain.ErrInvalidArgument},
		{KeyRefreshInterval, "-5m", domain.ErrInvalidArgument},
		{KeyTokenFile, "  ", domain.ErrInvalidArgument},
	}
	for _, tc := range cases {
		err := store.Set(ctx, tc.key, tc.value)
		assert.ErrorIs(t, err, tc.want, "%s=%q", tc.key, tc.value)
	}

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewStoreRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 9\n"), 0o600))

	store := newTestStore(t, path)
	err := store.Set(context.Background(), KeyAPIURL, "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config schema version 9")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n\n[api]\nurl = 'https://file.example.com'\n"), 0o600))
	t.Setenv("PLANQK_API_URL", "https://env.example.com")

	config, err := newTestStore(t, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", config.APIURL)
}

func TestSetHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "config.toml"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Set(ctx, KeyAPIURL, "https://example.com"), context.Canceled)
}
