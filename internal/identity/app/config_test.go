package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hightide-labs/identity/pkg/tokenx"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("IDENTITY_TOKEN_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "identity", cfg.Issuer)
	require.Equal(t, tokenx.DefaultAccessTokenTTL, cfg.AccessTokenTTL)
	require.Equal(t, tokenx.DefaultRefreshTokenTTL, cfg.RefreshTokenTTL)
	require.Equal(t, uint64(5), cfg.CaptchaThreshold)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
}

func TestLoadConfig_RequiresTokenKey(t *testing.T) {
	t.Setenv("IDENTITY_TOKEN_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "github", "name": "GitHub", "auth_url": "https://github.com/login/oauth/authorize"},
		{"id": "google", "name": "Google"}
	]`), 0o600))

	cfg := Config{ProvidersFile: path}
	providers, err := cfg.LoadProviders()
	require.NoError(t, err)
	require.Len(t, providers, 2)
	require.Equal(t, "GitHub", providers["github"].Name)
}

func TestLoadProviders_Unset(t *testing.T) {
	providers, err := Config{}.LoadProviders()
	require.NoError(t, err)
	require.Empty(t, providers)
}

func TestLoadProviders_DuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "github"},
		{"id": "github"}
	]`), 0o600))

	_, err := Config{ProvidersFile: path}.LoadProviders()
	require.Error(t, err)
}
