package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/mystuff/common/config"
)

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte("backend:\n  host: api.example.com\n"))
	require.NoError(t, err)

	assert.Equal(t, "api.example.com", cfg.Backend.Host)
	assert.Equal(t, "https", cfg.Backend.Protocol)
	assert.Equal(t, 443, cfg.Backend.Port)
	assert.Equal(t, config.DefaultUserAgent, cfg.Backend.UserAgent)
	assert.Equal(t, config.DefaultIdentityProvider, cfg.Auth.IdentityProvider)
	assert.Equal(t, 5, cfg.Auth.MaxRetry)
	assert.Equal(t, 30*time.Second, cfg.Auth.RefreshTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromBytes_Full(t *testing.T) {
	yml := `
backend:
  host: 10.0.0.5
  protocol: HTTP
  port: 8080
  timeout: 15s
auth:
  identity_provider: keycloak
  max_retry: 3
  refresh_timeout: 2s
  coalesce_refresh: true
  token_url: https://idp.example.com/token
  client_id: mystuff
  scopes: [openid, profile]
log:
  level: debug
  pretty: true
`
	cfg, err := config.LoadFromBytes([]byte(yml))
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Backend.Protocol)
	assert.Equal(t, 8080, cfg.Backend.Port)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "keycloak", cfg.Auth.IdentityProvider)
	assert.Equal(t, 3, cfg.Auth.MaxRetry)
	assert.Equal(t, 2*time.Second, cfg.Auth.RefreshTimeout)
	assert.True(t, cfg.Auth.CoalesceRefresh)
	assert.Equal(t, []string{"openid", "profile"}, cfg.Auth.Scopes)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadFromBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want error
	}{
		{"missing host", "backend:\n  port: 80\n", config.ErrMissingHost},
		{"bad protocol", "backend:\n  host: h\n  protocol: ftp\n", config.ErrInvalidProtocol},
		{"bad port", "backend:\n  host: h\n  port: 70000\n", config.ErrInvalidPort},
		{"negative retry", "backend:\n  host: h\nauth:\n  max_retry: -1\n", config.ErrInvalidRetry},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadFromBytes([]byte(tc.yml))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestExpandEnvWithDefaults(t *testing.T) {
	t.Setenv("MYSTUFF_TEST_SET", "value")

	assert.Equal(t, "value", config.ExpandEnvWithDefaults("${MYSTUFF_TEST_SET}"))
	assert.Equal(t, "value", config.ExpandEnvWithDefaults("${MYSTUFF_TEST_SET:-other}"))
	assert.Equal(t, "fallback", config.ExpandEnvWithDefaults("${MYSTUFF_TEST_UNSET:-fallback}"))
	assert.Equal(t, "", config.ExpandEnvWithDefaults("${MYSTUFF_TEST_UNSET}"))
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	cfgPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(envPath, []byte("MYSTUFF_TEST_HOST=from-env-file\nMYSTUFF_REFRESH_TOKEN=rt-123\n"), 0600))
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  host: ${MYSTUFF_TEST_HOST}\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv("MYSTUFF_TEST_HOST")
		os.Unsetenv("MYSTUFF_REFRESH_TOKEN")
	})

	cfg, err := config.Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", cfg.Backend.Host)
	assert.Equal(t, "rt-123", cfg.Auth.RefreshToken)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  host: h\n"), 0600))

	_, err := config.Load(cfgPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}
