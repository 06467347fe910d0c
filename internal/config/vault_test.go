package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"resumereview/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLogger() *errors.Logger {
	logger, _ := errors.New("debug")
	return logger
}

type fakeSecrets map[string]*VaultSecret

func (f fakeSecrets) GetSecretV2(path string) (*VaultSecret, error) {
	s, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return s, nil
}

func TestParseVersionValue(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		expected    int64
		expectError bool
	}{
		{name: "int64 value", input: int64(42), expected: 42},
		{name: "float64 value", input: float64(42.0), expected: 42},
		{name: "string value", input: "42", expected: 42},
		{name: "invalid string value", input: "not-a-number", expectError: true},
		{name: "unsupported type", input: []string{"42"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseVersionValue(tt.input, "secret/data/test")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseKVv2(t *testing.T) {
	t.Run("valid envelope", func(t *testing.T) {
		secret, err := parseKVv2(map[string]any{
			"data":     map[string]any{"token": "abc"},
			"metadata": map[string]any{"version": "3"},
		}, "secret/data/backend")
		require.NoError(t, err)
		assert.Equal(t, int64(3), secret.Version)
		assert.Equal(t, "abc", secret.Data["token"])
	})

	t.Run("missing data", func(t *testing.T) {
		_, err := parseKVv2(map[string]any{"metadata": map[string]any{"version": 1}}, "p")
		assert.ErrorContains(t, err, "missing 'data' field")
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := parseKVv2(map[string]any{"data": map[string]any{}}, "p")
		assert.ErrorContains(t, err, "missing 'metadata' field")
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := parseKVv2(map[string]any{"data": map[string]any{}, "metadata": map[string]any{}}, "p")
		assert.ErrorContains(t, err, "missing 'version' field")
	})
}

func TestApplySecrets(t *testing.T) {
	src := fakeSecrets{
		"secret/data/keys":    {Data: map[string]any{"keys": "k1, k2 ,,k3"}, Version: 1},
		"secret/data/backend": {Data: map[string]any{"token": "backend-token"}, Version: 7},
		"secret/data/tls":     {Data: map[string]any{"cert": "CERT", "key": "KEY"}, Version: 2},
	}

	cfg := &Config{}
	cfg.Vault.Secrets = VaultSecrets{
		APIKeys:      "secret/data/keys",
		BackendToken: "secret/data/backend",
		TLSCerts:     "secret/data/tls",
	}

	require.NoError(t, applySecrets(src, cfg, newMockLogger()))
	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.Server.APIKeys)
	assert.Equal(t, "backend-token", cfg.Backend.APIToken)
	assert.Equal(t, "CERT", cfg.Server.TLS.CertContent)
	assert.Equal(t, "KEY", cfg.Server.TLS.KeyContent)
	assert.Empty(t, cfg.Server.TLS.CAContent)
}

func TestApplySecrets_Errors(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		cfg := &Config{}
		cfg.Vault.Secrets.BackendToken = "secret/data/absent"
		err := applySecrets(fakeSecrets{}, cfg, newMockLogger())
		assert.ErrorContains(t, err, "backend token")
	})

	t.Run("wrong field type", func(t *testing.T) {
		cfg := &Config{}
		cfg.Vault.Secrets.APIKeys = "secret/data/keys"
		src := fakeSecrets{"secret/data/keys": {Data: map[string]any{"keys": 42}}}
		err := applySecrets(src, cfg, newMockLogger())
		assert.ErrorContains(t, err, "is not a string")
	})

	t.Run("nothing configured", func(t *testing.T) {
		cfg := &Config{}
		assert.NoError(t, applySecrets(fakeSecrets{}, cfg, newMockLogger()))
	})
}

func TestLoadTLSCertificateContent(t *testing.T) {
	cfg := &Config{}
	n := loadTLSCertificateContent(cfg, &VaultSecret{Data: map[string]any{
		"cert": "C",
		"key":  "K",
		"ca":   "A",
	}})
	assert.Equal(t, 3, n)
	assert.Equal(t, "A", cfg.Server.TLS.CAContent)

	cfg = &Config{}
	n = loadTLSCertificateContent(cfg, &VaultSecret{Data: map[string]any{"cert": "", "key": 5}})
	assert.Equal(t, 0, n)
}

func TestResolveVaultToken(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("  file-token\n"), 0o600))

	token, err := resolveVaultToken(VaultConfig{Token: "direct"})
	require.NoError(t, err)
	assert.Equal(t, "direct", token)

	token, err = resolveVaultToken(VaultConfig{TokenFile: tokenFile})
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)

	_, err = resolveVaultToken(VaultConfig{TokenFile: filepath.Join(dir, "missing")})
	assert.Error(t, err)

	_, err = resolveVaultToken(VaultConfig{})
	assert.ErrorContains(t, err, "vault token is required")
}

func TestApplyVaultSecretsDisabled(t *testing.T) {
	cfg := &Config{}
	cfg.Backend.APIToken = "from-file"
	require.NoError(t, ApplyVaultSecrets(cfg, newMockLogger()))
	assert.Equal(t, "from-file", cfg.Backend.APIToken)
}
