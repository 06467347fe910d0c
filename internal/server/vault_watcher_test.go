package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumereview/internal/config"
)

type fakeSecretReader struct {
	mu      sync.Mutex
	secrets map[string]*config.VaultSecret
	err     error
	reads   int
}

func (f *fakeSecretReader) GetSecretV2(path string) (*config.VaultSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.secrets[path], nil
}

type recordedReload struct {
	data *CertificateData
	err  error
}

func newRecordingWatcher(client SecretReader) (*VaultWatcher, *[]recordedReload) {
	var calls []recordedReload
	vw := NewVaultWatcher(client, "secret/data/tls", time.Minute, func(data *CertificateData, err error) {
		calls = append(calls, recordedReload{data: data, err: err})
	}, nil)
	return vw, &calls
}

func TestVaultWatcherPollReportsNewVersion(t *testing.T) {
	client := &fakeSecretReader{secrets: map[string]*config.VaultSecret{
		"secret/data/tls": {
			Data:    map[string]any{"cert": "cert-pem", "key": "key-pem", "ca": "ca-pem"},
			Version: 3,
		},
	}}
	vw, calls := newRecordingWatcher(client)

	vw.Poll()

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	require.NoError(t, got.err)
	assert.Equal(t, &CertificateData{CertContent: "cert-pem", KeyContent: "key-pem", CAContent: "ca-pem"}, got.data)
	assert.Equal(t, 1, client.reads, "a poll reads the secret once")
	assert.Equal(t, int64(3), vw.Status()["last_version"])
}

func TestVaultWatcherPollIgnoresSeenVersion(t *testing.T) {
	client := &fakeSecretReader{secrets: map[string]*config.VaultSecret{
		"secret/data/tls": {Data: map[string]any{"cert": "c"}, Version: 2},
	}}
	vw, calls := newRecordingWatcher(client)
	vw.SetVersion(2)

	vw.Poll()
	assert.Empty(t, *calls)

	client.secrets["secret/data/tls"].Version = 4
	vw.Poll()
	vw.Poll()
	assert.Len(t, *calls, 1)
}

func TestVaultWatcherPollErrors(t *testing.T) {
	t.Run("read failure", func(t *testing.T) {
		vw, calls := newRecordingWatcher(&fakeSecretReader{err: fmt.Errorf("permission denied")})

		vw.Poll()

		require.Len(t, *calls, 1)
		assert.Nil(t, (*calls)[0].data)
		assert.ErrorContains(t, (*calls)[0].err, "permission denied")
		assert.Equal(t, "permission denied", vw.Status()["last_error"])
	})

	t.Run("missing secret", func(t *testing.T) {
		vw, calls := newRecordingWatcher(&fakeSecretReader{})

		vw.Poll()

		require.Len(t, *calls, 1)
		assert.ErrorContains(t, (*calls)[0].err, "not found")
	})
}

func TestVaultWatcherStartStop(t *testing.T) {
	vw, _ := newRecordingWatcher(&fakeSecretReader{})

	require.NoError(t, vw.Start())
	assert.Error(t, vw.Start(), "second start")
	assert.Equal(t, true, vw.Status()["running"])

	require.NoError(t, vw.Stop())
	require.NoError(t, vw.Stop())
	assert.Equal(t, false, vw.Status()["running"])
}

func TestNewVaultWatcherDefaultsPollInterval(t *testing.T) {
	vw := NewVaultWatcher(&fakeSecretReader{}, "p", 0, func(*CertificateData, error) {}, nil)
	assert.Equal(t, defaultVaultPollInterval, vw.pollInterval)
}
