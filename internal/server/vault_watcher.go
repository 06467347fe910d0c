package server

import (
	"fmt"
	"sync"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/errors"
)

const defaultVaultPollInterval = 5 * time.Minute

// SecretReader reads versioned KV v2 secrets
type SecretReader interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// CertificateData holds PEM contents read from a Vault secret
type CertificateData struct {
	CertContent string
	KeyContent  string
	CAContent   string
}

// VaultReloadCallback receives new certificate data, or the error that
// prevented reading it
type VaultReloadCallback func(data *CertificateData, err error)

// VaultWatcher polls a Vault secret and calls back when its version grows
type VaultWatcher struct {
	mu sync.RWMutex

	client       SecretReader
	secretPath   string
	pollInterval time.Duration
	onChange     VaultReloadCallback
	logger       *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	lastPoll    time.Time
	lastError   string
}

// NewVaultWatcher creates a VaultWatcher. The first poll after Start
// reports the current secret unless SetVersion was called.
func NewVaultWatcher(client SecretReader, secretPath string, pollInterval time.Duration, onChange VaultReloadCallback, logger *errors.Logger) *VaultWatcher {
	if pollInterval <= 0 {
		pollInterval = defaultVaultPollInterval
	}
	if logger == nil {
		logger = errors.Discard()
	}
	return &VaultWatcher{
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		onChange:     onChange,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// SetVersion records the version already in use
func (vw *VaultWatcher) SetVersion(version int64) {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	vw.lastVersion = version
}

// Start begins polling Vault for secret changes
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()

	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}
	vw.running = true
	go vw.pollLoop()

	vw.logger.Info("Vault watcher started",
		"secret_path", vw.secretPath,
		"poll_interval", vw.pollInterval)
	return nil
}

// Stop stops the Vault watcher
func (vw *VaultWatcher) Stop() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()

	if !vw.running {
		return nil
	}
	close(vw.stopChan)
	vw.running = false

	vw.logger.Info("Vault watcher stopped")
	return nil
}

func (vw *VaultWatcher) pollLoop() {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vw.Poll()
		case <-vw.stopChan:
			return
		}
	}
}

// Poll reads the secret once and calls back if its version is newer than
// the last one seen. Read failures are reported to the callback.
func (vw *VaultWatcher) Poll() {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err == nil && secret == nil {
		err = fmt.Errorf("secret %s not found", vw.secretPath)
	}

	vw.mu.Lock()
	vw.lastPoll = time.Now()
	if err != nil {
		vw.lastError = err.Error()
		vw.mu.Unlock()

		vw.logger.LogError(err, "Failed to check Vault for updates")
		vw.onChange(nil, fmt.Errorf("failed to read TLS secret from vault: %w", err))
		return
	}
	vw.lastError = ""
	if secret.Version <= vw.lastVersion {
		vw.mu.Unlock()
		return
	}
	vw.lastVersion = secret.Version
	vw.mu.Unlock()

	vw.logger.Info("Vault secret changed, triggering certificate reload",
		"version", secret.Version)
	vw.onChange(certificateData(secret), nil)
}

func certificateData(secret *config.VaultSecret) *CertificateData {
	data := &CertificateData{}
	if cert, ok := secret.Data["cert"].(string); ok {
		data.CertContent = cert
	}
	if key, ok := secret.Data["key"].(string); ok {
		data.KeyContent = key
	}
	if ca, ok := secret.Data["ca"].(string); ok {
		data.CAContent = ca
	}
	return data
}

// Status returns the watcher state for health reporting
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()

	status := map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
	if !vw.lastPoll.IsZero() {
		status["last_poll"] = vw.lastPoll
	}
	if vw.lastError != "" {
		status["last_error"] = vw.lastError
	}
	return status
}
