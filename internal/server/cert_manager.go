package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/errors"
	"resumereview/internal/observability"
)

const defaultCertCheckInterval = time.Minute

// CertificateManager serves the current TLS certificate and reloads it
// when its files or its Vault secret change
type CertificateManager struct {
	mu sync.RWMutex

	serverCert       *tls.Certificate
	caCertPool       *x509.CertPool
	serverCertExpiry time.Time
	lastReloadTime   time.Time

	fileWatcher  *CertWatcher
	vaultWatcher *VaultWatcher

	config          *config.TLSConfig
	vaultClient     SecretReader
	vaultSecretPath string

	reloadCallbacks []ReloadCallback
	logger          *errors.Logger
	om              *observability.ObservabilityManager

	done     chan struct{}
	stopOnce sync.Once

	reloadCount        int64
	reloadSuccessCount int64
	reloadFailureCount int64
	lastReloadSuccess  bool
	lastReloadError    string
}

// ReloadCallback is called when certificates are reloaded
type ReloadCallback func(success bool, err error)

// CertificateMetrics holds metrics about certificate operations
type CertificateMetrics struct {
	ReloadCount        int64
	ReloadSuccessCount int64
	ReloadFailureCount int64
	LastReloadTime     time.Time
	LastReloadSuccess  bool
	LastReloadError    string
}

// NewCertificateManager creates a certificate manager for tlsConfig.
// vaultClient and vaultSecretPath are only used by the Vault watcher.
func NewCertificateManager(tlsConfig *config.TLSConfig, vaultClient SecretReader, vaultSecretPath string, om *observability.ObservabilityManager, logger *errors.Logger) *CertificateManager {
	if logger == nil {
		logger = errors.Discard()
	}
	return &CertificateManager{
		config:          tlsConfig,
		vaultClient:     vaultClient,
		vaultSecretPath: vaultSecretPath,
		logger:          logger,
		om:              om,
		done:            make(chan struct{}),
	}
}

// Start loads the certificates and starts the expiry monitor and the
// configured watchers
func (cm *CertificateManager) Start() error {
	if err := cm.loadCertificates(); err != nil {
		return fmt.Errorf("failed to load initial certificates: %w", err)
	}

	go cm.monitorExpiry(cm.checkInterval())

	if err := cm.startFileWatcher(); err != nil {
		return err
	}

	return cm.startVaultWatcher()
}

func (cm *CertificateManager) checkInterval() time.Duration {
	if cm.config.AutoReload.CheckInterval > 0 {
		return cm.config.AutoReload.CheckInterval
	}
	return defaultCertCheckInterval
}

// startFileWatcher watches certificate files when they are file based
func (cm *CertificateManager) startFileWatcher() error {
	if !cm.config.AutoReload.FileWatcher.Enabled {
		return nil
	}
	if cm.config.CertFile == "" && cm.config.KeyFile == "" && cm.config.CAFile == "" {
		return nil
	}

	watcher := NewCertWatcher(
		cm.config.CertFile,
		cm.config.KeyFile,
		cm.config.CAFile,
		cm.config.AutoReload.FileWatcher.DebounceDelay,
		cm.triggerReload,
		cm.logger,
	)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	cm.fileWatcher = watcher

	return nil
}

// startVaultWatcher polls the Vault secret when certificates are Vault
// content
func (cm *CertificateManager) startVaultWatcher() error {
	if !cm.config.AutoReload.VaultWatcher.Enabled {
		return nil
	}
	if cm.vaultClient == nil || cm.vaultSecretPath == "" {
		cm.logger.Warn("Vault watcher enabled but no Vault client or TLS secret path is configured")
		return nil
	}

	vw := NewVaultWatcher(
		cm.vaultClient,
		cm.vaultSecretPath,
		cm.config.AutoReload.VaultWatcher.PollInterval,
		cm.applyVaultCertificates,
		cm.logger,
	)
	if err := vw.Start(); err != nil {
		return fmt.Errorf("failed to start Vault watcher: %w", err)
	}
	cm.vaultWatcher = vw

	return nil
}

// applyVaultCertificates stores new PEM contents and reloads
func (cm *CertificateManager) applyVaultCertificates(data *CertificateData, err error) {
	if err != nil {
		cm.handleReloadError(err)
		return
	}

	cm.mu.Lock()
	if data.CertContent != "" {
		cm.config.CertContent = data.CertContent
	}
	if data.KeyContent != "" {
		cm.config.KeyContent = data.KeyContent
	}
	if data.CAContent != "" {
		cm.config.CAContent = data.CAContent
	}
	cm.mu.Unlock()

	cm.triggerReload()
}

// Stop stops the expiry monitor and all watchers. It is safe to call
// more than once.
func (cm *CertificateManager) Stop() error {
	var firstErr error
	cm.stopOnce.Do(func() {
		close(cm.done)

		if cm.fileWatcher != nil {
			if err := cm.fileWatcher.Stop(); err != nil {
				cm.logger.LogError(err, "Failed to stop file watcher")
				firstErr = err
			}
		}
		if cm.vaultWatcher != nil {
			if err := cm.vaultWatcher.Stop(); err != nil && firstErr == nil {
				cm.logger.LogError(err, "Failed to stop Vault watcher")
				firstErr = err
			}
		}
		cm.logger.Info("Certificate manager stopped")
	})
	return firstErr
}

// GetServerCertificate returns the current server certificate for TLS handshakes
func (cm *CertificateManager) GetServerCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.serverCert == nil {
		return nil, fmt.Errorf("no server certificate available")
	}

	if time.Now().After(cm.serverCertExpiry) {
		serverName := ""
		if hello != nil {
			serverName = hello.ServerName
		}
		cm.logger.Warn("Server certificate expired",
			"expiry", cm.serverCertExpiry,
			"server_name", serverName)
		return nil, fmt.Errorf("server certificate expired")
	}

	return cm.serverCert, nil
}

// GetCACertPool returns the current CA certificate pool
func (cm *CertificateManager) GetCACertPool() *x509.CertPool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.caCertPool
}

// VerifyPeerCertificate verifies peer certificates using the current CA pool
func (cm *CertificateManager) VerifyPeerCertificate(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("no peer certificates provided")
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("failed to parse peer certificate: %w", err)
	}

	caCertPool := cm.GetCACertPool()
	if caCertPool == nil {
		return fmt.Errorf("no CA certificate pool available")
	}

	opts := x509.VerifyOptions{
		Roots:     caCertPool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("peer certificate verification failed: %w", err)
	}

	return nil
}

// ReloadCertificates manually triggers a certificate reload
func (cm *CertificateManager) ReloadCertificates() error {
	return cm.loadCertificates()
}

// AddReloadCallback adds a callback to be called when certificates are reloaded
func (cm *CertificateManager) AddReloadCallback(callback ReloadCallback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.reloadCallbacks = append(cm.reloadCallbacks, callback)
}

// CheckExpiry returns the time until the server certificate expires
func (cm *CertificateManager) CheckExpiry() (time.Duration, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.serverCertExpiry.IsZero() {
		return 0, fmt.Errorf("no certificates loaded")
	}
	return time.Until(cm.serverCertExpiry), nil
}

// GetMetrics returns certificate management metrics
func (cm *CertificateManager) GetMetrics() *CertificateMetrics {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return &CertificateMetrics{
		ReloadCount:        cm.reloadCount,
		ReloadSuccessCount: cm.reloadSuccessCount,
		ReloadFailureCount: cm.reloadFailureCount,
		LastReloadTime:     cm.lastReloadTime,
		LastReloadSuccess:  cm.lastReloadSuccess,
		LastReloadError:    cm.lastReloadError,
	}
}

// loadCertificates loads certificates from files or content and swaps
// them in at once
func (cm *CertificateManager) loadCertificates() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cert, expiry, err := cm.loadServerCertificate()
	if err != nil {
		return err
	}

	caCertPool, err := cm.loadCACertificate()
	if err != nil {
		return err
	}

	cm.serverCert = cert
	cm.serverCertExpiry = expiry
	cm.caCertPool = caCertPool
	cm.lastReloadTime = time.Now()

	cm.updateReloadMetrics(true, nil)
	cm.notify(true, nil)

	cm.logger.Info("Certificates reloaded successfully",
		"server_cert_expiry", cm.serverCertExpiry,
		"reload_time", cm.lastReloadTime)

	return nil
}

// loadServerCertificate loads the key pair from the current config
func (cm *CertificateManager) loadServerCertificate() (*tls.Certificate, time.Time, error) {
	cert, notAfter, err := loadKeyPair(*cm.config)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &cert, notAfter, nil
}

// loadCACertificate loads the CA pool used to verify client certificates
func (cm *CertificateManager) loadCACertificate() (*x509.CertPool, error) {
	if cm.config.Mode != "mutual" {
		return nil, nil
	}
	return loadClientCAs(*cm.config)
}

// updateReloadMetrics updates the reload counters. Callers hold cm.mu.
func (cm *CertificateManager) updateReloadMetrics(success bool, err error) {
	cm.reloadCount++
	if success {
		cm.reloadSuccessCount++
		cm.lastReloadSuccess = true
		cm.lastReloadError = ""
	} else {
		cm.reloadFailureCount++
		cm.lastReloadSuccess = false
		if err != nil {
			cm.lastReloadError = err.Error()
		}
	}

	ctx := context.Background()
	cm.om.RecordCertReload(ctx, success)
	if !cm.serverCertExpiry.IsZero() {
		cm.om.RecordCertExpiry(ctx, time.Until(cm.serverCertExpiry))
	}
}

// notify runs the reload callbacks. Callers hold cm.mu.
func (cm *CertificateManager) notify(success bool, err error) {
	for _, callback := range cm.reloadCallbacks {
		go callback(success, err)
	}
}

// triggerReload is called by the watchers and the expiry monitor
func (cm *CertificateManager) triggerReload() {
	cm.logger.Info("Certificate reload triggered")

	if err := cm.loadCertificates(); err != nil {
		cm.handleReloadError(err)
	}
}

// handleReloadError records a failed reload. The previous certificates
// stay in use.
func (cm *CertificateManager) handleReloadError(err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.updateReloadMetrics(false, err)
	cm.logger.LogError(err, "Failed to reload certificates")
	cm.notify(false, err)
}

// monitorExpiry publishes the remaining certificate lifetime and reloads
// once the certificate enters its preemptive renewal window
func (cm *CertificateManager) monitorExpiry(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			remaining, err := cm.CheckExpiry()
			if err != nil {
				continue
			}
			cm.om.RecordCertExpiry(context.Background(), remaining)

			if renewal := cm.config.AutoReload.PreemptiveRenewal; renewal > 0 && remaining < renewal {
				cm.logger.Warn("Certificate close to expiry, reloading",
					"time_to_expiry", remaining.String())
				cm.triggerReload()
			}
		case <-cm.done:
			return
		}
	}
}
