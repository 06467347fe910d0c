package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/observability"
)

var clientAuthPolicies = map[string]tls.ClientAuthType{
	"":        tls.RequireAndVerifyClientCert,
	"require": tls.RequireAndVerifyClientCert,
	"request": tls.RequestClientCert,
	"verify":  tls.VerifyClientCertIfGiven,
}

// configureTLS attaches a TLS config to httpServer unless TLS is disabled
func (s *Server) configureTLS(httpServer *http.Server, vaultClient SecretReader, om *observability.ObservabilityManager) error {
	mode := s.TLSConfig.Mode
	if mode == "" || mode == "disabled" {
		s.Logger.Info("TLS disabled, serving plain HTTP", "address", httpServer.Addr)
		return nil
	}

	// Config.Validate defers these checks when certificates come from Vault
	check := config.Config{Server: config.ServerConfig{TLS: s.TLSConfig}}
	if err := check.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	if err := s.setupCertificateManager(vaultClient, om); err != nil {
		return err
	}

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to set up %s TLS: %w", mode, err)
	}
	httpServer.TLSConfig = tlsConfig

	s.Logger.Info("TLS enabled",
		"address", httpServer.Addr,
		"mode", mode,
		"client_certificates", mode == "mutual",
		"auto_reload", s.CertificateManager != nil)
	return nil
}

// setupCertificateManager starts certificate reloading when enabled
func (s *Server) setupCertificateManager(vaultClient SecretReader, om *observability.ObservabilityManager) error {
	reload := s.TLSConfig.AutoReload
	if !reload.Enabled {
		return nil
	}

	secretPath := ""
	if s.AppConfig != nil {
		secretPath = s.AppConfig.Vault.Secrets.TLSCerts
	}

	certManager := NewCertificateManager(&s.TLSConfig, vaultClient, secretPath, om, s.Logger)
	certManager.AddReloadCallback(func(success bool, err error) {
		if success {
			s.Logger.Info("TLS certificates reloaded successfully")
		} else {
			s.Logger.LogError(err, "Failed to reload TLS certificates")
		}
	})

	if err := certManager.Start(); err != nil {
		return fmt.Errorf("failed to start certificate manager: %w", err)
	}
	s.CertificateManager = certManager

	s.Logger.Info("TLS auto-reload enabled",
		"file_watcher", reload.FileWatcher.Enabled,
		"vault_watcher", reload.VaultWatcher.Enabled && vaultClient != nil)
	return nil
}

// initializeVaultClient returns a Vault client when certificates are
// polled from Vault, and nil otherwise
func (s *Server) initializeVaultClient() (SecretReader, error) {
	if s.AppConfig == nil || !s.TLSConfig.AutoReload.VaultWatcher.Enabled ||
		s.AppConfig.Vault.Secrets.TLSCerts == "" {
		return nil, nil
	}

	vc, err := config.NewVaultClient(s.AppConfig.Vault, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Vault client: %w", err)
	}
	if vc == nil {
		return nil, nil
	}
	return vc, nil
}

// buildTLSConfig creates the TLS configuration. With a certificate
// manager the certificate and the client CA pool are looked up per
// handshake so reloads take effect without a restart.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:   minTLSVersion(s.TLSConfig.MinVersion),
		CipherSuites: cipherSuiteIDs(s.TLSConfig.CipherSuites),
		ClientAuth:   tls.NoClientCert,
	}

	if s.CertificateManager != nil {
		tlsConfig.GetCertificate = s.CertificateManager.GetServerCertificate
	} else {
		cert, _, err := loadKeyPair(s.TLSConfig)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if s.TLSConfig.Mode != "mutual" {
		return tlsConfig, nil
	}

	policy, ok := clientAuthPolicies[s.TLSConfig.ClientAuthPolicy]
	if !ok {
		return nil, fmt.Errorf("invalid client auth policy: %s", s.TLSConfig.ClientAuthPolicy)
	}
	tlsConfig.ClientAuth = policy

	if s.CertificateManager != nil {
		// Client certificates are verified against the reloaded pool in
		// VerifyPeerCertificate, so the handshake itself only requests them.
		required := policy == tls.RequireAndVerifyClientCert
		tlsConfig.ClientAuth = tls.RequestClientCert
		if required {
			tlsConfig.ClientAuth = tls.RequireAnyClientCert
		}
		verify := policy != tls.RequestClientCert
		tlsConfig.VerifyPeerCertificate = func(rawCerts [][]byte, chains [][]*x509.Certificate) error {
			if !verify || (len(rawCerts) == 0 && !required) {
				return nil
			}
			return s.CertificateManager.VerifyPeerCertificate(rawCerts, chains)
		}
		return tlsConfig, nil
	}

	pool, err := loadClientCAs(s.TLSConfig)
	if err != nil {
		return nil, err
	}
	tlsConfig.ClientCAs = pool
	return tlsConfig, nil
}

// loadKeyPair loads the server key pair, preferring inline content over
// files, and returns the expiry of its leaf certificate
func loadKeyPair(cfg config.TLSConfig) (tls.Certificate, time.Time, error) {
	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case cfg.CertContent != "" && cfg.KeyContent != "":
		cert, err = tls.X509KeyPair([]byte(cfg.CertContent), []byte(cfg.KeyContent))
	case cfg.CertFile != "" && cfg.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	default:
		return tls.Certificate{}, time.Time{}, fmt.Errorf("TLS certificate and key are required (provide either files or content)")
	}
	if err != nil {
		return tls.Certificate{}, time.Time{}, fmt.Errorf("failed to load server certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, time.Time{}, fmt.Errorf("failed to parse server certificate: %w", err)
	}
	cert.Leaf = leaf
	return cert, leaf.NotAfter, nil
}

// loadClientCAs loads the pool that client certificates must chain to
func loadClientCAs(cfg config.TLSConfig) (*x509.CertPool, error) {
	caCert := []byte(cfg.CAContent)
	if len(caCert) == 0 && cfg.CAFile != "" {
		var err error
		caCert, err = os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
	}
	if len(caCert) == 0 {
		return nil, fmt.Errorf("CA certificate is required for mutual TLS mode (provide either caFile or caContent)")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	return pool, nil
}

func minTLSVersion(v string) uint16 {
	if v == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// cipherSuiteIDs maps names to IDs. Unknown and insecure suites are
// skipped; nil keeps the Go defaults.
func cipherSuiteIDs(names []string) []uint16 {
	if len(names) == 0 {
		return nil
	}
	known := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		known[suite.Name] = suite.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		if id, ok := known[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
