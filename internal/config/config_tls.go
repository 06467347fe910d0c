package config

import "fmt"

// ValidateTLSConfig validates the TLS configuration
func (c *Config) ValidateTLSConfig() error {
	tls := c.Server.TLS

	switch tls.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("invalid TLS minVersion: %s (must be '1.2' or '1.3')", tls.MinVersion)
	}

	switch tls.Mode {
	case "disabled":
		return nil
	case "server":
		return validateCertSources(tls, "server mode")
	case "mutual":
		if err := validateCertSources(tls, "mutual mode"); err != nil {
			return err
		}
		if err := validateSingleSource("caFile", tls.CAFile, "caContent", tls.CAContent, "CA certificate", "mutual TLS mode"); err != nil {
			return err
		}
		return validateClientAuthPolicy(tls.ClientAuthPolicy)
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", tls.Mode)
	}
}

// validateCertSources requires exactly one source for both the
// certificate and its key
func validateCertSources(tls TLSConfig, mode string) error {
	if err := validateSingleSource("certFile", tls.CertFile, "certContent", tls.CertContent, "TLS certificate", mode); err != nil {
		return err
	}
	return validateSingleSource("keyFile", tls.KeyFile, "keyContent", tls.KeyContent, "TLS key", mode)
}

func validateSingleSource(fileField, file, contentField, content, what, mode string) error {
	if file == "" && content == "" {
		return fmt.Errorf("%s is required for %s (provide either %s or %s)", what, mode, fileField, contentField)
	}
	if file != "" && content != "" {
		return fmt.Errorf("cannot specify both %s and %s - choose one", fileField, contentField)
	}
	return nil
}

// validateClientAuthPolicy validates the client authentication policy
func validateClientAuthPolicy(policy string) error {
	switch policy {
	case "require", "request", "verify", "":
		return nil
	default:
		return fmt.Errorf("invalid clientAuthPolicy: %s (must be 'require', 'request', or 'verify')", policy)
	}
}
