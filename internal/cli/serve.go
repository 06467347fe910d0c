package cli

import (
	"context"
	"fmt"
	"time"

	"resumereview/internal/backend"
	"resumereview/internal/config"
	"resumereview/internal/errors"
	"resumereview/internal/observability"
	"resumereview/internal/review"
	"resumereview/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review HTTP API",
	Long: `Start an HTTP server that exposes the document operations and review
sessions over REST.

Available endpoints:
- POST /api/flatten: List the editable fragments of a document
- POST /api/rewrite, POST /api/apply: Replace fragment text
- POST /api/sessions: Start a review session from an uploaded resume
- POST /api/sessions/import: Start a review session from a JSON document
- GET /api/sessions/{id}: Show a session with its suggestions
- POST /api/sessions/{id}/accept, /revert: Accept or revert suggestions
- POST /api/sessions/{id}/summary, /keywords: LinkedIn summary and missing keywords
- GET /api/sessions/{id}/download: Render the reviewed resume as PDF
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
}

// applyServeFlags copies the flags that were set onto the server config
func applyServeFlags(flags *pflag.FlagSet, cfg *config.ServerConfig) {
	overrides := map[string]*string{
		"port":      &cfg.Port,
		"host":      &cfg.Host,
		"tls-mode":  &cfg.TLS.Mode,
		"cert-file": &cfg.TLS.CertFile,
		"key-file":  &cfg.TLS.KeyFile,
		"ca-file":   &cfg.TLS.CAFile,
	}
	for name, target := range overrides {
		if !flags.Changed(name) {
			continue
		}
		if value, err := flags.GetString(name); err == nil {
			*target = value
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	applyServeFlags(cmd.Flags(), &cfg.Server)

	if err := config.ApplyVaultSecrets(cfg, logger); err != nil {
		return err
	}
	if err := cfg.ValidateTLSConfig(); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid TLS configuration", err)
	}

	om, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := om.Shutdown(ctx); err != nil {
			logger.LogError(err, "Failed to shutdown observability")
		}
	}()

	client, err := backend.New(cfg, logger, om)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	store := review.NewStore(cfg.Review, logger)
	defer store.Close()

	srv := server.NewServer(cfg, server.ConfigFromApp(cfg, Version), client, store, logger)
	return srv.Start(cmd.Context(), om)
}
