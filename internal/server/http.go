package server

import (
	"context"
	"io"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/observability"
	"resumereview/internal/review"
	"resumereview/internal/types"
)

// Backend is the review backend used by the API handlers
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (document.Document, error)
	ImproveBullets(ctx context.Context, bullets []string) ([]types.Suggestion, error)
	GenerateSummary(ctx context.Context, doc document.Document) (string, error)
	MatchKeywords(ctx context.Context, doc document.Document, jobDescription string) ([]string, error)
	DownloadResume(ctx context.Context, doc document.Document, mods []document.Modification) ([]byte, error)
	GetStats() map[string]any
	IsHealthy() bool
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// TLS Configuration
	TLSConfig config.TLSConfig

	// Certificate management
	CertificateManager *CertificateManager

	// API Authentication
	APIKeys map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Review state
	Backend  Backend
	Sessions *review.Store

	Logger *errors.Logger

	om *observability.ObservabilityManager
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	TLSConfig      config.TLSConfig
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig
}

// ConfigFromApp derives the server settings from the application config
func ConfigFromApp(cfg *config.Config, version string) ServerConfig {
	return ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        version,
		TLSConfig:      cfg.Server.TLS,
		APIKeys:        cfg.Server.APIKeys,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.App.MaxFileSize,
		RateLimit:      &cfg.Server.RateLimit,
	}
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, backend Backend, sessions *review.Store, logger *errors.Logger) *Server {
	if logger == nil {
		logger = errors.Discard()
	}

	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.BurstCapacity,
			logger,
		)
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		TLSConfig:      cfg.TLSConfig,
		APIKeys:        apiKeyMap,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		Backend:        backend,
		Sessions:       sessions,
		Logger:         logger,
	}
}

// downloadMode returns the configured render mode of session downloads
func (s *Server) downloadMode() string {
	if s.AppConfig == nil || s.AppConfig.Review.DownloadMode == "" {
		return review.DownloadMaterialized
	}
	return s.AppConfig.Review.DownloadMode
}
