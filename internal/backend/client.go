// Package backend is the HTTP client of the resume review backend, the
// service that structures uploaded resumes, suggests bullet improvements
// and renders the final PDF.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/observability"
	"resumereview/internal/types"
)

const apiPrefix = "/api"

// StatusError is a non-2xx answer of the backend
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// operation holds the resolved settings of one backend endpoint
type operation struct {
	name       string
	path       string
	timeout    time.Duration
	maxRetries int
	breaker    *CircuitBreaker
}

// Client calls the review backend
type Client struct {
	baseURL         string
	token           string
	httpClient      *http.Client
	retryBaseDelay  time.Duration
	maxResponseSize int64
	operations      map[string]*operation
	logger          *errors.Logger
	obs             *observability.ObservabilityManager
}

var endpoints = map[string]string{
	config.OperationUpload:   "/upload",
	config.OperationImprove:  "/improve-bullets",
	config.OperationSummary:  "/generate-linkedin-summary",
	config.OperationKeywords: "/match-keywords",
	config.OperationDownload: "/download-resume",
}

// New creates a backend client. obs may be nil.
func New(cfg *config.Config, logger *errors.Logger, obs *observability.ObservabilityManager) (*Client, error) {
	if logger == nil {
		logger = errors.Discard()
	}

	c := &Client{
		baseURL:         cfg.Backend.BaseURL,
		token:           cfg.Backend.APIToken,
		httpClient:      &http.Client{Transport: obs.HTTPTransport(nil)},
		retryBaseDelay:  cfg.Backend.RetryBaseDelay,
		maxResponseSize: cfg.Backend.MaxResponseSize,
		operations:      make(map[string]*operation, len(config.Operations)),
		logger:          logger,
		obs:             obs,
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = time.Second
	}

	for _, name := range config.Operations {
		opCfg, err := cfg.GetOperationConfig(name)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid backend operation", err)
		}
		c.operations[name] = &operation{
			name:       name,
			path:       apiPrefix + endpoints[name],
			timeout:    *opCfg.Timeout,
			maxRetries: *opCfg.MaxRetries,
			breaker:    NewCircuitBreaker(name, opCfg.CircuitBreaker, logger),
		}

		logger.Debug("Backend operation configured",
			"operation", name,
			"timeout", *opCfg.Timeout,
			"max_retries", *opCfg.MaxRetries,
			"circuit_breaker", opCfg.CircuitBreaker.Enabled)
	}

	return c, nil
}

// Upload sends a resume file and returns the structured document the
// backend extracted from it
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (document.Document, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("resume", filepath.Base(filename))
	if err != nil {
		return document.Document{}, errors.NewInternalError(errors.ErrCodeInvalidRequest, "failed to build upload form", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return document.Document{}, errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to read resume", err)
	}
	if err := mw.Close(); err != nil {
		return document.Document{}, errors.NewInternalError(errors.ErrCodeInvalidRequest, "failed to build upload form", err)
	}

	var resp types.UploadResponse
	if err := c.call(ctx, config.OperationUpload, mw.FormDataContentType(), body.Bytes(), &resp); err != nil {
		return document.Document{}, err
	}
	if !resp.Structured.IsSection() {
		return document.Document{}, errors.NewNetworkError(errors.ErrCodeBackendFailed,
			"backend returned no structured resume", nil).WithContext("kind", resp.Structured.Kind().String())
	}
	return resp.Structured, nil
}

// ImproveBullets asks for improvement suggestions for each bullet. An
// empty batch is answered locally.
func (c *Client) ImproveBullets(ctx context.Context, bullets []string) ([]types.Suggestion, error) {
	if len(bullets) == 0 {
		return nil, nil
	}

	var resp types.ImproveBulletsResponse
	if err := c.callJSON(ctx, config.OperationImprove, types.ImproveBulletsRequest{Bullets: bullets}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GenerateSummary returns a LinkedIn summary of the resume
func (c *Client) GenerateSummary(ctx context.Context, doc document.Document) (string, error) {
	var resp types.SummaryResponse
	if err := c.callJSON(ctx, config.OperationSummary, types.SummaryRequest{Structured: doc}, &resp); err != nil {
		return "", err
	}
	return resp.LinkedInSummary, nil
}

// MatchKeywords returns the keywords of jobDescription the resume lacks
func (c *Client) MatchKeywords(ctx context.Context, doc document.Document, jobDescription string) ([]string, error) {
	if jobDescription == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "job description is required", nil)
	}

	var resp types.KeywordsResponse
	req := types.KeywordsRequest{Structured: doc, JobDescription: jobDescription}
	if err := c.callJSON(ctx, config.OperationKeywords, req, &resp); err != nil {
		return nil, err
	}
	if resp.Missing == nil {
		return []string{}, nil
	}
	return resp.Missing, nil
}

// DownloadResume renders doc with mods applied by the backend and returns
// the PDF bytes
func (c *Client) DownloadResume(ctx context.Context, doc document.Document, mods []document.Modification) ([]byte, error) {
	payload, err := json.Marshal(types.DownloadRequest{
		Resume:        doc,
		Modifications: types.ToDownloadModifications(mods),
	})
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInvalidDocument, "failed to encode download request", err)
	}

	return c.do(ctx, config.OperationDownload, "application/json", payload)
}

// GetStats returns the circuit breaker statistics of every operation
func (c *Client) GetStats() map[string]any {
	stats := make(map[string]any, len(c.operations)+1)
	for name, op := range c.operations {
		stats[name] = op.breaker.GetStats()
	}
	stats["overall_healthy"] = c.IsHealthy()
	return stats
}

// IsHealthy reports whether no breaker is open
func (c *Client) IsHealthy() bool {
	for _, op := range c.operations {
		if !op.breaker.IsHealthy() {
			return false
		}
	}
	return true
}

func (c *Client) callJSON(ctx context.Context, name string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidRequest, "failed to encode backend request", err)
	}
	return c.call(ctx, name, "application/json", payload, out)
}

func (c *Client) call(ctx context.Context, name, contentType string, payload []byte, out any) error {
	body, err := c.do(ctx, name, contentType, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewNetworkError(errors.ErrCodeBackendFailed, "invalid backend response", err).
			WithContext("operation", name)
	}
	return nil
}

// do sends payload to the operation's endpoint through the breaker and
// retry loop and returns the response body
func (c *Client) do(ctx context.Context, name, contentType string, payload []byte) ([]byte, error) {
	op := c.operations[name]

	var body []byte
	err := c.obs.TrackBackendOperation(ctx, name, func(ctx context.Context) error {
		var err error
		body, err = op.breaker.Execute(func() ([]byte, error) {
			return c.executeWithRetry(ctx, op, func(ctx context.Context) ([]byte, error) {
				return c.send(ctx, op, contentType, payload)
			})
		})
		return err
	})
	if err != nil {
		return nil, classifyError(name, err)
	}
	return body, nil
}

// send performs a single attempt bounded by the operation timeout
func (c *Client) send(ctx context.Context, op *operation, contentType string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, op.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+op.path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := c.maxResponseSize
	if limit <= 0 {
		limit = 20 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("backend response exceeds %d bytes", limit)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return body, nil
}

// errorMessage extracts the backend's {"error": "..."} message
func errorMessage(status int, body []byte) string {
	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			return errResp.Error
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return http.StatusText(status)
}

// classifyError maps a failed call to the application's error types
func classifyError(name string, err error) error {
	var statusErr *StatusError
	switch {
	case isBreakerRejection(err):
		return errors.NewNetworkError(errors.ErrCodeBackendUnavailable,
			"backend temporarily unavailable", err).WithContext("operation", name)
	case stderrors.As(err, &statusErr) && statusErr.Code < http.StatusInternalServerError && statusErr.Code != http.StatusTooManyRequests:
		return errors.NewValidationError(errors.ErrCodeBackendRejected, statusErr.Message, err).
			WithContext("operation", name).
			WithContext("status", statusErr.Code)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "backend request timed out", err).
			WithContext("operation", name)
	default:
		appErr := errors.NewNetworkError(errors.ErrCodeBackendFailed, "backend request failed", err).
			WithContext("operation", name)
		if statusErr != nil {
			appErr = appErr.WithContext("status", statusErr.Code)
		}
		return appErr
	}
}
