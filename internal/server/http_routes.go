package server

import (
	"net/http"
	"strings"

	"resumereview/internal/observability"
)

// Handler returns the instrumented API handler. Start serves it; tests can
// mount it on an httptest server.
func (s *Server) Handler(om *observability.ObservabilityManager) http.Handler {
	s.om = om
	return om.HTTPMiddleware()(s.setupRoutes())
}

// route is one API endpoint. Public routes skip rate limiting,
// authentication and the request size limit.
type route struct {
	pattern string
	summary string
	handler http.HandlerFunc
	public  bool
}

// routes lists every endpoint in display order
func (s *Server) routes() []route {
	return []route{
		{"GET /health", "Health check", s.healthHandler, true},
		{"GET /stats", "Server statistics", s.statsHandler, true},

		// Stateless document operations
		{"POST /api/flatten", "List editable fragments", s.flattenHandler, false},
		{"POST /api/rewrite", "Replace a text everywhere", s.rewriteHandler, false},
		{"POST /api/apply", "Replay modifications", s.applyHandler, false},

		// Review sessions
		{"POST /api/sessions", "Upload a resume (.pdf, .txt)", s.createSessionHandler, false},
		{"POST /api/sessions/import", "Review a structured resume", s.importSessionHandler, false},
		{"GET /api/sessions/{id}", "Session state", s.getSessionHandler, false},
		{"DELETE /api/sessions/{id}", "Discard a session", s.deleteSessionHandler, false},
		{"POST /api/sessions/{id}/suggestions", "Fetch new suggestions", s.suggestionsHandler, false},
		{"POST /api/sessions/{id}/accept", "Accept a suggestion", s.acceptHandler, false},
		{"POST /api/sessions/{id}/revert", "Revert a modification", s.revertHandler, false},
		{"POST /api/sessions/{id}/summary", "LinkedIn summary", s.summaryHandler, false},
		{"POST /api/sessions/{id}/keywords", "Missing job keywords", s.keywordsHandler, false},
		{"GET /api/sessions/{id}/document", "Reviewed document", s.documentHandler, false},
		{"GET /api/sessions/{id}/download", "Reviewed resume as PDF", s.downloadHandler, false},
	}
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	for _, rt := range s.routes() {
		h := rt.handler
		if !rt.public {
			h = s.rateLimitMiddleware(s.authMiddleware(s.requestSizeLimitMiddleware(h)))
		}
		mux.HandleFunc(rt.pattern, h)
	}
	return mux
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if len(s.APIKeys) == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", r.RemoteAddr)
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys[apiKey] {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", r.RemoteAddr,
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"client_ip", r.RemoteAddr,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
		}
		next(w, r)
	}
}

// requestAPIKey reads the key from X-API-Key or a Bearer token
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
