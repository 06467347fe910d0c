package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/review"
	"resumereview/internal/types"
)

const resumeJSON = `{
	"name": "Ada Lovelace",
	"title": "Engineer",
	"experience": [
		{"company": "Acme", "bullets": ["Built the analytics engine", "Led a team of four"]}
	]
}`

// fakeBackend improves a bullet by upper-casing it
type fakeBackend struct {
	mu sync.Mutex

	uploadDoc   document.Document
	uploaded    string
	suggestErr  error
	unhealthy   bool
	downloadDoc document.Document
	downloadMod []document.Modification
}

func (f *fakeBackend) Upload(_ context.Context, filename string, r io.Reader) (document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return document.Document{}, err
	}
	f.uploaded = filename + ":" + string(data)
	return f.uploadDoc, nil
}

func (f *fakeBackend) ImproveBullets(_ context.Context, bullets []string) ([]types.Suggestion, error) {
	if f.suggestErr != nil {
		return nil, f.suggestErr
	}
	out := make([]types.Suggestion, len(bullets))
	for i, b := range bullets {
		out[i] = types.Suggestion{Original: b, Suggested: strings.ToUpper(b), Feedback: "louder"}
	}
	return out, nil
}

func (f *fakeBackend) GenerateSummary(_ context.Context, doc document.Document) (string, error) {
	name, _ := doc.Get("name")
	text, _ := name.AsText()
	return text + " builds engines.", nil
}

func (f *fakeBackend) MatchKeywords(_ context.Context, _ document.Document, jd string) ([]string, error) {
	if strings.Contains(jd, "Kubernetes") {
		return []string{"Kubernetes"}, nil
	}
	return []string{}, nil
}

func (f *fakeBackend) DownloadResume(_ context.Context, doc document.Document, mods []document.Modification) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadDoc, f.downloadMod = doc, mods
	return []byte("%PDF-1.4 fake"), nil
}

func (f *fakeBackend) GetStats() map[string]any { return map[string]any{"overall_healthy": !f.unhealthy} }
func (f *fakeBackend) IsHealthy() bool          { return !f.unhealthy }

type testServer struct {
	srv     *Server
	backend *fakeBackend
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*ServerConfig, *config.Config)) *testServer {
	t.Helper()

	appCfg := &config.Config{Review: config.ReviewConfig{MaxSessions: 10}}
	cfg := ServerConfig{Version: "test", MaxRequestSize: 1 << 20}
	if mutate != nil {
		mutate(&cfg, appCfg)
	}

	doc, err := document.Parse([]byte(resumeJSON))
	require.NoError(t, err)

	backend := &fakeBackend{uploadDoc: doc}
	sessions := review.NewStore(appCfg.Review, nil)
	srv := NewServer(appCfg, cfg, backend, sessions, errors.Discard())
	t.Cleanup(srv.releaseResources)

	return &testServer{srv: srv, backend: backend, handler: srv.Handler(nil)}
}

func (ts *testServer) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func textAt(t *testing.T, doc document.Document, pointer string) string {
	t.Helper()
	leaf, ok := document.Lookup(doc, document.MustParsePath(pointer))
	require.True(t, ok, pointer)
	text, ok := leaf.AsText()
	require.True(t, ok, pointer)
	return text
}

func (ts *testServer) importSession(t *testing.T) sessionResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions/import", `{"structured":`+resumeJSON+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec)
}

func TestFlattenEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/flatten", `{"structured":`+resumeJSON+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[types.FlattenResponse](t, rec)
	want := []string{"Ada Lovelace", "Acme", "Built the analytics engine", "Led a team of four"}
	if diff := cmp.Diff(want, got.Bullets); diff != "" {
		t.Errorf("bullets mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got.Fragments, 4)
	assert.Equal(t, "/experience/0/bullets/1", got.Fragments[3].Path.String())
}

func TestFlattenEndpointRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig, _ *config.Config) {
		cfg.MaxRequestSize = 64
	})

	t.Run("content type", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/flatten", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errors.ErrCodeInvalidRequest, decode[types.ErrorResponse](t, rec).Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/flatten", `{"structured":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/flatten", `{"structured":`+resumeJSON+`}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, errors.ErrCodeRequestTooLarge, decode[types.ErrorResponse](t, rec).Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/flatten", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestRewriteAndApplyEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/rewrite", map[string]any{
		"structured":  json.RawMessage(resumeJSON),
		"original":    "  Acme ",
		"replacement": "Acme Corp",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rewritten := decode[types.DocumentResponse](t, rec).Structured
	assert.Equal(t, "Acme Corp", textAt(t, rewritten, "/experience/0/company"))

	rec = ts.do(t, http.MethodPost, "/api/apply", map[string]any{
		"structured": json.RawMessage(resumeJSON),
		"modifications": []map[string]string{
			{"path": "/experience/0/bullets/1", "original": "Led a team of four", "improved": "Led four engineers"},
			{"original": "Ada Lovelace", "improved": "Augusta Ada King"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	applied := decode[types.DocumentResponse](t, rec).Structured
	assert.Equal(t,
		[]string{"Augusta Ada King", "Acme", "Built the analytics engine", "Led four engineers"},
		document.Flatten(applied))
}

func TestSessionReviewFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.importSession(t)
	require.NotEmpty(t, created.ID)
	assert.Empty(t, created.Warning)
	require.Len(t, created.Fragments, 4)
	require.NotNil(t, created.Fragments[2].Suggestion)
	assert.Equal(t, "BUILT THE ANALYTICS ENGINE", created.Fragments[2].Suggestion.Suggested)

	base := "/api/sessions/" + created.ID

	rec := ts.do(t, http.MethodPost, base+"/accept", map[string]string{"path": "/experience/0/bullets/0"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[sessionResponse](t, rec)
	assert.True(t, view.Fragments[2].Accepted)
	assert.Equal(t, "BUILT THE ANALYTICS ENGINE", view.Fragments[2].Improved)

	rec = ts.do(t, http.MethodPost, base+"/accept", map[string]string{"original": "Led a team of four", "improved": "Led four engineers"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, base+"/document", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		[]string{"Ada Lovelace", "Acme", "BUILT THE ANALYTICS ENGINE", "Led four engineers"},
		document.Flatten(decode[types.DocumentResponse](t, rec).Structured))

	rec = ts.do(t, http.MethodPost, base+"/revert", map[string]string{"path": "/experience/0/bullets/0"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[sessionResponse](t, rec).Modifications, 1)

	rec = ts.do(t, http.MethodPost, base+"/revert", map[string]string{"path": "/experience/0/bullets/0"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrCodeModificationAbsent, decode[types.ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, base+"/revert", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/revert", map[string]string{"original": "Led a team of four"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[sessionResponse](t, rec).Modifications)
}

func TestAcceptErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/api/sessions/" + ts.importSession(t).ID

	tests := []struct {
		name     string
		body     map[string]string
		status   int
		wantCode string
	}{
		{"unknown path", map[string]string{"path": "/title"}, http.StatusNotFound, errors.ErrCodeFragmentNotFound},
		{"malformed path", map[string]string{"path": "title"}, http.StatusBadRequest, errors.ErrCodeInvalidRequest},
		{"missing original", map[string]string{}, http.StatusBadRequest, errors.ErrCodeInvalidRequest},
		{"no suggestion", map[string]string{"original": "Unrelated text"}, http.StatusNotFound, errors.ErrCodeNoSuggestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, base+"/accept", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[types.ErrorResponse](t, rec).Code)
		})
	}
}

func TestSummaryAndKeywords(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/api/sessions/" + ts.importSession(t).ID

	rec := ts.do(t, http.MethodPost, base+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada Lovelace builds engines.", decode[types.SummaryResponse](t, rec).LinkedInSummary)

	rec = ts.do(t, http.MethodPost, base+"/keywords", map[string]string{"jd": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/keywords", map[string]string{"jd": "Go and Kubernetes"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Kubernetes"}, decode[types.KeywordsResponse](t, rec).Missing)

	rec = ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[sessionResponse](t, rec)
	assert.Equal(t, "Ada Lovelace builds engines.", view.Summary)
	assert.Equal(t, []string{"Kubernetes"}, view.MissingKeywords)
}

func TestDownload(t *testing.T) {
	for _, mode := range []string{"", review.DownloadAnnotated} {
		t.Run("mode "+mode, func(t *testing.T) {
			ts := newTestServer(t, func(_ *ServerConfig, app *config.Config) {
				app.Review.DownloadMode = mode
			})
			base := "/api/sessions/" + ts.importSession(t).ID

			rec := ts.do(t, http.MethodPost, base+"/accept", map[string]string{"original": "Acme", "improved": "Acme Corp"})
			require.Equal(t, http.StatusOK, rec.Code)

			rec = ts.do(t, http.MethodGet, base+"/download", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="modified_resume.pdf"`, rec.Header().Get("Content-Disposition"))
			assert.Equal(t, "%PDF-1.4 fake", rec.Body.String())

			wantCompany := "Acme Corp"
			if mode == review.DownloadAnnotated {
				wantCompany = "Acme"
			}
			assert.Equal(t, wantCompany, textAt(t, ts.backend.downloadDoc, "/experience/0/company"))
			assert.Equal(t, []document.Modification{{Original: "Acme", Improved: "Acme Corp"}}, ts.backend.downloadMod)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.importSession(t).ID

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/suggestions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, target := range []string{"/api/sessions/" + id, "/api/sessions/" + id + "/document"} {
		rec = ts.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, errors.ErrCodeSessionNotFound, decode[types.ErrorResponse](t, rec).Code)
	}

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportRejectsNonObject(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/sessions/import", `{"structured":["Built the analytics engine"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrCodeInvalidDocument, decode[types.ErrorResponse](t, rec).Code)
}

func TestImportKeepsSessionWhenSuggestionsFail(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.backend.suggestErr = errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "backend unavailable", nil)

	created := ts.importSession(t)
	assert.Contains(t, created.Warning, "backend unavailable")
	assert.Nil(t, created.Fragments[0].Suggestion)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/suggestions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("resume", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestCreateSessionUpload(t *testing.T) {
	ts := newTestServer(t, nil)

	upload := func(filename, content string) *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, filename, content)
		req := httptest.NewRequest(http.MethodPost, "/api/sessions", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("text resume", func(t *testing.T) {
		rec := upload("resume.txt", "Ada Lovelace\nBuilt the analytics engine")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "resume.txt:Ada Lovelace\nBuilt the analytics engine", ts.backend.uploaded)
		assert.Len(t, decode[sessionResponse](t, rec).Fragments, 4)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		rec := upload("resume.docx", "binary")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errors.ErrCodeUnsupportedFile, decode[types.ErrorResponse](t, rec).Code)
	})

	t.Run("empty text", func(t *testing.T) {
		rec := upload("resume.txt", "  \n")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errors.ErrCodeInvalidDocument, decode[types.ErrorResponse](t, rec).Code)
	})

	t.Run("unreadable pdf", func(t *testing.T) {
		rec := upload("resume.pdf", "not a pdf at all")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errors.ErrCodeInvalidDocument, decode[types.ErrorResponse](t, rec).Code)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/sessions", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig, _ *config.Config) {
		cfg.APIKeys = []string{"secret-key-123456"}
	})
	body := `{"structured":` + resumeJSON + `}`

	rec := ts.do(t, http.MethodPost, "/api/flatten", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing API key", decode[types.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/flatten", body, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/flatten", body, "X-API-Key", "secret-key-123456")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/flatten", body, "Authorization", "Bearer secret-key-123456")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")
}

func TestRateLimitMiddleware(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig, _ *config.Config) {
		cfg.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 2, ByIP: true}
	})
	body := `{"structured":` + resumeJSON + `}`

	for i := range 2 {
		rec := ts.do(t, http.MethodPost, "/api/flatten", body)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("request %d", i))
	}

	rec := ts.do(t, http.MethodPost, "/api/flatten", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/flatten", body, "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code, "other clients keep their bucket")

	rec = ts.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), stats["rate_limiting"].(map[string]any)["active_limiters"])
}

func TestHealthReportsBackend(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])

	ts.backend.unhealthy = true
	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[map[string]any](t, rec)["status"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.NewValidationError(errors.ErrCodeInvalidRequest, "bad", nil), http.StatusBadRequest},
		{errors.NewValidationError(errors.ErrCodeRequestTooLarge, "big", nil), http.StatusRequestEntityTooLarge},
		{errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "gone", nil), http.StatusNotFound},
		{review.ErrAmbiguousSuggestion, http.StatusConflict},
		{errors.NewNetworkError(errors.ErrCodeBackendFailed, "5xx", nil), http.StatusBadGateway},
		{errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "open", nil), http.StatusServiceUnavailable},
		{errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "slow", nil), http.StatusGatewayTimeout},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
