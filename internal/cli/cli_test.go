package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumereview/internal/common"
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

type fakeBackend struct {
	mu           sync.Mutex
	uploaded     string
	downloadDoc  document.Document
	downloadMods []document.Modification
}

func (f *fakeBackend) Upload(_ context.Context, filename string, r io.Reader) (document.Document, error) {
	if _, err := io.ReadAll(r); err != nil {
		return document.Document{}, err
	}
	f.uploaded = filename
	return document.Parse([]byte(resumeJSON))
}

func (f *fakeBackend) ImproveBullets(_ context.Context, bullets []string) ([]types.Suggestion, error) {
	out := make([]types.Suggestion, len(bullets))
	for i, b := range bullets {
		out[i] = types.Suggestion{Original: b, Suggested: strings.ToUpper(b), Feedback: "louder"}
	}
	return out, nil
}

func (f *fakeBackend) GenerateSummary(_ context.Context, doc document.Document) (string, error) {
	name, _ := document.Lookup(doc, document.MustParsePath("/name"))
	return name.AsText() + " builds engines.", nil
}

func (f *fakeBackend) MatchKeywords(_ context.Context, _ document.Document, jd string) ([]string, error) {
	if strings.Contains(jd, "Kubernetes") {
		return []string{"Kubernetes"}, nil
	}
	return nil, nil
}

func (f *fakeBackend) DownloadResume(_ context.Context, doc document.Document, mods []document.Modification) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadDoc = doc
	f.downloadMods = mods
	return []byte("%PDF-1.4 fake"), nil
}

func (f *fakeBackend) GetStats() map[string]any { return nil }
func (f *fakeBackend) IsHealthy() bool          { return true }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadDefaults()
	require.NoError(t, err)
	return cfg
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newReviewer(t *testing.T, fb *fakeBackend, opts reviewOptions) *reviewer {
	t.Helper()
	cfg := testConfig(t)
	store := review.NewStore(cfg.Review, errors.Discard())
	t.Cleanup(store.Close)
	return &reviewer{
		backend: fb,
		store:   store,
		files:   common.NewFileProcessor(nil, 0),
		opts:    opts,
		logger:  errors.Discard(),
	}
}

func TestParseModifications(t *testing.T) {
	mods, err := parseModifications([]byte(`[
		{"original": "Led a team of four", "improved": "Led four engineers"},
		{"path": "/name", "improved": "Ada King"}
	]`))
	require.NoError(t, err)

	want := []document.Modification{
		{Original: "Led a team of four", Improved: "Led four engineers"},
		{Path: document.MustParsePath("/name"), Improved: "Ada King"},
	}
	if diff := cmp.Diff(want[0], mods[0]); diff != "" {
		t.Errorf("first modification mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, mods[1].ByPath())
	assert.Equal(t, "/name", mods[1].Path.String())

	_, err = parseModifications([]byte(`{"original": "x"}`))
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInvalidFormat, appErr.Code)

	_, err = parseModifications([]byte(`[{"improved": "orphan"}]`))
	appErr, ok = errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInvalidRequest, appErr.Code)
}

func TestFlattenOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Review.MinFragmentLength = 5
	cfg.Review.ExcludedKeyMarker = "label"

	opts := flattenOptions(cfg, document.DefaultMinLength, false)
	assert.Equal(t, 5, opts.MinLength)
	assert.Equal(t, "label", opts.ExcludedKeyMarker)

	opts = flattenOptions(cfg, 0, true)
	assert.Equal(t, 0, opts.MinLength)
}

func TestApplyServeFlags(t *testing.T) {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("port", "", "")
	flags.String("host", "", "")
	flags.String("tls-mode", "", "")
	flags.String("cert-file", "", "")
	flags.String("key-file", "", "")
	flags.String("ca-file", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9090", "--tls-mode", "server"}))

	cfg := config.ServerConfig{Host: "127.0.0.1", Port: "8080"}
	applyServeFlags(flags, &cfg)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "server", cfg.TLS.Mode)
	assert.Empty(t, cfg.TLS.CertFile)
}

func TestReviewerRun(t *testing.T) {
	fb := &fakeBackend{}
	out := filepath.Join(t.TempDir(), "reviewed.pdf")
	rv := newReviewer(t, fb, reviewOptions{
		JobDescriptionFile: writeTemp(t, "jd.txt", "We run Kubernetes in production."),
		Summary:            true,
		AcceptAll:          true,
		DownloadFile:       out,
	})

	in, err := rv.load(context.Background(), writeTemp(t, "resume.json", resumeJSON))
	require.NoError(t, err)
	assert.Contains(t, in.jobDescription, "Kubernetes")

	report, err := rv.run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, report.Items, 4)
	for _, item := range report.Items {
		assert.True(t, item.Accepted, item.Path)
		assert.Equal(t, strings.ToUpper(item.Original), item.Suggested)
	}
	assert.Len(t, report.Modifications, 4)
	assert.Equal(t, "Ada Lovelace builds engines.", report.LinkedInSummary)
	assert.Equal(t, []string{"Kubernetes"}, report.MissingKeywords)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, out, report.DownloadedTo)

	pdf, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(pdf))

	name, ok := document.Lookup(fb.downloadDoc, document.MustParsePath("/name"))
	require.True(t, ok)
	assert.Equal(t, "ADA LOVELACE", name.AsText())
	assert.Len(t, fb.downloadMods, 4)

	assert.Equal(t, 0, rv.store.Len())
}

func TestReviewerRunWithoutOptionalSteps(t *testing.T) {
	rv := newReviewer(t, &fakeBackend{}, reviewOptions{})

	in, err := rv.load(context.Background(), writeTemp(t, "resume.yaml", "name: Ada Lovelace\nskills:\n  - Analytical engines\n"))
	require.NoError(t, err)

	report, err := rv.run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, report.Items, 2)
	assert.False(t, report.Items[0].Accepted)
	assert.Empty(t, report.Modifications)
	assert.Empty(t, report.LinkedInSummary)
	assert.Nil(t, report.MissingKeywords)
	assert.Empty(t, report.DownloadedTo)
}

func TestReviewerLoadUploads(t *testing.T) {
	fb := &fakeBackend{}
	rv := newReviewer(t, fb, reviewOptions{})

	in, err := rv.load(context.Background(), writeTemp(t, "resume.txt", "Ada Lovelace\nBuilt the analytics engine\n"))
	require.NoError(t, err)
	assert.Equal(t, "resume.txt", fb.uploaded)
	assert.Equal(t, 4, len(document.Flatten(in.doc)))

	tests := []struct {
		name string
		file string
		body string
		code string
	}{
		{"empty text", "empty.txt", "  \n", errors.ErrCodeInvalidDocument},
		{"unreadable pdf", "resume.pdf", "not a pdf", errors.ErrCodeInvalidDocument},
		{"unsupported", "resume.docx", "PK", errors.ErrCodeUnsupportedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rv.load(context.Background(), writeTemp(t, tt.file, tt.body))
			appErr, ok := errors.AsAppError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestFlattenCommand(t *testing.T) {
	cfg := testConfig(t)
	path := writeTemp(t, "resume.json", resumeJSON)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"flatten", path, "--paths", "--format", "text"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		flattenPaths = false
		flattenConfig = common.CommandConfig{}
	})

	require.NoError(t, Execute(WithRuntime(context.Background(), cfg, errors.Discard())))

	out := stdout.String()
	assert.Contains(t, out, "=== FRAGMENTS (4) ===")
	assert.Contains(t, out, "/name\tAda Lovelace")
	assert.Contains(t, out, "/experience/0/bullets/1\tLed a team of four")
	assert.NotContains(t, out, "Engineer")
}
