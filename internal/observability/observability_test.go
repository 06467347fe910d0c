package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumereview/internal/config"
)

func TestNilManagerIsNoop(t *testing.T) {
	var om *ObservabilityManager
	ctx := context.Background()

	assert.NotPanics(t, func() {
		om.RecordBusinessMetric(ctx, MetricSessionCreated, 1)
		om.RecordRateLimitHit(ctx)
		om.RecordCertReload(ctx, true)
		om.RecordCertExpiry(ctx, time.Hour)
	})
	assert.NotNil(t, om.GetMetrics())
	assert.Equal(t, http.DefaultTransport, om.HTTPTransport(nil))
	require.NoError(t, om.Shutdown(ctx))

	called := false
	handler := om.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
}

func TestTrackBackendOperationWhenDisabled(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{ServiceName: "resumereview"}, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = om.TrackBackendOperation(context.Background(), "improve-bullets", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = om.TrackBackendOperation(context.Background(), "improve-bullets", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestGetObservabilityConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Observability.ServiceName = "resumereview"
	cfg.Observability.Enabled = true
	cfg.Observability.SampleRate = 0.5
	cfg.Observability.Prometheus.Port = "9191"

	obs := GetObservabilityConfig(cfg, "1.2.3")
	assert.Equal(t, "1.2.3", obs.ServiceVersion)
	assert.Equal(t, 0.5, obs.SampleRate)
	assert.Equal(t, "9191", obs.Prometheus.Port)

	cfg.Observability.ServiceVersion = "pinned"
	assert.Equal(t, "pinned", GetObservabilityConfig(cfg, "1.2.3").ServiceVersion)

	defaults := GetObservabilityConfig(nil, "dev")
	assert.Equal(t, "resumereview", defaults.ServiceName)
	assert.Equal(t, "/metrics", defaults.Prometheus.Endpoint)
}
