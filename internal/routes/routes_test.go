package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/events"
	"barcode-service/internal/protocol"
	"barcode-service/internal/protocol/protocoltest"
	"barcode-service/internal/scanner"
	"barcode-service/internal/service"
)

func TestSetupRouter(t *testing.T) {
	cfg := &config.Config{
		App:      config.AppConfig{Name: "barcode-service", Version: "test", Environment: "test"},
		Security: config.SecurityConfig{AllowedOrigins: []string{"*"}},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "barcode"},
		Scanner: config.ScannerDefaults{
			RetryInterval:  time.Hour,
			StatusInterval: 10 * time.Millisecond,
			RecentLimit:    10,
		},
		Scanners: []config.ScannerConfig{{
			Name:           "front",
			Connection:     "serial",
			Address:        "/dev/front",
			ListenInterval: 2 * time.Millisecond,
			DrainInterval:  5 * time.Millisecond,
			HealthInterval: 10 * time.Millisecond,
		}},
	}

	channel := protocoltest.NewChannel("/dev/front")
	factory := func(config.ScannerConfig, *zap.Logger) (protocol.Channel, error) {
		return channel, nil
	}

	registry := prometheus.NewRegistry()
	metrics, err := scanner.NewMetrics("barcode", registry)
	require.NoError(t, err)

	bus := events.NewBus(64, zap.NewNop())
	go bus.Start()
	journal := service.NewScanJournal(nil, cfg.Journal, zap.NewNop())
	scanners := service.NewScannerService(cfg, factory, bus, journal, metrics, zap.NewNop())
	require.NoError(t, scanners.Start(context.Background()))

	r := NewRouter(cfg, zap.NewNop(), nil, scanners, journal, service.NewDiscoveryService(cfg, zap.NewNop()), bus, registry)
	engine, err := r.SetupRouter()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		scanners.Stop()
		bus.Stop()
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/health/db", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/scanners", http.StatusOK},
		{http.MethodGet, "/api/v1/scanners/front", http.StatusOK},
		{http.MethodGet, "/api/v1/scanners/front/barcodes", http.StatusOK},
		{http.MethodGet, "/api/v1/scanners/nope", http.StatusNotFound},
		{http.MethodGet, "/api/v1/scans", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/discovery/sources", http.StatusOK},
		{http.MethodGet, "/docs", http.StatusMovedPermanently},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `barcode_scanner_connected{scanner="front"} 1`), body)
	assert.Contains(t, body, "barcode_http_requests_total")
}
