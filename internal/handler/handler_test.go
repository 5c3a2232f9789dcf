package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/events"
	"barcode-service/internal/model"
	"barcode-service/internal/protocol"
	"barcode-service/internal/protocol/protocoltest"
	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

type testEnv struct {
	cfg      *config.Config
	channels map[string]*protocoltest.Channel
	service  *service.ScannerService
	bus      *events.Bus
}

func newTestEnv(t *testing.T, names ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		App: config.AppConfig{Name: "barcode-service", Version: "test"},
		Scanner: config.ScannerDefaults{
			RetryInterval:  time.Hour,
			StatusInterval: 10 * time.Millisecond,
			RecentLimit:    10,
		},
	}
	channels := make(map[string]*protocoltest.Channel)
	for _, name := range names {
		cfg.Scanners = append(cfg.Scanners, config.ScannerConfig{
			Name:           name,
			Connection:     "serial",
			Address:        "/dev/" + name,
			ListenInterval: 2 * time.Millisecond,
			DrainInterval:  5 * time.Millisecond,
			HealthInterval: 10 * time.Millisecond,
		})
		channels[name] = protocoltest.NewChannel("/dev/" + name)
	}

	factory := func(sc config.ScannerConfig, _ *zap.Logger) (protocol.Channel, error) {
		return channels[sc.Name], nil
	}

	bus := events.NewBus(256, zap.NewNop())
	go bus.Start()

	ss := service.NewScannerService(cfg, factory, bus, nil, nil, zap.NewNop())
	require.NoError(t, ss.Start(context.Background()))
	t.Cleanup(func() {
		ss.Stop()
		bus.Stop()
	})

	return &testEnv{cfg: cfg, channels: channels, service: ss, bus: bus}
}

// stubScanRepo serves a fixed result and remembers the last filter
type stubScanRepo struct {
	mu      sync.Mutex
	records []*model.ScanRecord
	counts  map[string]int
	filter  *model.ScanFilter
}

func (r *stubScanRepo) Create(context.Context, *model.ScanRecord) error { return nil }

func (r *stubScanRepo) GetByID(context.Context, uuid.UUID) (*model.ScanRecord, error) {
	return nil, nil
}

func (r *stubScanRepo) List(_ context.Context, filter *model.ScanFilter) ([]*model.ScanRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = filter
	return r.records, len(r.records), nil
}

func (r *stubScanRepo) CountByScanner(context.Context, time.Time) (map[string]int, error) {
	return r.counts, nil
}

func (r *stubScanRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func scannerRouter(h *ScannerHandler) *gin.Engine {
	r := gin.New()
	r.GET("/scanners", h.ListScanners)
	r.GET("/scanners/:name", h.GetScanner)
	r.GET("/scanners/:name/barcodes", h.GetRecentBarcodes)
	r.POST("/scanners/:name/restart", h.RestartScanner)
	r.GET("/scans", h.ListScans)
	r.GET("/scans/summary", h.ScanSummary)
	return r
}

func doRequest(r http.Handler, method, target string) (*httptest.ResponseRecorder, utils.APIResponse) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(w, req)

	var body utils.APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestScannerHandler_ListAndGet(t *testing.T) {
	env := newTestEnv(t, "front", "back")
	journal := service.NewScanJournal(nil, config.JournalConfig{}, zap.NewNop())
	r := scannerRouter(NewScannerHandler(env.service, journal, zap.NewNop()))

	w, body := doRequest(r, http.MethodGet, "/scanners")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["total"])

	w, body = doRequest(r, http.MethodGet, "/scanners/front")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "front", body.Data.(map[string]interface{})["name"])

	w, body = doRequest(r, http.MethodGet, "/scanners/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestScannerHandler_RecentBarcodes(t *testing.T) {
	env := newTestEnv(t, "front")
	journal := service.NewScanJournal(nil, config.JournalConfig{}, zap.NewNop())
	r := scannerRouter(NewScannerHandler(env.service, journal, zap.NewNop()))

	env.channels["front"].Feed("111\r\n222\r\n")

	assert.Eventually(t, func() bool {
		barcodes, err := env.service.RecentBarcodes("front", 0)
		return err == nil && len(barcodes) == 2
	}, 2*time.Second, 5*time.Millisecond)

	w, body := doRequest(r, http.MethodGet, "/scanners/front/barcodes?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	data := body.Data.(map[string]interface{})
	barcodes := data["barcodes"].([]interface{})
	require.Len(t, barcodes, 1)
	assert.Equal(t, "222", barcodes[0].(map[string]interface{})["value"])

	w, _ = doRequest(r, http.MethodGet, "/scanners/front/barcodes?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(r, http.MethodGet, "/scanners/missing/barcodes")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScannerHandler_Restart(t *testing.T) {
	env := newTestEnv(t, "front")
	journal := service.NewScanJournal(nil, config.JournalConfig{}, zap.NewNop())
	r := scannerRouter(NewScannerHandler(env.service, journal, zap.NewNop()))

	opens := env.channels["front"].Opens()

	w, body := doRequest(r, http.MethodPost, "/scanners/front/restart")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(model.ScannerStateOnline), body.Data.(map[string]interface{})["state"])
	assert.Greater(t, env.channels["front"].Opens(), opens)

	w, _ = doRequest(r, http.MethodPost, "/scanners/missing/restart")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScannerHandler_ScansJournalDisabled(t *testing.T) {
	env := newTestEnv(t)
	journal := service.NewScanJournal(nil, config.JournalConfig{}, zap.NewNop())
	r := scannerRouter(NewScannerHandler(env.service, journal, zap.NewNop()))

	w, _ := doRequest(r, http.MethodGet, "/scans")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = doRequest(r, http.MethodGet, "/scans/summary")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestScannerHandler_ListScans(t *testing.T) {
	env := newTestEnv(t)
	repo := &stubScanRepo{
		records: []*model.ScanRecord{
			model.NewScanRecord(model.NewBarcode("front", "4006381333931"), model.ConnectionTypeSerial, "/dev/front"),
		},
		counts: map[string]int{"front": 1},
	}
	journal := service.NewScanJournal(repo, config.JournalConfig{}, zap.NewNop())
	r := scannerRouter(NewScannerHandler(env.service, journal, zap.NewNop()))

	w, body := doRequest(r, http.MethodGet, "/scans?scanner=front&since=2024-01-02T15:04:05Z&limit=10&offset=5")
	require.Equal(t, http.StatusOK, w.Code)
	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])

	repo.mu.Lock()
	filter := repo.filter
	repo.mu.Unlock()
	require.NotNil(t, filter)
	require.NotNil(t, filter.ScannerName)
	assert.Equal(t, "front", *filter.ScannerName)
	require.NotNil(t, filter.Since)
	assert.Equal(t, 2024, filter.Since.Year())
	assert.Nil(t, filter.Until)
	assert.Equal(t, 10, filter.Limit)
	assert.Equal(t, 5, filter.Offset)

	w, _ = doRequest(r, http.MethodGet, "/scans?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(r, http.MethodGet, "/scans?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = doRequest(r, http.MethodGet, "/scans/summary")
	require.Equal(t, http.StatusOK, w.Code)
	counts := body.Data.(map[string]interface{})["counts"].(map[string]interface{})
	assert.EqualValues(t, 1, counts["front"])
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, "front")
	journal := service.NewScanJournal(nil, config.JournalConfig{}, zap.NewNop())
	h := NewHealthHandler(nil, env.service, journal, env.cfg, zap.NewNop())

	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/health/db", h.DatabaseHealthCheck)
	r.GET("/ready", h.ReadinessCheck)
	r.GET("/live", h.LivenessCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, "barcode-service", health.Service)
	assert.Contains(t, health.Checks, "scanners")
	assert.Contains(t, health.Checks, "journal")
	assert.NotContains(t, health.Checks, "database")

	env.channels["front"].Unplug()
	assert.Eventually(t, func() bool {
		status, err := env.service.Get("front")
		return err == nil && status.State != model.ScannerStateOnline
	}, 2*time.Second, 5*time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, statusDegraded, health.Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	for _, path := range []string{"/ready", "/live"} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://pos.local"}, "", true},
		{"empty list", nil, "http://evil.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"listed", []string{"http://pos.local"}, "http://pos.local", true},
		{"unlisted", []string{"http://pos.local"}, "http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, originAllowed(tt.allowed, tt.origin))
		})
	}
}

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn, wantType string) WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg WebSocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == wantType {
			return msg
		}
	}
}

func newWSServer(t *testing.T, env *testEnv) (*WebSocketHandler, *httptest.Server) {
	t.Helper()
	h := NewWebSocketHandler(env.service, env.bus, config.SecurityConfig{AllowedOrigins: []string{"http://pos.local"}}, zap.NewNop())

	r := gin.New()
	h.RegisterRoutes(r.Group("/ws"))
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		h.Close()
	})
	return h, server
}

func TestWebSocketHandler_EventStream(t *testing.T) {
	env := newTestEnv(t, "front")
	h, server := newWSServer(t, env)

	conn := dialWS(t, server, "/ws/events")

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping", RequestID: "r1"}))
	pong := readWS(t, conn, "pong")
	assert.Equal(t, "r1", pong.RequestID)

	assert.Eventually(t, func() bool {
		return h.GetConnectionStats().ByType[clientTypeEvents] == 1
	}, 2*time.Second, 5*time.Millisecond)

	env.channels["front"].Feed("4006381333931\r\n")

	msg := readWS(t, conn, "scanner_event")
	event := msg.Data.(map[string]interface{})
	assert.Equal(t, string(model.EventBarcodeScanned), event["event_type"])
	assert.Equal(t, "front", event["scanner"])
	assert.Equal(t, "4006381333931", event["data"].(map[string]interface{})["value"])
}

func TestWebSocketHandler_ScannerStream(t *testing.T) {
	env := newTestEnv(t, "front", "back")
	_, server := newWSServer(t, env)

	conn := dialWS(t, server, "/ws/scanners/front")

	initial := readWS(t, conn, "initial_status")
	assert.Equal(t, "front", initial.Data.(map[string]interface{})["name"])

	require.NoError(t, conn.WriteJSON(WebSocketMessage{
		Type: "subscribe",
		Data: map[string]interface{}{"event_type": string(model.EventBarcodeScanned)},
	}))
	readWS(t, conn, "subscribed")

	env.channels["back"].Feed("BACK\r\n")
	env.channels["front"].Feed("FRONT\r\n")

	msg := readWS(t, conn, "scanner_event")
	event := msg.Data.(map[string]interface{})
	assert.Equal(t, "front", event["scanner"])
	assert.Equal(t, "FRONT", event["data"].(map[string]interface{})["value"])
}

func TestWebSocketHandler_RejectsUnknownScannerAndOrigin(t *testing.T) {
	env := newTestEnv(t, "front")
	_, server := newWSServer(t, env)

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/scanners/missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(url+"/ws/events", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDiscoveryHandler_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	h := NewDiscoveryHandler(service.NewDiscoveryService(env.cfg, zap.NewNop()), zap.NewNop())

	r := gin.New()
	r.GET("/discovery/ports", h.ScanPorts)
	r.GET("/discovery/sources", h.GetSources)

	w, _ := doRequest(r, http.MethodGet, "/discovery/ports?min_confidence=2")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := doRequest(r, http.MethodGet, "/discovery/ports?type=bluetooth")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Details, "unsupported scan type")

	w, body = doRequest(r, http.MethodGet, "/discovery/ports?timeout=soon")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = doRequest(r, http.MethodGet, "/discovery/sources")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body.Data.(map[string]interface{})["sources"], "SERIAL")
}
