package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/events"
	"barcode-service/internal/model"
	"barcode-service/internal/protocol"
	"barcode-service/internal/protocol/protocoltest"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig(names ...string) *config.Config {
	cfg := &config.Config{
		Scanner: config.ScannerDefaults{
			RetryInterval:  30 * time.Millisecond,
			StatusInterval: 10 * time.Millisecond,
			RecentLimit:    3,
		},
	}
	for _, name := range names {
		cfg.Scanners = append(cfg.Scanners, config.ScannerConfig{
			Name:           name,
			Connection:     "serial",
			Address:        "/dev/" + name,
			ListenInterval: 2 * time.Millisecond,
			DrainInterval:  5 * time.Millisecond,
			HealthInterval: 10 * time.Millisecond,
			ReconnectPause: time.Millisecond,
			OpenTimeout:    time.Second,
		})
	}
	return cfg
}

// fakeFactory hands out one protocoltest.Channel per scanner name
type fakeFactory struct {
	mu       sync.Mutex
	channels map[string]*protocoltest.Channel
	errs     map[string]error
	calls    map[string]int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		channels: make(map[string]*protocoltest.Channel),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeFactory) channel(name string) *protocoltest.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[name]
	if !ok {
		ch = protocoltest.NewChannel("/dev/" + name)
		f.channels[name] = ch
	}
	return ch
}

func (f *fakeFactory) setErr(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeFactory) build(cfg config.ScannerConfig, _ *zap.Logger) (protocol.Channel, error) {
	f.mu.Lock()
	f.calls[cfg.Name]++
	err := f.errs[cfg.Name]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.channel(cfg.Name), nil
}

func newTestService(t *testing.T, cfg *config.Config, factory *fakeFactory, journal *ScanJournal) (*ScannerService, *events.Bus) {
	t.Helper()
	bus := events.NewBus(256, zap.NewNop())
	go bus.Start()

	ss := NewScannerService(cfg, factory.build, bus, journal, nil, zap.NewNop())
	t.Cleanup(func() {
		ss.Stop()
		bus.Stop()
	})
	return ss, bus
}

func nextEvent(t *testing.T, ch <-chan model.ScannerEvent, want model.EventType) model.ScannerEvent {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-ch:
			if ev.EventType == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return model.ScannerEvent{}
		}
	}
}

func TestScannerServiceDeliversBarcodes(t *testing.T) {
	factory := newFakeFactory()
	ss, bus := newTestService(t, testConfig("front"), factory, nil)
	barcodes := bus.Subscribe(model.EventBarcodeScanned)

	require.NoError(t, ss.Start(context.Background()))

	status, err := ss.Get("front")
	require.NoError(t, err)
	assert.Equal(t, model.ScannerStateOnline, status.State)
	assert.True(t, status.Connected)

	factory.channel("front").Feed("4006381333931\r\n", "9780201379624\r\n")

	ev := nextEvent(t, barcodes, model.EventBarcodeScanned)
	assert.Equal(t, "front", ev.Scanner)
	assert.Equal(t, "4006381333931", ev.Data["value"])
	ev = nextEvent(t, barcodes, model.EventBarcodeScanned)
	assert.Equal(t, "9780201379624", ev.Data["value"])

	recent, err := ss.RecentBarcodes("front", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "9780201379624", recent[0].Value)
	assert.Equal(t, "4006381333931", recent[1].Value)

	status, err = ss.Get("front")
	require.NoError(t, err)
	assert.EqualValues(t, 2, status.Barcodes)
	require.NotNil(t, status.LastBarcodeAt)
	require.NotNil(t, status.Channel)
	assert.EqualValues(t, 2, status.Channel.ChunksRead)
}

func TestScannerServiceRecentRingIsBounded(t *testing.T) {
	factory := newFakeFactory()
	ss, bus := newTestService(t, testConfig("front"), factory, nil)
	barcodes := bus.Subscribe(model.EventBarcodeScanned)
	require.NoError(t, ss.Start(context.Background()))

	factory.channel("front").Feed("A\n", "B\n", "C\n", "D\n", "E\n")
	for range 5 {
		nextEvent(t, barcodes, model.EventBarcodeScanned)
	}

	recent, err := ss.RecentBarcodes("front", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"E", "D", "C"}, []string{recent[0].Value, recent[1].Value, recent[2].Value})

	recent, err = ss.RecentBarcodes("front", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "E", recent[0].Value)
}

func TestScannerServiceUnknownScanner(t *testing.T) {
	ss, _ := newTestService(t, testConfig("front"), newFakeFactory(), nil)

	_, err := ss.Get("back")
	assert.ErrorIs(t, err, ErrScannerNotFound)
	_, err = ss.RecentBarcodes("back", 5)
	assert.ErrorIs(t, err, ErrScannerNotFound)
	_, err = ss.Restart(context.Background(), "back")
	assert.ErrorIs(t, err, ErrScannerNotFound)
}

func TestScannerServiceSkipsDisabled(t *testing.T) {
	cfg := testConfig("front", "back")
	disabled := false
	cfg.Scanners[1].Enabled = &disabled

	ss, _ := newTestService(t, cfg, newFakeFactory(), nil)
	statuses := ss.List()
	require.Len(t, statuses, 1)
	assert.Equal(t, "front", statuses[0].Name)
}

func TestScannerServiceRetriesFailedScanner(t *testing.T) {
	factory := newFakeFactory()
	factory.channel("front").SetOpenError(protocoltest.ErrOffline)

	ss, bus := newTestService(t, testConfig("front"), factory, nil)
	connected := bus.Subscribe(model.EventScannerConnected)

	require.NoError(t, ss.Start(context.Background()))

	status, err := ss.Get("front")
	require.NoError(t, err)
	assert.Equal(t, model.ScannerStateFailed, status.State)
	require.NotNil(t, status.LastError)
	assert.Contains(t, *status.LastError, "device offline")

	factory.channel("front").SetOpenError(nil)
	nextEvent(t, connected, model.EventScannerConnected)

	assert.Eventually(t, func() bool {
		status, err := ss.Get("front")
		return err == nil && status.State == model.ScannerStateOnline && status.LastError == nil
	}, waitFor, tick)
}

func TestScannerServiceFactoryError(t *testing.T) {
	factory := newFakeFactory()
	factory.setErr("front", errors.New("invalid usb address"))

	ss, bus := newTestService(t, testConfig("front"), factory, nil)
	failed := bus.Subscribe(model.EventScannerFailed)
	require.NoError(t, ss.Start(context.Background()))

	ev := nextEvent(t, failed, model.EventScannerFailed)
	assert.Equal(t, "front", ev.Scanner)
	assert.Equal(t, "ERROR", ev.Severity)

	status, err := ss.Get("front")
	require.NoError(t, err)
	assert.Equal(t, model.ScannerStateFailed, status.State)
	assert.Equal(t, "/dev/front", status.Address)
	assert.Equal(t, model.ConnectionTypeSerial, status.ConnectionType)
}

func TestScannerServiceTracksDisconnects(t *testing.T) {
	factory := newFakeFactory()
	ss, bus := newTestService(t, testConfig("front"), factory, nil)
	disconnected := bus.Subscribe(model.EventScannerDisconnected)
	connected := bus.Subscribe(model.EventScannerConnected)

	require.NoError(t, ss.Start(context.Background()))
	nextEvent(t, connected, model.EventScannerConnected)

	factory.channel("front").Unplug()
	nextEvent(t, disconnected, model.EventScannerDisconnected)

	status, err := ss.Get("front")
	require.NoError(t, err)
	assert.Equal(t, model.ScannerStateOffline, status.State)

	factory.channel("front").Plug()
	nextEvent(t, connected, model.EventScannerConnected)

	assert.Eventually(t, func() bool {
		status, err := ss.Get("front")
		return err == nil && status.State == model.ScannerStateOnline
	}, waitFor, tick)
}

func TestScannerServiceRestart(t *testing.T) {
	factory := newFakeFactory()
	ss, _ := newTestService(t, testConfig("front"), factory, nil)
	require.NoError(t, ss.Start(context.Background()))

	opens := factory.channel("front").Opens()
	status, err := ss.Restart(context.Background(), "front")
	require.NoError(t, err)
	assert.Equal(t, model.ScannerStateOnline, status.State)
	assert.Greater(t, factory.channel("front").Opens(), opens)
}

func TestScannerServiceStop(t *testing.T) {
	factory := newFakeFactory()
	ss, _ := newTestService(t, testConfig("front", "back"), factory, nil)
	require.NoError(t, ss.Start(context.Background()))

	ss.Stop()
	ss.Stop()

	for _, status := range ss.List() {
		assert.Equal(t, model.ScannerStateStopped, status.State)
		assert.False(t, status.Connected)
	}
	assert.False(t, factory.channel("front").IsOpen())
	assert.False(t, factory.channel("back").IsOpen())

	_, err := ss.Restart(context.Background(), "front")
	assert.Error(t, err)
}

func TestScannerServiceJournalsBarcodes(t *testing.T) {
	repo := newMemoryScanRepo()
	journal := NewScanJournal(repo, config.JournalConfig{QueueSize: 16}, zap.NewNop())
	journal.Start()
	defer journal.Stop()

	factory := newFakeFactory()
	ss, _ := newTestService(t, testConfig("front"), factory, journal)
	require.NoError(t, ss.Start(context.Background()))

	factory.channel("front").Feed("ABC-123\n")

	assert.Eventually(t, func() bool { return repo.count() == 1 }, waitFor, tick)
	record := repo.all()[0]
	assert.Equal(t, "front", record.ScannerName)
	assert.Equal(t, "ABC-123", record.Value)
	assert.Equal(t, model.ConnectionTypeSerial, record.ConnectionType)
	assert.Equal(t, "/dev/front", record.Address)
}
