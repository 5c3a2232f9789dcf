// internal/service/scanner_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/events"
	"barcode-service/internal/model"
	"barcode-service/internal/protocol"
	"barcode-service/internal/scanner"
	"barcode-service/internal/utils"
)

// ErrScannerNotFound is returned for names that are not configured
var ErrScannerNotFound = errors.New("scanner not found")

// ScannerService runs every configured scanner, fans barcodes out to the
// event bus and the journal, and restarts scanners whose construction failed
type ScannerService struct {
	config  *config.Config
	factory protocol.Factory
	bus     *events.Bus
	journal *ScanJournal
	metrics *scanner.Metrics
	logger  *utils.ServiceLogger

	mu       sync.RWMutex
	scanners map[string]*managedScanner
	order    []string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// managedScanner tracks one configured scanner across restarts
type managedScanner struct {
	cfg      config.ScannerConfig
	connType model.ConnectionType
	limit    int

	mu            sync.RWMutex
	scanner       *scanner.Scanner
	starting      bool
	state         model.ScannerState
	lastErr       error
	since         time.Time
	nextRetry     time.Time
	barcodes      int64
	lastBarcodeAt *time.Time
	recent        []model.Barcode
}

// NewScannerService creates a new scanner service. bus and journal may be nil.
func NewScannerService(
	cfg *config.Config,
	factory protocol.Factory,
	bus *events.Bus,
	journal *ScanJournal,
	metrics *scanner.Metrics,
	logger *zap.Logger,
) *ScannerService {
	if factory == nil {
		factory = protocol.NewChannel
	}

	ss := &ScannerService{
		config:   cfg,
		factory:  factory,
		bus:      bus,
		journal:  journal,
		metrics:  metrics,
		logger:   utils.NewServiceLogger(logger, "scanner-service"),
		scanners: make(map[string]*managedScanner),
	}
	ss.ctx, ss.cancel = context.WithCancel(context.Background())

	for _, sc := range cfg.Scanners {
		if !sc.IsEnabled() {
			ss.logger.Info("Scanner disabled in config", zap.String("scanner", sc.Name))
			continue
		}
		connType, _ := model.ParseConnectionType(sc.Connection)
		ss.scanners[sc.Name] = &managedScanner{
			cfg:      sc,
			connType: connType,
			limit:    cfg.Scanner.RecentLimit,
			state:    model.ScannerStateOffline,
			since:    time.Now().UTC(),
		}
		ss.order = append(ss.order, sc.Name)
	}

	return ss
}

// Start opens every scanner and launches the monitor. A scanner that cannot
// be opened is marked FAILED and retried; Start itself only fails on a
// cancelled context.
func (ss *ScannerService) Start(ctx context.Context) error {
	for _, name := range ss.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		ss.startScanner(ctx, ss.scanners[name])
	}

	ss.wg.Add(1)
	go ss.monitor()

	ss.logger.Info("Scanner service started", zap.Int("scanners", len(ss.order)))
	return nil
}

// Stop closes every scanner. Safe to call more than once.
func (ss *ScannerService) Stop() {
	ss.stopOnce.Do(func() {
		ss.cancel()
		ss.wg.Wait()

		for _, name := range ss.order {
			m := ss.scanners[name]
			m.mu.Lock()
			sc := m.scanner
			m.scanner = nil
			m.setState(model.ScannerStateStopped, nil)
			m.mu.Unlock()

			if sc != nil {
				sc.Close()
			}
		}

		ss.logger.LogServiceStop("shutdown")
	})
}

// List returns the status of every configured scanner, in config order
func (ss *ScannerService) List() []*model.ScannerStatus {
	statuses := make([]*model.ScannerStatus, 0, len(ss.order))
	for _, name := range ss.order {
		statuses = append(statuses, ss.scanners[name].status())
	}
	return statuses
}

// Get returns the status of one scanner
func (ss *ScannerService) Get(name string) (*model.ScannerStatus, error) {
	m, ok := ss.scanners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScannerNotFound, name)
	}
	return m.status(), nil
}

// RecentBarcodes returns up to limit of the newest barcodes, newest first
func (ss *ScannerService) RecentBarcodes(name string, limit int) ([]model.Barcode, error) {
	m, ok := ss.scanners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScannerNotFound, name)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Barcode, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.recent[i])
	}
	return out, nil
}

// Restart closes and reopens one scanner
func (ss *ScannerService) Restart(ctx context.Context, name string) (*model.ScannerStatus, error) {
	m, ok := ss.scanners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScannerNotFound, name)
	}
	if ss.ctx.Err() != nil {
		return nil, errors.New("scanner service is stopped")
	}

	m.mu.Lock()
	sc := m.scanner
	m.scanner = nil
	m.mu.Unlock()

	if sc != nil {
		sc.Close()
	}

	ss.logger.Info("Restarting scanner", zap.String("scanner", name))
	ss.startScanner(ctx, m)
	return m.status(), nil
}

// startScanner builds the channel and pipeline for one scanner
func (ss *ScannerService) startScanner(ctx context.Context, m *managedScanner) {
	m.mu.Lock()
	if m.starting || m.scanner != nil {
		m.mu.Unlock()
		return
	}
	m.starting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	logger := ss.logger.Logger.With(zap.String("connection", m.cfg.Connection))

	channel, err := ss.factory(m.cfg, logger)
	if err != nil {
		ss.markFailed(m, err)
		return
	}

	cfg := scanner.ConfigFromScanner(m.cfg)
	cfg.Metrics = ss.metrics
	cfg.Observers = []scanner.Observer{ss.observer(m)}

	sc, err := scanner.New(ctx, channel, cfg, logger)
	if err != nil {
		ss.markFailed(m, err)
		return
	}

	m.mu.Lock()
	if ss.ctx.Err() != nil {
		// Stop won the race; do not leak the pipeline.
		m.mu.Unlock()
		sc.Close()
		return
	}
	m.scanner = sc
	m.setState(model.ScannerStateOnline, nil)
	m.mu.Unlock()

	ss.publish(model.NewStatusEvent(model.EventScannerConnected, m.cfg.Name, map[string]any{
		"address":         sc.Address(),
		"connection_type": string(sc.ConnectionType()),
	}))
}

func (ss *ScannerService) markFailed(m *managedScanner, err error) {
	retry := ss.config.Scanner.RetryInterval

	m.mu.Lock()
	m.setState(model.ScannerStateFailed, err)
	m.nextRetry = time.Now().Add(retry)
	m.mu.Unlock()

	ss.metrics.SetConnected(m.cfg.Name, false)
	ss.logger.Warn("Scanner failed to start",
		zap.String("scanner", m.cfg.Name),
		zap.String("address", m.cfg.Address),
		zap.Duration("retry_in", retry),
		zap.Error(err),
	)
	ss.publish(model.NewStatusEvent(model.EventScannerFailed, m.cfg.Name, map[string]any{
		"address": m.cfg.Address,
		"error":   err.Error(),
	}))
}

// observer fans one scanner's barcodes out to the ring, bus and journal
func (ss *ScannerService) observer(m *managedScanner) scanner.Observer {
	return func(source *scanner.Scanner, barcode model.Barcode) {
		m.remember(barcode)
		ss.publish(model.NewBarcodeEvent(barcode))
		if ss.journal != nil {
			ss.journal.Record(model.NewScanRecord(barcode, source.ConnectionType(), source.Address()))
		}
	}
}

// monitor polls connection state and retries failed scanners
func (ss *ScannerService) monitor() {
	defer ss.wg.Done()

	interval := ss.config.Scanner.StatusInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.ctx.Done():
			return
		case <-ticker.C:
			for _, name := range ss.order {
				ss.poll(ss.scanners[name])
			}
		}
	}
}

func (ss *ScannerService) poll(m *managedScanner) {
	m.mu.Lock()
	sc := m.scanner
	state := m.state
	due := state == model.ScannerStateFailed && !time.Now().Before(m.nextRetry)

	var transition model.EventType
	if sc != nil {
		connected := sc.Connected()
		switch {
		case connected && state != model.ScannerStateOnline:
			m.setState(model.ScannerStateOnline, nil)
			transition = model.EventScannerConnected
		case !connected && state == model.ScannerStateOnline:
			m.setState(model.ScannerStateOffline, nil)
			transition = model.EventScannerDisconnected
		}
	}
	m.mu.Unlock()

	if transition != "" {
		ss.logger.Info("Scanner state changed",
			zap.String("scanner", m.cfg.Name),
			zap.String("event", string(transition)),
		)
		ss.publish(model.NewStatusEvent(transition, m.cfg.Name, map[string]any{
			"address": sc.Address(),
		}))
	}

	if sc == nil && due {
		ss.startScanner(ss.ctx, m)
	}
}

func (ss *ScannerService) publish(event model.ScannerEvent) {
	if ss.bus != nil {
		ss.bus.Publish(event)
	}
}

// setState must be called with m.mu held
func (m *managedScanner) setState(state model.ScannerState, err error) {
	if m.state != state {
		m.since = time.Now().UTC()
	}
	m.state = state
	m.lastErr = err
}

func (m *managedScanner) remember(barcode model.Barcode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.barcodes++
	at := barcode.ScannedAt
	m.lastBarcodeAt = &at

	if m.limit <= 0 {
		return
	}
	m.recent = append(m.recent, barcode)
	if over := len(m.recent) - m.limit; over > 0 {
		m.recent = append(m.recent[:0:0], m.recent[over:]...)
	}
}

func (m *managedScanner) status() *model.ScannerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := &model.ScannerStatus{
		Name:           m.cfg.Name,
		Address:        m.cfg.Address,
		ConnectionType: m.connType,
		State:          m.state,
		Barcodes:       m.barcodes,
		LastBarcodeAt:  m.lastBarcodeAt,
		Since:          m.since,
	}
	if m.lastErr != nil {
		msg := m.lastErr.Error()
		status.LastError = &msg
	}
	if m.scanner != nil {
		stats := m.scanner.Stats()
		status.Address = m.scanner.Address()
		status.Connected = m.scanner.Connected()
		status.Pending = m.scanner.Pending()
		status.Channel = &stats
	}
	return status
}
