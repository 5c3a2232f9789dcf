// Package scanner turns the byte stream of a barcode scanner into barcode
// values.
//
// Each Scanner runs three goroutines over one protocol.Channel: a listener
// that polls the channel and appends non-empty reads to a RawBuffer, a
// drainer that periodically empties the buffer and splits it into values,
// and a supervisor that reopens the channel when it reports closed. Values
// are delivered synchronously, in order, to the registered observers on the
// drainer goroutine.
package scanner

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"barcode-service/internal/model"
	"barcode-service/internal/protocol"
	"barcode-service/internal/utils"
)

// Observer receives each barcode read by a scanner. Observers run on the
// drainer goroutine and must not block for long or call Close.
type Observer func(source *Scanner, barcode model.Barcode)

// Scanner is one running scanner pipeline
type Scanner struct {
	name      string
	cfg       Config
	channel   protocol.Channel
	logger    *zap.Logger
	conn      *utils.ScannerLogger
	metrics   *Metrics
	buffer    RawBuffer
	tokenizer *Tokenizer

	observersMu sync.RWMutex
	observers   map[uint64]Observer
	nextID      uint64

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	listenerDone chan struct{}
	closeOnce    sync.Once
	closed       chan struct{}

	// dispatching is set while observers run on the drainer goroutine
	dispatching atomic.Bool
}

// New opens the channel and starts the pipeline. If the channel cannot be
// opened, the error is returned and no goroutines are started.
func New(ctx context.Context, channel protocol.Channel, cfg *Config, logger *zap.Logger) (*Scanner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved := cfg.withDefaults(channel.Address())

	s := &Scanner{
		name:         resolved.Name,
		cfg:          resolved,
		channel:      channel,
		metrics:      resolved.Metrics,
		tokenizer:    NewTokenizer(resolved.Separators, resolved.Reassemble, resolved.MaxPartialSize),
		observers:    make(map[uint64]Observer),
		listenerDone: make(chan struct{}),
		closed:       make(chan struct{}),
	}
	s.logger = logger.With(
		zap.String("scanner", s.name),
		zap.String("address", channel.Address()),
	)
	s.conn = utils.NewScannerLogger(logger, s.name, string(channel.GetProtocolType()), channel.Address())

	for _, obs := range resolved.Observers {
		s.Subscribe(obs)
	}

	openCtx, cancelOpen := context.WithTimeout(ctx, resolved.OpenTimeout)
	err := channel.Open(openCtx)
	cancelOpen()
	if err != nil {
		s.conn.LogConnection("open", false, err)
		return nil, fmt.Errorf("failed to open scanner %s: %w", s.name, err)
	}
	s.conn.LogConnection("open", true, nil)
	s.metrics.SetConnected(s.name, true)

	// The pipeline outlives the construction context; only Close stops it.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(3)
	go s.listen()
	go s.drain()
	go s.supervise()

	s.logger.Info("Scanner started",
		zap.Int("separators", len(resolved.Separators)),
		zap.Bool("reassemble", resolved.Reassemble),
		zap.Duration("listen_interval", resolved.ListenInterval),
		zap.Duration("drain_interval", resolved.DrainInterval),
		zap.Duration("health_interval", resolved.HealthInterval),
	)
	return s, nil
}

// Name returns the scanner name
func (s *Scanner) Name() string {
	return s.name
}

// Address returns the channel address
func (s *Scanner) Address() string {
	return s.channel.Address()
}

// ConnectionType returns the channel's protocol type
func (s *Scanner) ConnectionType() model.ConnectionType {
	return s.channel.GetProtocolType()
}

// Connected reports whether the channel is open right now
func (s *Scanner) Connected() bool {
	return s.channel.IsOpen()
}

// Alive reports whether the pipeline is running (Close not yet called)
func (s *Scanner) Alive() bool {
	return s.ctx.Err() == nil
}

// Pending returns the number of chunks read but not yet tokenized
func (s *Scanner) Pending() int {
	return s.buffer.Len()
}

// Stats returns the channel counters
func (s *Scanner) Stats() model.ChannelStats {
	return s.channel.Stats()
}

// Subscribe registers an observer and returns a function that removes it
func (s *Scanner) Subscribe(obs Observer) func() {
	s.observersMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = obs
	s.observersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.observersMu.Lock()
			delete(s.observers, id)
			s.observersMu.Unlock()
		})
	}
}

// Close stops the loops and closes the channel. It is safe to call more
// than once and from several goroutines; every call returns nil. A Close
// made while observers are running (an observer closing its own scanner)
// does not wait: the shutdown finishes once the observers return.
func (s *Scanner) Close() error {
	wait := !s.dispatching.Load()
	s.closeOnce.Do(func() {
		s.cancel()
		go s.shutdown()
	})
	if wait {
		<-s.closed
	}
	return nil
}

func (s *Scanner) shutdown() {
	defer close(s.closed)

	s.wg.Wait()
	if err := s.channel.Close(); err != nil {
		s.logger.Debug("Closing channel failed", zap.Error(err))
	}
	s.metrics.SetConnected(s.name, false)
	s.logger.Info("Scanner closed")
}

// emit delivers one token to every observer in registration order
func (s *Scanner) emit(value string) {
	barcode := model.NewBarcode(s.name, value)
	s.metrics.barcode(s.name)
	s.conn.LogBarcode(barcode.ID.String(), value)

	s.dispatching.Store(true)
	defer s.dispatching.Store(false)

	for _, obs := range s.snapshotObservers() {
		s.notify(obs, barcode)
	}
}

func (s *Scanner) snapshotObservers() []Observer {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()

	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}

// notify isolates observer panics so one bad observer cannot stop delivery
func (s *Scanner) notify(obs Observer, barcode model.Barcode) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.observerPanic(s.name)
			s.logger.Error("Barcode observer panicked",
				zap.Any("panic", r),
				zap.String("barcode_id", barcode.ID.String()),
				zap.Stack("stacktrace"),
			)
		}
	}()
	obs(s, barcode)
}
