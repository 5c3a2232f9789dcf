package scanner

import (
	"time"

	"barcode-service/internal/config"
)

// Default loop timings
const (
	DefaultListenInterval = 50 * time.Millisecond
	DefaultDrainInterval  = 100 * time.Millisecond
	DefaultHealthInterval = time.Second
	DefaultReconnectPause = 500 * time.Millisecond
	DefaultOpenTimeout    = 5 * time.Second
)

// DefaultSeparators are carriage return and line feed
var DefaultSeparators = []rune{'\r', '\n'}

// Config parameterizes one scanner pipeline
type Config struct {
	// Name labels logs, metrics and barcodes. Defaults to the channel address.
	Name string

	Separators []rune

	// Reassemble carries unterminated text across chunks instead of
	// emitting it as a separate value.
	Reassemble     bool
	MaxPartialSize int

	ListenInterval time.Duration
	DrainInterval  time.Duration
	HealthInterval time.Duration
	ReconnectPause time.Duration

	// OpenTimeout bounds each Open call made by New and the supervisor.
	OpenTimeout time.Duration

	// Observers registered before the loops start, so no value is missed.
	Observers []Observer

	// Metrics may be nil.
	Metrics *Metrics
}

// DefaultConfig returns a config with the default separators and timings
func DefaultConfig() *Config {
	return &Config{
		Separators:     append([]rune(nil), DefaultSeparators...),
		MaxPartialSize: DefaultMaxPartialSize,
		ListenInterval: DefaultListenInterval,
		DrainInterval:  DefaultDrainInterval,
		HealthInterval: DefaultHealthInterval,
		ReconnectPause: DefaultReconnectPause,
		OpenTimeout:    DefaultOpenTimeout,
	}
}

// ConfigFromScanner translates a scanner config entry
func ConfigFromScanner(sc config.ScannerConfig) *Config {
	cfg := DefaultConfig()
	cfg.Name = sc.Name
	if seps := sc.SeparatorRunes(); len(seps) > 0 {
		cfg.Separators = seps
	}
	cfg.Reassemble = sc.ShouldReassemble()
	if sc.MaxPartialSize > 0 {
		cfg.MaxPartialSize = sc.MaxPartialSize
	}
	if sc.ListenInterval > 0 {
		cfg.ListenInterval = sc.ListenInterval
	}
	if sc.DrainInterval > 0 {
		cfg.DrainInterval = sc.DrainInterval
	}
	if sc.HealthInterval > 0 {
		cfg.HealthInterval = sc.HealthInterval
	}
	if sc.ReconnectPause > 0 {
		cfg.ReconnectPause = sc.ReconnectPause
	}
	if sc.OpenTimeout > 0 {
		cfg.OpenTimeout = sc.OpenTimeout
	}
	return cfg
}

// withDefaults returns a copy with zero fields filled in
func (c *Config) withDefaults(address string) Config {
	out := *c
	if out.Name == "" {
		out.Name = address
	}
	if len(out.Separators) == 0 {
		out.Separators = append([]rune(nil), DefaultSeparators...)
	} else {
		out.Separators = append([]rune(nil), out.Separators...)
	}
	if out.MaxPartialSize <= 0 {
		out.MaxPartialSize = DefaultMaxPartialSize
	}
	if out.ListenInterval <= 0 {
		out.ListenInterval = DefaultListenInterval
	}
	if out.DrainInterval <= 0 {
		out.DrainInterval = DefaultDrainInterval
	}
	if out.HealthInterval <= 0 {
		out.HealthInterval = DefaultHealthInterval
	}
	if out.ReconnectPause < 0 {
		out.ReconnectPause = 0
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = DefaultOpenTimeout
	}
	out.Observers = append([]Observer(nil), out.Observers...)
	return out
}
