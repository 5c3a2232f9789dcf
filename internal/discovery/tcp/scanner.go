// Package tcp probes serial-to-ethernet bridge addresses
package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"barcode-service/internal/discovery"
	"barcode-service/internal/model"
)

const reachableConfidence = 0.4

// Config for the TCP source
type Config struct {
	Candidates    []string      `json:"candidates"`
	ConnTimeout   time.Duration `json:"connection_timeout"`
	MaxConcurrent int           `json:"max_concurrent"`
}

// Scanner implements discovery.Source by dialing candidate host:port pairs
type Scanner struct {
	logger *zap.Logger
	config *Config
	dialer *net.Dialer
}

// NewScanner creates a new TCP source
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{}
	}
	if config.ConnTimeout <= 0 {
		config.ConnTimeout = 2 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}

	return &Scanner{
		logger: logger.With(zap.String("source", "tcp")),
		config: config,
		dialer: &net.Dialer{Timeout: config.ConnTimeout},
	}
}

// GetSourceType returns the source type
func (s *Scanner) GetSourceType() string {
	return string(model.ConnectionTypeTCP)
}

// IsAvailable reports whether there is anything to probe
func (s *Scanner) IsAvailable() bool {
	return len(s.config.Candidates) > 0
}

// Scan dials every candidate and reports the ones that accept a connection
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	results := make([]*discovery.DiscoveredPort, len(s.config.Candidates))
	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i, address := range s.config.Candidates {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return collect(results), ctx.Err()
		}

		wg.Add(1)
		go func(i int, address string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.probe(ctx, address)
		}(i, address)
	}
	wg.Wait()

	ports := collect(results)
	s.logger.Info("TCP probe completed",
		zap.Int("candidates", len(s.config.Candidates)),
		zap.Int("reachable", len(ports)),
	)
	return ports, ctx.Err()
}

func (s *Scanner) probe(ctx context.Context, address string) *discovery.DiscoveredPort {
	conn, err := s.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		s.logger.Debug("Candidate not reachable", zap.String("address", address), zap.Error(err))
		return nil
	}
	conn.Close()

	return &discovery.DiscoveredPort{
		ConnectionType: model.ConnectionTypeTCP,
		Address:        address,
		Notes:          []string{"accepts TCP connections; no data was read"},
		Confidence:     reachableConfidence,
	}
}

func collect(results []*discovery.DiscoveredPort) []*discovery.DiscoveredPort {
	var ports []*discovery.DiscoveredPort
	for _, port := range results {
		if port != nil {
			ports = append(ports, port)
		}
	}
	return ports
}
