// Package discovery enumerates ports that may have a barcode scanner
// attached, so operators can fill in the scanners section of the config.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"barcode-service/internal/model"
)

// Source enumerates candidate ports of one connection type
type Source interface {
	Scan(ctx context.Context) ([]*DiscoveredPort, error)
	GetSourceType() string
	IsAvailable() bool
}

// DiscoveredPort is a port that may carry a scanner
type DiscoveredPort struct {
	ConnectionType model.ConnectionType `json:"connection_type"`
	Address        string               `json:"address"`
	Vendor         string               `json:"vendor,omitempty"`
	Product        string               `json:"product,omitempty"`
	VendorID       string               `json:"vendor_id,omitempty"`
	ProductID      string               `json:"product_id,omitempty"`
	SerialNumber   string               `json:"serial_number,omitempty"`
	Interface      *int                 `json:"interface,omitempty"`
	Endpoint       *int                 `json:"endpoint,omitempty"`
	Notes          []string             `json:"notes,omitempty"`
	Confidence     float64              `json:"confidence"` // 0.0-1.0
}

// Key identifies a port across sources
func (p *DiscoveredPort) Key() string {
	return fmt.Sprintf("%s|%s|%s:%s|%s", p.ConnectionType, p.Address, p.VendorID, p.ProductID, p.SerialNumber)
}

// Manager runs the registered sources
type Manager struct {
	mu      sync.RWMutex
	sources map[string]Source
	logger  *zap.Logger
}

// NewManager creates a new discovery manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sources: make(map[string]Source),
		logger:  logger,
	}
}

// RegisterSource registers a port source, replacing one of the same type
func (m *Manager) RegisterSource(source Source) {
	m.mu.Lock()
	m.sources[source.GetSourceType()] = source
	m.mu.Unlock()
	m.logger.Info("Discovery source registered", zap.String("type", source.GetSourceType()))
}

// ScanAll runs every available source. A failing source is logged and skipped.
func (m *Manager) ScanAll(ctx context.Context) ([]*DiscoveredPort, error) {
	var all []*DiscoveredPort

	for _, sourceType := range m.sourceTypes() {
		source := m.source(sourceType)
		if !source.IsAvailable() {
			m.logger.Debug("Discovery source not available, skipping", zap.String("type", sourceType))
			continue
		}

		ports, err := source.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Rank(all), ctx.Err()
			}
			m.logger.Error("Discovery source failed", zap.String("type", sourceType), zap.Error(err))
			continue
		}

		all = append(all, ports...)
		m.logger.Info("Discovery source completed",
			zap.String("type", sourceType),
			zap.Int("ports_found", len(ports)),
		)
	}

	return Rank(all), nil
}

// ScanByType runs one source
func (m *Manager) ScanByType(ctx context.Context, sourceType string) ([]*DiscoveredPort, error) {
	source := m.source(sourceType)
	if source == nil {
		return nil, fmt.Errorf("discovery source not found: %s", sourceType)
	}

	if !source.IsAvailable() {
		return nil, fmt.Errorf("discovery source not available: %s", sourceType)
	}

	ports, err := source.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(ports), nil
}

// GetAvailableSources returns the available source types, sorted
func (m *Manager) GetAvailableSources() []string {
	var available []string
	for _, sourceType := range m.sourceTypes() {
		if m.source(sourceType).IsAvailable() {
			available = append(available, sourceType)
		}
	}
	return available
}

func (m *Manager) source(sourceType string) Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[sourceType]
}

func (m *Manager) sourceTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.sources))
	for t := range m.sources {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Rank removes duplicates and orders ports by confidence, highest first
func Rank(ports []*DiscoveredPort) []*DiscoveredPort {
	seen := make(map[string]bool, len(ports))
	unique := make([]*DiscoveredPort, 0, len(ports))

	for _, port := range ports {
		if port == nil {
			continue
		}
		key := port.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, port)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Confidence > unique[j].Confidence
	})
	return unique
}
