// internal/service/discovery_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/discovery"
	"barcode-service/internal/discovery/serial"
	"barcode-service/internal/discovery/tcp"
	"barcode-service/internal/discovery/usb"
	"barcode-service/internal/model"
	"barcode-service/internal/utils"
)

// ErrInvalidScanRequest wraps bad scan types and timeouts
var ErrInvalidScanRequest = errors.New("invalid scan request")

// ScanRequest selects which sources to run
type ScanRequest struct {
	ScanType      string  `json:"scan_type" form:"type"`
	Timeout       string  `json:"timeout" form:"timeout"`
	MinConfidence float64 `json:"min_confidence" form:"min_confidence"`
}

// SuggestedScanner pairs a discovered port with a ready-to-paste config entry
type SuggestedScanner struct {
	Port   *discovery.DiscoveredPort `json:"port"`
	Config config.ScannerConfig      `json:"config"`
	InUse  bool                      `json:"in_use"`
}

// DiscoveryService finds ports that may carry scanners
type DiscoveryService struct {
	manager *discovery.Manager
	config  *config.Config
	logger  *utils.ServiceLogger
}

// NewDiscoveryService creates a discovery service with the serial, USB and
// TCP sources registered
func NewDiscoveryService(cfg *config.Config, logger *zap.Logger) *DiscoveryService {
	manager := discovery.NewManager(logger)
	vendors := discovery.NewVendorDatabase()

	manager.RegisterSource(serial.NewScanner(logger, vendors))
	manager.RegisterSource(usb.NewScanner(logger, vendors, nil))
	manager.RegisterSource(tcp.NewScanner(logger, &tcp.Config{
		Candidates: tcpCandidates(cfg),
	}))

	return newDiscoveryService(manager, cfg, logger)
}

func newDiscoveryService(manager *discovery.Manager, cfg *config.Config, logger *zap.Logger) *DiscoveryService {
	ds := &DiscoveryService{
		manager: manager,
		config:  cfg,
		logger:  utils.NewServiceLogger(logger, "discovery-service"),
	}
	ds.logger.Info("Discovery sources initialized",
		zap.Strings("available_sources", manager.GetAvailableSources()),
	)
	return ds
}

// ScanPorts runs the requested sources
func (ds *DiscoveryService) ScanPorts(ctx context.Context, req *ScanRequest) ([]*discovery.DiscoveredPort, error) {
	scanType := strings.ToLower(req.ScanType)
	if scanType == "" {
		scanType = "all"
	}

	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: timeout %q: %v", ErrInvalidScanRequest, req.Timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ds.logger.Info("Starting port scan", zap.String("type", scanType))

	var ports []*discovery.DiscoveredPort
	var err error

	switch scanType {
	case "all":
		ports, err = ds.manager.ScanAll(ctx)
	case "serial", "usb", "tcp":
		connType, _ := model.ParseConnectionType(scanType)
		ports, err = ds.manager.ScanByType(ctx, string(connType))
	default:
		return nil, fmt.Errorf("%w: unsupported scan type %s", ErrInvalidScanRequest, req.ScanType)
	}

	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	filtered := ports[:0]
	for _, port := range ports {
		if port.Confidence >= req.MinConfidence {
			filtered = append(filtered, port)
		}
	}

	ds.logger.Info("Port scan completed",
		zap.Int("ports_found", len(filtered)),
		zap.String("scan_type", scanType),
	)
	return filtered, nil
}

// SuggestScanners scans and turns each port into a scanner config entry.
// Ports already used by a configured scanner are flagged rather than hidden.
func (ds *DiscoveryService) SuggestScanners(ctx context.Context, req *ScanRequest) ([]*SuggestedScanner, error) {
	ports, err := ds.ScanPorts(ctx, req)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool, len(ds.config.Scanners))
	for _, sc := range ds.config.Scanners {
		used[strings.ToLower(sc.Connection)+"|"+sc.Address] = true
	}

	suggestions := make([]*SuggestedScanner, 0, len(ports))
	for i, port := range ports {
		sc := ds.suggestConfig(port, i+1)
		suggestions = append(suggestions, &SuggestedScanner{
			Port:   port,
			Config: sc,
			InUse:  used[sc.Connection+"|"+sc.Address],
		})
	}
	return suggestions, nil
}

// GetAvailableSources lists the usable discovery sources
func (ds *DiscoveryService) GetAvailableSources() []string {
	return ds.manager.GetAvailableSources()
}

func (ds *DiscoveryService) suggestConfig(port *discovery.DiscoveredPort, n int) config.ScannerConfig {
	defaults := ds.config.Scanner
	connection := strings.ToLower(string(port.ConnectionType))

	sc := config.ScannerConfig{
		Name:       fmt.Sprintf("%s-scanner-%d", connection, n),
		Connection: connection,
		Address:    port.Address,
		Separators: defaults.Separators,
		Serial:     defaults.Serial,
		TCP:        defaults.TCP,
		USB:        defaults.USB,
	}
	if port.Interface != nil {
		sc.USB.Interface = *port.Interface
	}
	if port.Endpoint != nil {
		sc.USB.Endpoint = *port.Endpoint
	}
	return sc
}

// tcpCandidates probes the bridges already configured
func tcpCandidates(cfg *config.Config) []string {
	var candidates []string
	for _, sc := range cfg.Scanners {
		if strings.EqualFold(sc.Connection, "tcp") {
			candidates = append(candidates, sc.Address)
		}
	}
	return candidates
}
