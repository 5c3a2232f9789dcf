// Package serial lists serial ports through the OS enumerator
package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"barcode-service/internal/discovery"
	"barcode-service/internal/model"
	"barcode-service/internal/protocol"
)

const (
	usbUnknownConfidence  = 0.3
	nativePortConfidence  = 0.2
	virtualPortConfidence = 0.05
)

// listPorts is replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// Scanner implements discovery.Source for serial ports
type Scanner struct {
	logger  *zap.Logger
	vendors *discovery.VendorDatabase
}

// NewScanner creates a new serial port source
func NewScanner(logger *zap.Logger, vendors *discovery.VendorDatabase) *Scanner {
	if vendors == nil {
		vendors = discovery.NewVendorDatabase()
	}
	return &Scanner{
		logger:  logger.With(zap.String("source", "serial")),
		vendors: vendors,
	}
}

// GetSourceType returns the source type
func (s *Scanner) GetSourceType() string {
	return string(model.ConnectionTypeSerial)
}

// IsAvailable reports whether serial enumeration works here
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the serial ports the OS knows about
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	ports := make([]*discovery.DiscoveredPort, 0, len(details))
	for _, detail := range details {
		if err := ctx.Err(); err != nil {
			return ports, err
		}
		if detail == nil || detail.Name == "" {
			continue
		}
		ports = append(ports, s.describe(detail))
	}

	s.logger.Debug("Serial ports enumerated", zap.Int("ports", len(ports)))
	return ports, nil
}

func (s *Scanner) describe(detail *enumerator.PortDetails) *discovery.DiscoveredPort {
	port := &discovery.DiscoveredPort{
		ConnectionType: model.ConnectionTypeSerial,
		Address:        detail.Name,
		Product:        detail.Product,
		SerialNumber:   detail.SerialNumber,
	}

	if !detail.IsUSB {
		port.Confidence = nativePortConfidence
		if isVirtualPort(detail.Name) {
			port.Confidence = virtualPortConfidence
			port.Notes = append(port.Notes, "pseudo terminal or virtual port")
		}
		return port
	}

	port.VendorID = strings.ToLower(detail.VID)
	port.ProductID = strings.ToLower(detail.PID)

	vendorID, vidErr := protocol.ParseHexID(detail.VID)
	productID, pidErr := protocol.ParseHexID(detail.PID)
	if vidErr != nil || pidErr != nil {
		port.Confidence = usbUnknownConfidence
		return port
	}

	port.Confidence = s.vendors.Identify(port, vendorID, productID, usbUnknownConfidence)
	if port.Product == "" {
		port.Product = detail.Product
	}
	return port
}

func isVirtualPort(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "/dev/pts/") ||
		strings.Contains(lower, "/dev/ptmx") ||
		strings.HasPrefix(lower, "/dev/tnt")
}
