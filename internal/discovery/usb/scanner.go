// Package usb lists USB devices that expose a raw IN endpoint a scanner
// could be read from
package usb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"barcode-service/internal/discovery"
	"barcode-service/internal/model"
)

const (
	hidConfidence        = 0.3
	vendorSpecConfidence = 0.25

	hidSubClassBoot     = 1
	hidProtocolKeyboard = 1
	defaultScanTimeout  = 10 * time.Second
)

// Config for the USB source
type Config struct {
	ScanTimeout time.Duration `json:"scan_timeout"`
	EnableDebug bool          `json:"enable_debug"`
}

// enumerate is replaced in tests
var enumerate = func(debug int) ([]*gousb.DeviceDesc, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	ctx.Debug(debug)

	var descs []*gousb.DeviceDesc
	// Collect descriptors only; returning false keeps every device closed.
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		descs = append(descs, desc)
		return false
	})
	return descs, err
}

// Scanner implements discovery.Source for raw USB devices
type Scanner struct {
	logger  *zap.Logger
	vendors *discovery.VendorDatabase
	config  *Config
}

// NewScanner creates a new USB source
func NewScanner(logger *zap.Logger, vendors *discovery.VendorDatabase, config *Config) *Scanner {
	if config == nil {
		config = &Config{}
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = defaultScanTimeout
	}
	if vendors == nil {
		vendors = discovery.NewVendorDatabase()
	}

	return &Scanner{
		logger:  logger.With(zap.String("source", "usb")),
		vendors: vendors,
		config:  config,
	}
}

// GetSourceType returns the source type
func (s *Scanner) GetSourceType() string {
	return string(model.ConnectionTypeUSB)
}

// IsAvailable checks if libusb enumeration is supported on this OS
func (s *Scanner) IsAvailable() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		return true
	default:
		return false
	}
}

// Scan enumerates USB descriptors without opening any device
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	startTime := time.Now()

	debugLevel := 0
	if s.config.EnableDebug {
		debugLevel = 3
	}

	type result struct {
		descs []*gousb.DeviceDesc
		err   error
	}
	done := make(chan result, 1)
	go func() {
		descs, err := enumerate(debugLevel)
		done <- result{descs: descs, err: err}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	var res result
	select {
	case res = <-done:
	case <-scanCtx.Done():
		return nil, fmt.Errorf("USB enumeration did not finish: %w", scanCtx.Err())
	}

	if res.err != nil && len(res.descs) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", res.err)
	}
	if res.err != nil {
		s.logger.Warn("USB enumeration returned partial results", zap.Error(res.err))
	}

	var ports []*discovery.DiscoveredPort
	for _, desc := range res.descs {
		if port := describeDevice(s.vendors, desc); port != nil {
			ports = append(ports, port)
		}
	}

	s.logger.Info("USB scan completed",
		zap.Int("devices_examined", len(res.descs)),
		zap.Int("ports_found", len(ports)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return ports, nil
}

// describeDevice returns nil for devices that cannot be read as a raw channel
func describeDevice(vendors *discovery.VendorDatabase, desc *gousb.DeviceDesc) *discovery.DiscoveredPort {
	if desc == nil {
		return nil
	}

	if info := vendors.GetVendorInfo(desc.Vendor); info != nil && info.Kind == discovery.VendorKindBridge {
		// Bridges are opened through their tty and show up in the serial source.
		return nil
	}

	setting, endpoint, ok := findInEndpoint(desc)
	if !ok {
		return nil
	}

	port := &discovery.DiscoveredPort{
		ConnectionType: model.ConnectionTypeUSB,
		Address:        fmt.Sprintf("%s:%s", desc.Vendor, desc.Product),
		VendorID:       desc.Vendor.String(),
		ProductID:      desc.Product.String(),
		Interface:      &setting.Number,
		Endpoint:       &endpoint.Number,
		Notes:          []string{fmt.Sprintf("bus %d port %d", desc.Bus, desc.Port)},
	}

	fallback := 0.0
	switch setting.Class {
	case gousb.ClassHID:
		fallback = hidConfidence
		if setting.SubClass == hidSubClassBoot && setting.Protocol == hidProtocolKeyboard {
			port.Notes = append(port.Notes, "keyboard wedge mode; the kernel driver is detached while reading")
		}
	case gousb.ClassVendorSpec:
		fallback = vendorSpecConfidence
	}

	port.Confidence = vendors.Identify(port, desc.Vendor, desc.Product, fallback)
	if port.Confidence == 0 {
		return nil
	}
	return port
}

// findInEndpoint picks the lowest interrupt or bulk IN endpoint of the
// first configuration, alternate setting 0
func findInEndpoint(desc *gousb.DeviceDesc) (gousb.InterfaceSetting, gousb.EndpointDesc, bool) {
	cfgNums := make([]int, 0, len(desc.Configs))
	for num := range desc.Configs {
		cfgNums = append(cfgNums, num)
	}
	sort.Ints(cfgNums)

	for _, num := range cfgNums {
		for _, intf := range desc.Configs[num].Interfaces {
			if len(intf.AltSettings) == 0 {
				continue
			}
			setting := intf.AltSettings[0]

			var best *gousb.EndpointDesc
			for _, ep := range setting.Endpoints {
				if ep.Direction != gousb.EndpointDirectionIn {
					continue
				}
				if ep.TransferType != gousb.TransferTypeInterrupt && ep.TransferType != gousb.TransferTypeBulk {
					continue
				}
				if best == nil || ep.Number < best.Number {
					ep := ep
					best = &ep
				}
			}
			if best != nil {
				return setting, *best, true
			}
		}
	}
	return gousb.InterfaceSetting{}, gousb.EndpointDesc{}, false
}
