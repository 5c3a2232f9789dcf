// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"barcode-service/internal/model"
)

// USBConnection implements Channel for scanners exposing a raw IN endpoint
// (vendor-specific or "USB COM" modes that are not bound to a tty driver)
type USBConnection struct {
	config  *USBConfig
	ctx     *gousb.Context
	device  *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	inEndpt *gousb.InEndpoint
	logger  *zap.Logger
	mutex   sync.RWMutex
	isOpen  bool
	stats   model.ChannelStats
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "usb"),
			zap.String("vendor_id", config.VendorID.String()),
			zap.String("product_id", config.ProductID.String()),
		),
	}
}

// Open finds the device by VID/PID and claims the configured interface
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	uc.releaseLocked()

	uc.logger.Debug("Opening USB connection",
		zap.Int("interface", uc.config.Interface),
		zap.Int("endpoint", uc.config.Endpoint),
	)

	uc.ctx = gousb.NewContext()

	device, err := uc.findAndOpenDevice()
	if err != nil {
		uc.releaseLocked()
		return fmt.Errorf("failed to find USB device: %w", err)
	}
	uc.device = device

	// HID-mode scanners are grabbed by the kernel; detach it for the claim.
	if err := device.SetAutoDetach(true); err != nil {
		uc.logger.Debug("Auto detach not supported", zap.Error(err))
	}

	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		uc.releaseLocked()
		return fmt.Errorf("failed to read active config: %w", err)
	}

	cfg, err := device.Config(cfgNum)
	if err != nil {
		uc.releaseLocked()
		return fmt.Errorf("failed to select config %d: %w", cfgNum, err)
	}
	uc.cfg = cfg

	intf, err := cfg.Interface(uc.config.Interface, 0)
	if err != nil {
		uc.releaseLocked()
		return fmt.Errorf("failed to claim interface %d: %w", uc.config.Interface, err)
	}
	uc.intf = intf

	inEndpt, err := intf.InEndpoint(uc.config.Endpoint)
	if err != nil {
		uc.releaseLocked()
		return fmt.Errorf("failed to get in endpoint %d: %w", uc.config.Endpoint, err)
	}

	uc.inEndpt = inEndpt
	uc.isOpen = true
	uc.stats.Opens++
	uc.stats.ConnectedAt = time.Now()
	uc.stats.LastActivity = uc.stats.ConnectedAt

	uc.logger.Info("USB connection opened")
	return nil
}

// Close releases the interface, config, device and context
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.ctx == nil {
		uc.isOpen = false
		return nil
	}

	uc.releaseLocked()
	uc.stats.Closes++

	uc.logger.Info("USB connection closed")
	return nil
}

// IsOpen returns whether the connection is open and has not faulted
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.isOpen && uc.inEndpt != nil
}

// ReadAvailable reads one transfer from the IN endpoint, bounded by the read timeout
func (uc *USBConnection) ReadAvailable() ([]byte, error) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen || uc.inEndpt == nil {
		return nil, nil
	}

	size := uc.inEndpt.Desc.MaxPacketSize
	if limit := chunkLimit(uc.config.MaxChunkSize); size <= 0 || size > limit {
		size = limit
	}
	buffer := make([]byte, size)

	ctx, cancel := context.WithTimeout(context.Background(), uc.config.ReadTimeout)
	defer cancel()

	n, err := uc.inEndpt.ReadContext(ctx, buffer)
	if err != nil && !isUSBIdle(err) {
		uc.isOpen = false
		uc.stats.ReadErrors++
		uc.logger.Warn("USB read failed, marking device offline", zap.Error(err))
		return append([]byte(nil), buffer[:n]...), fmt.Errorf("failed to read from USB device: %w", err)
	}

	if n == 0 {
		return nil, nil
	}

	uc.stats.BytesRead += int64(n)
	uc.stats.ChunksRead++
	uc.stats.LastActivity = time.Now()
	return append([]byte(nil), buffer[:n]...), nil
}

// Address returns vid:pid
func (uc *USBConnection) Address() string {
	return fmt.Sprintf("%s:%s", uc.config.VendorID, uc.config.ProductID)
}

// GetProtocolType returns the protocol type
func (uc *USBConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeUSB
}

// Stats returns a snapshot of the connection counters
func (uc *USBConnection) Stats() model.ChannelStats {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.stats
}

// findAndOpenDevice opens the first device matching VID/PID
func (uc *USBConnection) findAndOpenDevice() (*gousb.Device, error) {
	devices, err := uc.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == uc.config.VendorID && desc.Product == uc.config.ProductID
	})
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("USB device not found (VID: %s, PID: %s)", uc.config.VendorID, uc.config.ProductID)
	}

	if len(devices) > 1 {
		for i := 1; i < len(devices); i++ {
			devices[i].Close()
		}
		uc.logger.Warn("Multiple matching USB devices found, using first one")
	}

	return devices[0], nil
}

func (uc *USBConnection) releaseLocked() {
	if uc.intf != nil {
		uc.intf.Close()
		uc.intf = nil
	}
	if uc.cfg != nil {
		if err := uc.cfg.Close(); err != nil {
			uc.logger.Debug("Releasing USB config failed", zap.Error(err))
		}
		uc.cfg = nil
	}
	if uc.device != nil {
		if err := uc.device.Close(); err != nil {
			uc.logger.Debug("Closing USB device failed", zap.Error(err))
		}
		uc.device = nil
	}
	if uc.ctx != nil {
		if err := uc.ctx.Close(); err != nil {
			uc.logger.Debug("Closing USB context failed", zap.Error(err))
		}
		uc.ctx = nil
	}
	uc.inEndpt = nil
	uc.isOpen = false
}

// isUSBIdle reports errors that only mean "nothing arrived before the deadline"
func isUSBIdle(err error) bool {
	return errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
