// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"barcode-service/internal/model"
)

// SerialPort is the part of serial.Port the scanner pipeline needs
type SerialPort interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// PortOpener opens a serial port by name
type PortOpener func(name string, mode *serial.Mode) (SerialPort, error)

// openSerialPort is replaced in tests
var openSerialPort PortOpener = func(name string, mode *serial.Mode) (SerialPort, error) {
	return serial.Open(name, mode)
}

const readBufferSize = 256

// SerialConnection implements Channel for RS-232 and USB-CDC scanners
type SerialConnection struct {
	config *SerialConfig
	open   PortOpener
	port   SerialPort
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  model.ChannelStats
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		open:   openSerialPort,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port. Opening an already open connection is a no-op;
// a faulted handle is released first.
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sc.releaseLocked()

	sc.logger.Debug("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
		zap.String("parity", sc.config.Parity),
	)

	mode, err := serialMode(sc.config)
	if err != nil {
		return err
	}

	port, err := sc.open(sc.config.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", sc.config.Port, err)
	}

	// A short timeout turns Read into a poll: n == 0 with a nil error means no data.
	if err := port.SetReadTimeout(sc.config.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.isOpen = true
	sc.stats.Opens++
	sc.stats.ConnectedAt = time.Now()
	sc.stats.LastActivity = sc.stats.ConnectedAt

	sc.logger.Info("Serial port opened")
	return nil
}

// Close releases the port handle, faulted or not
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port == nil {
		sc.isOpen = false
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false
	sc.stats.Closes++

	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the port is open and has not faulted
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// ReadAvailable reads whatever the driver has buffered
func (sc *SerialConnection) ReadAvailable() ([]byte, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil, nil
	}

	limit := chunkLimit(sc.config.MaxChunkSize)
	buffer := make([]byte, readBufferSize)
	var data []byte

	for len(data) < limit {
		n, err := sc.port.Read(buffer)
		if n > 0 {
			data = append(data, buffer[:n]...)
		}
		if err != nil {
			sc.isOpen = false
			sc.stats.ReadErrors++
			sc.logger.Warn("Serial read failed, marking port offline", zap.Error(err))
			sc.record(len(data))
			return data, fmt.Errorf("failed to read from serial port: %w", err)
		}
		if n < len(buffer) {
			break
		}
	}

	sc.record(len(data))
	return data, nil
}

// Address returns the port name
func (sc *SerialConnection) Address() string {
	return sc.config.Port
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns a snapshot of the connection counters
func (sc *SerialConnection) Stats() model.ChannelStats {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.stats
}

func (sc *SerialConnection) record(n int) {
	if n == 0 {
		return
	}
	sc.stats.BytesRead += int64(n)
	sc.stats.ChunksRead++
	sc.stats.LastActivity = time.Now()
}

func (sc *SerialConnection) releaseLocked() {
	if sc.port == nil {
		return
	}
	if err := sc.port.Close(); err != nil {
		sc.logger.Debug("Releasing faulted serial handle failed", zap.Error(err))
	}
	sc.port = nil
	sc.stats.Closes++
}

// serialMode maps the configured line settings to a serial.Mode
func serialMode(config *SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}

	switch config.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", config.StopBits)
	}

	switch strings.ToLower(config.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", config.Parity)
	}

	return mode, nil
}
