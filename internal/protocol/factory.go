// internal/protocol/factory.go
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/model"
)

// Factory builds the channel for one configured scanner
type Factory func(cfg config.ScannerConfig, logger *zap.Logger) (Channel, error)

// NewChannel creates a channel based on the scanner's connection type
func NewChannel(cfg config.ScannerConfig, logger *zap.Logger) (Channel, error) {
	connectionType, ok := model.ParseConnectionType(cfg.Connection)
	if !ok {
		return nil, fmt.Errorf("unsupported connection type: %s", cfg.Connection)
	}

	logger = logger.With(zap.String("scanner", cfg.Name))

	switch connectionType {
	case model.ConnectionTypeSerial:
		return createSerialChannel(cfg, logger), nil
	case model.ConnectionTypeUSB:
		return createUSBChannel(cfg, logger)
	case model.ConnectionTypeTCP:
		return createTCPChannel(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

// createSerialChannel creates a serial channel
func createSerialChannel(cfg config.ScannerConfig, logger *zap.Logger) Channel {
	serialConfig := &SerialConfig{
		Port:         ResolveSerialAddress(cfg.Address),
		BaudRate:     cfg.Serial.BaudRate,
		DataBits:     cfg.Serial.DataBits,
		StopBits:     cfg.Serial.StopBits,
		Parity:       cfg.Serial.Parity,
		ReadTimeout:  cfg.Serial.ReadTimeout,
		MaxChunkSize: cfg.Serial.MaxChunkSize,
	}

	logger.Debug("Creating serial channel",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger)
}

// createUSBChannel creates a USB channel
func createUSBChannel(cfg config.ScannerConfig, logger *zap.Logger) (Channel, error) {
	vendorID, productID, err := ParseUSBAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	usbConfig := &USBConfig{
		VendorID:     vendorID,
		ProductID:    productID,
		Interface:    cfg.USB.Interface,
		Endpoint:     cfg.USB.Endpoint,
		ReadTimeout:  cfg.USB.ReadTimeout,
		MaxChunkSize: cfg.USB.MaxChunkSize,
	}

	logger.Debug("Creating USB channel",
		zap.String("vendor_id", vendorID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("interface", usbConfig.Interface),
	)

	return NewUSBConnection(usbConfig, logger), nil
}

// createTCPChannel creates a TCP channel
func createTCPChannel(cfg config.ScannerConfig, logger *zap.Logger) Channel {
	tcpConfig := &TCPConfig{
		Address:        cfg.Address,
		TLS:            cfg.TCP.TLS,
		KeepAlive:      cfg.TCP.KeepAlive == nil || *cfg.TCP.KeepAlive,
		ConnectTimeout: cfg.TCP.ConnectTimeout,
		ReadTimeout:    cfg.TCP.ReadTimeout,
		MaxChunkSize:   cfg.TCP.MaxChunkSize,
	}

	logger.Debug("Creating TCP channel",
		zap.String("address", tcpConfig.Address),
		zap.Bool("tls", tcpConfig.TLS),
	)

	return NewTCPConnection(tcpConfig, logger)
}
