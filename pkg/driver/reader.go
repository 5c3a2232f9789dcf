// Package driver is the embeddable entry point for reading barcodes without
// the HTTP service: one call opens a configured scanner and starts its
// pipeline.
package driver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/protocol"
	"barcode-service/internal/scanner"
)

// BarcodeReader is a running scanner pipeline
type BarcodeReader interface {
	// Identification
	Name() string
	Address() string

	// State
	Connected() bool
	Alive() bool
	Pending() int

	// Delivery
	Subscribe(obs scanner.Observer) func()

	// Cleanup
	Close() error
}

var _ BarcodeReader = (*scanner.Scanner)(nil)

// Open builds the channel for cfg and starts reading. Observers are
// registered before the first read so no barcode is missed.
func Open(ctx context.Context, cfg config.ScannerConfig, logger *zap.Logger, observers ...scanner.Observer) (BarcodeReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	channel, err := protocol.NewChannel(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel for %s: %w", cfg.Name, err)
	}

	scannerCfg := scanner.ConfigFromScanner(cfg)
	scannerCfg.Observers = observers

	return scanner.New(ctx, channel, scannerCfg, logger)
}
