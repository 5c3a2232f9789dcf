// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"

	"barcode-service/internal/model"
)

// ErrNotOpen is returned by operations that need an open channel
var ErrNotOpen = errors.New("channel not open")

// Channel is a byte source attached to one scanner.
//
// ReadAvailable never blocks for longer than the implementation's short read
// timeout. It returns an empty slice and a nil error when no data is waiting
// or the channel is closed. A non-nil error means the underlying handle
// faulted; implementations then report IsOpen() == false until reopened.
type Channel interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data
	ReadAvailable() ([]byte, error)

	// Identification and diagnostics
	Address() string
	GetProtocolType() model.ConnectionType
	Stats() model.ChannelStats
}
