// Package protocoltest provides an in-memory protocol.Channel for tests.
package protocoltest

import (
	"context"
	"errors"
	"sync"
	"time"

	"barcode-service/internal/model"
)

// ErrOffline is returned by Open while the simulated device is unplugged
var ErrOffline = errors.New("device offline")

// Channel is a scripted protocol.Channel. Each Feed call becomes one read.
type Channel struct {
	mu       sync.Mutex
	address  string
	open     bool
	openErr  error
	readErr  error
	reads    [][]byte
	opens    int
	closes   int
	closeErr error
	stats    model.ChannelStats
}

// NewChannel creates a closed fake channel
func NewChannel(address string) *Channel {
	return &Channel{address: address}
}

// Open opens the channel unless an open error is scripted
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	c.opens++
	if c.openErr != nil {
		return c.openErr
	}
	c.open = true
	c.stats.Opens++
	c.stats.ConnectedAt = time.Now()
	return nil
}

// Close closes the channel
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	c.closes++
	c.stats.Closes++
	return c.closeErr
}

// IsOpen reports the simulated open state
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// ReadAvailable pops the next scripted read
func (c *Channel) ReadAvailable() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil, nil
	}
	if c.readErr != nil {
		err := c.readErr
		c.readErr = nil
		c.open = false
		c.stats.ReadErrors++
		return nil, err
	}
	if len(c.reads) == 0 {
		return nil, nil
	}
	data := c.reads[0]
	c.reads = c.reads[1:]
	c.stats.BytesRead += int64(len(data))
	c.stats.ChunksRead++
	c.stats.LastActivity = time.Now()
	return data, nil
}

// Address returns the configured address
func (c *Channel) Address() string {
	return c.address
}

// GetProtocolType returns SERIAL
func (c *Channel) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns the counters
func (c *Channel) Stats() model.ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Feed queues chunks, one per read
func (c *Channel) Feed(chunks ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chunk := range chunks {
		c.reads = append(c.reads, []byte(chunk))
	}
}

// Unplug simulates the device disappearing: the channel reports closed and
// every Open fails until Plug is called
func (c *Channel) Unplug() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.openErr = ErrOffline
}

// Plug lets the next Open succeed
func (c *Channel) Plug() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = nil
}

// Drop marks the channel closed without blocking reopen
func (c *Channel) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// FailNextRead makes the next read fault the channel
func (c *Channel) FailNextRead(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetOpenError scripts every Open to fail with err (nil clears it)
func (c *Channel) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// SetCloseError scripts Close to return err
func (c *Channel) SetCloseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// Opens returns how many times Open was called
func (c *Channel) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Closes returns how many times Close was called
func (c *Channel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// PendingReads returns the number of queued reads not yet consumed
func (c *Channel) PendingReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reads)
}
