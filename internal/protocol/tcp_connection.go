// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"barcode-service/internal/model"
)

// TCPConnection implements Channel for scanners behind a serial-to-ethernet
// bridge (raw TCP socket server mode)
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  model.ChannelStats
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("address", config.Address),
		),
	}
}

// Open dials the bridge
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.releaseLocked()

	tc.logger.Debug("Opening TCP connection", zap.Bool("tls", tc.config.TLS))

	dialer := &net.Dialer{
		Timeout: tc.config.ConnectTimeout,
	}
	if tc.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	} else {
		dialer.KeepAlive = -1
	}

	var conn net.Conn
	var err error

	if tc.config.TLS {
		host, _, splitErr := net.SplitHostPort(tc.config.Address)
		if splitErr != nil {
			return fmt.Errorf("invalid address %s: %w", tc.config.Address, splitErr)
		}
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: host},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", tc.config.Address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", tc.config.Address)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", tc.config.Address, err)
	}

	tc.conn = conn
	tc.isOpen = true
	tc.stats.Opens++
	tc.stats.ConnectedAt = time.Now()
	tc.stats.LastActivity = tc.stats.ConnectedAt

	tc.logger.Info("TCP connection opened")
	return nil
}

// Close closes the socket
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.conn == nil {
		tc.isOpen = false
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.isOpen = false
	tc.stats.Closes++

	if err != nil {
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.logger.Info("TCP connection closed")
	return nil
}

// IsOpen returns whether the connection is open and has not faulted
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.isOpen && tc.conn != nil
}

// ReadAvailable polls the socket with a short read deadline
func (tc *TCPConnection) ReadAvailable() ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, nil
	}

	limit := chunkLimit(tc.config.MaxChunkSize)
	buffer := make([]byte, readBufferSize)
	var data []byte

	for len(data) < limit {
		if err := tc.conn.SetReadDeadline(time.Now().Add(tc.config.ReadTimeout)); err != nil {
			return tc.faultLocked(data, err)
		}

		n, err := tc.conn.Read(buffer)
		if n > 0 {
			data = append(data, buffer[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				break
			}
			return tc.faultLocked(data, err)
		}
		if n < len(buffer) {
			break
		}
	}

	tc.record(len(data))
	return data, nil
}

// Address returns the bridge address
func (tc *TCPConnection) Address() string {
	return tc.config.Address
}

// GetProtocolType returns the protocol type
func (tc *TCPConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Stats returns a snapshot of the connection counters
func (tc *TCPConnection) Stats() model.ChannelStats {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.stats
}

func (tc *TCPConnection) faultLocked(data []byte, err error) ([]byte, error) {
	tc.isOpen = false
	tc.stats.ReadErrors++
	tc.record(len(data))
	tc.logger.Warn("TCP read failed, marking connection offline", zap.Error(err))
	return data, fmt.Errorf("failed to read from TCP connection: %w", err)
}

func (tc *TCPConnection) record(n int) {
	if n == 0 {
		return
	}
	tc.stats.BytesRead += int64(n)
	tc.stats.ChunksRead++
	tc.stats.LastActivity = time.Now()
}

func (tc *TCPConnection) releaseLocked() {
	if tc.conn == nil {
		return
	}
	if err := tc.conn.Close(); err != nil {
		tc.logger.Debug("Releasing faulted TCP connection failed", zap.Error(err))
	}
	tc.conn = nil
	tc.stats.Closes++
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
