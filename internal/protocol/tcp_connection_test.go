package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTCPConnectionReadsFromBridge(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	tc := NewTCPConnection(&TCPConfig{
		Address:        ln.Addr().String(),
		KeepAlive:      true,
		ConnectTimeout: time.Second,
		ReadTimeout:    5 * time.Millisecond,
	}, zap.NewNop())
	t.Cleanup(func() { tc.Close() })

	require.NoError(t, tc.Open(context.Background()))
	require.True(t, tc.IsOpen())

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never accepted the connection")
	}

	data, err := tc.ReadAvailable()
	require.NoError(t, err)
	assert.Empty(t, data, "idle socket reads as empty")

	_, err = server.Write([]byte("ITEM-42\r\n"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		data, err := tc.ReadAvailable()
		if err != nil {
			return false
		}
		got = append(got, data...)
		return string(got) == "ITEM-42\r\n"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, server.Close())
	require.Eventually(t, func() bool {
		_, _ = tc.ReadAvailable()
		return !tc.IsOpen()
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, tc.Stats().ReadErrors)

	require.NoError(t, tc.Open(context.Background()))
	assert.True(t, tc.IsOpen())
	assert.EqualValues(t, 2, tc.Stats().Opens)
}

func TestTCPConnectionOpenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tc := NewTCPConnection(&TCPConfig{Address: addr, ConnectTimeout: time.Second, ReadTimeout: 5 * time.Millisecond}, zap.NewNop())
	require.Error(t, tc.Open(context.Background()))
	assert.False(t, tc.IsOpen())

	data, err := tc.ReadAvailable()
	assert.NoError(t, err)
	assert.Nil(t, data)
}
