//go:build linux

package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSerialConnectionOverPty(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = slave.Close()
	})

	sc := NewSerialConnection(&SerialConfig{
		Port:        slave.Name(),
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		ReadTimeout: 10 * time.Millisecond,
	}, zap.NewNop())

	if err := sc.Open(context.Background()); err != nil {
		_ = master.Close()
		t.Skipf("pty does not accept serial line settings here: %v", err)
	}
	t.Cleanup(func() { _ = sc.Close() })

	_, err = master.Write([]byte("5901234123457\r\n"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		data, err := sc.ReadAvailable()
		if err != nil {
			return false
		}
		got = append(got, data...)
		return string(got) == "5901234123457\r\n"
	}, 2*time.Second, 5*time.Millisecond)

	// Hanging up the master side is what unplugging a USB-serial adapter looks like.
	require.NoError(t, master.Close())
	require.Eventually(t, func() bool {
		_, _ = sc.ReadAvailable()
		return !sc.IsOpen()
	}, 2*time.Second, 5*time.Millisecond)
}
