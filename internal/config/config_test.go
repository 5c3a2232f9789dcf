package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "barcode-service", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8085", cfg.GetServerAddr())
	require.Len(t, cfg.Scanners, 3)

	checkout := cfg.Scanners[0]
	assert.Equal(t, "checkout-1", checkout.Name)
	assert.True(t, checkout.IsEnabled())
	assert.False(t, checkout.ShouldReassemble())
	assert.Equal(t, []rune{'\r', '\n'}, checkout.SeparatorRunes())
	assert.Equal(t, 9600, checkout.Serial.BaudRate)
	assert.Equal(t, 50*time.Millisecond, checkout.ListenInterval)

	dock := cfg.Scanners[1]
	assert.True(t, dock.ShouldReassemble())
	require.NotNil(t, dock.TCP.KeepAlive)
	assert.True(t, *dock.TCP.KeepAlive)

	usb := cfg.Scanners[2]
	assert.False(t, usb.IsEnabled())
	assert.Equal(t, 1, usb.USB.Interface)
	assert.Equal(t, 2, usb.USB.Endpoint)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
scanners:
  - name: front
    connection: serial
    address: /dev/ttyUSB0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Database.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 1024, cfg.Journal.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Scanner.RetryInterval)

	require.Len(t, cfg.Scanners, 1)
	front := cfg.Scanners[0]
	assert.Equal(t, 100*time.Millisecond, front.DrainInterval)
	assert.Equal(t, time.Second, front.HealthInterval)
	assert.Equal(t, 8192, front.MaxPartialSize)
	assert.Equal(t, "none", front.Serial.Parity)
	assert.Equal(t, 1, front.USB.Endpoint)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "app:\n  name: barcode-service\n")
	t.Setenv("BARCODE_SERVICE_SERVER_PORT", "9999")
	t.Setenv("BARCODE_SERVICE_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown connection",
			body: "scanners:\n  - name: a\n    connection: bluetooth\n    address: x\n",
			want: "connection must be one of",
		},
		{
			name: "missing address",
			body: "scanners:\n  - name: a\n    connection: serial\n",
			want: "address is required",
		},
		{
			name: "duplicate names",
			body: "scanners:\n  - name: a\n    connection: serial\n    address: /dev/a\n  - name: a\n    connection: serial\n    address: /dev/b\n",
			want: "duplicate scanner name",
		},
		{
			name: "tcp without port",
			body: "scanners:\n  - name: a\n    connection: tcp\n    address: bridge.local\n",
			want: "host:port",
		},
		{
			name: "bad environment",
			body: "app:\n  environment: moon\n",
			want: "app.environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSeparatorRunes(t *testing.T) {
	sc := ScannerConfig{Separators: []string{"\r\n", "\n", "|"}}
	assert.Equal(t, []rune{'\r', '\n', '|'}, sc.SeparatorRunes())
}
