// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Journal  JournalConfig   `mapstructure:"journal"`
	Security SecurityConfig  `mapstructure:"security"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Scanner  ScannerDefaults `mapstructure:"scanner"`
	Scanners []ScannerConfig `mapstructure:"scanners"`
	App      AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents the scan journal database
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// JournalConfig controls how scanned barcodes are persisted
type JournalConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// ScannerDefaults holds the pipeline settings every scanner entry inherits
type ScannerDefaults struct {
	Separators     []string         `mapstructure:"separators"`
	Reassemble     bool             `mapstructure:"reassemble"`
	MaxPartialSize int              `mapstructure:"max_partial_size"`
	ListenInterval time.Duration    `mapstructure:"listen_interval"`
	DrainInterval  time.Duration    `mapstructure:"drain_interval"`
	HealthInterval time.Duration    `mapstructure:"health_interval"`
	ReconnectPause time.Duration    `mapstructure:"reconnect_pause"`
	OpenTimeout    time.Duration    `mapstructure:"open_timeout"`
	RetryInterval  time.Duration    `mapstructure:"retry_interval"`
	StatusInterval time.Duration    `mapstructure:"status_interval"`
	RecentLimit    int              `mapstructure:"recent_limit"`
	Serial         SerialPortConfig `mapstructure:"serial"`
	TCP            TCPPortConfig    `mapstructure:"tcp"`
	USB            USBPortConfig    `mapstructure:"usb"`
}

// ScannerConfig describes one attached scanner. Zero-valued fields are
// filled from ScannerDefaults by Load.
type ScannerConfig struct {
	Name           string           `mapstructure:"name" json:"name,omitempty"`
	Connection     string           `mapstructure:"connection" json:"connection,omitempty"`
	Address        string           `mapstructure:"address" json:"address,omitempty"`
	Enabled        *bool            `mapstructure:"enabled" json:"enabled,omitempty"`
	Separators     []string         `mapstructure:"separators" json:"separators,omitempty"`
	Reassemble     *bool            `mapstructure:"reassemble" json:"reassemble,omitempty"`
	MaxPartialSize int              `mapstructure:"max_partial_size" json:"max_partial_size,omitempty"`
	ListenInterval time.Duration    `mapstructure:"listen_interval" json:"listen_interval,omitempty"`
	DrainInterval  time.Duration    `mapstructure:"drain_interval" json:"drain_interval,omitempty"`
	HealthInterval time.Duration    `mapstructure:"health_interval" json:"health_interval,omitempty"`
	ReconnectPause time.Duration    `mapstructure:"reconnect_pause" json:"reconnect_pause,omitempty"`
	OpenTimeout    time.Duration    `mapstructure:"open_timeout" json:"open_timeout,omitempty"`
	Serial         SerialPortConfig `mapstructure:"serial" json:"serial,omitempty"`
	TCP            TCPPortConfig    `mapstructure:"tcp" json:"tcp,omitempty"`
	USB            USBPortConfig    `mapstructure:"usb" json:"usb,omitempty"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	BaudRate     int           `mapstructure:"baud_rate" json:"baud_rate,omitempty"`
	DataBits     int           `mapstructure:"data_bits" json:"data_bits,omitempty"`
	StopBits     int           `mapstructure:"stop_bits" json:"stop_bits,omitempty"`
	Parity       string        `mapstructure:"parity" json:"parity,omitempty"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout,omitempty"`
	MaxChunkSize int           `mapstructure:"max_chunk_size" json:"max_chunk_size,omitempty"`
}

// TCPPortConfig represents a serial-over-ethernet bridge connection
type TCPPortConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout,omitempty"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"read_timeout,omitempty"`
	KeepAlive      *bool         `mapstructure:"keep_alive" json:"keep_alive,omitempty"`
	TLS            bool          `mapstructure:"tls" json:"tls,omitempty"`
	MaxChunkSize   int           `mapstructure:"max_chunk_size" json:"max_chunk_size,omitempty"`
}

// USBPortConfig represents a raw USB (bulk/interrupt IN) scanner connection
type USBPortConfig struct {
	Interface    int           `mapstructure:"interface" json:"interface,omitempty"`
	Endpoint     int           `mapstructure:"endpoint" json:"endpoint,omitempty"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout,omitempty"`
	MaxChunkSize int           `mapstructure:"max_chunk_size" json:"max_chunk_size,omitempty"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// An empty path searches the default locations for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("./internal/config")
		v.AddConfigPath("../../internal/config")
	}

	// Environment variable support
	v.SetEnvPrefix("BARCODE_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	for i := range config.Scanners {
		config.Scanners[i].applyDefaults(&config.Scanner)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "barcode_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("database.auto_migrate", true)

	// Journal defaults
	v.SetDefault("journal.queue_size", 1024)
	v.SetDefault("journal.write_timeout", "5s")
	v.SetDefault("journal.retention", "720h")
	v.SetDefault("journal.cleanup_interval", "1h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "barcode")

	// Scanner pipeline defaults
	v.SetDefault("scanner.separators", []string{"\r", "\n"})
	v.SetDefault("scanner.reassemble", false)
	v.SetDefault("scanner.max_partial_size", 8192)
	v.SetDefault("scanner.listen_interval", "50ms")
	v.SetDefault("scanner.drain_interval", "100ms")
	v.SetDefault("scanner.health_interval", "1s")
	v.SetDefault("scanner.reconnect_pause", "500ms")
	v.SetDefault("scanner.open_timeout", "5s")
	v.SetDefault("scanner.retry_interval", "5s")
	v.SetDefault("scanner.status_interval", "1s")
	v.SetDefault("scanner.recent_limit", 100)

	// Scanner port defaults
	v.SetDefault("scanner.serial.baud_rate", 9600)
	v.SetDefault("scanner.serial.data_bits", 8)
	v.SetDefault("scanner.serial.stop_bits", 1)
	v.SetDefault("scanner.serial.parity", "none")
	v.SetDefault("scanner.serial.read_timeout", "10ms")
	v.SetDefault("scanner.serial.max_chunk_size", 4096)

	v.SetDefault("scanner.tcp.connect_timeout", "5s")
	v.SetDefault("scanner.tcp.read_timeout", "10ms")
	v.SetDefault("scanner.tcp.keep_alive", true)
	v.SetDefault("scanner.tcp.max_chunk_size", 4096)

	v.SetDefault("scanner.usb.interface", 0)
	v.SetDefault("scanner.usb.endpoint", 1)
	v.SetDefault("scanner.usb.read_timeout", "10ms")
	v.SetDefault("scanner.usb.max_chunk_size", 4096)

	// App defaults
	v.SetDefault("app.name", "barcode-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// applyDefaults fills unset scanner fields from the shared defaults
func (s *ScannerConfig) applyDefaults(d *ScannerDefaults) {
	if s.Enabled == nil {
		enabled := true
		s.Enabled = &enabled
	}
	if len(s.Separators) == 0 {
		s.Separators = append([]string(nil), d.Separators...)
	}
	if s.Reassemble == nil {
		reassemble := d.Reassemble
		s.Reassemble = &reassemble
	}
	if s.MaxPartialSize == 0 {
		s.MaxPartialSize = d.MaxPartialSize
	}
	if s.ListenInterval == 0 {
		s.ListenInterval = d.ListenInterval
	}
	if s.DrainInterval == 0 {
		s.DrainInterval = d.DrainInterval
	}
	if s.HealthInterval == 0 {
		s.HealthInterval = d.HealthInterval
	}
	if s.ReconnectPause == 0 {
		s.ReconnectPause = d.ReconnectPause
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = d.OpenTimeout
	}

	if s.Serial.BaudRate == 0 {
		s.Serial.BaudRate = d.Serial.BaudRate
	}
	if s.Serial.DataBits == 0 {
		s.Serial.DataBits = d.Serial.DataBits
	}
	if s.Serial.StopBits == 0 {
		s.Serial.StopBits = d.Serial.StopBits
	}
	if s.Serial.Parity == "" {
		s.Serial.Parity = d.Serial.Parity
	}
	if s.Serial.ReadTimeout == 0 {
		s.Serial.ReadTimeout = d.Serial.ReadTimeout
	}
	if s.Serial.MaxChunkSize == 0 {
		s.Serial.MaxChunkSize = d.Serial.MaxChunkSize
	}

	if s.TCP.ConnectTimeout == 0 {
		s.TCP.ConnectTimeout = d.TCP.ConnectTimeout
	}
	if s.TCP.ReadTimeout == 0 {
		s.TCP.ReadTimeout = d.TCP.ReadTimeout
	}
	if s.TCP.KeepAlive == nil && d.TCP.KeepAlive != nil {
		keepAlive := *d.TCP.KeepAlive
		s.TCP.KeepAlive = &keepAlive
	}
	if s.TCP.MaxChunkSize == 0 {
		s.TCP.MaxChunkSize = d.TCP.MaxChunkSize
	}

	if s.USB.Endpoint == 0 {
		s.USB.Endpoint = d.USB.Endpoint
	}
	if s.USB.ReadTimeout == 0 {
		s.USB.ReadTimeout = d.USB.ReadTimeout
	}
	if s.USB.MaxChunkSize == 0 {
		s.USB.MaxChunkSize = d.USB.MaxChunkSize
	}
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database.enabled is set")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	names := make(map[string]struct{}, len(config.Scanners))
	for i, s := range config.Scanners {
		if err := s.validate(); err != nil {
			return fmt.Errorf("scanners[%d]: %w", i, err)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("scanners[%d]: duplicate scanner name %q", i, s.Name)
		}
		names[s.Name] = struct{}{}
	}

	return nil
}

func (s *ScannerConfig) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Address == "" {
		return fmt.Errorf("address is required")
	}

	switch strings.ToLower(s.Connection) {
	case "serial":
		validParity := []string{"none", "odd", "even", "mark", "space"}
		if !contains(validParity, strings.ToLower(s.Serial.Parity)) {
			return fmt.Errorf("serial.parity must be one of: %v", validParity)
		}
		if s.Serial.StopBits < 1 || s.Serial.StopBits > 2 {
			return fmt.Errorf("serial.stop_bits must be 1 or 2")
		}
	case "tcp":
		if !strings.Contains(s.Address, ":") {
			return fmt.Errorf("tcp address must be host:port, got %q", s.Address)
		}
	case "usb":
		if !strings.Contains(s.Address, ":") {
			return fmt.Errorf("usb address must be vendor:product, got %q", s.Address)
		}
	default:
		return fmt.Errorf("connection must be one of serial, tcp, usb, got %q", s.Connection)
	}

	if len(s.SeparatorRunes()) == 0 {
		return fmt.Errorf("at least one separator is required")
	}
	if s.ListenInterval <= 0 || s.DrainInterval <= 0 || s.HealthInterval <= 0 {
		return fmt.Errorf("listen, drain and health intervals must be positive")
	}
	return nil
}

// SeparatorRunes flattens the configured separators into a rune set
func (s *ScannerConfig) SeparatorRunes() []rune {
	var runes []rune
	seen := make(map[rune]struct{})
	for _, sep := range s.Separators {
		for _, r := range sep {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			runes = append(runes, r)
		}
	}
	return runes
}

// IsEnabled reports whether the scanner should be started
func (s *ScannerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ShouldReassemble reports whether partial tokens are carried across chunks
func (s *ScannerConfig) ShouldReassemble() bool {
	return s.Reassemble != nil && *s.Reassemble
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
