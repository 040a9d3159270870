package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the nimbus.io web server configuration.
//
// This structure captures static configuration for the gateway process:
//   - Logging and telemetry
//   - Cluster geometry (node list, K, H) and per-RPC timeout
//   - HTTP listen settings and streaming slice size
//   - The external collaborators: central database, node-local index,
//     accounting service, event-push telemetry, and the HMAC key source
//
// Configuration sources (in order of precedence):
//  1. Environment variables (NIMBUSIO_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Cluster describes the static node list and erasure-coding geometry.
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`

	// HTTP contains the gateway's own HTTP listener settings.
	HTTP HTTPConfig `mapstructure:"http" yaml:"http"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// CentralDB configures the central collection/user/HMAC-key database.
	CentralDB CentralDBConfig `mapstructure:"central_db" yaml:"central_db"`

	// NodeIndex configures the per-node local SQL index used for
	// listmatch/stat/meta lookups.
	NodeIndex NodeIndexConfig `mapstructure:"node_index" yaml:"node_index"`

	// Accounting configures the byte-counter accounting service client.
	Accounting AccountingConfig `mapstructure:"accounting" yaml:"accounting"`

	// EventPush configures the telemetry event-push client.
	EventPush EventPushConfig `mapstructure:"event_push" yaml:"event_push"`
}

// ClusterConfig describes the static cluster topology: the ordered node
// list and the erasure-coding/handoff geometry (K, H; N is len(Nodes)).
type ClusterConfig struct {
	// Nodes is the ordered list of storage nodes. Segment numbers are
	// assigned 1-based by list position.
	Nodes []NodeConfig `mapstructure:"nodes" validate:"required,min=1,dive" yaml:"nodes"`

	// K is the minimum number of shards required to reconstruct a slice.
	K int `mapstructure:"k" validate:"required,gt=0" yaml:"k"`

	// H is the number of backup nodes raced per down node during handoff.
	H int `mapstructure:"h" validate:"required,gt=0" yaml:"h"`

	// ReplyTimeout is the per-RPC timeout applied to every node send.
	ReplyTimeout time.Duration `mapstructure:"reply_timeout" validate:"required,gt=0" yaml:"reply_timeout"`

	// SliceSize is the streaming slice size in bytes, reconciled from
	// NIMBUSIO_SLICE_SIZE/NIMBUS_IO_SLICE_SIZE (the larger, or an
	// explicit override, wins) by resolveSliceSize.
	SliceSize bytesize.ByteSize `mapstructure:"slice_size" yaml:"slice_size,omitempty"`
}

// NodeConfig is one configured storage node.
type NodeConfig struct {
	Name string `mapstructure:"name" validate:"required" yaml:"name"`
	Addr string `mapstructure:"addr" validate:"required" yaml:"addr"`
}

// HTTPConfig contains the gateway's own HTTP listener settings.
type HTTPConfig struct {
	// ListenAddr is the address the gateway's HTTP server binds to.
	// Default: ":8090"
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CentralDBConfig configures the central database client (pkg/centraldb):
// collections, users, and HMAC signing keys.
type CentralDBConfig struct {
	// DSN is the Postgres connection string.
	DSN string `mapstructure:"dsn" validate:"required" yaml:"dsn"`

	// MigrationsPath is carried in the config file only; pkg/centraldb
	// runs the migrations embedded in the binary and does not read it.
	MigrationsPath string `mapstructure:"migrations_path" yaml:"migrations_path"`
}

// NodeIndexConfig configures the per-node local SQL index (pkg/nodeindex).
type NodeIndexConfig struct {
	// Path is the sqlite file backing the local index.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`
}

// AccountingConfig configures the accounting service client (pkg/accounting).
type AccountingConfig struct {
	// Endpoint is the accounting service's base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// JWTSigningKey signs the service-to-service bearer token presented
	// to the accounting service.
	JWTSigningKey string `mapstructure:"jwt_signing_key" yaml:"jwt_signing_key,omitempty"`

	// RequestTimeout bounds each accounting call.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// EventPushConfig configures the telemetry event-push client (pkg/eventpush).
type EventPushConfig struct {
	// Endpoint is the event-push service's base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// JWTSigningKey signs the service-to-service bearer token presented
	// to the event-push service.
	JWTSigningKey string `mapstructure:"jwt_signing_key" yaml:"jwt_signing_key,omitempty"`

	// BufferPath is the badger directory backing the durable local
	// buffer, so events survive the event-push service being briefly down.
	BufferPath string `mapstructure:"buffer_path" validate:"required" yaml:"buffer_path"`

	// FlushInterval controls how often the buffer is drained to Endpoint.
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NIMBUSIO_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		resolveSliceSize(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	resolveSliceSize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// resolveSliceSize applies spec §6's env-var reconciliation: whichever of
// NIMBUSIO_SLICE_SIZE / NIMBUS_IO_SLICE_SIZE is set wins; if both are set
// the larger wins; an explicit cluster.slice_size in the config file is
// treated as the NIMBUSIO_SLICE_SIZE spelling's override.
func resolveSliceSize(cfg *Config) {
	const defaultPrimary = bytesize.ByteSize(1048576)

	primary := cfg.Cluster.SliceSize
	primarySet := primary != 0
	if raw := os.Getenv("NIMBUSIO_SLICE_SIZE"); raw != "" {
		if parsed, err := bytesize.ParseByteSize(raw); err == nil {
			primary = parsed
			primarySet = true
		}
	}

	if raw := os.Getenv("NIMBUS_IO_SLICE_SIZE"); raw != "" {
		if parsed, err := bytesize.ParseByteSize(raw); err == nil && (!primarySet || parsed > primary) {
			primary = parsed
			primarySet = true
		}
	}

	if !primarySet {
		primary = defaultPrimary
	}
	cfg.Cluster.SliceSize = primary
}

// MustLoad loads configuration with helpful error messages.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  nimbusio-web-server init\n\n"+
				"Or specify a custom config file:\n"+
				"  nimbusio-web-server <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  nimbusio-web-server init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use NIMBUSIO_ prefix and underscores
	// Example: NIMBUSIO_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("NIMBUSIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings/numbers to bytesize.ByteSize so
// config files can use human-readable sizes like "1Gi" or "10MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings/numbers to time.Duration so config
// files can use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nimbusio")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "nimbusio")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
