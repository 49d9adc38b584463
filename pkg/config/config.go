package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/sipauth/internal/bytesize"
	"github.com/marmos91/sipauth/pkg/analytics"
	"github.com/marmos91/sipauth/pkg/api"
	badgerstore "github.com/marmos91/sipauth/pkg/avstore/badger"
	sqlstore "github.com/marmos91/sipauth/pkg/avstore/sql"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SIPAUTH_AUTH_REALM.
const EnvPrefix = "SIPAUTH"

// Config represents the sipauth configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SIPAUTH_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics toggles Prometheus collection, served at /metrics on the API port
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the HTTP boundary the signaling layer talks to
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Auth holds the decision engine policy
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// HSS selects and configures the credential source
	HSS HSSConfig `mapstructure:"hss" yaml:"hss"`

	// VectorStore selects and configures the vector cache backend
	VectorStore VectorStoreConfig `mapstructure:"vector_store" yaml:"vector_store"`

	// Analytics configures the authentication failure sink
	Analytics analytics.Config `mapstructure:"analytics" yaml:"analytics"`
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

	// MaxSize rotates file outputs once they grow past it ("100MB", "1Gi").
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`

	MaxBackups int  `mapstructure:"max_backups" validate:"gte=0" yaml:"max_backups,omitempty"`
	MaxAgeDays int  `mapstructure:"max_age_days" validate:"gte=0" yaml:"max_age_days,omitempty"`
	Compress   bool `mapstructure:"compress" yaml:"compress,omitempty"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected and /metrics answers 404.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AuthConfig is the decision engine policy.
type AuthConfig struct {
	// Realm is the Digest realm. Empty uses the host name.
	Realm string `mapstructure:"realm" yaml:"realm"`

	// VectorTTL is how long an issued challenge stays answerable.
	// Default: 30s
	VectorTTL time.Duration `mapstructure:"vector_ttl" validate:"gte=0" yaml:"vector_ttl"`

	// MaxOutstandingPerIdentity caps unanswered challenges per private
	// identity. Zero disables the cap.
	// Default: 16
	MaxOutstandingPerIdentity int `mapstructure:"max_outstanding_per_identity" validate:"gte=0" yaml:"max_outstanding_per_identity"`

	// AuthenticateAllMethods extends authentication beyond REGISTER.
	AuthenticateAllMethods bool `mapstructure:"authenticate_all_methods" yaml:"authenticate_all_methods"`
}

// Credential source types.
const (
	HSSTypeHTTP   = "http"
	HSSTypeStatic = "static"
)

// HSSConfig configures the credential source.
type HSSConfig struct {
	// Type is "http" (remote HSS) or "static" (subscribers listed below).
	Type string `mapstructure:"type" validate:"required,oneof=http static" yaml:"type"`

	// URL is the base URL of the HSS, required for type http.
	URL string `mapstructure:"url" validate:"required_if=Type http,omitempty,url" yaml:"url,omitempty"`

	// Timeout bounds a single fetch.
	// Default: 2s
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0" yaml:"timeout"`

	// Subscribers are served by the static source.
	Subscribers []hss.Subscriber `mapstructure:"subscribers" validate:"required_if=Type static,dive" yaml:"subscribers,omitempty"`
}

// Vector store backends.
const (
	VectorStoreMemory = "memory"
	VectorStoreBadger = "badger"
	VectorStoreSQL    = "sql"
)

// VectorStoreConfig selects the vector cache backend.
type VectorStoreConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sql" yaml:"type"`

	// CleanupInterval is how often the memory backend sweeps expired entries.
	// Default: 10s
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0" yaml:"cleanup_interval"`

	Badger badgerstore.Config `mapstructure:"badger" yaml:"badger,omitempty"`
	SQL    sqlstore.Config    `mapstructure:"sql" yaml:"sql,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location. A missing file is not
// an error: defaults (with environment overrides) are used instead.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Keys must be known to viper for AutomaticEnv to bind them during
	// Unmarshal, so seed it with the defaults.
	if err := seedDefaults(v, GetDefaultConfig()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration and requires the file to exist, with
// instructions on how to create one when it does not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  sipauth config init\n\n"+
				"Or specify a custom config file:\n"+
				"  sipauth <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  sipauth config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML with owner-only permissions, since it may
// hold the API secret and subscriber passwords.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reports whether a config file was found and read.
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

// seedDefaults registers every key of def with viper as a default value.
func seedDefaults(v *viper.Viper, def *Config) error {
	var flat map[string]any
	if err := mapstructure.Decode(def, &flat); err != nil {
		return fmt.Errorf("failed to flatten defaults: %w", err)
	}
	setDefaults(v, "", flat)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for key, value := range m {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := toMap(value); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, value)
	}
}

func toMap(value any) (map[string]any, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		m, ok := rv.Interface().(map[string]any)
		return m, ok
	case reflect.Struct:
		var m map[string]any
		if err := mapstructure.Decode(rv.Interface(), &m); err != nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}

// configDecodeHooks returns a combined decode hook for byte sizes and
// durations.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts "1Gi", "500Mi", "100MB" or plain numbers to
// bytesize.ByteSize.
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

// durationDecodeHook converts "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
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

// getConfigDir returns $XDG_CONFIG_HOME/sipauth, ~/.config/sipauth, or "."
// when no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sipauth")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "sipauth")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
