package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/sipauth/internal/bytesize"
	"github.com/marmos91/sipauth/pkg/authn"
	"github.com/marmos91/sipauth/pkg/hss"
)

// Defaults for values that have one.
const (
	DefaultMaxOutstandingPerIdentity = 16
	DefaultCleanupInterval           = 10 * time.Second
	DefaultShutdownTimeout           = 30 * time.Second
	DefaultHSSURL                    = "http://localhost:8081"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced, explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	cfg.API.ApplyDefaults()
	applyAuthDefaults(&cfg.Auth)
	applyHSSDefaults(&cfg.HSS)
	applyVectorStoreDefaults(&cfg.VectorStore)
	applyAnalyticsDefaults(cfg)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 100 * bytesize.MiB
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.VectorTTL == 0 {
		cfg.VectorTTL = authn.DefaultVectorTTL
	}
	if cfg.MaxOutstandingPerIdentity == 0 {
		cfg.MaxOutstandingPerIdentity = DefaultMaxOutstandingPerIdentity
	}
}

func applyHSSDefaults(cfg *HSSConfig) {
	if cfg.Type == "" {
		cfg.Type = HSSTypeHTTP
	}
	if cfg.Type == HSSTypeHTTP && cfg.URL == "" {
		cfg.URL = DefaultHSSURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = hss.DefaultTimeout
	}
}

func applyVectorStoreDefaults(cfg *VectorStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = VectorStoreMemory
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Type == VectorStoreBadger && cfg.Badger.Path == "" && !cfg.Badger.InMemory {
		cfg.Badger.Path = filepath.Join(getConfigDir(), "vectors.badger")
	}
	if cfg.Type == VectorStoreSQL {
		cfg.SQL.ApplyDefaults()
	}
}

func applyAnalyticsDefaults(cfg *Config) {
	a := &cfg.Analytics
	if a.MaxSizeMB == 0 {
		a.MaxSizeMB = 100
	}
	if a.MaxBackups == 0 {
		a.MaxBackups = 5
	}
	if a.MaxAgeDays == 0 {
		a.MaxAgeDays = 30
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
