package config

import (
	"fmt"
	"os"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/analytics"
	"github.com/marmos91/sipauth/pkg/authn"
	"github.com/marmos91/sipauth/pkg/avstore"
	badgerstore "github.com/marmos91/sipauth/pkg/avstore/badger"
	"github.com/marmos91/sipauth/pkg/avstore/memory"
	sqlstore "github.com/marmos91/sipauth/pkg/avstore/sql"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/marmos91/sipauth/pkg/metrics"
	"github.com/marmos91/sipauth/pkg/trail"
)

// ResolveRealm returns the configured realm, or the host name when none is
// set.
func ResolveRealm(cfg *Config) (string, error) {
	if cfg.Auth.Realm != "" {
		return cfg.Auth.Realm, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("no realm configured and host name unavailable: %w", err)
	}
	return host, nil
}

// CreateVectorStore creates the vector cache backend from configuration.
func CreateVectorStore(cfg *Config) (avstore.Store, error) {
	opts := avstore.Options{MaxPerIdentity: cfg.Auth.MaxOutstandingPerIdentity}
	vs := cfg.VectorStore

	switch vs.Type {
	case VectorStoreMemory, "":
		return memory.New(opts, vs.CleanupInterval), nil
	case VectorStoreBadger:
		return badgerstore.New(vs.Badger, opts)
	case VectorStoreSQL:
		sqlCfg := vs.SQL
		return sqlstore.New(&sqlCfg, opts)
	default:
		return nil, fmt.Errorf("unknown vector store type: %q", vs.Type)
	}
}

// CreateCredentialSource creates the HSS client or static source.
func CreateCredentialSource(cfg *Config, realm string, m metrics.AuthMetrics) (hss.Source, error) {
	switch cfg.HSS.Type {
	case HSSTypeHTTP:
		if cfg.HSS.URL == "" {
			return nil, fmt.Errorf("hss url is required for type %q", HSSTypeHTTP)
		}
		return hss.NewHTTPClient(cfg.HSS.URL, cfg.HSS.Timeout, m), nil
	case HSSTypeStatic:
		return hss.NewStaticSource(realm, cfg.HSS.Subscribers)
	default:
		return nil, fmt.Errorf("unknown hss type: %q", cfg.HSS.Type)
	}
}

// InitializeMetrics creates the registry and auth metrics when enabled.
// Returns nil otherwise, which every recording helper accepts.
func InitializeMetrics(cfg *Config) metrics.AuthMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	metrics.InitRegistry()
	return metrics.NewAuthMetrics()
}

// Components is everything the start command wires together.
type Components struct {
	Engine  *authn.Engine
	Store   avstore.Store
	Metrics metrics.AuthMetrics

	closers []func() error
}

// Close releases the store and the analytics sink.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build creates the store, credential source, analytics sink and decision
// engine described by cfg.
func Build(cfg *Config) (*Components, error) {
	realm, err := ResolveRealm(cfg)
	if err != nil {
		return nil, err
	}

	c := &Components{Metrics: InitializeMetrics(cfg)}

	c.Store, err = CreateVectorStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	c.closers = append(c.closers, c.Store.Close)

	source, err := CreateCredentialSource(cfg, realm, c.Metrics)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create credential source: %w", err)
	}

	reporter, closeAnalytics, err := analytics.New(cfg.Analytics)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create analytics sink: %w", err)
	}
	c.closers = append(c.closers, closeAnalytics)

	c.Engine, err = authn.New(authn.Options{
		Realm:                  realm,
		VectorTTL:              cfg.Auth.VectorTTL,
		AuthenticateAllMethods: cfg.Auth.AuthenticateAllMethods,
		Store:                  c.Store,
		Source:                 source,
		Trail:                  trail.SpanReporter{},
		Analytics:              reporter,
		Metrics:                c.Metrics,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	logger.Info("Decision engine ready",
		logger.KeyRealm, realm,
		"vector_store", cfg.VectorStore.Type,
		"hss", cfg.HSS.Type,
		"vector_ttl", cfg.Auth.VectorTTL,
		"authenticate_all_methods", cfg.Auth.AuthenticateAllMethods)
	return c, nil
}
