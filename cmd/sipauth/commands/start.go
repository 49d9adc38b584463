package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/internal/telemetry"
	"github.com/marmos91/sipauth/pkg/api"
	"github.com/marmos91/sipauth/pkg/api/auth"
	"github.com/marmos91/sipauth/pkg/config"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/sipauth/pkg/metrics/prometheus"
)

var (
	pidFile     string
	watchConfig bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sipauth server",
	Long: `Start the sipauth server in the foreground.

The server exposes the decision endpoint the signaling layer calls for each
request, the health probes and, when enabled, Prometheus metrics. Run it
under a process supervisor (systemd, Kubernetes) for background operation.

Examples:
  # Start with the default config file
  sipauth start

  # Start with a custom config file
  sipauth start --config /etc/sipauth/config.yaml

  # Start with environment variable overrides
  SIPAUTH_LOGGING_LEVEL=DEBUG sipauth start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file")
	startCmd.Flags().BoolVar(&watchConfig, "watch", true, "Reload the logging section when the config file changes")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	realm, err := config.ResolveRealm(cfg)
	if err != nil {
		return err
	}

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "sipauth",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is cancelled by then
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "sipauth",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		Tags:           map[string]string{"realm": realm},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("sipauth starting", "version", Version, "commit", Commit)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if cfg.Telemetry.Profiling.Enabled {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	components, err := config.Build(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Error("Failed to close components", logger.Err(err))
		}
	}()

	if components.Metrics != nil {
		logger.Info("Metrics enabled", "path", "/metrics", "port", cfg.API.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	deps := api.Dependencies{
		Engine:    components.Engine,
		Store:     components.Store,
		StoreType: cfg.VectorStore.Type,
		Realm:     components.Engine.Realm(),
	}
	if secret := cfg.API.GetJWTSecret(); secret != "" {
		deps.JWT, err = auth.NewJWTService(secret, cfg.API.JWT.AccessTokenDuration)
		if err != nil {
			return fmt.Errorf("failed to create token service: %w", err)
		}
	} else {
		logger.Warn("No API secret configured, admin endpoints are disabled")
	}

	if watchConfig && getConfigSource(GetConfigFile()) != "defaults" {
		err := config.WatchLogging(resolveConfigFile(), func(lc config.LoggingConfig) {
			logger.SetLevel(lc.Level)
			logger.SetFormat(lc.Format)
		})
		if err != nil {
			logger.Warn("Config file watch disabled", logger.Err(err))
		}
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	server := api.NewServer(cfg.API, deps)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx, cfg.ShutdownTimeout)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
