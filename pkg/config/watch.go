package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/sipauth/internal/logger"
)

// WatchLogging watches the config file at path and calls apply with the
// logging section each time the file is written. Only logging is reloadable;
// every other section needs a restart. Invalid edits are logged and skipped.
func WatchLogging(path string, apply func(LoggingConfig)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var lc LoggingConfig
		if err := v.UnmarshalKey("logging", &lc, viper.DecodeHook(configDecodeHooks())); err != nil {
			logger.Warn("Ignoring config change", "path", e.Name, logger.Err(err))
			return
		}
		applyLoggingDefaults(&lc)
		if err := validate.Struct(lc); err != nil {
			logger.Warn("Ignoring config change", "path", e.Name, logger.Err(err))
			return
		}
		logger.Info("Logging configuration reloaded", "level", strings.ToUpper(lc.Level), "format", lc.Format)
		apply(lc)
	})
	v.WatchConfig()
	return nil
}
