package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/usermanagement/usermanagement/internal/telemetry"
)

// Watch reloads the config file on every write and passes the new configuration to
// apply. Invalid edits are logged and skipped, keeping the last good configuration.
// Only settings that are read at use time (such as logging.level) take effect; the
// rest need a restart.
//
// Watch returns an error when no config file is in use, since there is nothing to watch.
func Watch(configPath string, apply func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	file := v.ConfigFileUsed()
	if file == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			telemetry.ConfigReloadsTotal.WithLabelValues("error").Inc()
			slog.Error("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		telemetry.ConfigReloadsTotal.WithLabelValues("applied").Inc()
		slog.Info("config reloaded", "file", e.Name)
		apply(cfg)
	})
	v.WatchConfig()

	slog.Info("watching config file", "file", file)
	return nil
}
