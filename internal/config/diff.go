package config

import (
	"strings"

	logx "hwbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe log fields.
// Secrets are never included; only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Practicum != newCfg.Practicum {
		changed = append(changed, "practicum")
		attrs = append(attrs,
			logx.String("practicum.endpoint", newCfg.Practicum.Endpoint),
			logx.String("practicum.timeout", newCfg.Practicum.Timeout),
			logx.Bool("practicum.token_changed", oldCfg.Practicum.Token != newCfg.Practicum.Token),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.commands", newCfg.Telegram.Commands),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Bool("telegram.chat_changed", oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID),
		)
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.schedule", strings.TrimSpace(newCfg.Poll.Schedule)),
			logx.Bool("poll.relay_errors", newCfg.Poll.RelayErrors),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.String("notifier.dedup_window", newCfg.Notifier.DedupWindow),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if storageChanged(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
			logx.Bool("metrics.token_set", newCfg.Metrics.Token != ""),
		)
	}
	return changed, attrs
}

func storageChanged(a, b *StorageConfig) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return *a != *b
}

// RestartRequired reports sections whose changes only take effect after a restart.
func RestartRequired(section string) bool {
	switch section {
	case "practicum", "telegram", "storage":
		return true
	}
	return false
}
