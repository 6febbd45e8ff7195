package app

import (
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/metrics"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

// Mapping from the file config to component configs. Every function here
// also runs in the reload validator.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapClientOptions(cfg *config.Config, log logx.Logger) (homework.Options, error) {
	timeout, err := config.ParseDurationOrDefault("practicum.timeout", cfg.Practicum.Timeout, 10*time.Second)
	if err != nil {
		return homework.Options{}, err
	}
	ep := cfg.Practicum.Endpoint
	if ep == "" {
		ep = config.DefaultEndpoint
	}
	return homework.Options{
		Endpoint: ep,
		Token:    cfg.Practicum.Token,
		Timeout:  timeout,
		Log:      log,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	// an explicit zero turns error dedup off
	window := time.Hour
	if strings.TrimSpace(cfg.Notifier.DedupWindow) != "" {
		window, err = config.ParseDurationField("notifier.dedup_window", cfg.Notifier.DedupWindow)
		if err != nil {
			return notifier.Config{}, err
		}
	}
	return notifier.Config{
		ChatID:          cfg.Telegram.ChatID,
		RatePerSec:      cfg.Notifier.RatePerSec,
		SendTimeout:     sendTimeout,
		DedupWindow:     window,
		DedupMaxEntries: cfg.Notifier.DedupMaxEntries,
		PersistDedup:    cfg.Notifier.PersistDedup,
	}, nil
}

func mapSchedule(cfg *config.Config) (poller.Schedule, error) {
	return poller.ParseSchedule(cfg.Poll.Schedule)
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		Addr:          cfg.Metrics.Addr,
		Token:         cfg.Metrics.Token,
		AllowInsecure: cfg.Metrics.AllowInsecure,
	}
}

// validateRuntime runs every mapping; it backs the reload validator.
func validateRuntime(cfg *config.Config) error {
	if err := config.RequireSecrets(cfg); err != nil {
		return err
	}
	if _, err := mapClientOptions(cfg, logx.Logger{}); err != nil {
		return err
	}
	if _, err := mapAdapterConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedule(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
