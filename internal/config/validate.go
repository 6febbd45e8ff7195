package config

import (
	"fmt"
	"net/url"
	"strings"

	logx "hwbot/pkg/logx"
)

// Validate checks field formats. It does not require secrets; see RequireSecrets.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if ep := strings.TrimSpace(c.Practicum.Endpoint); ep != "" {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("practicum.endpoint: invalid url %q", ep)
		}
	}
	for path, raw := range map[string]string{
		"practicum.timeout":     c.Practicum.Timeout,
		"telegram.poll_timeout": c.Telegram.PollTimeout,
		"notifier.send_timeout": c.Notifier.SendTimeout,
		"notifier.dedup_window": c.Notifier.DedupWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Poll.Schedule) == "" {
		return fmt.Errorf("poll.schedule is required")
	}
	if c.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if c.Notifier.DedupMaxEntries < 0 {
		return fmt.Errorf("notifier.dedup_max_entries must be >= 0")
	}
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			return fmt.Errorf("logging.level: unknown level %q", lvl)
		}
	}
	if !logx.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", c.Storage.Driver)
			}
		case "postgres", "postgresql", "pgx":
			if strings.TrimSpace(c.Storage.DSN) == "" {
				return fmt.Errorf("storage.dsn is required when storage.driver=%s", c.Storage.Driver)
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", c.Storage.Driver)
		}
	}
	return nil
}
