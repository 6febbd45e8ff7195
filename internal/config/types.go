package config

// DefaultEndpoint is the homework status API used when practicum.endpoint is empty.
const DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

// Config is the full runtime configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// Secrets (practicum.token, telegram.token, telegram.chat_id) are usually
// supplied through the environment; see ApplyEnv.
type Config struct {
	Practicum PracticumConfig `json:"practicum"`
	Telegram  TelegramConfig  `json:"telegram"`
	Poll      PollConfig      `json:"poll"`
	Notifier  NotifierConfig  `json:"notifier"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type PracticumConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	Endpoint string `json:"endpoint,omitempty"`
	// Timeout bounds a single status request.
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"` // do not log
	ChatID int64  `json:"chat_id,omitempty"`
	// Commands enables long polling for /status, /check and /history.
	Commands    bool   `json:"commands"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// PollConfig controls the polling loop.
//
// Schedule accepts a Go duration ("5m"), an HH:MM interval ("00:10"),
// or a cron expression ("*/10 * * * *", "@every 5m").
type PollConfig struct {
	Schedule    string `json:"schedule"`
	RelayErrors bool   `json:"relay_errors"`
}

type NotifierConfig struct {
	RatePerSec      int    `json:"rate_per_sec"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // console or json
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/hwbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@localhost/hwbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // do not log
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MetricsConfig controls the optional Prometheus HTTP endpoint.
//
// Prefer binding to localhost. A non-loopback address needs a token
// or an explicit allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Default returns the configuration used when no file is given.
// Parse decodes on top of it, so omitted keys keep these values.
func Default() Config {
	return Config{
		Practicum: PracticumConfig{
			Endpoint: DefaultEndpoint,
			Timeout:  "10s",
		},
		Telegram: TelegramConfig{
			PollTimeout: "10s",
		},
		Poll: PollConfig{
			Schedule:    "5m",
			RelayErrors: true,
		},
		Notifier: NotifierConfig{
			RatePerSec:      1,
			SendTimeout:     "10s",
			DedupWindow:     "1h",
			DedupMaxEntries: 500,
		},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9108",
		},
	}
}
