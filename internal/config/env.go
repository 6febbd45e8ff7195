package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvPracticumToken    = "PRACTICUM_TOKEN"
	EnvTelegramToken     = "TELEGRAM_TOKEN"
	EnvTelegramChatID    = "TELEGRAM_CHAT_ID"
	EnvPracticumEndpoint = "PRACTICUM_ENDPOINT"
	EnvLogLevel          = "HWBOT_LOG_LEVEL"
	EnvLogFormat         = "HWBOT_LOG_FORMAT"
)

var ErrMissingSecrets = errors.New("missing required environment variables")

// MissingSecretsError lists every required secret that is not set.
type MissingSecretsError struct {
	Names []string
}

func (e *MissingSecretsError) Error() string {
	return ErrMissingSecrets.Error() + ": " + strings.Join(e.Names, ", ")
}

func (e *MissingSecretsError) Is(target error) bool { return target == ErrMissingSecrets }

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Existing variables are not overridden and
// missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment values on cfg. Set variables win over file values.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPracticumToken); ok {
		cfg.Practicum.Token = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvTelegramChatID, v, err)
		}
		cfg.Telegram.ChatID = id
	}
	if v, ok := get(EnvPracticumEndpoint); ok {
		cfg.Practicum.Endpoint = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvLogFormat); ok {
		cfg.Logging.Format = v
	}
	return nil
}

// RequireSecrets fails with a *MissingSecretsError naming every absent secret.
func RequireSecrets(cfg *Config) error {
	var missing []string
	if cfg == nil || strings.TrimSpace(cfg.Practicum.Token) == "" {
		missing = append(missing, EnvPracticumToken)
	}
	if cfg == nil || strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, EnvTelegramToken)
	}
	if cfg == nil || cfg.Telegram.ChatID == 0 {
		missing = append(missing, EnvTelegramChatID)
	}
	if len(missing) > 0 {
		return &MissingSecretsError{Names: missing}
	}
	return nil
}
