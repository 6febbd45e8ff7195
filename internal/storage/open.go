package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "hwbot/pkg/logx"
)

// Store is the persistence API used by the poller and the notifier.
type Store interface {
	// LoadCursor returns the saved from_date, ok=false when none was saved.
	LoadCursor(ctx context.Context) (cursor int64, ok bool, err error)
	SaveCursor(ctx context.Context, cursor int64) error

	AppendStatus(ctx context.Context, r StatusRecord) error
	// RecentStatuses returns up to limit records, newest first.
	RecentStatuses(ctx context.Context, limit int) ([]StatusRecord, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// normalizeRecord fills the id and timestamp of a record about to be stored.
func normalizeRecord(r StatusRecord) StatusRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	return r
}
