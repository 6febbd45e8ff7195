package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	logx "hwbot/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

// sqlStore serves both sqlite and postgres. Queries are written with '?'
// placeholders and rebound for postgres.
type sqlStore struct {
	db       *sql.DB
	log      logx.Logger
	postgres bool

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under our own load
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}
	return newSQLStore(db, log, false)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLStore(db, log, true)
}

func newSQLStore(db *sql.DB, log logx.Logger, postgres bool) (*sqlStore, error) {
	s := &sqlStore{db: db, log: log, postgres: postgres, pruneEvery: 100}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind turns '?' placeholders into $1..$n for postgres.
func (s *sqlStore) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) LoadCursor(ctx context.Context) (int64, bool, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx, `SELECT from_date FROM cursor_state WHERE id = 1`).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cursor, true, nil
}

func (s *sqlStore) SaveCursor(ctx context.Context, cursor int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO cursor_state(id, from_date, updated_at) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET from_date = excluded.from_date, updated_at = excluded.updated_at`),
		cursor, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqlStore) AppendStatus(ctx context.Context, r StatusRecord) error {
	r = normalizeRecord(r)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO status_history(id, at, homework_id, homework_name, status, message)
		 VALUES(?, ?, ?, ?, ?, ?)`),
		r.ID, r.At.UnixMilli(), r.HomeworkID, r.HomeworkName, r.Status, r.Message,
	)
	return err
}

func (s *sqlStore) RecentStatuses(ctx context.Context, limit int) ([]StatusRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, at, homework_id, homework_name, status, message
		 FROM status_history ORDER BY at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusRecord
	for rows.Next() {
		var (
			r  StatusRecord
			at int64
		)
		if err := rows.Scan(&r.ID, &at, &r.HomeworkID, &r.HomeworkName, &r.Status, &r.Message); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO dedup(key, until) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until`),
		key, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqlStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT until FROM dedup WHERE key = ?`), key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqlStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM dedup WHERE until < ?`), time.Now().UnixMilli())
	return err
}
