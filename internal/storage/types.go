package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. Path is used by file and sqlite, DSN by postgres.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// StatusRecord is one delivered verdict.
type StatusRecord struct {
	ID           string    `json:"id"`
	At           time.Time `json:"at"`
	HomeworkID   int64     `json:"homework_id,omitempty"`
	HomeworkName string    `json:"homework_name"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
}
