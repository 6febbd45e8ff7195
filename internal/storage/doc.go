// Package storage persists the poll cursor, the delivered verdict history
// and the error relay dedup state.
//
// Drivers: "file" (JSON state + JSON Lines), "sqlite" (modernc.org/sqlite)
// and "postgres" (pgx). An empty driver or "none" disables persistence.
package storage
