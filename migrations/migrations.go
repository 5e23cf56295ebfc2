// Package migrations embeds the schema migrations applied by internal/core/db.
// Each driver has its own directory; files are applied in name order.
package migrations

import "embed"

// SqliteMigrations holds the SQLite schema.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds the PostgreSQL schema (BYTEA key hashes, TIMESTAMPTZ).
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
