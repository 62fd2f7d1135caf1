package store

import (
	"context"
	"fmt"
)

// metadataSchema creates the metadata tables. Timestamps are stored as
// RFC 3339 text so the same schema works on Postgres and SQLite.
var metadataSchema = []string{
	`CREATE TABLE IF NOT EXISTS pages (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	schema TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_user_id ON pages(user_id)`,
	`CREATE TABLE IF NOT EXISTS _sys_models (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	table_name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS _sys_fields (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES _sys_models(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	key TEXT NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_system INTEGER NOT NULL DEFAULT 0,
	config TEXT NOT NULL DEFAULT '{}',
	position INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_sys_fields_model_id ON _sys_fields(model_id)`,
}

// Bootstrap creates the pages and model metadata tables if they are missing
func Bootstrap(ctx context.Context, db *DB) error {
	for _, stmt := range metadataSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to bootstrap metadata schema: %w", err)
		}
	}
	return nil
}
