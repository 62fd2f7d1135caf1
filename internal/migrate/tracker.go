package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration is one applied plan as recorded in the history table
type Migration struct {
	Version     int64     `json:"version"`
	ModelID     string    `json:"modelId"`
	Table       string    `json:"table"`
	Name        string    `json:"name"`
	Up          string    `json:"up"`
	Destructive bool      `json:"destructive"`
	AppliedAt   time.Time `json:"appliedAt"`
}

// NewMigration builds the history record of a plan
func NewMigration(modelID string, plan Plan) *Migration {
	now := time.Now().UTC()
	return &Migration{
		Version:     now.UnixNano(),
		ModelID:     modelID,
		Table:       plan.Table,
		Name:        plan.Name(),
		Up:          strings.Join(plan.Statements(), "\n"),
		Destructive: plan.Destructive,
		AppliedAt:   now,
	}
}

// Tracker manages the history of applied plans in the database
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new migration tracker
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Initialize ensures the _sys_migrations table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS _sys_migrations (
	version BIGINT PRIMARY KEY,
	model_id TEXT NOT NULL,
	table_name TEXT NOT NULL,
	name TEXT NOT NULL,
	destructive BOOLEAN NOT NULL DEFAULT FALSE,
	up_sql TEXT,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sys_migrations_model_id
ON _sys_migrations(model_id);
`
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// Record stores a migration inside the transaction that applied it
func (t *Tracker) Record(ctx context.Context, tx *sql.Tx, m *Migration) error {
	query := `
INSERT INTO _sys_migrations (version, model_id, table_name, name, destructive, up_sql, applied_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := tx.ExecContext(ctx, query, m.Version, m.ModelID, m.Table, m.Name, m.Destructive, m.Up, m.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// History returns the migrations applied for a model, oldest first
func (t *Tracker) History(ctx context.Context, modelID string) ([]*Migration, error) {
	query := `
SELECT version, model_id, table_name, name, destructive, up_sql, applied_at
FROM _sys_migrations
WHERE model_id = $1
ORDER BY version ASC
`
	rows, err := t.db.QueryContext(ctx, query, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		m := &Migration{}
		var upSQL sql.NullString
		if err := rows.Scan(&m.Version, &m.ModelID, &m.Table, &m.Name, &m.Destructive, &upSQL, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		if upSQL.Valid {
			m.Up = upSQL.String
		}
		migrations = append(migrations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return migrations, nil
}

// Count returns the total number of applied migrations
func (t *Tracker) Count(ctx context.Context) (int, error) {
	var count int
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _sys_migrations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get migration count: %w", err)
	}
	return count, nil
}
