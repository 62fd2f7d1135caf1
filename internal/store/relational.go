package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pagecraft/pagecraft/internal/migrate"
	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/page"
)

// DefaultRowLimit caps the rows returned by Rows
const DefaultRowLimit = 500

// Column describes one physical column of a table
type Column struct {
	Name       string `json:"column_name"`
	DataType   string `json:"data_type"`
	IsNullable string `json:"is_nullable"`
}

// Relational reads and writes the rows of user tables
type Relational struct {
	db    *DB
	limit int
}

// NewRelational creates a relational store
func NewRelational(db *DB) *Relational {
	return &Relational{db: db, limit: DefaultRowLimit}
}

// quoteTable quotes a user table name. Metadata tables are refused so the
// data API and runtime tables cannot reach them.
func quoteTable(table string) (string, error) {
	if !model.ValidKey(table) || model.ReservedTable(table) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, table)
	}
	return pq.QuoteIdentifier(table), nil
}

// Rows returns the rows of a table
func (r *Relational) Rows(ctx context.Context, table string) ([]page.Map, error) {
	qt, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", qt, r.limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()
	return scanMaps(rows)
}

// Insert adds a row and returns it as stored
func (r *Relational) Insert(ctx context.Context, table string, record page.Map) (page.Map, error) {
	qt, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	keys := record.Keys()

	var query string
	args := make([]any, 0, len(keys))
	if len(keys) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", qt)
	} else {
		cols := make([]string, len(keys))
		marks := make([]string, len(keys))
		for i, k := range keys {
			if !model.ValidKey(k) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, k)
			}
			cols[i] = pq.QuoteIdentifier(k)
			marks[i] = "?"
			args = append(args, sqlValue(record[k]))
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			qt, strings.Join(cols, ", "), strings.Join(marks, ", "))
	}

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	defer rows.Close()
	out, err := scanMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return record, nil
	}
	return out[0], nil
}

// Update changes the given columns of the row with id rowID
func (r *Relational) Update(ctx context.Context, table, rowID string, patch page.Map) (page.Map, error) {
	qt, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	keys := patch.Keys()
	if len(keys) == 0 {
		return nil, errors.New("nothing to update")
	}
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		if !model.ValidKey(k) || model.IsSystemColumn(k) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, k)
		}
		sets[i] = pq.QuoteIdentifier(k) + " = ?"
		args = append(args, sqlValue(patch[k]))
	}
	args = append(args, rowID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? RETURNING *", qt, strings.Join(sets, ", "))
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}
	defer rows.Close()
	out, err := scanMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s row %s", ErrNotFound, table, rowID)
	}
	return out[0], nil
}

// Delete removes the row with id rowID
func (r *Relational) Delete(ctx context.Context, table, rowID string) error {
	qt, err := quoteTable(table)
	if err != nil {
		return err
	}
	res, err := r.db.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", qt), rowID)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return expectAffected(res, table+" row", rowID)
}

// Columns introspects the physical columns of a table
func (r *Relational) Columns(ctx context.Context, table string) ([]Column, error) {
	if _, err := quoteTable(table); err != nil {
		return nil, err
	}
	query := `SELECT column_name, data_type, is_nullable FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = ? ORDER BY ordinal_position`
	if r.db.Dialect == DialectSQLite {
		query = `SELECT name, type, CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END FROM pragma_table_info(?) ORDER BY cid`
	}
	rows, err := r.db.query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

// TableExists checks whether a table exists. An undefined_table error means it is missing.
func (r *Relational) TableExists(ctx context.Context, table string) (bool, error) {
	qt, err := quoteTable(table)
	if err != nil {
		return false, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", qt))
	if err != nil {
		if migrate.IsUndefinedTable(err) || strings.Contains(err.Error(), "no such table") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	rows.Close()
	return true, nil
}

// Tables lists the user tables, excluding metadata tables
func (r *Relational) Tables(ctx context.Context) ([]string, error) {
	query := `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	if r.db.Dialect == DialectSQLite {
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if model.ReservedTable(name) {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func scanMaps(rows *sql.Rows) ([]page.Map, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	out := []page.Map{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(page.Map, len(cols))
		for i, c := range cols {
			row[c] = page.FromAny(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// sqlValue converts a value into a driver argument; maps and lists are
// encoded as JSON for jsonb columns
func sqlValue(v page.Value) any {
	switch v.Kind() {
	case page.KindMap, page.KindList:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	default:
		return v.Any()
	}
}
