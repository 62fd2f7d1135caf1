package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/internal/model"
)

// fieldConfig is the JSON stored in _sys_fields.config
type fieldConfig struct {
	Validation   *model.Validation `json:"validation,omitempty"`
	Options      []string          `json:"options,omitempty"`
	Relation     *model.Relation   `json:"relation,omitempty"`
	DefaultValue json.RawMessage   `json:"defaultValue,omitempty"`
}

// Models is the repository of published model metadata
type Models struct {
	db *DB
}

// NewModels creates a model repository
func NewModels(db *DB) *Models {
	return &Models{db: db}
}

const modelColumns = `id, name, description, table_name, created_at, updated_at`

const fieldColumns = `id, model_id, name, key, type, description, is_system, config`

// List returns every model with its fields, newest first
func (r *Models) List(ctx context.Context) ([]*model.DataModel, error) {
	rows, err := r.db.query(ctx, `SELECT `+modelColumns+` FROM _sys_models ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	models := []*model.DataModel{}
	byID := make(map[string]*model.DataModel)
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		models = append(models, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating models: %w", err)
	}
	rows.Close()

	fields, err := r.db.query(ctx, `SELECT `+fieldColumns+` FROM _sys_fields ORDER BY model_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer fields.Close()
	for fields.Next() {
		modelID, f, err := scanField(fields)
		if err != nil {
			return nil, err
		}
		if m, ok := byID[modelID]; ok {
			m.Fields = append(m.Fields, f)
		}
	}
	if err := fields.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fields: %w", err)
	}
	return models, nil
}

// Get loads one model with its fields in position order
func (r *Models) Get(ctx context.Context, id string) (*model.DataModel, error) {
	m, found, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, id)
	}
	return m, nil
}

// Lookup loads one model and reports whether it exists
func (r *Models) Lookup(ctx context.Context, id string) (*model.DataModel, bool, error) {
	rows, err := r.db.query(ctx, `SELECT `+modelColumns+` FROM _sys_models WHERE id = ?`, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get model: %w", err)
	}
	var m *model.DataModel
	if rows.Next() {
		m, err = scanModel(rows)
	}
	if err == nil {
		err = rows.Err()
	}
	rows.Close()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get model: %w", err)
	}
	if m == nil {
		return nil, false, nil
	}

	fields, err := r.db.query(ctx, `SELECT `+fieldColumns+` FROM _sys_fields WHERE model_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get fields: %w", err)
	}
	defer fields.Close()
	for fields.Next() {
		_, f, err := scanField(fields)
		if err != nil {
			return nil, false, err
		}
		m.Fields = append(m.Fields, f)
	}
	if err := fields.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating fields: %w", err)
	}
	return m, true, nil
}

// Create stores a new model and its fields
func (r *Models) Create(ctx context.Context, m *model.DataModel) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := model.ValidateModel(m); err != nil {
		return err
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = &now, &now
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.db.Dialect.Rebind(
			`INSERT INTO _sys_models (id, name, description, table_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
			m.ID, m.Name, m.Description, m.TableName, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to create model: %w", err)
		}
		return r.syncFields(ctx, tx, m, now)
	})
}

// Save upserts a model and replaces its fields: fields missing from m are
// deleted and the rest are upserted in slice order, all in one transaction
func (r *Models) Save(ctx context.Context, m *model.DataModel) error {
	now := time.Now().UTC()
	created := now
	if m.CreatedAt != nil {
		created = m.CreatedAt.UTC()
	}
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.db.Dialect.Rebind(
			`INSERT INTO _sys_models (id, name, description, table_name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description,
table_name = excluded.table_name, updated_at = excluded.updated_at`),
			m.ID, m.Name, m.Description, m.TableName, formatTime(created), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		if err := r.syncFields(ctx, tx, m, now); err != nil {
			return err
		}
		m.UpdatedAt = &now
		return nil
	})
}

func (r *Models) syncFields(ctx context.Context, tx *sql.Tx, m *model.DataModel, now time.Time) error {
	deleteQuery := `DELETE FROM _sys_fields WHERE model_id = ?`
	args := []any{m.ID}
	if len(m.Fields) > 0 {
		placeholders := make([]string, len(m.Fields))
		for i, f := range m.Fields {
			placeholders[i] = "?"
			args = append(args, f.ID)
		}
		deleteQuery += ` AND id NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if _, err := tx.ExecContext(ctx, r.db.Dialect.Rebind(deleteQuery), args...); err != nil {
		return fmt.Errorf("failed to delete removed fields: %w", err)
	}

	upsert := r.db.Dialect.Rebind(`INSERT INTO _sys_fields
(id, model_id, name, key, type, description, is_system, config, position, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, key = excluded.key, type = excluded.type,
description = excluded.description, is_system = excluded.is_system, config = excluded.config,
position = excluded.position, updated_at = excluded.updated_at`)
	for i, f := range m.Fields {
		config, err := json.Marshal(fieldConfig{
			Validation:   f.Validation,
			Options:      f.Options,
			Relation:     f.Relation,
			DefaultValue: f.DefaultValue,
		})
		if err != nil {
			return fmt.Errorf("failed to encode field config: %w", err)
		}
		_, err = tx.ExecContext(ctx, upsert,
			f.ID, m.ID, f.Name, f.Key, string(f.Type), f.Description, boolInt(f.IsSystem), string(config), i,
			formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to save field %s: %w", f.Key, err)
		}
	}
	return nil
}

// Delete removes a model and its fields
func (r *Models) Delete(ctx context.Context, id string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.db.Dialect.Rebind(`DELETE FROM _sys_fields WHERE model_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete fields: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.db.Dialect.Rebind(`DELETE FROM _sys_models WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete model: %w", err)
		}
		return expectAffected(res, "model", id)
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(s scanner) (*model.DataModel, error) {
	m := &model.DataModel{Fields: []model.Field{}}
	var created, updated string
	if err := s.Scan(&m.ID, &m.Name, &m.Description, &m.TableName, &created, &updated); err != nil {
		return nil, fmt.Errorf("failed to scan model: %w", err)
	}
	c, u := parseTime(created), parseTime(updated)
	m.CreatedAt, m.UpdatedAt = &c, &u
	return m, nil
}

func scanField(s scanner) (string, model.Field, error) {
	var (
		f        model.Field
		modelID  string
		typ      string
		isSystem int64
		config   string
	)
	if err := s.Scan(&f.ID, &modelID, &f.Name, &f.Key, &typ, &f.Description, &isSystem, &config); err != nil {
		return "", f, fmt.Errorf("failed to scan field: %w", err)
	}
	f.Type = model.FieldType(typ)
	f.IsSystem = isSystem != 0

	if config != "" {
		var cfg fieldConfig
		if err := json.Unmarshal([]byte(config), &cfg); err != nil {
			return "", f, fmt.Errorf("failed to decode config of field %s: %w", f.ID, err)
		}
		f.Validation = cfg.Validation
		f.Options = cfg.Options
		f.Relation = cfg.Relation
		f.DefaultValue = cfg.DefaultValue
	}
	return modelID, f, nil
}
