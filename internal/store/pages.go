package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/page"
)

// Page is a stored page with its component tree
type Page struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Slug        string         `json:"slug"`
	Schema      *page.Document `json:"schema,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Pages is the repository of pages
type Pages struct {
	db *DB
}

// NewPages creates a page repository
func NewPages(db *DB) *Pages {
	return &Pages{db: db}
}

// List returns the pages of a user without their schema, newest first. An
// empty userID lists every page.
func (r *Pages) List(ctx context.Context, userID string) ([]*Page, error) {
	query := `SELECT id, user_id, name, description, slug, created_at, updated_at FROM pages`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	pages := []*Page{}
	for rows.Next() {
		p := &Page{}
		var created, updated string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Slug, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pages: %w", err)
	}
	return pages, nil
}

// Get loads one page including its schema
func (r *Pages) Get(ctx context.Context, id string) (*Page, error) {
	p := &Page{}
	var schema, created, updated string
	err := r.db.queryRow(ctx,
		`SELECT id, user_id, name, description, slug, schema, created_at, updated_at FROM pages WHERE id = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Slug, &schema, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: page %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	doc, err := page.ParseDocument([]byte(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema of page %s: %w", id, err)
	}
	p.Schema = doc
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return p, nil
}

// Create stores a new page. Missing ids, slugs and schemas are filled in.
func (r *Pages) Create(ctx context.Context, p *Page) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("page name is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Slug == "" {
		p.Slug = strings.Trim(model.KeyFromName(p.Name), "_")
	}
	if p.Schema == nil {
		p.Schema = page.NewDocument()
	}
	if err := p.Schema.Validate(); err != nil {
		return err
	}
	schema, err := json.Marshal(p.Schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err = r.db.exec(ctx,
		`INSERT INTO pages (id, user_id, name, description, slug, schema, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Description, p.Slug, string(schema), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	return nil
}

// SaveSchema replaces the component tree of a page. The document is validated
// first and stored in the {rootId, components} format.
func (r *Pages) SaveSchema(ctx context.Context, id string, doc *page.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: schema is required", page.ErrInvalidDocument)
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	schema, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	res, err := r.db.exec(ctx, `UPDATE pages SET schema = ?, updated_at = ? WHERE id = ?`,
		string(schema), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to save page schema: %w", err)
	}
	return expectAffected(res, "page", id)
}

// Delete removes a page
func (r *Pages) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return expectAffected(res, "page", id)
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}
