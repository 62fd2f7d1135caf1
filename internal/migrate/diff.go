// Package migrate translates data model changes into Postgres DDL and applies
// them: Diff is a pure translator, Runner executes a plan in one transaction
// and Publisher drives the full publish workflow.
package migrate

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pagecraft/pagecraft/internal/model"
)

// OpKind classifies one DDL statement
type OpKind string

const (
	OpCreateTable   OpKind = "create_table"
	OpCommentTable  OpKind = "comment_table"
	OpCommentColumn OpKind = "comment_column"
	OpAddColumn     OpKind = "add_column"
	OpRenameColumn  OpKind = "rename_column"
	OpAlterType     OpKind = "alter_type"
	OpSetNotNull    OpKind = "set_not_null"
	OpDropNotNull   OpKind = "drop_not_null"
	OpDropColumn    OpKind = "drop_column"
	OpDropTable     OpKind = "drop_table"
)

// Destructive reports whether statements of this kind lose data
func (k OpKind) Destructive() bool {
	return k == OpDropColumn || k == OpDropTable
}

// Op is one DDL statement of a plan
type Op struct {
	Kind OpKind `json:"kind"`
	// Field is the column key the statement concerns, empty for table statements
	Field string `json:"field,omitempty"`
	SQL   string `json:"sql"`
}

// Plan is the ordered list of statements that brings a table in line with a model
type Plan struct {
	Table       string `json:"table"`
	Ops         []Op   `json:"ops"`
	Destructive bool   `json:"destructive"`
}

// Empty reports whether the plan has nothing to execute
func (p Plan) Empty() bool {
	return len(p.Ops) == 0
}

// Statements returns the SQL of every op in order
func (p Plan) Statements() []string {
	out := make([]string, len(p.Ops))
	for i, op := range p.Ops {
		out[i] = op.SQL
	}
	return out
}

// Name returns a descriptive migration name such as "create_orders" or
// "alter_orders_add_total"
func (p Plan) Name() string {
	if len(p.Ops) == 0 {
		return "noop_" + p.Table
	}
	switch p.Ops[0].Kind {
	case OpCreateTable:
		return "create_" + p.Table
	case OpDropTable:
		return "drop_" + p.Table
	}

	parts := []string{"alter", p.Table}
	seen := make(map[string]bool)
	for _, op := range p.Ops {
		var verb string
		switch op.Kind {
		case OpAddColumn:
			verb = "add"
		case OpDropColumn:
			verb = "drop"
		case OpRenameColumn:
			verb = "rename"
		case OpAlterType, OpSetNotNull, OpDropNotNull:
			verb = "modify"
		default:
			continue
		}
		label := verb + "_" + op.Field
		if !seen[label] {
			seen[label] = true
			parts = append(parts, label)
		}
	}
	name := strings.Join(parts, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}

func (p *Plan) add(kind OpKind, field, sql string) {
	p.Ops = append(p.Ops, Op{Kind: kind, Field: field, SQL: sql})
	if kind.Destructive() {
		p.Destructive = true
	}
}

// SQLType maps a logical field type to its Postgres column type
func SQLType(t model.FieldType) string {
	switch t {
	case model.FieldNumber:
		return "numeric"
	case model.FieldBoolean:
		return "boolean"
	case model.FieldDate, model.FieldDateTime:
		return "timestamptz"
	case model.FieldJSON:
		return "jsonb"
	default:
		return "text"
	}
}

// Diff returns the statements that migrate the table of old into the table of
// next. With no old model the plan creates the table from scratch. Fields are
// matched by id so a changed key is a rename, not a drop and add.
func Diff(next, old *model.DataModel) Plan {
	table := next.TableName
	plan := Plan{Table: table}
	qt := pq.QuoteIdentifier(table)

	if old == nil {
		createTable(&plan, next)
		return plan
	}

	oldByID := make(map[string]model.Field, len(old.Fields))
	for _, f := range userFields(old.Fields) {
		oldByID[f.ID] = f
	}
	nextFields := userFields(next.Fields)
	nextByID := make(map[string]bool, len(nextFields))
	for _, f := range nextFields {
		nextByID[f.ID] = true
	}

	for _, f := range nextFields {
		if _, ok := oldByID[f.ID]; ok {
			continue
		}
		plan.add(OpAddColumn, f.Key, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s;", qt, columnDef(f)))
		if f.Description != "" {
			plan.add(OpCommentColumn, f.Key, commentColumn(table, f.Key, f.Description))
		}
	}

	for _, f := range nextFields {
		prev, ok := oldByID[f.ID]
		if !ok {
			continue
		}
		key := pq.QuoteIdentifier(f.Key)

		if f.Key != prev.Key {
			plan.add(OpRenameColumn, f.Key, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;",
				qt, pq.QuoteIdentifier(prev.Key), key))
		}
		if f.Type != prev.Type && SQLType(f.Type) != SQLType(prev.Type) {
			typ := SQLType(f.Type)
			plan.add(OpAlterType, f.Key, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;",
				qt, key, typ, key, typ))
		}
		if f.Required() != prev.Required() {
			if f.Required() {
				plan.add(OpSetNotNull, f.Key, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;", qt, key))
			} else {
				plan.add(OpDropNotNull, f.Key, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;", qt, key))
			}
		}
		if f.Description != prev.Description {
			plan.add(OpCommentColumn, f.Key, commentColumn(table, f.Key, f.Description))
		}
	}

	for _, f := range userFields(old.Fields) {
		if nextByID[f.ID] {
			continue
		}
		plan.add(OpDropColumn, f.Key, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", qt, pq.QuoteIdentifier(f.Key)))
	}

	return plan
}

// DropTable returns the plan that removes the table of a model
func DropTable(table string) Plan {
	plan := Plan{Table: table}
	plan.add(OpDropTable, "", fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", pq.QuoteIdentifier(table)))
	return plan
}

func createTable(plan *Plan, m *model.DataModel) {
	fields := userFields(m.Fields)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pq.QuoteIdentifier(m.TableName))
	b.WriteString("  id uuid PRIMARY KEY DEFAULT gen_random_uuid(),\n")
	b.WriteString("  created_at timestamptz DEFAULT now(),\n")
	b.WriteString("  updated_at timestamptz DEFAULT now()")
	for _, f := range fields {
		b.WriteString(",\n  ")
		b.WriteString(columnDef(f))
	}
	b.WriteString("\n);")
	plan.add(OpCreateTable, "", b.String())

	if m.Description != "" {
		plan.add(OpCommentTable, "", fmt.Sprintf("COMMENT ON TABLE %s IS %s;",
			pq.QuoteIdentifier(m.TableName), pq.QuoteLiteral(m.Description)))
	}
	for _, f := range fields {
		if f.Description != "" {
			plan.add(OpCommentColumn, f.Key, commentColumn(m.TableName, f.Key, f.Description))
		}
	}
}

// userFields drops fields that describe the system columns every table has
func userFields(fields []model.Field) []model.Field {
	out := make([]model.Field, 0, len(fields))
	for _, f := range fields {
		if model.IsSystemColumn(f.Key) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func columnDef(f model.Field) string {
	nullable := "NULL"
	if f.Required() {
		nullable = "NOT NULL"
	}
	return fmt.Sprintf("%s %s %s", pq.QuoteIdentifier(f.Key), SQLType(f.Type), nullable)
}

func commentColumn(table, key, description string) string {
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s;",
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(key), pq.QuoteLiteral(description))
}
