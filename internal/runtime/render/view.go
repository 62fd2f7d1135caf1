package render

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/expr"
)

// View is one rendered component with its props resolved
type View struct {
	ID       string             `json:"id"`
	Type     page.ComponentType `json:"type"`
	Props    page.Map           `json:"props"`
	Style    page.Map           `json:"style"`
	Children []*View            `json:"children,omitempty"`

	// Clickable is set when the component carries actions
	Clickable bool `json:"clickable,omitempty"`
	// Rows holds the data of a Table
	Rows []page.Map `json:"rows,omitempty"`
	// Values holds the entered values of a Form
	Values page.Map `json:"values,omitempty"`
	// Error is set for failed table loads and unknown component types
	Error string `json:"error,omitempty"`
}

// Column is one configured Table column
type Column struct {
	Field  string
	Header string
}

// Field is one configured Form input
type Field struct {
	Name  string
	Label string
	Type  string
}

func resolveMap(m page.Map, globals page.Map) page.Map {
	return expr.ResolveMap(m, globals)
}

// Render builds the view tree of the page from the root. Closed modals are
// omitted.
func (s *Session) Render(ctx context.Context) *View {
	return s.RenderNode(ctx, s.doc.RootID)
}

// RenderNode builds the view tree below one component. It returns nil for
// missing ids, closed modals and unknown types outside of dev mode.
func (s *Session) RenderNode(ctx context.Context, id string) *View {
	return s.renderNode(ctx, id, s.Globals(), make(map[string]bool))
}

func (s *Session) renderNode(ctx context.Context, id string, globals page.Map, seen map[string]bool) *View {
	node, ok := s.doc.Components[id]
	if !ok || seen[id] {
		return nil
	}
	seen[id] = true

	if !node.Type.Valid() {
		if s.mode != ModeDev {
			return nil
		}
		s.logger.Warn("unknown component type", zap.String("component", id), zap.String("type", string(node.Type)))
		return &View{
			ID:    id,
			Type:  node.Type,
			Props: page.Map{},
			Style: page.Map{},
			Error: fmt.Sprintf("Unknown component type: %s", node.Type),
		}
	}
	if node.Type == page.TypeModal && !s.isOpen(id) {
		return nil
	}

	v := &View{
		ID:        id,
		Type:      node.Type,
		Props:     resolveMap(node.Props, globals),
		Style:     resolveMap(node.Style, globals),
		Clickable: len(node.Actions) > 0,
	}

	switch node.Type {
	case page.TypeTable:
		tableName := v.Props.Get("tableName").StringOr("")
		st := s.loadTable(ctx, id, tableName)
		v.Rows = st.rows
		if st.err != nil {
			v.Error = fmt.Sprintf("Error loading data: %v", st.err)
		}
	case page.TypeForm:
		v.Values = s.FormValues(id)
	}

	if node.Type.IsContainer() {
		for _, childID := range node.Children {
			if child := s.renderNode(ctx, childID, globals, seen); child != nil {
				v.Children = append(v.Children, child)
			}
		}
	}
	return v
}

// Columns returns the configured columns of a Table view
func (v *View) Columns() []Column {
	items, _ := v.Props.Get("columns").AsList()
	cols := make([]Column, 0, len(items))
	for _, item := range items {
		m, ok := item.AsMap()
		if !ok {
			continue
		}
		field := m.Get("field").Text()
		if field == "" {
			continue
		}
		header := m.Get("header").Text()
		if header == "" {
			header = field
		}
		cols = append(cols, Column{Field: field, Header: header})
	}
	return cols
}

// Fields returns the configured inputs of a Form view
func (v *View) Fields() []Field {
	items, _ := v.Props.Get("fields").AsList()
	fields := make([]Field, 0, len(items))
	for _, item := range items {
		m, ok := item.AsMap()
		if !ok {
			continue
		}
		name := m.Get("name").Text()
		if name == "" {
			continue
		}
		f := Field{
			Name:  name,
			Label: m.Get("label").Text(),
			Type:  m.Get("type").StringOr("text"),
		}
		if f.Label == "" {
			f.Label = name
		}
		fields = append(fields, f)
	}
	return fields
}
