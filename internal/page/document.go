// Package page defines the persisted page schema: a flat mapping of component
// nodes keyed by id plus the id of the root node.
package page

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// DefaultRootID is the root id assumed for documents stored in the legacy
// bare-mapping format
const DefaultRootID = "root"

// ErrInvalidDocument is wrapped by every structural validation failure
var ErrInvalidDocument = errors.New("invalid page document")

// Document is the persisted schema of one page
type Document struct {
	RootID     string           `json:"rootId"`
	Components map[string]*Node `json:"components"`
}

// NewDocument returns the schema of an empty page: a single flex column root
func NewDocument() *Document {
	root := &Node{
		ID:       DefaultRootID,
		Type:     TypeContainer,
		Children: []string{},
		Props:    Map{},
		Style: Map{
			"display":       String("flex"),
			"flexDirection": String("column"),
			"height":        String("100%"),
		},
	}
	return &Document{
		RootID:     DefaultRootID,
		Components: map[string]*Node{root.ID: root},
	}
}

// ParseDocument decodes a stored schema. Both the wrapped {rootId, components}
// format and the legacy bare id->node mapping are accepted; an empty or null
// schema yields NewDocument.
func ParseDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewDocument(), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if _, wrapped := envelope["rootId"]; wrapped {
		var doc Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if doc.Components == nil {
			doc.Components = map[string]*Node{}
		}
		return &doc, nil
	}

	components := make(map[string]*Node, len(envelope))
	for id, raw := range envelope {
		var n Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("%w: component %s: %v", ErrInvalidDocument, id, err)
		}
		components[id] = &n
	}
	if len(components) == 0 {
		return NewDocument(), nil
	}
	return &Document{RootID: DefaultRootID, Components: components}, nil
}

// Root returns the root node, or nil when it is missing
func (d *Document) Root() *Node {
	return d.Components[d.RootID]
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	out := &Document{
		RootID:     d.RootID,
		Components: make(map[string]*Node, len(d.Components)),
	}
	for id, n := range d.Components {
		out.Components[id] = n.Clone()
	}
	return out
}

// IDs returns all component ids in sorted order
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Components))
	for id := range d.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that the document is a well-formed tree of known components
func (d *Document) Validate() error {
	if d.RootID == "" {
		return fmt.Errorf("%w: missing rootId", ErrInvalidDocument)
	}
	root, ok := d.Components[d.RootID]
	if !ok || root == nil {
		return fmt.Errorf("%w: root %q not found", ErrInvalidDocument, d.RootID)
	}
	if root.ParentID != "" {
		return fmt.Errorf("%w: root %q has parent %q", ErrInvalidDocument, d.RootID, root.ParentID)
	}

	for _, id := range d.IDs() {
		n := d.Components[id]
		if n == nil {
			return fmt.Errorf("%w: component %q is null", ErrInvalidDocument, id)
		}
		if n.ID != id {
			return fmt.Errorf("%w: component keyed %q has id %q", ErrInvalidDocument, id, n.ID)
		}
		if !n.Type.Valid() {
			return fmt.Errorf("%w: component %q has unknown type %q", ErrInvalidDocument, id, n.Type)
		}
		for i, a := range n.Actions {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("%w: component %q action %d: %v", ErrInvalidDocument, id, i, err)
			}
		}
		if id != d.RootID {
			if n.ParentID == "" {
				return fmt.Errorf("%w: component %q has no parent", ErrInvalidDocument, id)
			}
			parent, ok := d.Components[n.ParentID]
			if !ok || parent == nil {
				return fmt.Errorf("%w: component %q references missing parent %q", ErrInvalidDocument, id, n.ParentID)
			}
			if !containsID(parent.Children, id) {
				return fmt.Errorf("%w: component %q missing from children of %q", ErrInvalidDocument, id, n.ParentID)
			}
		}
		seen := make(map[string]bool, len(n.Children))
		for _, childID := range n.Children {
			if seen[childID] {
				return fmt.Errorf("%w: component %q lists child %q twice", ErrInvalidDocument, id, childID)
			}
			seen[childID] = true
			child, ok := d.Components[childID]
			if !ok || child == nil {
				return fmt.Errorf("%w: component %q references missing child %q", ErrInvalidDocument, id, childID)
			}
			if child.ParentID != id {
				return fmt.Errorf("%w: child %q of %q has parent %q", ErrInvalidDocument, childID, id, child.ParentID)
			}
		}
	}

	// Every node must be reachable from the root exactly once.
	visited := make(map[string]bool, len(d.Components))
	stack := []string{d.RootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			return fmt.Errorf("%w: cycle through %q", ErrInvalidDocument, id)
		}
		visited[id] = true
		stack = append(stack, d.Components[id].Children...)
	}
	if len(visited) != len(d.Components) {
		return fmt.Errorf("%w: %d component(s) unreachable from root", ErrInvalidDocument, len(d.Components)-len(visited))
	}

	return nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
