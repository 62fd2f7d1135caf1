// Package editor holds the in-memory state of one page editing session.
package editor

import (
	"github.com/pagecraft/pagecraft/internal/page"
)

// Store is the authoritative component tree of an editing session.
//
// Every mutator is total: a structurally invalid request (unknown node,
// unknown parent, moving the root, moving a node under its own subtree)
// leaves the tree untouched and reports false. A Store is not safe for
// concurrent use.
type Store struct {
	rootID   string
	nodes    map[string]*page.Node
	selected string
	dirty    bool
}

// NewStore creates a store holding the given document
func NewStore(doc *page.Document) *Store {
	s := &Store{}
	s.SetAll(doc)
	return s
}

// SetAll replaces the whole tree and clears selection and dirty state
func (s *Store) SetAll(doc *page.Document) {
	if doc == nil {
		doc = page.NewDocument()
	}
	clone := doc.Clone()
	s.rootID = clone.RootID
	s.nodes = clone.Components
	s.selected = ""
	s.dirty = false
}

// RootID returns the id of the root node
func (s *Store) RootID() string {
	return s.rootID
}

// Node returns a copy of the node with the given id
func (s *Store) Node(id string) (*page.Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Has reports whether a node exists
func (s *Store) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// TypeOf returns the component type of a node
func (s *Store) TypeOf(id string) (page.ComponentType, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return "", false
	}
	return n.Type, true
}

// ParentOf returns the parent id of a node; the root has none
func (s *Store) ParentOf(id string) (string, bool) {
	n, ok := s.nodes[id]
	if !ok || n.ParentID == "" {
		return "", false
	}
	return n.ParentID, true
}

// Children returns a copy of the ordered child ids of a node
func (s *Store) Children(id string) []string {
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return append([]string{}, n.Children...)
}

// IDs returns every node id in the tree
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of nodes in the tree
func (s *Store) Len() int {
	return len(s.nodes)
}

// Selected returns the selected node id, or "" when nothing is selected
func (s *Store) Selected() string {
	return s.selected
}

// Dirty reports whether the tree changed since it was loaded or last saved
func (s *Store) Dirty() bool {
	return s.dirty
}

// MarkSaved clears the dirty flag after a successful save
func (s *Store) MarkSaved() {
	s.dirty = false
}

// Snapshot returns a deep copy of the tree as a document
func (s *Store) Snapshot() *page.Document {
	doc := &page.Document{RootID: s.rootID, Components: s.nodes}
	return doc.Clone()
}

// Add appends node as the last child of parentID
func (s *Store) Add(parentID string, node *page.Node) bool {
	return s.Insert(parentID, node, -1)
}

// Insert places node among the children of parentID at index. An index outside
// [0, len(children)] appends. The node's ParentID is set to parentID.
//
// An existing node with the same id is replaced: it is removed with its
// subtree first, and index then refers to the children left after that. The
// root, and a node that contains parentID, cannot be replaced.
func (s *Store) Insert(parentID string, node *page.Node, index int) bool {
	if node == nil || node.ID == "" || !node.Type.Valid() {
		return false
	}
	parent, ok := s.nodes[parentID]
	if !ok {
		return false
	}
	if _, exists := s.nodes[node.ID]; exists {
		if node.ID == s.rootID || s.IsAncestor(node.ID, parentID) {
			return false
		}
		s.Remove(node.ID)
	}

	n := node.Clone()
	n.ParentID = parentID
	n.Children = []string{}

	s.nodes[n.ID] = n
	parent.Children = insertAt(parent.Children, n.ID, index)
	s.dirty = true
	return true
}

// Remove deletes a node together with its whole subtree. The root cannot be
// removed. Selection is cleared if it pointed into the removed subtree.
func (s *Store) Remove(id string) bool {
	n, ok := s.nodes[id]
	if !ok || n.ParentID == "" {
		return false
	}
	if parent, ok := s.nodes[n.ParentID]; ok {
		parent.Children = removeID(parent.Children, id)
	}

	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node, ok := s.nodes[current]; ok {
			stack = append(stack, node.Children...)
		}
		delete(s.nodes, current)
		if s.selected == current {
			s.selected = ""
		}
	}

	s.dirty = true
	return true
}

// UpdateProps shallow-merges patch into the node's props
func (s *Store) UpdateProps(id string, patch page.Map) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	n.Props = n.Props.Merge(patch)
	s.dirty = true
	return true
}

// UpdateStyle shallow-merges patch into the node's style
func (s *Store) UpdateStyle(id string, patch page.Map) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	n.Style = n.Style.Merge(patch)
	s.dirty = true
	return true
}

// SetActions replaces the actions bound to a node
func (s *Store) SetActions(id string, actions []page.ActionConfig) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a.Validate() != nil {
			return false
		}
	}
	n.Actions = append([]page.ActionConfig{}, actions...)
	s.dirty = true
	return true
}

// Select marks a node as selected. An empty id clears the selection.
func (s *Store) Select(id string) bool {
	if id == "" {
		s.selected = ""
		return true
	}
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	s.selected = id
	return true
}

// Move detaches a node from its parent and inserts it among the children of
// newParentID at index. Within the same parent the index refers to the child
// list after the node was taken out of it.
func (s *Store) Move(id, newParentID string, index int) bool {
	n, ok := s.nodes[id]
	if !ok || n.ParentID == "" {
		return false
	}
	oldParent, ok := s.nodes[n.ParentID]
	if !ok {
		return false
	}
	newParent, ok := s.nodes[newParentID]
	if !ok {
		return false
	}
	if s.IsAncestor(id, newParentID) {
		return false
	}

	oldParent.Children = removeID(oldParent.Children, id)
	newParent.Children = insertAt(newParent.Children, id, index)
	n.ParentID = newParentID
	s.dirty = true
	return true
}

// IsAncestor reports whether ancestorID is id itself or lies on the parent
// chain of id
func (s *Store) IsAncestor(ancestorID, id string) bool {
	seen := make(map[string]bool)
	for current := id; current != ""; {
		if current == ancestorID {
			return true
		}
		if seen[current] {
			return false
		}
		seen[current] = true
		n, ok := s.nodes[current]
		if !ok {
			return false
		}
		current = n.ParentID
	}
	return false
}

// IndexOf returns the position of id among its parent's children
func (s *Store) IndexOf(id string) int {
	n, ok := s.nodes[id]
	if !ok || n.ParentID == "" {
		return -1
	}
	parent, ok := s.nodes[n.ParentID]
	if !ok {
		return -1
	}
	for i, childID := range parent.Children {
		if childID == id {
			return i
		}
	}
	return -1
}

func insertAt(ids []string, id string, index int) []string {
	if index < 0 || index > len(ids) {
		return append(ids, id)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	out = append(out, ids[index:]...)
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
