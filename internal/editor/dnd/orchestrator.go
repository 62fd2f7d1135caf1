package dnd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pagecraft/pagecraft/internal/page"
)

// State is the phase of the drag state machine
type State int

const (
	Idle State = iota
	Dragging
)

// PayloadKind distinguishes palette drags from drags of existing nodes
type PayloadKind string

const (
	FromPalette  PayloadKind = "palette"
	ExistingNode PayloadKind = "node"
)

// Payload describes what is being dragged
type Payload struct {
	Kind PayloadKind `json:"kind"`
	// ComponentType is set for palette drags
	ComponentType page.ComponentType `json:"componentType,omitempty"`
	// NodeID is set for drags of existing nodes
	NodeID string `json:"nodeId,omitempty"`
}

// Validate reports whether the payload is well formed
func (p Payload) Validate() error {
	switch p.Kind {
	case FromPalette:
		if !p.ComponentType.Valid() {
			return fmt.Errorf("unknown component type %q", p.ComponentType)
		}
	case ExistingNode:
		if p.NodeID == "" {
			return fmt.Errorf("missing node id")
		}
	default:
		return fmt.Errorf("unknown drag payload kind %q", p.Kind)
	}
	return nil
}

// Editable is the tree the orchestrator applies completed drags to
type Editable interface {
	Tree
	Has(id string) bool
	IDs() []string
	Children(id string) []string
	Insert(parentID string, node *page.Node, index int) bool
	Move(id, newParentID string, index int) bool
}

// Result describes the tree change made by a completed drag
type Result struct {
	NodeID  string
	Created bool
}

// Orchestrator drives one drag gesture at a time over an editable tree
type Orchestrator struct {
	tree      Editable
	state     State
	payload   Payload
	indicator *DropTarget
}

// NewOrchestrator creates an idle orchestrator for the given tree
func NewOrchestrator(tree Editable) *Orchestrator {
	return &Orchestrator{tree: tree}
}

// State returns the current phase
func (o *Orchestrator) State() State {
	return o.state
}

// Indicator returns the target currently highlighted on the canvas
func (o *Orchestrator) Indicator() (DropTarget, bool) {
	if o.indicator == nil {
		return DropTarget{}, false
	}
	return *o.indicator, true
}

// Start begins a drag. Malformed payloads leave the orchestrator idle.
func (o *Orchestrator) Start(p Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.state = Dragging
	o.payload = p
	o.indicator = nil
	return nil
}

// Over recomputes the drop target for the current pointer position. It only
// updates the indicator and never mutates the tree.
func (o *Orchestrator) Over(geo Geometry, hoveredID string, p Point) (DropTarget, bool) {
	if o.state != Dragging {
		return DropTarget{}, false
	}
	target, ok := Resolve(o.tree, geo, hoveredID, p)
	if !ok {
		o.indicator = nil
		return DropTarget{}, false
	}
	o.indicator = &target
	return target, true
}

// Cancel abandons the drag without touching the tree
func (o *Orchestrator) Cancel() {
	o.state = Idle
	o.payload = Payload{}
	o.indicator = nil
}

// End completes the drag at the given pointer position. It reports false when
// nothing was changed: no target, a cycle, or a drag that was never started.
func (o *Orchestrator) End(geo Geometry, hoveredID string, p Point) (Result, bool) {
	if o.state != Dragging {
		return Result{}, false
	}
	payload := o.payload
	defer o.Cancel()

	target, ok := Resolve(o.tree, geo, hoveredID, p)
	if !ok {
		return Result{}, false
	}

	switch payload.Kind {
	case FromPalette:
		return o.dropNew(payload.ComponentType, target)
	case ExistingNode:
		return o.dropExisting(payload.NodeID, target)
	default:
		return Result{}, false
	}
}

func (o *Orchestrator) dropNew(typ page.ComponentType, target DropTarget) (Result, bool) {
	node := page.NewNode(NextID(o.tree.IDs(), typ), typ)

	switch target.Kind {
	case TargetContainer:
		if !o.tree.Insert(target.TargetID, node, -1) {
			return Result{}, false
		}
	case TargetInsertion:
		parentID, index, ok := o.insertionIndex(target)
		if !ok || !o.tree.Insert(parentID, node, index) {
			return Result{}, false
		}
	default:
		return Result{}, false
	}
	return Result{NodeID: node.ID, Created: true}, true
}

func (o *Orchestrator) dropExisting(id string, target DropTarget) (Result, bool) {
	if id == target.TargetID || !o.tree.Has(id) {
		return Result{}, false
	}
	// Dropping onto the node itself or anything inside it would create a cycle.
	for current := target.TargetID; current != ""; {
		if current == id {
			return Result{}, false
		}
		parent, ok := o.tree.ParentOf(current)
		if !ok {
			break
		}
		current = parent
	}

	switch target.Kind {
	case TargetContainer:
		end := len(o.tree.Children(target.TargetID))
		if !o.tree.Move(id, target.TargetID, end) {
			return Result{}, false
		}
	case TargetInsertion:
		parentID, index, ok := o.insertionIndex(target)
		if !ok {
			return Result{}, false
		}
		if currentParent, _ := o.tree.ParentOf(id); currentParent == parentID {
			siblings := o.tree.Children(parentID)
			if indexOf(siblings, id) < indexOf(siblings, target.TargetID) {
				index--
			}
		}
		if !o.tree.Move(id, parentID, index) {
			return Result{}, false
		}
	default:
		return Result{}, false
	}
	return Result{NodeID: id}, true
}

// insertionIndex maps an insertion target to its parent and the index the
// dragged node should occupy
func (o *Orchestrator) insertionIndex(target DropTarget) (string, int, bool) {
	parentID, ok := o.tree.ParentOf(target.TargetID)
	if !ok {
		return "", 0, false
	}
	index := indexOf(o.tree.Children(parentID), target.TargetID)
	if index < 0 {
		return "", 0, false
	}
	if target.Position == After {
		index++
	}
	return parentID, index, true
}

// NextID returns an id of the form <Type>_<N> not present in existing, where N
// is one more than the largest numeric suffix already used for that type
func NextID(existing []string, typ page.ComponentType) string {
	prefix := string(typ) + "_"
	taken := make(map[string]bool, len(existing))
	maxIndex := 0
	for _, id := range existing {
		taken[id] = true
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err == nil && n > maxIndex {
			maxIndex = n
		}
	}
	for n := maxIndex + 1; ; n++ {
		candidate := prefix + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
