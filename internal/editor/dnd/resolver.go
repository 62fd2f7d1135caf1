// Package dnd turns pointer positions over the editor canvas into drop
// targets and applies completed drags to the component tree.
package dnd

import (
	"github.com/pagecraft/pagecraft/internal/page"
)

// EdgeThreshold is the height in pixels of the bands along the top and bottom
// edge of a component that select a sibling insertion instead of nesting
const EdgeThreshold = 12

// indicatorHeight is the thickness of the insertion line drawn between siblings
const indicatorHeight = 4

// TargetKind distinguishes nesting into a container from inserting beside a node
type TargetKind int

const (
	TargetContainer TargetKind = iota
	TargetInsertion
)

// String returns the wire name of the target kind
func (k TargetKind) String() string {
	switch k {
	case TargetContainer:
		return "container"
	case TargetInsertion:
		return "insertion-point"
	default:
		return "unknown"
	}
}

// Position places an insertion before or after its target sibling
type Position int

const (
	Before Position = iota
	After
)

// String returns the wire name of the position
func (p Position) String() string {
	if p == After {
		return "after"
	}
	return "before"
}

// DropTarget is where a drag would land if released now
type DropTarget struct {
	Kind     TargetKind
	TargetID string
	// Position is only meaningful for TargetInsertion
	Position Position
	// Indicator is the rectangle the canvas highlights for this target
	Indicator Rect
}

// Tree is the read-only view of the component tree the resolver needs
type Tree interface {
	RootID() string
	TypeOf(id string) (page.ComponentType, bool)
	ParentOf(id string) (string, bool)
}

// Resolve computes the drop target for a pointer at p hovering over
// hoveredID. It reports false when no valid target exists.
func Resolve(tree Tree, geo Geometry, hoveredID string, p Point) (DropTarget, bool) {
	if hoveredID == "" {
		return DropTarget{}, false
	}

	rootID := tree.RootID()
	if hoveredID == rootID {
		rect, ok := geo.BoundingBox(rootID)
		if !ok {
			return DropTarget{}, false
		}
		return DropTarget{Kind: TargetContainer, TargetID: rootID, Indicator: rect}, true
	}

	typ, ok := tree.TypeOf(hoveredID)
	if !ok {
		return DropTarget{}, false
	}
	rect, ok := geo.BoundingBox(hoveredID)
	if !ok {
		return DropTarget{}, false
	}

	relY := p.Y - rect.Top
	nearTop := relY < EdgeThreshold
	nearBottom := relY > rect.Height-EdgeThreshold
	parentID, hasParent := tree.ParentOf(hoveredID)

	if typ.IsContainer() {
		switch {
		case nearTop && hasParent:
			return insertion(hoveredID, Before, rect), true
		case nearBottom && hasParent:
			return insertion(hoveredID, After, rect), true
		default:
			return DropTarget{Kind: TargetContainer, TargetID: hoveredID, Indicator: rect}, true
		}
	}

	if nearTop {
		return insertion(hoveredID, Before, rect), true
	}
	if nearBottom {
		return insertion(hoveredID, After, rect), true
	}

	// Pointer is in the middle of a leaf: nest into the nearest container under it.
	for _, id := range geo.ElementsAt(p.X, p.Y) {
		if id == hoveredID {
			continue
		}
		candidate, ok := tree.TypeOf(id)
		if !ok || !(candidate.IsContainer() || id == rootID) {
			continue
		}
		if box, ok := geo.BoundingBox(id); ok {
			return DropTarget{Kind: TargetContainer, TargetID: id, Indicator: box}, true
		}
	}

	if hasParent {
		if box, ok := geo.BoundingBox(parentID); ok {
			return DropTarget{Kind: TargetContainer, TargetID: parentID, Indicator: box}, true
		}
	}

	return DropTarget{}, false
}

func insertion(id string, pos Position, rect Rect) DropTarget {
	top := rect.Top - indicatorHeight/2
	if pos == After {
		top = rect.Bottom() - indicatorHeight/2
	}
	return DropTarget{
		Kind:     TargetInsertion,
		TargetID: id,
		Position: pos,
		Indicator: Rect{
			Top:    top,
			Left:   rect.Left,
			Width:  rect.Width,
			Height: indicatorHeight,
		},
	}
}
