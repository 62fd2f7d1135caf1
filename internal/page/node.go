package page

import (
	"encoding/json"
)

// ComponentType is the closed set of component kinds a page can contain
type ComponentType string

const (
	TypeContainer ComponentType = "Container"
	TypeButton    ComponentType = "Button"
	TypeText      ComponentType = "Text"
	TypeTable     ComponentType = "Table"
	TypeForm      ComponentType = "Form"
	TypeModal     ComponentType = "Modal"
)

// ComponentTypes lists every known component type in palette order
var ComponentTypes = []ComponentType{
	TypeContainer,
	TypeText,
	TypeButton,
	TypeTable,
	TypeForm,
	TypeModal,
}

// Valid reports whether t is a known component type
func (t ComponentType) Valid() bool {
	for _, known := range ComponentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsContainer reports whether nodes of this type may hold children
func (t ComponentType) IsContainer() bool {
	switch t {
	case TypeContainer, TypeForm, TypeModal:
		return true
	default:
		return false
	}
}

// Trigger is the user interaction that fires an action
type Trigger string

const (
	TriggerClick  Trigger = "onClick"
	TriggerSubmit Trigger = "onSubmit"
)

// ActionKind identifies what an action does when it fires
type ActionKind string

const (
	ActionOpenModal    ActionKind = "OPEN_MODAL"
	ActionCloseModal   ActionKind = "CLOSE_MODAL"
	ActionSubmitForm   ActionKind = "SUBMIT_FORM"
	ActionRefreshTable ActionKind = "REFRESH_TABLE"
	ActionNavigate     ActionKind = "NAVIGATE"
	ActionShowToast    ActionKind = "SHOW_TOAST"
)

// Valid reports whether k is a known action kind
func (k ActionKind) Valid() bool {
	switch k {
	case ActionOpenModal, ActionCloseModal, ActionSubmitForm,
		ActionRefreshTable, ActionNavigate, ActionShowToast:
		return true
	default:
		return false
	}
}

// ActionConfig is one declarative action attached to a node
type ActionConfig struct {
	Trigger Trigger    `json:"trigger"`
	Type    ActionKind `json:"type"`
	Payload Map        `json:"payload"`
}

// Node is a single component in the page tree. An empty ParentID marks the root.
type Node struct {
	ID       string
	Type     ComponentType
	ParentID string
	Children []string
	Props    Map
	Style    Map
	Actions  []ActionConfig
}

// nodeJSON is the persisted shape of a node
type nodeJSON struct {
	ID       string         `json:"id"`
	Type     ComponentType  `json:"type"`
	ParentID *string        `json:"parentId"`
	Children []string       `json:"children"`
	Props    Map            `json:"props"`
	Style    Map            `json:"style"`
	Actions  []ActionConfig `json:"actions,omitempty"`
}

// MarshalJSON encodes the node with a null parentId for the root
func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		ID:       n.ID,
		Type:     n.Type,
		Children: n.Children,
		Props:    n.Props,
		Style:    n.Style,
		Actions:  n.Actions,
	}
	if n.ParentID != "" {
		parent := n.ParentID
		out.ParentID = &parent
	}
	if out.Children == nil {
		out.Children = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a persisted node
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{
		ID:       in.ID,
		Type:     in.Type,
		Children: in.Children,
		Props:    in.Props,
		Style:    in.Style,
		Actions:  in.Actions,
	}
	if in.ParentID != nil {
		n.ParentID = *in.ParentID
	}
	if n.Children == nil {
		n.Children = []string{}
	}
	if n.Props == nil {
		n.Props = Map{}
	}
	if n.Style == nil {
		n.Style = Map{}
	}
	return nil
}

// IsRoot reports whether the node has no parent
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	out := &Node{
		ID:       n.ID,
		Type:     n.Type,
		ParentID: n.ParentID,
		Children: append([]string{}, n.Children...),
		Props:    n.Props.Clone(),
		Style:    n.Style.Clone(),
	}
	if out.Props == nil {
		out.Props = Map{}
	}
	if out.Style == nil {
		out.Style = Map{}
	}
	if n.Actions != nil {
		out.Actions = make([]ActionConfig, len(n.Actions))
		for i, a := range n.Actions {
			out.Actions[i] = ActionConfig{Trigger: a.Trigger, Type: a.Type, Payload: a.Payload.Clone()}
		}
	}
	return out
}

// ActionsFor returns the actions bound to the given trigger, in declaration order
func (n *Node) ActionsFor(trigger Trigger) []ActionConfig {
	var out []ActionConfig
	for _, a := range n.Actions {
		if a.Trigger == trigger {
			out = append(out, a)
		}
	}
	return out
}

// NewNode creates a node of the given type with its default props
func NewNode(id string, typ ComponentType) *Node {
	return &Node{
		ID:       id,
		Type:     typ,
		Children: []string{},
		Props:    DefaultProps(typ),
		Style:    Map{},
	}
}

// DefaultProps returns the props a freshly dropped component starts with
func DefaultProps(typ ComponentType) Map {
	switch typ {
	case TypeText:
		return Map{"content": String("New Text")}
	case TypeButton:
		return Map{"label": String("New Button")}
	default:
		return Map{}
	}
}
