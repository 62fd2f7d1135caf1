package live

import (
	"encoding/json"
	"fmt"
)

// Message is one frame exchanged over a live connection
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the message data into v; an empty payload leaves v untouched
func (m Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("invalid %s message: %w", m.Type, err)
	}
	return nil
}

// Editor client messages
const (
	MsgSelect      = "select"
	MsgAdd         = "add"
	MsgUpdateProps = "update_props"
	MsgUpdateStyle = "update_style"
	MsgSetActions  = "set_actions"
	MsgRemove      = "remove"
	MsgMove        = "move"
	MsgDragStart   = "drag_start"
	MsgDragOver    = "drag_over"
	MsgDragEnd     = "drag_end"
	MsgDragCancel  = "drag_cancel"
	MsgSave        = "save"
)

// Runtime client messages
const (
	MsgClick      = "click"
	MsgInput      = "input"
	MsgSubmit     = "submit"
	MsgCloseModal = "close_modal"
)

// Server messages
const (
	MsgTree      = "tree"
	MsgIndicator = "indicator"
	MsgSaved     = "saved"
	MsgRender    = "render"
	MsgNavigate  = "navigate"
	MsgToast     = "toast"
	MsgError     = "error"
)

// ErrorPayload is the data of an error message
type ErrorPayload struct {
	Message string `json:"message"`
}
