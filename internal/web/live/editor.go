package live

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/editor"
	"github.com/pagecraft/pagecraft/internal/editor/dnd"
	"github.com/pagecraft/pagecraft/internal/page"
)

// PageSaver persists the schema of a page
type PageSaver interface {
	SaveSchema(ctx context.Context, id string, doc *page.Document) error
}

// TreePayload is the data of a tree message
type TreePayload struct {
	Document *page.Document `json:"document"`
	Selected string         `json:"selected"`
	Dirty    bool           `json:"dirty"`
}

// IndicatorPayload is the data of an indicator message. A nil payload clears
// the indicator.
type IndicatorPayload struct {
	Kind     string   `json:"kind"`
	TargetID string   `json:"targetId"`
	Position string   `json:"position,omitempty"`
	Rect     dnd.Rect `json:"rect"`
}

// SavedPayload is the data of a saved message
type SavedPayload struct {
	PageID string `json:"pageId"`
}

// ToastPayload is the data of a toast message
type ToastPayload struct {
	Level   page.ToastLevel `json:"level"`
	Message string          `json:"message"`
}

// Editor messages that name a node
type nodeRequest struct {
	ID string `json:"id"`
}

type addRequest struct {
	ParentID string             `json:"parentId"`
	Type     page.ComponentType `json:"type"`
	Index    *int               `json:"index,omitempty"`
}

type patchRequest struct {
	ID    string   `json:"id"`
	Patch page.Map `json:"patch"`
}

type actionsRequest struct {
	ID      string              `json:"id"`
	Actions []page.ActionConfig `json:"actions"`
}

type moveRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Index    int    `json:"index"`
}

// dragRequest carries the pointer position and the canvas layout measured by
// the client at the time of the event
type dragRequest struct {
	HoveredID string     `json:"hoveredId"`
	Point     dnd.Point  `json:"point"`
	Layout    dnd.Layout `json:"layout"`
}

// Toasts raised by the save path
const (
	MessagePageSaved      = "Page saved"
	MessagePageSaveFailed = "Failed to save page"
)

// EditorSession is the canvas editing session of one page
type EditorSession struct {
	pageID string
	store  *editor.Store
	drag   *dnd.Orchestrator
	pages  PageSaver
	logger *zap.Logger
}

// NewEditorSession creates an editing session over doc
func NewEditorSession(pageID string, doc *page.Document, pages PageSaver, logger *zap.Logger) *EditorSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := editor.NewStore(doc)
	return &EditorSession{
		pageID: pageID,
		store:  store,
		drag:   dnd.NewOrchestrator(store),
		pages:  pages,
		logger: logger.With(zap.String("page", pageID)),
	}
}

// Store exposes the tree of the session
func (e *EditorSession) Store() *editor.Store {
	return e.store
}

// Open implements Handler
func (e *EditorSession) Open(ctx context.Context, c *Conn) error {
	return e.sendTree(c)
}

// Close implements Handler
func (e *EditorSession) Close() {
	if e.store.Dirty() {
		e.logger.Info("editor session closed with unsaved changes")
	}
}

// Handle implements Handler. Structurally invalid edits are no-ops: the
// client receives the unchanged tree rather than an error.
func (e *EditorSession) Handle(ctx context.Context, c *Conn, msg Message) error {
	switch msg.Type {
	case MsgSelect:
		var req nodeRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		e.store.Select(req.ID)
		return e.sendTree(c)

	case MsgAdd:
		var req addRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		if !req.Type.Valid() {
			return fmt.Errorf("unknown component type %q", req.Type)
		}
		index := -1
		if req.Index != nil {
			index = *req.Index
		}
		node := page.NewNode(dnd.NextID(e.store.IDs(), req.Type), req.Type)
		if e.store.Insert(req.ParentID, node, index) {
			e.store.Select(node.ID)
		}
		return e.sendTree(c)

	case MsgUpdateProps, MsgUpdateStyle:
		var req patchRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		if msg.Type == MsgUpdateProps {
			e.store.UpdateProps(req.ID, req.Patch)
		} else {
			e.store.UpdateStyle(req.ID, req.Patch)
		}
		return e.sendTree(c)

	case MsgSetActions:
		var req actionsRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		e.store.SetActions(req.ID, req.Actions)
		return e.sendTree(c)

	case MsgRemove:
		var req nodeRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		e.store.Remove(req.ID)
		return e.sendTree(c)

	case MsgMove:
		var req moveRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		e.store.Move(req.ID, req.ParentID, req.Index)
		return e.sendTree(c)

	case MsgDragStart:
		var p dnd.Payload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return e.drag.Start(p)

	case MsgDragOver:
		var req dragRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		target, ok := e.drag.Over(req.Layout, req.HoveredID, req.Point)
		return c.Send(MsgIndicator, indicatorPayload(target, ok))

	case MsgDragEnd:
		var req dragRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		res, ok := e.drag.End(req.Layout, req.HoveredID, req.Point)
		if ok {
			e.store.Select(res.NodeID)
		}
		if err := c.Send(MsgIndicator, nil); err != nil {
			return err
		}
		return e.sendTree(c)

	case MsgDragCancel:
		e.drag.Cancel()
		return c.Send(MsgIndicator, nil)

	case MsgSave:
		return e.save(ctx, c)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// save persists the tree. A failure keeps the in-memory tree dirty and is
// reported as a toast.
func (e *EditorSession) save(ctx context.Context, c *Conn) error {
	doc := e.store.Snapshot()
	if err := e.pages.SaveSchema(ctx, e.pageID, doc); err != nil {
		e.logger.Error("failed to save page", zap.Error(err))
		msg := MessagePageSaveFailed
		if errors.Is(err, page.ErrInvalidDocument) {
			msg = err.Error()
		}
		return c.Send(MsgToast, ToastPayload{Level: page.ToastError, Message: msg})
	}
	e.store.MarkSaved()
	if err := c.Send(MsgSaved, SavedPayload{PageID: e.pageID}); err != nil {
		return err
	}
	if err := c.Send(MsgToast, ToastPayload{Level: page.ToastSuccess, Message: MessagePageSaved}); err != nil {
		return err
	}
	return e.sendTree(c)
}

func (e *EditorSession) sendTree(c *Conn) error {
	return c.Send(MsgTree, TreePayload{
		Document: e.store.Snapshot(),
		Selected: e.store.Selected(),
		Dirty:    e.store.Dirty(),
	})
}

func indicatorPayload(target dnd.DropTarget, ok bool) *IndicatorPayload {
	if !ok {
		return nil
	}
	p := &IndicatorPayload{
		Kind:     target.Kind.String(),
		TargetID: target.TargetID,
		Rect:     target.Indicator,
	}
	if target.Kind == dnd.TargetInsertion {
		p.Position = target.Position.String()
	}
	return p
}
