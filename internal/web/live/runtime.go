package live

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/render"
)

// RenderPayload is the data of a render message
type RenderPayload struct {
	HTML        string   `json:"html"`
	OpenModals  []string `json:"openModals"`
	Handled     bool     `json:"handled,omitempty"`
	ComponentID string   `json:"componentId,omitempty"`
}

// NavigatePayload is the data of a navigate message
type NavigatePayload struct {
	URL string `json:"url"`
}

type inputRequest struct {
	FormID string     `json:"formId"`
	Name   string     `json:"name"`
	Value  page.Value `json:"value"`
}

type submitRequest struct {
	FormID string `json:"formId"`
}

// RuntimeSession binds a runtime page session to a connection
type RuntimeSession struct {
	session *render.Session
}

// NewRuntimeSession wraps a render session; the session is mounted on Open
func NewRuntimeSession(session *render.Session) *RuntimeSession {
	return &RuntimeSession{session: session}
}

// Open implements Handler
func (r *RuntimeSession) Open(ctx context.Context, c *Conn) error {
	r.session.Mount()
	return r.sendRender(ctx, c, "", false)
}

// Close implements Handler
func (r *RuntimeSession) Close() {
	r.session.Close()
}

// Handle implements Handler
func (r *RuntimeSession) Handle(ctx context.Context, c *Conn, msg Message) error {
	switch msg.Type {
	case MsgClick:
		var req nodeRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		handled, err := r.session.Click(ctx, req.ID)
		if err != nil && !handled {
			return err
		}
		return r.flush(ctx, c, req.ID, handled)

	case MsgInput:
		var req inputRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		if req.Name == "" {
			return fmt.Errorf("input without field name")
		}
		// inputs only change form state; nothing visible needs re-rendering
		return r.session.SetFieldValue(req.FormID, req.Name, req.Value)

	case MsgSubmit:
		var req submitRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		if err := r.session.SubmitForm(ctx, req.FormID); err != nil {
			return err
		}
		return r.flush(ctx, c, req.FormID, true)

	case MsgCloseModal:
		var req nodeRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		r.session.CloseModal(req.ID)
		return r.flush(ctx, c, req.ID, false)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// flush delivers the queued effects and the re-rendered page
func (r *RuntimeSession) flush(ctx context.Context, c *Conn, componentID string, handled bool) error {
	for _, eff := range r.session.Effects() {
		var err error
		switch eff.Kind {
		case render.EffectNavigate:
			err = c.Send(MsgNavigate, NavigatePayload{URL: eff.URL})
		case render.EffectToast:
			err = c.Send(MsgToast, ToastPayload{Level: eff.Level, Message: eff.Message})
		}
		if err != nil {
			return err
		}
	}
	return r.sendRender(ctx, c, componentID, handled)
}

func (r *RuntimeSession) sendRender(ctx context.Context, c *Conn, componentID string, handled bool) error {
	var b strings.Builder
	if err := render.WriteHTML(&b, r.session.Render(ctx)); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return c.Send(MsgRender, RenderPayload{
		HTML:        b.String(),
		OpenModals:  r.session.OpenModals(),
		Handled:     handled,
		ComponentID: componentID,
	})
}
