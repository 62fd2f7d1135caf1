package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/render"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved *page.Document
	err   error
}

func (f *fakeSaver) SaveSchema(_ context.Context, _ string, doc *page.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = doc
	return nil
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, h func() Handler) *client {
	t.Helper()
	u := NewUpgrader(context.Background(), DefaultConfig(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.Serve(w, r, h())
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(msgType string, data interface{}) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteJSON(Message{Type: msgType, Data: raw}))
}

func (c *client) read() Message {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(c.t, c.ws.ReadJSON(&msg))
	return msg
}

func (c *client) expect(msgType string) Message {
	c.t.Helper()
	msg := c.read()
	require.Equal(c.t, msgType, msg.Type, "payload: %s", msg.Data)
	return msg
}

type treeMessage struct {
	Document json.RawMessage `json:"document"`
	Selected string          `json:"selected"`
	Dirty    bool            `json:"dirty"`
}

func (c *client) tree() (*page.Document, treeMessage) {
	c.t.Helper()
	var tm treeMessage
	require.NoError(c.t, c.expect(MsgTree).Decode(&tm))
	doc, err := page.ParseDocument(tm.Document)
	require.NoError(c.t, err)
	return doc, tm
}

func TestEditorSession_EditAndDrag(t *testing.T) {
	saver := &fakeSaver{}
	c := dial(t, func() Handler {
		return NewEditorSession("page-1", page.NewDocument(), saver, nil)
	})

	doc, tm := c.tree()
	assert.Len(t, doc.Components, 1)
	assert.False(t, tm.Dirty)

	c.send(MsgAdd, map[string]string{"parentId": "root", "type": "Text"})
	doc, tm = c.tree()
	assert.Equal(t, []string{"Text_1"}, doc.Root().Children)
	assert.Equal(t, "Text_1", tm.Selected)
	assert.True(t, tm.Dirty)

	layout := []map[string]interface{}{
		{"id": "root", "rect": map[string]float64{"top": 0, "left": 0, "width": 800, "height": 600}},
		{"id": "Text_1", "rect": map[string]float64{"top": 100, "left": 0, "width": 800, "height": 40}},
	}
	drag := map[string]interface{}{"hoveredId": "Text_1", "point": map[string]float64{"x": 10, "y": 104}, "layout": layout}

	c.send(MsgDragStart, map[string]string{"kind": "palette", "componentType": "Button"})
	c.send(MsgDragOver, drag)
	var ind IndicatorPayload
	require.NoError(t, c.expect(MsgIndicator).Decode(&ind))
	assert.Equal(t, "insertion-point", ind.Kind)
	assert.Equal(t, "Text_1", ind.TargetID)
	assert.Equal(t, "before", ind.Position)

	c.send(MsgDragEnd, drag)
	assert.Empty(t, c.expect(MsgIndicator).Data)
	doc, tm = c.tree()
	assert.Equal(t, []string{"Button_1", "Text_1"}, doc.Root().Children)
	assert.Equal(t, "Button_1", tm.Selected)

	c.send(MsgUpdateProps, map[string]interface{}{"id": "Button_1", "patch": map[string]string{"label": "Go"}})
	doc, _ = c.tree()
	assert.Equal(t, "Go", doc.Components["Button_1"].Props.Get("label").StringOr(""))

	c.send(MsgSave, nil)
	c.expect(MsgSaved)
	var toast ToastPayload
	require.NoError(t, c.expect(MsgToast).Decode(&toast))
	assert.Equal(t, page.ToastSuccess, toast.Level)
	_, tm = c.tree()
	assert.False(t, tm.Dirty)

	saver.mu.Lock()
	require.NotNil(t, saver.saved)
	assert.Len(t, saver.saved.Components, 3)
	saver.mu.Unlock()
}

func TestEditorSession_InvalidEditsAreNoOps(t *testing.T) {
	c := dial(t, func() Handler {
		return NewEditorSession("page-1", page.NewDocument(), &fakeSaver{}, nil)
	})
	c.tree()

	c.send(MsgRemove, map[string]string{"id": "root"})
	doc, tm := c.tree()
	assert.Len(t, doc.Components, 1)
	assert.False(t, tm.Dirty)

	c.send(MsgMove, map[string]interface{}{"id": "missing", "parentId": "root", "index": 0})
	_, tm = c.tree()
	assert.False(t, tm.Dirty)

	c.send(MsgAdd, map[string]string{"parentId": "root", "type": "Carousel"})
	var e ErrorPayload
	require.NoError(t, c.expect(MsgError).Decode(&e))
	assert.Contains(t, e.Message, "Carousel")

	c.send("bogus", nil)
	c.expect(MsgError)

	c.send(MsgDragEnd, map[string]interface{}{"hoveredId": "root"})
	c.expect(MsgIndicator)
	_, tm = c.tree()
	assert.False(t, tm.Dirty)
}

func TestEditorSession_SaveFailureKeepsTree(t *testing.T) {
	saver := &fakeSaver{err: errors.New("connection refused")}
	c := dial(t, func() Handler {
		return NewEditorSession("page-1", page.NewDocument(), saver, nil)
	})
	c.tree()

	c.send(MsgAdd, map[string]string{"parentId": "root", "type": "Container"})
	c.tree()

	c.send(MsgSave, nil)
	var toast ToastPayload
	require.NoError(t, c.expect(MsgToast).Decode(&toast))
	assert.Equal(t, page.ToastError, toast.Level)
	assert.Equal(t, MessagePageSaveFailed, toast.Message)

	c.send(MsgSelect, map[string]string{"id": "Container_1"})
	_, tm := c.tree()
	assert.True(t, tm.Dirty)
}

func runtimeDocument() *page.Document {
	doc := page.NewDocument()
	add := func(parent string, n *page.Node) *page.Node {
		n.ParentID = parent
		doc.Components[n.ID] = n
		doc.Components[parent].Children = append(doc.Components[parent].Children, n.ID)
		return n
	}

	open := add("root", page.NewNode("Button_1", page.TypeButton))
	open.Props = page.Map{"label": page.String("Open")}
	open.Actions = []page.ActionConfig{
		{Trigger: page.TriggerClick, Type: page.ActionOpenModal, Payload: page.Map{"modalId": page.String("Modal_1")}},
	}
	modal := add("root", page.NewNode("Modal_1", page.TypeModal))
	modal.Props = page.Map{"title": page.String("Details")}
	text := add("Modal_1", page.NewNode("Text_1", page.TypeText))
	text.Props = page.Map{"content": page.String("Inside the modal")}

	nav := add("root", page.NewNode("Button_2", page.TypeButton))
	nav.Actions = []page.ActionConfig{
		{Trigger: page.TriggerClick, Type: page.ActionNavigate, Payload: page.Map{"url": page.String("/p/{{user.id}}")}},
	}
	return doc
}

func TestRuntimeSession(t *testing.T) {
	var (
		mu       sync.Mutex
		sessions []*render.Session
	)
	c := dial(t, func() Handler {
		s := render.NewSession(render.Config{
			Document: runtimeDocument(),
			Globals:  page.Map{"user": page.MapOf(page.Map{"id": page.String("u-7")})},
		})
		mu.Lock()
		sessions = append(sessions, s)
		mu.Unlock()
		return NewRuntimeSession(s)
	})

	var rp RenderPayload
	require.NoError(t, c.expect(MsgRender).Decode(&rp))
	assert.NotContains(t, rp.HTML, "Inside the modal")
	assert.Empty(t, rp.OpenModals)

	c.send(MsgClick, map[string]string{"id": "Button_1"})
	require.NoError(t, c.expect(MsgRender).Decode(&rp))
	assert.True(t, rp.Handled)
	assert.Equal(t, []string{"Modal_1"}, rp.OpenModals)
	assert.Contains(t, rp.HTML, "Inside the modal")

	c.send(MsgCloseModal, map[string]string{"id": "Modal_1"})
	require.NoError(t, c.expect(MsgRender).Decode(&rp))
	assert.Empty(t, rp.OpenModals)

	c.send(MsgClick, map[string]string{"id": "Button_2"})
	var nav NavigatePayload
	require.NoError(t, c.expect(MsgNavigate).Decode(&nav))
	assert.Equal(t, "/p/u-7", nav.URL)
	c.expect(MsgRender)

	c.send(MsgClick, map[string]string{"id": "missing"})
	c.expect(MsgError)

	require.NoError(t, c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sessions) == 1 && sessions[0].Closed()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMessage_Decode(t *testing.T) {
	var req nodeRequest
	require.NoError(t, Message{Type: MsgSelect}.Decode(&req))
	assert.Empty(t, req.ID)

	err := Message{Type: MsgSelect, Data: json.RawMessage(`[1]`)}.Decode(&req)
	assert.ErrorContains(t, err, "invalid select message")
}
