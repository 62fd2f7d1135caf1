package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/migrate"
	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/store"
	"github.com/pagecraft/pagecraft/internal/web/auth"
	"github.com/pagecraft/pagecraft/internal/web/live"
	"github.com/pagecraft/pagecraft/internal/web/ratelimit"
	"github.com/pagecraft/pagecraft/internal/web/response"
)

const testSecret = "api-secret"

type fakePages struct {
	mu    sync.Mutex
	pages map[string]*store.Page
}

func (f *fakePages) List(_ context.Context, userID string) ([]*store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*store.Page{}
	for _, p := range f.pages {
		if userID == "" || p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePages) Get(_ context.Context, id string) (*store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: page %s", store.ErrNotFound, id)
	}
	cp := *p
	cp.Schema = p.Schema.Clone()
	return &cp, nil
}

func (f *fakePages) Create(_ context.Context, p *store.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = fmt.Sprintf("page-%d", len(f.pages)+1)
	p.Schema = page.NewDocument()
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	f.pages[p.ID] = p
	return nil
}

func (f *fakePages) SaveSchema(_ context.Context, id string, doc *page.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Schema = doc
	return nil
}

func (f *fakePages) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, id)
	return nil
}

type fakeModels struct {
	models map[string]*model.DataModel
}

func (f *fakeModels) List(context.Context) ([]*model.DataModel, error) {
	out := []*model.DataModel{}
	for _, m := range f.models {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeModels) Get(_ context.Context, id string) (*model.DataModel, error) {
	m, ok := f.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: model %s", store.ErrNotFound, id)
	}
	return m, nil
}

func (f *fakeModels) Create(_ context.Context, m *model.DataModel) error {
	if err := model.ValidateModel(m); err != nil {
		return err
	}
	m.ID = "model-new"
	f.models[m.ID] = m
	return nil
}

type fakePublisher struct {
	req    migrate.PublishRequest
	result *migrate.PublishResult
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, req migrate.PublishRequest) (*migrate.PublishResult, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakePublisher) DropModel(_ context.Context, id string) (*model.DataModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.DataModel{ID: id, TableName: "contacts"}, nil
}

type fakeData struct {
	mu          sync.Mutex
	rows        map[string][]page.Map
	invalidated []string
}

func (f *fakeData) Rows(_ context.Context, table string) ([]page.Map, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !model.ValidKey(table) {
		return nil, store.ErrInvalidIdentifier
	}
	return f.rows[table], nil
}

func (f *fakeData) Insert(_ context.Context, table string, record page.Map) (page.Map, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := record.Clone()
	row["id"] = page.String(fmt.Sprintf("%d", len(f.rows[table])+1))
	f.rows[table] = append(f.rows[table], row)
	return row, nil
}

func (f *fakeData) Invalidate(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, table)
	return nil
}

func (f *fakeData) Update(_ context.Context, table, rowID string, patch page.Map) (page.Map, error) {
	return page.Map{"id": page.String(rowID)}.Merge(patch), nil
}

func (f *fakeData) Delete(_ context.Context, table, rowID string) error {
	if rowID == "missing" {
		return store.ErrNotFound
	}
	return nil
}

func (f *fakeData) Columns(_ context.Context, table string) ([]store.Column, error) {
	return []store.Column{{Name: "id", DataType: "uuid", IsNullable: "NO"}}, nil
}

func (f *fakeData) Tables(context.Context) ([]string, error) {
	return []string{"contacts"}, nil
}

type fixture struct {
	t         *testing.T
	handler   http.Handler
	pages     *fakePages
	models    *fakeModels
	publisher *fakePublisher
	data      *fakeData
	token     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc := page.NewDocument()
	btn := page.NewNode("Button_1", page.TypeButton)
	btn.ParentID = doc.RootID
	btn.Props = page.Map{"label": page.String("Hi {{user.email}}")}
	btn.Actions = []page.ActionConfig{
		{Trigger: page.TriggerClick, Type: page.ActionShowToast, Payload: page.Map{"message": page.String("clicked")}},
	}
	doc.Components[btn.ID] = btn
	doc.Root().Children = []string{btn.ID}

	f := &fixture{
		t: t,
		pages: &fakePages{pages: map[string]*store.Page{
			"page-1": {ID: "page-1", UserID: "user-1", Name: "Home", Schema: doc, UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
			"page-2": {ID: "page-2", UserID: "user-2", Name: "Other", Schema: page.NewDocument()},
		}},
		models: &fakeModels{models: map[string]*model.DataModel{
			"model-1": {ID: "model-1", Name: "Contacts", TableName: "contacts", Fields: []model.Field{
				{ID: "f1", Name: "Email", Key: "email", Type: model.FieldText},
			}},
		}},
		publisher: &fakePublisher{},
		data:      &fakeData{rows: map[string][]page.Map{"contacts": {{"id": page.String("1"), "name": page.String("Ada")}}}},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"email":   "ada@example.com",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	f.token = token

	f.handler = NewRouter(Deps{
		Pages:     f.pages,
		Models:    f.models,
		Publisher: f.publisher,
		Data:      f.data,
		Rows:      f.data,
		Auth:      auth.NewProvider(testSecret),
		Live:      live.NewUpgrader(context.Background(), live.DefaultConfig(), nil),
	})
	return f
}

func (f *fixture) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+f.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestRouter_RequiresUser(t *testing.T) {
	f := newFixture(t)
	f.token = "forged"
	w := f.do(http.MethodGet, "/api/pages", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPages(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/pages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []store.Page
	decodeBody(t, w, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "page-1", listed[0].ID)

	w = f.do(http.MethodPost, "/api/pages", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/pages", map[string]string{"name": "Landing"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created store.Page
	decodeBody(t, w, &created)
	assert.Equal(t, "user-1", created.UserID)

	w = f.do(http.MethodGet, "/api/pages/page-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodDelete, "/api/pages/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPages_GetConditional(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/pages/page-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = f.do(http.MethodGet, "/api/pages/page-1", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestPages_SaveValidatesSchema(t *testing.T) {
	f := newFixture(t)

	broken := map[string]interface{}{
		"schema": map[string]interface{}{
			"rootId":     "root",
			"components": map[string]interface{}{"root": map[string]interface{}{"id": "root", "type": "Container", "children": []string{"ghost"}}},
		},
	}
	w := f.do(http.MethodPut, "/api/pages/page-1", broken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	doc := page.NewDocument()
	w = f.do(http.MethodPut, "/api/pages/page-1", map[string]interface{}{"schema": doc})
	require.Equal(t, http.StatusOK, w.Code)
	saved, _ := f.pages.Get(context.Background(), "page-1")
	assert.Len(t, saved.Schema.Components, 1)
}

func TestModels_CreateValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/models", map[string]interface{}{"name": "", "table_name": "Bad Name"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var verr response.ValidationErrorResponse
	decodeBody(t, w, &verr)
	assert.NotEmpty(t, verr.Fields)

	w = f.do(http.MethodGet, "/api/models/model-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodGet, "/api/models/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModels_Publish(t *testing.T) {
	body := map[string]interface{}{
		"model":              map[string]interface{}{"name": "Contacts", "table_name": "contacts"},
		"dryRun":             false,
		"confirmDestructive": true,
	}

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.result = &migrate.PublishResult{Success: true, Ops: []string{"ALTER TABLE ..."}, Persisted: true}
		w := f.do(http.MethodPost, "/api/models/model-1/publish", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "model-1", f.publisher.req.Model.ID)
		assert.True(t, f.publisher.req.ConfirmDestructive)

		var res migrate.PublishResult
		decodeBody(t, w, &res)
		assert.True(t, res.Persisted)
	})

	t.Run("missing model", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/api/models/model-1/publish", map[string]bool{"dryRun": true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("in progress", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.err = migrate.ErrPublishInProgress
		w := f.do(http.MethodPost, "/api/models/model-1/publish", body)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unconfirmed destructive", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.result = &migrate.PublishResult{Ops: []string{`ALTER TABLE "contacts" DROP COLUMN "x";`}, Destructive: true, Message: migrate.MessageDestructive}
		f.publisher.err = migrate.ErrDestructiveUnconfirmed
		w := f.do(http.MethodPost, "/api/models/model-1/publish", body)
		require.Equal(t, http.StatusConflict, w.Code)
		var resp response.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, true, resp.Details["destructive"])
	})

	t.Run("ddl failure returns database message", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.err = fmt.Errorf("failed to apply migration: %w", &pgconn.PgError{Code: "42701", Message: `column "email" of relation "contacts" already exists`})
		w := f.do(http.MethodPost, "/api/models/model-1/publish", body)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		var resp response.ErrorResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, `column "email" of relation "contacts" already exists`, resp.Message)
	})
}

func TestModels_Delete(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodDelete, "/api/models/model-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `deleted successfully`)

	f.publisher.err = fmt.Errorf("%w: model-9", migrate.ErrModelNotFound)
	w = f.do(http.MethodDelete, "/api/models/model-9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModels_ValidateField(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/models/model-1/validate-field", map[string]interface{}{
		"field": map[string]interface{}{"id": "f2", "name": "Email 2", "key": "email", "type": "text"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var res validateFieldResponse
	decodeBody(t, w, &res)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Fields["key"])

	// editing the field itself is not a duplicate
	w = f.do(http.MethodPost, "/api/models/model-1/validate-field", map[string]interface{}{
		"field": map[string]interface{}{"id": "f1", "name": "Email", "key": "email", "type": "text"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/models/unsaved/validate-field", map[string]interface{}{
		"field": map[string]interface{}{"id": "f1", "name": "Phone", "key": "phone", "type": "text"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSchemaAndData(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/schema/columns", nil).Code)
	w := f.do(http.MethodGet, "/api/schema/columns?tableName=contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"column_name":"id"`)

	w = f.do(http.MethodGet, "/api/schema/tables", nil)
	assert.JSONEq(t, `["contacts"]`, w.Body.String())

	w = f.do(http.MethodGet, "/api/data/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ada")

	w = f.do(http.MethodGet, "/api/data/Bad%20Table", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/data/contacts", map[string]string{"name": "Grace"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPatch, "/api/data/contacts/1", map[string]string{"name": "Ada L."})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodDelete, "/api/data/contacts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodDelete, "/api/data/contacts/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{"contacts", "contacts"}, f.data.invalidated)
}

func TestRuntimePage(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/p/page-1?ref=mail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<title>Home</title>")
	assert.Contains(t, w.Body.String(), "Hi ada@example.com")

	req := httptest.NewRequest(http.MethodGet, "/p/page-1", nil)
	anon := httptest.NewRecorder()
	f.handler.ServeHTTP(anon, req)
	require.Equal(t, http.StatusOK, anon.Code)
	assert.NotContains(t, anon.Body.String(), "ada@example.com")

	w = f.do(http.MethodGet, "/p/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLiveEndpoints(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Authorization": {"Bearer " + f.token}}
	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/runtime/page-1", nil)
	require.NoError(t, err)
	defer ws.Close()

	var msg live.Message
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, live.MsgRender, msg.Type)

	require.NoError(t, ws.WriteJSON(live.Message{Type: live.MsgClick, Data: json.RawMessage(`{"id":"Button_1"}`)}))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, live.MsgToast, msg.Type)
	assert.Contains(t, string(msg.Data), "clicked")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/editor/page-1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ed, _, err := websocket.DefaultDialer.Dial(base+"/ws/editor/page-1", header)
	require.NoError(t, err)
	defer ed.Close()
	require.NoError(t, ed.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ed.ReadJSON(&msg))
	assert.Equal(t, live.MsgTree, msg.Type)
	assert.Contains(t, string(msg.Data), "Button_1")
}

func TestRenderStoreError_Unknown(t *testing.T) {
	h := &handler{Deps: Deps{Logger: zap.NewNop()}}
	w := httptest.NewRecorder()
	h.renderStoreError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk full")
}

func TestProfilingRoutes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/debug/pprof/", nil).Code)

	f.handler = NewRouter(Deps{Pages: f.pages, Auth: auth.NewProvider(testSecret), Profiling: true})
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/debug/pprof/", nil).Code)

	f.token = ""
	w := f.do(http.MethodGet, "/debug/pprof/heap", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fdebug%2Fpprof%2Fheap", w.Header().Get("Location"))
}

func TestPublishRateLimit(t *testing.T) {
	f := newFixture(t)
	f.publisher.result = &migrate.PublishResult{Success: true}
	limiter := ratelimit.NewTokenBucket(ratelimit.BucketConfig{Capacity: 1, Period: time.Hour})
	defer limiter.Close()
	f.handler = NewRouter(Deps{
		Models:         f.models,
		Publisher:      f.publisher,
		Auth:           auth.NewProvider(testSecret),
		PublishLimiter: limiter,
	})

	body := map[string]interface{}{"model": map[string]interface{}{"name": "Contacts", "table_name": "contacts"}, "dryRun": true}
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/models/model-1/publish", body).Code)
	w := f.do(http.MethodPost, "/api/models/model-1/publish", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// other endpoints are not throttled
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/models/model-1", nil).Code)
}
