// Package api wires the HTTP routes of pagecraft: the JSON API, server
// rendered runtime pages and the live websocket endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/migrate"
	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/render"
	"github.com/pagecraft/pagecraft/internal/store"
	"github.com/pagecraft/pagecraft/internal/web/auth"
	"github.com/pagecraft/pagecraft/internal/web/live"
	"github.com/pagecraft/pagecraft/internal/web/middleware"
	"github.com/pagecraft/pagecraft/internal/web/profiling"
	"github.com/pagecraft/pagecraft/internal/web/ratelimit"
	"github.com/pagecraft/pagecraft/internal/web/response"
)

const maxBodyBytes = 4 << 20

// PageStore persists pages
type PageStore interface {
	List(ctx context.Context, userID string) ([]*store.Page, error)
	Get(ctx context.Context, id string) (*store.Page, error)
	Create(ctx context.Context, p *store.Page) error
	SaveSchema(ctx context.Context, id string, doc *page.Document) error
	Delete(ctx context.Context, id string) error
}

// ModelStore persists data model metadata
type ModelStore interface {
	List(ctx context.Context) ([]*model.DataModel, error)
	Get(ctx context.Context, id string) (*model.DataModel, error)
	Create(ctx context.Context, m *model.DataModel) error
}

// ModelPublisher applies model changes to the physical schema
type ModelPublisher interface {
	Publish(ctx context.Context, req migrate.PublishRequest) (*migrate.PublishResult, error)
	DropModel(ctx context.Context, id string) (*model.DataModel, error)
}

// DataStore reads, writes and introspects user tables
type DataStore interface {
	Update(ctx context.Context, table, rowID string, patch page.Map) (page.Map, error)
	Delete(ctx context.Context, table, rowID string) error
	Columns(ctx context.Context, table string) ([]store.Column, error)
	Tables(ctx context.Context) ([]string, error)
}

// Deps are the collaborators of the router
type Deps struct {
	Pages     PageStore
	Models    ModelStore
	Publisher ModelPublisher
	Data      DataStore
	// Rows serves runtime Tables and Forms; it may cache
	Rows     render.DataSource
	Auth     *auth.Provider
	Live     *live.Upgrader
	LoginURL string
	Mode     render.Mode

	// PublishLimiter throttles publish requests per user when set
	PublishLimiter ratelimit.Limiter
	// Profiling mounts pprof under /debug/pprof for signed-in users
	Profiling bool
	Logger    *zap.Logger
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP handler of the application
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.LoginURL == "" {
		deps.LoginURL = "/login"
	}
	if deps.Live == nil {
		deps.Live = live.NewUpgrader(context.Background(), live.DefaultConfig(), deps.Logger)
	}
	h := &handler{Deps: deps}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) { response.RenderNotFound(w, "") })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(deps.LoginURL))

		r.Route("/api/pages", func(r chi.Router) {
			r.Get("/", h.listPages)
			r.Post("/", h.createPage)
			r.Get("/{id}", h.getPage)
			r.Put("/{id}", h.savePage)
			r.Delete("/{id}", h.deletePage)
		})

		r.Route("/api/models", func(r chi.Router) {
			r.Get("/", h.listModels)
			r.Post("/", h.createModel)
			r.Get("/{id}", h.getModel)
			r.Delete("/{id}", h.deleteModel)
			publish := r
			if deps.PublishLimiter != nil {
				publish = r.With(ratelimit.Middleware(deps.PublishLimiter, func(r *http.Request) string {
					return auth.UserID(r.Context())
				}, deps.Logger))
			}
			publish.Post("/{id}/publish", h.publishModel)
			r.Post("/{id}/validate-field", h.validateField)
		})

		r.Get("/api/schema/columns", h.columns)
		r.Get("/api/schema/tables", h.tables)

		r.Route("/api/data/{table}", func(r chi.Router) {
			r.Get("/", h.listRows)
			r.Post("/", h.insertRow)
			r.Patch("/{rowId}", h.updateRow)
			r.Delete("/{rowId}", h.deleteRow)
		})

		r.Get("/ws/editor/{pageId}", h.editorSession)

		if deps.Profiling {
			profiling.Register(r, profiling.DefaultConfig())
		}
	})

	// Runtime pages are public; a signed-in user is exposed to expressions
	r.Get("/p/{pageId}", h.runtimePage)
	r.Get("/ws/runtime/{pageId}", h.runtimeSession)

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(deps.Logger, "/healthz"),
		middleware.Recovery(deps.Logger),
	)
	if deps.Auth != nil {
		chain = chain.Append(middleware.Authenticate(deps.Auth))
	}
	return chain.Then(r)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// renderStoreError maps repository errors onto HTTP statuses
func (h *handler) renderStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationErrors
	switch {
	case errors.As(err, &verr):
		response.RenderValidationError(w, verr)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, migrate.ErrModelNotFound):
		response.RenderNotFound(w, err.Error())
	case errors.Is(err, store.ErrInvalidIdentifier), errors.Is(err, page.ErrInvalidDocument):
		response.RenderBadRequest(w, err.Error())
	default:
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		response.RenderErrorWithDetails(w, http.StatusInternalServerError,
			errors.New(migrate.DatabaseMessage(err)), nil)
	}
}
