package api

import (
	"bufio"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/render"
	"github.com/pagecraft/pagecraft/internal/store"
	"github.com/pagecraft/pagecraft/internal/web/auth"
	"github.com/pagecraft/pagecraft/internal/web/live"
)

// runtimeGlobals builds the expression context of a page view: the signed-in
// user (or null), the route params and the query string
func runtimeGlobals(r *http.Request, pageID string) page.Map {
	user := page.Null()
	if u := auth.UserFrom(r.Context()); u != nil {
		user = page.MapOf(page.Map{
			"id":    page.String(u.ID),
			"email": page.String(u.Email),
		})
	}
	search := page.Map{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			search[k] = page.String(v[0])
		}
	}
	return page.Map{
		"user":         user,
		"params":       page.MapOf(page.Map{"pageId": page.String(pageID)}),
		"searchParams": page.MapOf(search),
	}
}

func (h *handler) newRuntimeSession(r *http.Request, p *store.Page) *render.Session {
	return render.NewSession(render.Config{
		Document: p.Schema,
		Globals:  runtimeGlobals(r, p.ID),
		Data:     h.Rows,
		Mode:     h.Mode,
		Logger:   h.Logger,
	})
}

func (h *handler) runtimePage(w http.ResponseWriter, r *http.Request) {
	p, err := h.Pages.Get(r.Context(), chi.URLParam(r, "pageId"))
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}

	session := h.newRuntimeSession(r, p)
	session.Mount()
	defer session.Close()
	view := session.Render(r.Context())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	bw := bufio.NewWriter(w)
	_, _ = bw.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	_, _ = bw.WriteString(html.EscapeString(p.Name))
	_, _ = bw.WriteString("</title></head>\n<body data-page-id=\"")
	_, _ = bw.WriteString(html.EscapeString(p.ID))
	_, _ = bw.WriteString("\">\n")
	if err := render.WriteHTML(bw, view); err != nil {
		h.Logger.Warn("failed to write runtime page", zap.String("page", p.ID), zap.Error(err))
		return
	}
	_, _ = bw.WriteString("\n</body></html>\n")
	_ = bw.Flush()
}

func (h *handler) runtimeSession(w http.ResponseWriter, r *http.Request) {
	p, err := h.Pages.Get(r.Context(), chi.URLParam(r, "pageId"))
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	h.Live.Serve(w, r, live.NewRuntimeSession(h.newRuntimeSession(r, p)))
}

func (h *handler) editorSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageId")
	p, ok := h.ownedPage(w, r, id)
	if !ok {
		return
	}
	h.Live.Serve(w, r, live.NewEditorSession(id, p.Schema, h.Pages, h.Logger))
}
