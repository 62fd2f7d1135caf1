package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/store"
	"github.com/pagecraft/pagecraft/internal/web/auth"
	"github.com/pagecraft/pagecraft/internal/web/cache"
	"github.com/pagecraft/pagecraft/internal/web/response"
)

type createPageRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type savePageRequest struct {
	Schema json.RawMessage `json:"schema"`
}

func (h *handler) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.Pages.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, pages)
}

func (h *handler) createPage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.RenderBadRequest(w, "page name is required")
		return
	}

	p := &store.Page{
		UserID:      auth.UserID(r.Context()),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := h.Pages.Create(r.Context(), p); err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, p)
}

// ownedPage loads a page of the current user; pages of other users are
// reported as missing
func (h *handler) ownedPage(w http.ResponseWriter, r *http.Request, id string) (*store.Page, bool) {
	p, err := h.Pages.Get(r.Context(), id)
	if err != nil {
		h.renderStoreError(w, r, err)
		return nil, false
	}
	if p.UserID != "" && p.UserID != auth.UserID(r.Context()) {
		response.RenderNotFound(w, "page not found")
		return nil, false
	}
	return p, true
}

func (h *handler) getPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPage(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		response.RenderInternalError(w, err)
		return
	}
	if cache.NotModified(w, r, cache.ETag(body), p.UpdatedAt) {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}

func (h *handler) savePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req savePageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	doc, err := page.ParseDocument(req.Schema)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if err := doc.Validate(); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if _, ok := h.ownedPage(w, r, id); !ok {
		return
	}
	if err := h.Pages.SaveSchema(r.Context(), id, doc); err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

func (h *handler) deletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.ownedPage(w, r, id); !ok {
		return
	}
	if err := h.Pages.Delete(r.Context(), id); err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
