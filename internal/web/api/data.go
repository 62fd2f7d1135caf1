package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/render"
	"github.com/pagecraft/pagecraft/internal/web/response"
)

func (h *handler) columns(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("tableName")
	if table == "" {
		response.RenderBadRequest(w, "Table name is required")
		return
	}
	cols, err := h.Data.Columns(r.Context(), table)
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, cols)
}

func (h *handler) tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Data.Tables(r.Context())
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, tables)
}

func (h *handler) listRows(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Rows.Rows(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, rows)
}

func (h *handler) insertRow(w http.ResponseWriter, r *http.Request) {
	var record page.Map
	if err := decodeJSON(r, &record); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	row, err := h.Rows.Insert(r.Context(), chi.URLParam(r, "table"), record)
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, row)
}

func (h *handler) updateRow(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	var patch page.Map
	if err := decodeJSON(r, &patch); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if len(patch) == 0 {
		response.RenderBadRequest(w, "nothing to update")
		return
	}
	row, err := h.Data.Update(r.Context(), table, chi.URLParam(r, "rowId"), patch)
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	h.invalidate(r, table)
	response.JSON(w, http.StatusOK, row)
}

func (h *handler) deleteRow(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := h.Data.Delete(r.Context(), table, chi.URLParam(r, "rowId")); err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	h.invalidate(r, table)
	w.WriteHeader(http.StatusNoContent)
}

// invalidate drops cached rows after a write that bypassed the row source
func (h *handler) invalidate(r *http.Request, table string) {
	inv, ok := h.Rows.(render.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(r.Context(), table); err != nil {
		h.Logger.Warn("table cache invalidation failed", zap.String("table", table), zap.Error(err))
	}
}
