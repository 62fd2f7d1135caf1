package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/migrate"
	"github.com/pagecraft/pagecraft/internal/model"
	"github.com/pagecraft/pagecraft/internal/store"
	"github.com/pagecraft/pagecraft/internal/web/response"
)

type validateFieldRequest struct {
	Field model.Field `json:"field"`
	// Fields are the other fields of the draft; the stored model is used when omitted
	Fields []model.Field `json:"fields,omitempty"`
}

type validateFieldResponse struct {
	Valid  bool                `json:"valid"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func (h *handler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.Models.List(r.Context())
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, models)
}

func (h *handler) createModel(w http.ResponseWriter, r *http.Request) {
	var m model.DataModel
	if err := decodeJSON(r, &m); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if err := h.Models.Create(r.Context(), &m); err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, &m)
}

func (h *handler) getModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.Models.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, m)
}

func (h *handler) deleteModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.Publisher.DropModel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, migrate.ErrPublishInProgress) {
			response.RenderError(w, http.StatusConflict, err)
			return
		}
		h.renderStoreError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Model %q deleted successfully.", m.TableName),
	})
}

func (h *handler) publishModel(w http.ResponseWriter, r *http.Request) {
	var req migrate.PublishRequest
	if err := decodeJSON(r, &req); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if req.Model == nil {
		response.RenderBadRequest(w, migrate.ErrInvalidModel.Error())
		return
	}
	req.Model.ID = chi.URLParam(r, "id")

	result, err := h.Publisher.Publish(r.Context(), req)
	var verr *model.ValidationErrors
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, result)
	case errors.Is(err, migrate.ErrPublishInProgress):
		response.RenderError(w, http.StatusConflict, err)
	case errors.Is(err, migrate.ErrDestructiveUnconfirmed):
		response.RenderErrorWithDetails(w, http.StatusConflict, err, map[string]interface{}{
			"ops":         result.Ops,
			"destructive": result.Destructive,
			"message":     result.Message,
		})
	case errors.As(err, &verr):
		response.RenderValidationError(w, verr)
	case errors.Is(err, migrate.ErrInvalidModel):
		response.RenderBadRequest(w, err.Error())
	default:
		h.Logger.Error("publish failed", zap.String("model", req.Model.ID), zap.Error(err))
		details := map[string]interface{}{}
		if result != nil {
			details["persisted"] = result.Persisted
			details["ops"] = result.Ops
		}
		response.RenderErrorWithDetails(w, http.StatusInternalServerError,
			errors.New(migrate.DatabaseMessage(err)), details)
	}
}

func (h *handler) validateField(w http.ResponseWriter, r *http.Request) {
	var req validateFieldRequest
	if err := decodeJSON(r, &req); err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	others := req.Fields
	if others == nil {
		m, err := h.Models.Get(r.Context(), chi.URLParam(r, "id"))
		switch {
		case err == nil:
			others = m.Fields
		case errors.Is(err, store.ErrNotFound):
			// a model that was never saved has no other fields yet
		default:
			h.renderStoreError(w, r, err)
			return
		}
	}

	rest := make([]model.Field, 0, len(others))
	for _, f := range others {
		if f.ID != req.Field.ID || f.ID == "" {
			rest = append(rest, f)
		}
	}

	err := model.ValidateField(req.Field, rest)
	var verr *model.ValidationErrors
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, validateFieldResponse{Valid: true})
	case errors.As(err, &verr):
		response.JSON(w, http.StatusUnprocessableEntity, validateFieldResponse{Fields: verr.Fields})
	default:
		response.RenderBadRequest(w, err.Error())
	}
}
