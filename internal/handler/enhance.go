package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mailtmpl/internal/assist"
)

type enhancer interface {
	Enabled() bool
	Enhance(ctx context.Context, req assist.Request) (string, error)
}

type EnhanceHandler struct {
	BaseHandler
	assist enhancer
}

func NewEnhanceHandler(logger *slog.Logger, e enhancer) *EnhanceHandler {
	return &EnhanceHandler{BaseHandler: BaseHandler{Logger: logger}, assist: e}
}

// Enhance rewrites template HTML with the configured language model.
func (h *EnhanceHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	if !h.assist.Enabled() {
		h.errorResponse(w, r, http.StatusServiceUnavailable, "content assist is not configured")
		return
	}

	var req assist.Request
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := req.Validate(); !errs.Valid() {
		h.failedValidationResponse(w, r, errs)
		return
	}

	content, err := h.assist.Enhance(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, assist.ErrPlaceholdersDropped):
			h.errorResponse(w, r, http.StatusUnprocessableEntity, "the rewritten content dropped placeholders, try again")
		case errors.Is(err, assist.ErrEmptyResponse):
			h.errorResponse(w, r, http.StatusBadGateway, "content assist returned nothing")
		default:
			h.logError(r, err)
			h.errorResponse(w, r, http.StatusBadGateway, "content assist request failed")
		}
		return
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"content": content}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
