package handler

import (
	"log/slog"
	"net/http"

	"github.com/mailtmpl/internal/placeholder"
)

// CatalogHandler exposes the placeholder and template type catalog.
type CatalogHandler struct {
	BaseHandler
}

func NewCatalogHandler(logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{BaseHandler: BaseHandler{Logger: logger}}
}

// Placeholders lists the placeholders for ?type=, or all of them.
func (h *CatalogHandler) Placeholders(w http.ResponseWriter, r *http.Request) {
	var list []placeholder.Info
	if t := r.URL.Query().Get("type"); t != "" {
		list = placeholder.AvailableFor(t)
	} else {
		list = placeholder.Catalog()
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"placeholders": list}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *CatalogHandler) TemplateTypes(w http.ResponseWriter, r *http.Request) {
	if err := h.writeJSON(w, http.StatusOK, envelope{"types": placeholder.Types()}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
