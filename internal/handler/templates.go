package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mailtmpl/internal/events"
	appmw "github.com/mailtmpl/internal/middleware"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/store"
)

type templateStore interface {
	List(ctx context.Context, f store.ListFilter) ([]*model.EmailTemplate, error)
	Get(ctx context.Context, id int64) (*model.EmailTemplate, error)
	Create(ctx context.Context, t *model.EmailTemplate) error
	Update(ctx context.Context, t *model.EmailTemplate) error
	SetActive(ctx context.Context, id int64, active bool) (*model.EmailTemplate, error)
	Delete(ctx context.Context, id int64) error
}

type templateGetter interface {
	Get(ctx context.Context, id int64) (*model.EmailTemplate, error)
}

// TemplateHandler serves template CRUD, scoped to the caller's organization.
type TemplateHandler struct {
	BaseHandler
	templates templateStore
	events    events.Publisher
}

func NewTemplateHandler(logger *slog.Logger, templates templateStore, pub events.Publisher) *TemplateHandler {
	return &TemplateHandler{BaseHandler: BaseHandler{Logger: logger}, templates: templates, events: pub}
}

// List returns the caller's templates filtered and sorted by the query string.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var lf store.ListFilter
	if org, scoped := appmw.ScopeFromContext(r.Context()); scoped {
		lf.OrganizationID = &org
	} else if q.Has("organization_id") {
		org := q.Get("organization_id")
		lf.OrganizationID = &org
	}

	list, err := h.templates.List(r.Context(), lf)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	filter := model.Filter{
		Category: model.Category(q.Get("category")),
		Active:   model.ActiveFilter(q.Get("active")),
		Type:     model.TemplateType(q.Get("type")),
		Search:   q.Get("q"),
	}
	sort := model.Sort{By: model.SortKey(q.Get("sort")), Order: model.SortOrder(q.Get("order"))}
	if sort.By == "" {
		sort.By = model.SortCreated
		if sort.Order == "" {
			sort.Order = model.Desc
		}
	}

	list = model.Apply(list, filter, sort)
	if err := h.writeJSON(w, http.StatusOK, envelope{"templates": list, "total": len(list)}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Create stores a new template. Organization admins always create inside
// their own organization.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	form := model.EmptyForm(nil)
	if err := h.readJSON(w, r, &form); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if org, scoped := appmw.ScopeFromContext(r.Context()); scoped {
		if org == "" {
			h.errorResponse(w, r, http.StatusForbidden, "your account is not assigned to an organization")
			return
		}
		form.OrganizationID = &org
	}
	if errs := model.Validate(form); !errs.Valid() {
		h.failedValidationResponse(w, r, errs)
		return
	}

	t := &model.EmailTemplate{}
	form.Apply(t)
	if id := appmw.UserIDFromContext(r.Context()); id != "" {
		t.CreatedBy = &id
	}

	if err := h.templates.Create(r.Context(), t); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.publish(r, events.TemplateCreated, t)

	if err := h.writeJSON(w, http.StatusCreated, envelope{"template": t}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"template": t}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update replaces the editable fields of a template. A body holding only
// is_active toggles the template instead.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := h.readJSON(w, r, &raw); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	t, ok := h.load(w, r)
	if !ok {
		return
	}

	if active, isToggle := toggleBody(raw); isToggle {
		h.toggle(w, r, t, active)
		return
	}

	form := model.FormFromTemplate(t)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&form); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if org, scoped := appmw.ScopeFromContext(r.Context()); scoped {
		form.OrganizationID = &org
	}
	if errs := model.Validate(form); !errs.Valid() {
		h.failedValidationResponse(w, r, errs)
		return
	}

	form.Apply(t)
	if err := h.templates.Update(r.Context(), t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.notFoundResponse(w, r)
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	h.publish(r, events.TemplateUpdated, t)

	if err := h.writeJSON(w, http.StatusOK, envelope{"template": t}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *TemplateHandler) toggle(w http.ResponseWriter, r *http.Request, t *model.EmailTemplate, active bool) {
	updated, err := h.templates.SetActive(r.Context(), t.ID, active)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.notFoundResponse(w, r)
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	h.publish(r, events.TemplateToggled, updated)

	if err := h.writeJSON(w, http.StatusOK, envelope{"template": updated}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.templates.Delete(r.Context(), t.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.notFoundResponse(w, r)
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	h.publish(r, events.TemplateDeleted, t)
	w.WriteHeader(http.StatusNoContent)
}

// load fetches the template named by the URL and hides templates of other
// organizations behind a 404.
func (h *TemplateHandler) load(w http.ResponseWriter, r *http.Request) (*model.EmailTemplate, bool) {
	return loadVisible(&h.BaseHandler, h.templates, w, r)
}

func loadVisible(h *BaseHandler, templates templateGetter, w http.ResponseWriter, r *http.Request) (*model.EmailTemplate, bool) {
	id, err := readIDParam(r)
	if err != nil {
		h.notFoundResponse(w, r)
		return nil, false
	}

	t, err := templates.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.notFoundResponse(w, r)
			return nil, false
		}
		h.serverErrorResponse(w, r, err)
		return nil, false
	}

	if org, scoped := appmw.ScopeFromContext(r.Context()); scoped && !t.VisibleTo(org) {
		h.notFoundResponse(w, r)
		return nil, false
	}
	return t, true
}

func (h *TemplateHandler) publish(r *http.Request, typ events.Type, t *model.EmailTemplate) {
	publishEvent(&h.BaseHandler, h.events, r, events.New(typ, t, appmw.UserIDFromContext(r.Context())))
}

// publishEvent logs publish failures instead of failing the request.
func publishEvent(h *BaseHandler, pub events.Publisher, r *http.Request, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(r.Context(), e); err != nil {
		h.logError(r, err)
	}
}

func toggleBody(raw json.RawMessage) (active, ok bool) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || len(body) != 1 {
		return false, false
	}
	v, found := body["is_active"]
	if !found {
		return false, false
	}
	if err := json.Unmarshal(v, &active); err != nil {
		return false, false
	}
	return active, true
}
