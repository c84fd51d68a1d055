package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/mailtmpl/internal/events"
	"github.com/mailtmpl/internal/mailer"
	appmw "github.com/mailtmpl/internal/middleware"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/placeholder"
	"github.com/mailtmpl/internal/render"
)

type settingsLoader interface {
	Load(ctx context.Context) (*model.AppSettings, error)
}

type mailEnqueuer interface {
	Enqueue(msg mailer.Message) error
}

// PreviewHandler renders templates for the editor and sends test mail.
type PreviewHandler struct {
	BaseHandler
	templates templateGetter
	settings  settingsLoader
	queue     mailEnqueuer
	events    events.Publisher
	now       func() time.Time
}

func NewPreviewHandler(logger *slog.Logger, templates templateGetter, settings settingsLoader, queue mailEnqueuer, pub events.Publisher) *PreviewHandler {
	return &PreviewHandler{
		BaseHandler: BaseHandler{Logger: logger},
		templates:   templates,
		settings:    settings,
		queue:       queue,
		events:      pub,
		now:         time.Now,
	}
}

type previewRequest struct {
	Values placeholder.Values `json:"values"`
	Mode   string             `json:"mode"`
}

type draftPreviewRequest struct {
	Subject  string             `json:"subject"`
	HTMLCode string             `json:"html_code"`
	Values   placeholder.Values `json:"values"`
	Mode     string             `json:"mode"`
}

type sendTestRequest struct {
	To     string             `json:"to"`
	Values placeholder.Values `json:"values"`
}

// Preview renders a saved template.
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	// The body is optional; without one the sample values are used.
	var req previewRequest
	if err := h.readJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.badRequestResponse(w, r, err)
		return
	}

	t, ok := loadVisible(&h.BaseHandler, h.templates, w, r)
	if !ok {
		return
	}
	h.respondPreview(w, r, t.Placeholders(), req.Values, req.Mode)
}

// PreviewDraft renders an unsaved subject and body.
func (h *PreviewHandler) PreviewDraft(w http.ResponseWriter, r *http.Request) {
	var req draftPreviewRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	tmpl := placeholder.Template{Subject: req.Subject, HTMLBody: req.HTMLCode}
	h.respondPreview(w, r, tmpl, req.Values, req.Mode)
}

func (h *PreviewHandler) respondPreview(w http.ResponseWriter, r *http.Request, tmpl placeholder.Template, values placeholder.Values, rawMode string) {
	mode, err := render.ParseMode(rawMode)
	if err != nil {
		h.failedValidationResponse(w, r, map[string]string{"mode": "Unknown preview mode"})
		return
	}

	overrides := placeholder.WithOverrides(h.brandValues(r), values)
	p, err := render.BuildPreview(tmpl, overrides, h.now(), mode)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"preview": p}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// SendTest renders a saved template with sample values and queues it for
// delivery to a single address.
func (h *PreviewHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req sendTestRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	req.To = strings.TrimSpace(req.To)
	if !model.IsValidEmail(req.To) {
		h.failedValidationResponse(w, r, map[string]string{"to": "Please enter a valid email address"})
		return
	}

	t, ok := loadVisible(&h.BaseHandler, h.templates, w, r)
	if !ok {
		return
	}

	settings, err := h.settings.Load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	values := placeholder.WithOverrides(placeholder.Defaults(h.now()), brandOverrides(settings))
	values = placeholder.WithOverrides(values, req.Values)
	out, err := render.Render(t.Placeholders(), values)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	msg := mailer.Message{
		To:      []string{req.To},
		Subject: out.Subject,
		HTML:    out.HTML,
		Text:    out.Text,
	}
	if snd := settings.SenderFor(t.FromAddressType); snd.Address != "" {
		msg.From = &mail.Address{Name: snd.Name, Address: snd.Address}
	}

	if err := h.queue.Enqueue(msg); err != nil {
		if errors.Is(err, mailer.ErrQueueFull) {
			h.errorResponse(w, r, http.StatusServiceUnavailable, "the mail queue is full, try again shortly")
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	publishEvent(&h.BaseHandler, h.events, r, events.New(events.TemplateTestSent, t, appmw.UserIDFromContext(r.Context())))

	if err := h.writeJSON(w, http.StatusAccepted, envelope{"message": "test email queued", "to": req.To}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// brandValues returns the company overrides from settings. Previews still
// render when settings cannot be read.
func (h *PreviewHandler) brandValues(r *http.Request) placeholder.Values {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.logError(r, err)
		return nil
	}
	return brandOverrides(s)
}

func brandOverrides(s *model.AppSettings) placeholder.Values {
	v := placeholder.Values{}
	if s.CompanyName != "" {
		v["company_name"] = s.CompanyName
	}
	if s.SupportEmail != "" {
		v["support_email"] = s.SupportEmail
	}
	return v
}
