package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mailtmpl/internal/mailer"
	"github.com/mailtmpl/internal/model"
)

const maskedPassword = "********"

type settingsStore interface {
	Load(ctx context.Context) (*model.AppSettings, error)
	Save(ctx context.Context, settings *model.AppSettings) error
}

type settingsMailer interface {
	Send(msg mailer.Message) error
	Reconfigure(cfg *mailer.Config)
}

// SettingsHandler handles the SMTP and sender settings API.
type SettingsHandler struct {
	BaseHandler
	settings settingsStore
	mailer   settingsMailer
}

func NewSettingsHandler(logger *slog.Logger, settings settingsStore, m settingsMailer) *SettingsHandler {
	return &SettingsHandler{BaseHandler: BaseHandler{Logger: logger}, settings: settings, mailer: m}
}

// Get returns the current settings with the SMTP password masked.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"settings": s.Redacted()}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update saves settings and reconfigures the mailer. A blank or masked
// password keeps the stored one.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s := &model.AppSettings{}
	if err := h.readJSON(w, r, s); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if errs := validateSettings(s); !errs.Valid() {
		h.failedValidationResponse(w, r, errs)
		return
	}

	if s.SMTPPass == "" || s.SMTPPass == maskedPassword {
		current, err := h.settings.Load(r.Context())
		if err != nil {
			h.serverErrorResponse(w, r, err)
			return
		}
		s.SMTPPass = current.SMTPPass
	}

	if err := h.settings.Save(r.Context(), s); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.mailer.Reconfigure(mailer.NewConfigFromSettings(s))

	if err := h.writeJSON(w, http.StatusOK, envelope{"settings": s.Redacted()}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

type testEmailRequest struct {
	To string `json:"to"`
}

// TestEmail sends a plain message synchronously, bypassing the mail queue.
func (h *SettingsHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	req.To = strings.TrimSpace(req.To)
	if !model.IsValidEmail(req.To) {
		h.failedValidationResponse(w, r, map[string]string{"to": "Please enter a valid email address"})
		return
	}

	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.mailer.Reconfigure(mailer.NewConfigFromSettings(s))

	company := s.CompanyName
	if company == "" {
		company = "mailtmpl"
	}
	msg := mailer.Message{
		To:      []string{req.To},
		Subject: "Test email",
		Text:    fmt.Sprintf("This is a test email from %s. Your SMTP settings work.", company),
	}
	if err := h.mailer.Send(msg); err != nil {
		h.logError(r, err)
		h.errorResponse(w, r, http.StatusBadGateway, "send failed: "+err.Error())
		return
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"message": "test email sent", "to": req.To}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func validateSettings(s *model.AppSettings) model.FieldErrors {
	errs := model.FieldErrors{}
	if s.SMTPPort < 0 || s.SMTPPort > 65535 {
		errs["smtpPort"] = "Port must be between 0 and 65535"
	}
	if s.SupportEmail != "" && !model.IsValidEmail(s.SupportEmail) {
		errs["supportEmail"] = "Please enter a valid email address"
	}
	for kind, snd := range s.Senders {
		if !kind.Valid() {
			errs["senders."+string(kind)] = "Unknown sender address type"
			continue
		}
		if snd.Address != "" && !model.IsValidEmail(snd.Address) {
			errs["senders."+string(kind)] = "Please enter a valid email address"
		}
	}
	return errs
}
