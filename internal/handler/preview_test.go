package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtmpl/internal/events"
	"github.com/mailtmpl/internal/mailer"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/render"
)

type previewResponse struct {
	Preview render.Preview `json:"preview"`
}

func testSettings() *fakeSettings {
	return &fakeSettings{current: model.AppSettings{
		CompanyName: "Acme Inc",
		Senders: map[model.FromAddressType]model.Sender{
			model.FromTransactional: {Name: "Acme", Address: "noreply@acme.test"},
			model.FromMarketing:     {Name: "Acme News", Address: "news@acme.test"},
		},
	}}
}

func previewRouter(u *model.AdminUser, q *fakeQueue, pub *recordingPublisher) http.Handler {
	h := NewPreviewHandler(testLogger(), seedTemplates(), testSettings(), q, pub)
	h.now = func() time.Time { return time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(asUser(u))
	r.Post("/api/email-templates/preview", h.PreviewDraft)
	r.Post("/api/email-templates/{id}/preview", h.Preview)
	r.Post("/api/email-templates/{id}/send-test", h.SendTest)
	return r
}

func TestPreviewSaved(t *testing.T) {
	r := previewRouter(acmeAdmin, &fakeQueue{}, &recordingPublisher{})

	rr := doJSON(t, r, http.MethodPost, "/api/email-templates/1/preview", map[string]any{
		"values": map[string]string{"user_name": "Ada"},
		"mode":   "html",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p := decode[previewResponse](t, rr).Preview
	assert.Equal(t, "Welcome Ada", p.Subject)
	assert.Equal(t, "<p>Hi Ada</p>", p.HTML)
	assert.Empty(t, p.Text)
	assert.Equal(t, render.ModeHTML, p.Mode)
	assert.Equal(t, []string{"user_name"}, p.Tokens)
	assert.Empty(t, p.Missing)
	assert.Empty(t, p.Unknown)
}

func TestPreviewSaved_DefaultsWithoutBody(t *testing.T) {
	rr := doJSON(t, previewRouter(superAdmin, &fakeQueue{}, &recordingPublisher{}), http.MethodPost, "/api/email-templates/1/preview", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p := decode[previewResponse](t, rr).Preview
	assert.Equal(t, "Welcome John Doe", p.Subject)
	assert.Equal(t, render.ModeSplit, p.Mode)
	assert.Equal(t, "Hi John Doe", p.Text)
}

func TestPreviewSaved_EmptyBodyUnknownLength(t *testing.T) {
	r := previewRouter(superAdmin, &fakeQueue{}, &recordingPublisher{})

	// An io.Reader of unknown size arrives like a chunked upload.
	req := httptest.NewRequest(http.MethodPost, "/api/email-templates/1/preview", struct{ io.Reader }{strings.NewReader("")})
	require.EqualValues(t, -1, req.ContentLength)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Welcome John Doe", decode[previewResponse](t, rr).Preview.Subject)

	req = httptest.NewRequest(http.MethodPost, "/api/email-templates/1/preview", strings.NewReader("{not json"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreviewSaved_CrossOrganization(t *testing.T) {
	rr := doJSON(t, previewRouter(acmeAdmin, &fakeQueue{}, &recordingPublisher{}), http.MethodPost, "/api/email-templates/3/preview", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPreviewDraft_ReportsMissingAndUnknown(t *testing.T) {
	rr := doJSON(t, previewRouter(acmeAdmin, &fakeQueue{}, &recordingPublisher{}), http.MethodPost, "/api/email-templates/preview", map[string]any{
		"subject":   "{{company_name}} {{mystery}}",
		"html_code": "<p>{{company_name}} since {{current_year}}</p>",
		"mode":      "plain",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p := decode[previewResponse](t, rr).Preview
	assert.Equal(t, "Acme Inc ", p.Subject, "settings override the sample company and missing tokens render blank")
	assert.Empty(t, p.HTML)
	assert.Equal(t, "Acme Inc since 2026", p.Text)
	assert.Equal(t, []string{"company_name", "mystery", "current_year"}, p.Tokens)
	assert.Equal(t, []string{"mystery"}, p.Missing)
	assert.Equal(t, []string{"mystery"}, p.Unknown)
}

func TestPreviewDraft_UnknownMode(t *testing.T) {
	rr := doJSON(t, previewRouter(acmeAdmin, &fakeQueue{}, &recordingPublisher{}), http.MethodPost, "/api/email-templates/preview", map[string]any{
		"subject": "x", "html_code": "<p>x</p>", "mode": "pdf",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Unknown preview mode", decode[fieldErrorResponse](t, rr).Error["mode"])
}

func TestSendTest(t *testing.T) {
	q := &fakeQueue{}
	pub := &recordingPublisher{}

	rr := doJSON(t, previewRouter(acmeAdmin, q, pub), http.MethodPost, "/api/email-templates/2/send-test", map[string]any{
		"to":     " qa@acme.test ",
		"values": map[string]string{"newsletter_title": "March"},
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Len(t, q.sent, 1)
	msg := q.sent[0]
	assert.Equal(t, []string{"qa@acme.test"}, msg.To)
	assert.Equal(t, "Monthly news", msg.Subject)
	assert.Equal(t, "<h1>March</h1>", msg.HTML)
	assert.Equal(t, "March", msg.Text)
	require.NotNil(t, msg.From)
	assert.Equal(t, "news@acme.test", msg.From.Address)
	assert.Equal(t, []events.Type{events.TemplateTestSent}, pub.types())
}

func TestSendTest_InvalidAddress(t *testing.T) {
	q := &fakeQueue{}
	rr := doJSON(t, previewRouter(acmeAdmin, q, &recordingPublisher{}), http.MethodPost, "/api/email-templates/1/send-test", map[string]any{"to": "not-an-address"})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Please enter a valid email address", decode[fieldErrorResponse](t, rr).Error["to"])
	assert.Empty(t, q.sent)
}

func TestSendTest_QueueFull(t *testing.T) {
	q := &fakeQueue{err: mailer.ErrQueueFull}
	pub := &recordingPublisher{}
	rr := doJSON(t, previewRouter(acmeAdmin, q, pub), http.MethodPost, "/api/email-templates/1/send-test", map[string]any{"to": "qa@acme.test"})

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, pub.types())
}

func TestSendTest_CrossOrganization(t *testing.T) {
	q := &fakeQueue{}
	rr := doJSON(t, previewRouter(acmeAdmin, q, &recordingPublisher{}), http.MethodPost, "/api/email-templates/3/send-test", map[string]any{"to": "qa@acme.test"})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, q.sent)
}
