package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/placeholder"
	"github.com/mailtmpl/internal/render"
)

// APIError is a non-2xx answer from the server. Fields is set for 422s.
type APIError struct {
	Status  int
	Message string
	Fields  model.FieldErrors
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %d", e.Status)
}

// Client talks to the template API with a session cookie.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. A nil hc gets a client with its
// own cookie jar and a 10s timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/api/admin/login", body, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/admin/logout", nil, nil)
}

// List fetches the templates visible to the session. query carries the
// server-side filter and sort parameters and may be nil.
func (c *Client) List(ctx context.Context, query url.Values) ([]*model.EmailTemplate, error) {
	path := "/api/email-templates"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out struct {
		Templates []*model.EmailTemplate `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

func (c *Client) Get(ctx context.Context, id int64) (*model.EmailTemplate, error) {
	return c.template(ctx, http.MethodGet, templatePath(id), nil)
}

func (c *Client) Create(ctx context.Context, f model.Form) (*model.EmailTemplate, error) {
	return c.template(ctx, http.MethodPost, "/api/email-templates", f)
}

func (c *Client) Update(ctx context.Context, id int64, f model.Form) (*model.EmailTemplate, error) {
	return c.template(ctx, http.MethodPut, templatePath(id), f)
}

func (c *Client) SetActive(ctx context.Context, id int64, active bool) (*model.EmailTemplate, error) {
	return c.template(ctx, http.MethodPut, templatePath(id), map[string]bool{"is_active": active})
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, templatePath(id), nil, nil)
}

// Preview renders a saved template with values layered over the sample data.
func (c *Client) Preview(ctx context.Context, id int64, values placeholder.Values, mode render.Mode) (render.Preview, error) {
	body := map[string]any{"values": values, "mode": mode}
	var out struct {
		Preview render.Preview `json:"preview"`
	}
	err := c.do(ctx, http.MethodPost, templatePath(id)+"/preview", body, &out)
	return out.Preview, err
}

// PreviewDraft renders unsaved content.
func (c *Client) PreviewDraft(ctx context.Context, tmpl placeholder.Template, values placeholder.Values, mode render.Mode) (render.Preview, error) {
	body := map[string]any{
		"subject":   tmpl.Subject,
		"html_code": tmpl.HTMLBody,
		"values":    values,
		"mode":      mode,
	}
	var out struct {
		Preview render.Preview `json:"preview"`
	}
	err := c.do(ctx, http.MethodPost, "/api/email-templates/preview", body, &out)
	return out.Preview, err
}

func (c *Client) SendTest(ctx context.Context, id int64, to string, values placeholder.Values) error {
	body := map[string]any{"to": to, "values": values}
	return c.do(ctx, http.MethodPost, templatePath(id)+"/send-test", body, nil)
}

// Run executes e and reports the outcome as an action for Reduce. Effects
// that need a person, such as ConfirmDiscard, return nil.
func (c *Client) Run(ctx context.Context, e Effect) Action {
	switch e := e.(type) {
	case CreateTemplate:
		t, err := c.Create(ctx, e.Form)
		if err != nil {
			return saveFailed(err)
		}
		return SaveSucceeded{Template: *t}
	case UpdateTemplate:
		t, err := c.Update(ctx, e.ID, e.Form)
		if err != nil {
			return saveFailed(err)
		}
		return SaveSucceeded{Template: *t}
	case ToggleActive:
		t, err := c.SetActive(ctx, e.ID, e.Active)
		if err != nil {
			return Failed{Err: errorText(err)}
		}
		return Toggled{Template: *t}
	case DeleteTemplate:
		if err := c.Delete(ctx, e.ID); err != nil {
			return Failed{Err: errorText(err)}
		}
		return Deleted{ID: e.ID}
	case LoadTemplates:
		list, err := c.List(ctx, nil)
		if err != nil {
			return Failed{Err: errorText(err)}
		}
		return Loaded{Templates: list}
	}
	return nil
}

// Dispatch runs a through Reduce and executes the resulting effects until
// none are left. ConfirmDiscard is answered by confirm; a nil confirm keeps
// the modal open.
func (c *Client) Dispatch(ctx context.Context, s State, a Action, confirm func() bool) State {
	queue := []Action{a}
	for len(queue) > 0 {
		var effects []Effect
		s, effects = Reduce(s, queue[0])
		queue = queue[1:]
		for _, e := range effects {
			if _, ok := e.(ConfirmDiscard); ok {
				if confirm != nil && confirm() {
					queue = append(queue, ConfirmClose{})
				}
				continue
			}
			if next := c.Run(ctx, e); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return s
}

func saveFailed(err error) Action {
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		return SaveFailed{Err: msgFixErrors, Fields: apiErr.Fields}
	}
	return SaveFailed{Err: errorText(err)}
}

func errorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func templatePath(id int64) string {
	return "/api/email-templates/" + strconv.FormatInt(id, 10)
}

func (c *Client) template(ctx context.Context, method, path string, body any) (*model.EmailTemplate, error) {
	var out struct {
		Template *model.EmailTemplate `json:"template"`
	}
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	if out.Template == nil {
		return nil, errors.New("api: response has no template")
	}
	return out.Template, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeAPIError reads the {"error": ...} envelope, whose value is either a
// message or a field map.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(b, &env); err != nil || len(env.Error) == 0 {
		apiErr.Message = strings.TrimSpace(string(b))
		return apiErr
	}
	var msg string
	if err := json.Unmarshal(env.Error, &msg); err == nil {
		apiErr.Message = msg
		return apiErr
	}
	var fields model.FieldErrors
	if err := json.Unmarshal(env.Error, &fields); err == nil {
		apiErr.Fields = fields
	}
	return apiErr
}
