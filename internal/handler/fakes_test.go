package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mailtmpl/internal/assist"
	"github.com/mailtmpl/internal/events"
	"github.com/mailtmpl/internal/mailer"
	appmw "github.com/mailtmpl/internal/middleware"
	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

var (
	superAdmin = &model.AdminUser{ID: "u-super", Email: "root@example.com", Role: model.RoleSuperAdmin, Status: model.StatusActive}
	acmeAdmin  = &model.AdminUser{ID: "u-acme", Email: "ops@acme.test", Role: model.RoleAdmin, Status: model.StatusActive, OrganizationID: strPtr("acme")}
)

// asUser authenticates every request as u, standing in for the session
// middleware.
func asUser(u *model.AdminUser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(appmw.WithUser(r.Context(), u)))
		})
	}
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type fakeTemplates struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.EmailTemplate
	lists  []store.ListFilter
}

func newFakeTemplates(seed ...*model.EmailTemplate) *fakeTemplates {
	f := &fakeTemplates{rows: map[int64]*model.EmailTemplate{}}
	for _, t := range seed {
		f.nextID = max(f.nextID, t.ID)
		f.rows[t.ID] = t
	}
	return f
}

func (f *fakeTemplates) List(_ context.Context, lf store.ListFilter) ([]*model.EmailTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, lf)
	out := []*model.EmailTemplate{}
	for _, t := range f.rows {
		if lf.OrganizationID != nil && (t.OrganizationID == nil || *t.OrganizationID != *lf.OrganizationID) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *model.EmailTemplate) int { return int(a.ID - b.ID) })
	return out, nil
}

func (f *fakeTemplates) Get(_ context.Context, id int64) (*model.EmailTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplates) Create(_ context.Context, t *model.EmailTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	t.UpdatedAt = time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTemplates) Update(_ context.Context, t *model.EmailTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[t.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTemplates) SetActive(_ context.Context, id int64, active bool) (*model.EmailTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.IsActive = active
	cp := *t
	return &cp, nil
}

func (f *fakeTemplates) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []events.Type{}
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeSettings struct {
	mu      sync.Mutex
	current model.AppSettings
	saved   int
}

func (f *fakeSettings) Load(context.Context) (*model.AppSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.current
	return &cp, nil
}

func (f *fakeSettings) Save(_ context.Context, s *model.AppSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = *s
	f.saved++
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (q *fakeQueue) Enqueue(msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

type fakeMailer struct {
	fakeQueue
	configs []*mailer.Config
}

func (m *fakeMailer) Send(msg mailer.Message) error { return m.Enqueue(msg) }

func (m *fakeMailer) Reconfigure(cfg *mailer.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = append(m.configs, cfg)
}

type fakeEnhancer struct {
	enabled bool
	out     string
	err     error
	got     assist.Request
}

func (e *fakeEnhancer) Enabled() bool { return e.enabled }

func (e *fakeEnhancer) Enhance(_ context.Context, req assist.Request) (string, error) {
	e.got = req
	return e.out, e.err
}

type fakeUsers struct {
	mu       sync.Mutex
	byID     map[string]*model.AdminUser
	hashes   map[string]string
	loggedIn []string
	// updateErr and deleteErr are returned instead of applying the change.
	updateErr error
	deleteErr error
}

func newFakeUsers(users ...*model.AdminUser) *fakeUsers {
	f := &fakeUsers{byID: map[string]*model.AdminUser{}, hashes: map[string]string{}}
	for _, u := range users {
		cp := *u
		f.byID[u.ID] = &cp
	}
	return f
}

func (f *fakeUsers) ListAll(context.Context) ([]model.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.AdminUser{}
	for _, u := range f.byID {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b model.AdminUser) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.AdminUser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, f.hashes[u.ID], nil
		}
	}
	return nil, "", store.ErrNotFound
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = append(f.loggedIn, id)
	return nil
}

func (f *fakeUsers) Create(_ context.Context, u *model.AdminUser, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return store.ErrDuplicateEmail
		}
	}
	cp := *u
	f.byID[u.ID] = &cp
	f.hashes[u.ID] = hash
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.AdminUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[u.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeSessions struct {
	mu      sync.Mutex
	owners  map[string]string
	deleted []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{owners: map[string]string{}}
}

func (f *fakeSessions) Create(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "sess-" + userID
	f.owners[id] = userID
	return id, nil
}

func (f *fakeSessions) GetUserID(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.owners[sessionID]
	if !ok {
		return "", store.ErrNotFound
	}
	return id, nil
}

func (f *fakeSessions) DeleteAllByUserID(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, userID)
	for k, v := range f.owners {
		if v == userID {
			delete(f.owners, k)
		}
	}
	return nil
}

// testContext stands in for t.Context (Go 1.24+): the context is cancelled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
