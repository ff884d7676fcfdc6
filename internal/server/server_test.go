package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/larsvang/pressbrief/internal/run"
	"github.com/larsvang/pressbrief/internal/sheet"
)

type fakeStore struct {
	rows     []sheet.UserRow
	users    []sheet.UserConfig
	settings map[string]string
	updated  map[string][6]string
	err      error
}

func (f *fakeStore) Settings(context.Context) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.settings == nil {
		return map[string]string{}, nil
	}
	return f.settings, nil
}

func (f *fakeStore) UserRows(context.Context) ([]sheet.UserRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeStore) FindUser(_ context.Context, email string) (*sheet.UserConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, sheet.ErrUserNotFound
}

func (f *fakeStore) UpdateUser(_ context.Context, email string, fields [6]string) error {
	if f.updated == nil {
		f.updated = make(map[string][6]string)
	}
	f.updated[strings.ToLower(email)] = fields
	return nil
}

type fakeRunner struct {
	result *run.Result
	err    error
	ran    []string
}

func (f *fakeRunner) ForUser(_ context.Context, email string) (*run.Result, error) {
	f.ran = append(f.ran, email)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &run.Result{Email: email}, nil
}

type fakeFlags struct {
	auto bool
}

func (f *fakeFlags) AutoMode() (bool, error)   { return f.auto, nil }
func (f *fakeFlags) SetAutoMode(on bool) error { f.auto = on; return nil }

func defaultStore() *fakeStore {
	return &fakeStore{
		rows: []sheet.UserRow{
			{Email: "anna@example.com", Feeds: "https://a.example/feed", Keywords: "ai", Active: "true", Schedule: "morning", Name: "Anna", Row: 2},
		},
		users: []sheet.UserConfig{
			{Email: "anna@example.com", Feeds: []string{"https://a.example/feed"}, Keywords: []string{"ai"}, Active: true, Schedule: sheet.ScheduleMorning, Name: "Anna", Row: 2},
		},
		settings: map[string]string{"scheduled_hour": "7", "manual_trigger": "true"},
	}
}

func newTestServer(t *testing.T, store UserStore, runner Runner, flags Flags) *Server {
	t.Helper()
	srv, err := New(store, runner, flags)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHomeRedirectsToDashboard(t *testing.T) {
	srv := newTestServer(t, defaultStore(), &fakeRunner{}, &fakeFlags{})

	rec := get(srv, "/")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("expected redirect to /dashboard, got %q", loc)
	}
}

func TestDashboardListsUsers(t *testing.T) {
	srv := newTestServer(t, defaultStore(), &fakeRunner{}, &fakeFlags{auto: true})

	rec := get(srv, "/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"anna@example.com", "Anna", "morning", "Auto mode", "On", "Scheduled hour: 7"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboardStoreUnreachable(t *testing.T) {
	srv := newTestServer(t, &fakeStore{err: errors.New("store down")}, &fakeRunner{}, &fakeFlags{})

	rec := get(srv, "/dashboard")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestToggleFlipsAutoMode(t *testing.T) {
	flags := &fakeFlags{}
	srv := newTestServer(t, defaultStore(), &fakeRunner{}, flags)

	rec := get(srv, "/toggle")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if !flags.auto {
		t.Error("expected auto mode on after toggle")
	}

	get(srv, "/toggle")
	if flags.auto {
		t.Error("expected auto mode off after second toggle")
	}
}

func TestRunUserRequiresEmail(t *testing.T) {
	srv := newTestServer(t, defaultStore(), &fakeRunner{}, &fakeFlags{})

	rec := get(srv, "/run_user")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRunUserUnknown(t *testing.T) {
	runner := &fakeRunner{err: sheet.ErrUserNotFound}
	srv := newTestServer(t, defaultStore(), runner, &fakeFlags{})

	rec := get(srv, "/run_user?email=ghost@example.com")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRunUserOK(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, defaultStore(), runner, &fakeFlags{})

	rec := get(srv, "/run_user?email=anna@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("expected plaintext ok, got %q", rec.Body.String())
	}
	if len(runner.ran) != 1 || runner.ran[0] != "anna@example.com" {
		t.Errorf("expected run for anna, got %v", runner.ran)
	}
}

func TestRunUserPipelineFailure(t *testing.T) {
	runner := &fakeRunner{result: &run.Result{
		Email: "anna@example.com",
		Steps: []run.StepResult{{Name: "Send", Err: errors.New("relay down")}},
	}}
	srv := newTestServer(t, defaultStore(), runner, &fakeFlags{})

	rec := get(srv, "/run_user?email=anna@example.com")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "relay down") {
		t.Errorf("expected failure reason in body, got %q", rec.Body.String())
	}
}

func TestEditUserForm(t *testing.T) {
	srv := newTestServer(t, defaultStore(), &fakeRunner{}, &fakeFlags{})

	rec := get(srv, "/edit_user?email=anna@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `value="anna@example.com"`) {
		t.Error("expected email in form")
	}
	if !strings.Contains(body, "checked") {
		t.Error("expected active checkbox checked")
	}
}

func TestEditUserUnknown(t *testing.T) {
	srv := newTestServer(t, defaultStore(), &fakeRunner{}, &fakeFlags{})

	rec := get(srv, "/edit_user?email=ghost@example.com")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestEditUserPost(t *testing.T) {
	store := defaultStore()
	srv := newTestServer(t, store, &fakeRunner{}, &fakeFlags{})

	form := url.Values{
		"email":    {"anna@example.com"},
		"feeds":    {"https://new.example/feed"},
		"keywords": {"ai, energy"},
		"active":   {"on"},
		"schedule": {"both"},
		"name":     {"Anna"},
	}
	req := httptest.NewRequest("POST", "/edit_user?email=anna@example.com", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}

	fields, ok := store.updated["anna@example.com"]
	if !ok {
		t.Fatal("expected user update")
	}
	if fields[1] != "https://new.example/feed" || fields[3] != "true" || fields[4] != "both" {
		t.Errorf("unexpected updated fields: %v", fields)
	}
}

func TestEditUserPostUncheckedActive(t *testing.T) {
	store := defaultStore()
	srv := newTestServer(t, store, &fakeRunner{}, &fakeFlags{})

	form := url.Values{
		"email":    {"anna@example.com"},
		"feeds":    {"https://a.example/feed"},
		"keywords": {"ai"},
		"schedule": {"morning"},
		"name":     {"Anna"},
	}
	req := httptest.NewRequest("POST", "/edit_user?email=anna@example.com", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if fields := store.updated["anna@example.com"]; fields[3] != "false" {
		t.Errorf("expected active false when checkbox missing, got %q", fields[3])
	}
}
