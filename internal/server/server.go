// Package server is the operator dashboard: list subscribers, toggle
// auto mode, trigger a run for one user, edit a user row.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/larsvang/pressbrief/internal/run"
	"github.com/larsvang/pressbrief/internal/sheet"
)

//go:embed templates/*.html
var templateFS embed.FS

// UserStore is the slice of the spreadsheet store the dashboard uses.
type UserStore interface {
	Settings(ctx context.Context) (map[string]string, error)
	UserRows(ctx context.Context) ([]sheet.UserRow, error)
	FindUser(ctx context.Context, email string) (*sheet.UserConfig, error)
	UpdateUser(ctx context.Context, email string, fields [6]string) error
}

// Runner triggers the pipeline for one user.
type Runner interface {
	ForUser(ctx context.Context, email string) (*run.Result, error)
}

// Flags reads and writes the persisted auto-mode flag.
type Flags interface {
	AutoMode() (bool, error)
	SetAutoMode(on bool) error
}

// Server is the HTTP server for the dashboard.
type Server struct {
	store  UserStore
	runner Runner
	flags  Flags
	pages  map[string]*template.Template
	mux    *http.ServeMux
}

// New creates a new Server.
func New(store UserStore, runner Runner, flags Flags) (*Server, error) {
	// Parse base template first
	base, err := template.New("base.html").ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"dashboard.html", "edit_user.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{store: store, runner: runner, flags: flags, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/toggle", s.handleToggle)
	s.mux.HandleFunc("/run_user", s.handleRunUser)
	s.mux.HandleFunc("/edit_user", s.handleEditUser)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.UserRows(r.Context())
	if err != nil {
		http.Error(w, "Config store unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	settings, err := s.store.Settings(r.Context())
	if err != nil {
		http.Error(w, "Config store unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}

	autoMode, err := s.flags.AutoMode()
	if err != nil {
		log.Printf("Error reading auto mode: %v", err)
	}

	scheduled := settings["scheduled_hour"]
	if scheduled == "" {
		scheduled = "-"
	}
	manual := settings["manual_trigger"]

	s.render(w, "dashboard.html", map[string]any{
		"Users":         users,
		"AutoMode":      autoMode,
		"ScheduledHour": scheduled,
		"ManualAllowed": manual == "" || strings.EqualFold(manual, "true"),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	current, err := s.flags.AutoMode()
	if err != nil {
		http.Error(w, "Error reading auto mode: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.flags.SetAutoMode(!current); err != nil {
		http.Error(w, "Error toggling auto mode: "+err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleRunUser(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		http.Error(w, "No email address given.", http.StatusBadRequest)
		return
	}

	result, err := s.runner.ForUser(r.Context(), email)
	if errors.Is(err, sheet.ErrUserNotFound) {
		http.Error(w, "No user with email: "+email, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Config store unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	if stepErr := result.Err(); stepErr != nil {
		http.Error(w, "Run failed: "+stepErr.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleEditUser(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		http.Error(w, "No email address given.", http.StatusBadRequest)
		return
	}

	user, err := s.store.FindUser(r.Context(), email)
	if errors.Is(err, sheet.ErrUserNotFound) {
		http.Error(w, "User not found: "+email, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Config store unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}

	if r.Method == http.MethodPost {
		active := "false"
		if r.FormValue("active") != "" {
			active = "true"
		}
		fields := [6]string{
			strings.TrimSpace(r.FormValue("email")),
			strings.TrimSpace(r.FormValue("feeds")),
			strings.TrimSpace(r.FormValue("keywords")),
			active,
			strings.TrimSpace(r.FormValue("schedule")),
			strings.TrimSpace(r.FormValue("name")),
		}
		if err := s.store.UpdateUser(r.Context(), email, fields); err != nil {
			http.Error(w, "Updating user failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	s.render(w, "edit_user.html", map[string]any{
		"User": sheet.UserRow{
			Email:    user.Email,
			Feeds:    strings.Join(user.Feeds, ";"),
			Keywords: strings.Join(user.Keywords, ", "),
			Schedule: string(user.Schedule),
			Name:     user.Name,
		},
		"Active": user.Active,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(store UserStore, runner Runner, flags Flags, port int) error {
	srv, err := New(store, runner, flags)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Dashboard listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
