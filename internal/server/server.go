// Package server is the local web UI: feed digest, discovery candidate
// review, the watch list, and an Atom feed for external readers.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/yuin/goldmark"

	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/digest"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for the research feed UI.
type Server struct {
	db      *database.DB
	builder *digest.Builder
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, builder *digest.Builder) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"band":     digest.Band,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "candidates.html", "repos.html"}
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

	s := &Server{db: db, builder: builder, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/candidates", s.handleCandidates)
	s.mux.HandleFunc("/candidates/dismiss", s.handleDismiss)
	s.mux.HandleFunc("/repos", s.handleRepos)
	s.mux.HandleFunc("/feed.atom", s.handleAtom)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	filter := database.EventFilter{
		DaysBack:     queryInt(r, "days", 7),
		MinRelevance: queryFloat(r, "min", 0),
		Context:      r.URL.Query().Get("context"),
	}
	d, err := s.builder.Build(r.Context(), filter, false)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	contexts, _ := s.db.GetProjectContexts()
	s.render(w, "index.html", map[string]any{
		"Digest":   d,
		"Filter":   filter,
		"Contexts": contexts,
	})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.db.GetCandidates(database.CandidateFilter{Limit: 50})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "candidates.html", map[string]any{
		"Candidates": candidates,
	})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/candidates", http.StatusFound)
		return
	}

	fullName := strings.TrimSpace(r.FormValue("full_name"))
	if fullName != "" {
		if _, err := s.db.DismissCandidate(fullName); err != nil {
			log.Printf("Dismissing %s failed: %v", fullName, err)
		}
	}
	http.Redirect(w, r, "/candidates", http.StatusFound)
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.db.GetWatchedRepos()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "repos.html", map[string]any{
		"Repos": repos,
	})
}

// handleAtom serves the last week of events as an Atom feed for
// external readers.
func (s *Server) handleAtom(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.GetFeedEvents(database.EventFilter{DaysBack: 7, Limit: 50})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	feed := &feeds.Feed{
		Title:       "gitscout research feed",
		Link:        &feeds.Link{Href: "/feed.atom"},
		Description: "Relevance-scored GitHub activity",
		Created:     time.Now(),
	}
	for _, ev := range events {
		created, _ := time.Parse(time.RFC3339, ev.EventAt)
		summary := ""
		if ev.Summary != nil {
			summary = *ev.Summary
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          fmt.Sprintf("%s/%s/%s", ev.RepoFullName, ev.EventType, ev.DedupKey),
			Title:       fmt.Sprintf("[%s] %s", ev.RepoFullName, ev.Title),
			Link:        &feeds.Link{Href: "https://github.com/" + ev.RepoFullName},
			Description: summary,
			Created:     created,
		})
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	if err := feed.WriteAtom(w); err != nil {
		log.Printf("Writing atom feed: %v", err)
	}
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

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, builder *digest.Builder, port int) error {
	srv, err := New(db, builder)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
