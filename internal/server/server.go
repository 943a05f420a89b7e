// Package server exposes analyses over HTTP as background tasks and
// renders finished reports.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/classify"
	"github.com/TobiSchelling/ComplaintRadar/internal/database"
	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/pipeline"
	"github.com/TobiSchelling/ComplaintRadar/internal/validate"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

const maxRequestBytes = 8 << 20

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, posts *dataset.Dataset, runID string) (*pipeline.Result, error)
}

// Store is the persistence the server needs.
type Store interface {
	CreateTask(id string) error
	CompleteTask(id string, result any) error
	FailTask(id string, taskErr database.TaskError) error
	GetTask(id string) (*database.Task, error)
	GetPostsBetween(start, end string) ([]database.Post, error)
	GetStats() (*database.Stats, error)
}

// Server is the HTTP server for analysis tasks and reports.
type Server struct {
	store    Store
	analyzer Analyzer
	pages    map[string]*template.Template
	mux      *http.ServeMux
	log      *zap.Logger

	// tasks run under ctx, not the request that started them.
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// New creates a new Server.
func New(store Store, analyzer Analyzer, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "report.html"}
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

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:    store,
		analyzer: analyzer,
		pages:    pages,
		mux:      http.NewServeMux(),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	s.mux.HandleFunc("GET /report/{id}", s.handleReport)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.log.Error("loading stats", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "index.html", map[string]any{"Stats": stats})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeRequest carries either posts or a date range of stored posts.
type analyzeRequest struct {
	Posts []pipeline.PostInput `json:"posts"`
	Start string               `json:"start"`
	End   string               `json:"end"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	posts := req.Posts
	if len(posts) == 0 {
		if req.Start == "" {
			writeError(w, http.StatusBadRequest, "request needs posts or a start date", nil)
			return
		}
		period, err := database.ParsePeriod(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		stored, err := s.store.GetPostsBetween(period.Start, period.End)
		if err != nil {
			s.log.Error("loading posts", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "loading posts failed", nil)
			return
		}
		if len(stored) == 0 {
			writeError(w, http.StatusNotFound, "no posts stored for "+period.Display(), nil)
			return
		}
		posts = pipeline.FromPosts(stored)
	}

	id := uuid.NewString()
	if err := s.store.CreateTask(id); err != nil {
		s.log.Error("creating task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "creating task failed", nil)
		return
	}

	s.tasks.Add(1)
	go s.runTask(id, pipeline.FromInputs(posts))

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": database.TaskProcessing})
}

func (s *Server) runTask(id string, posts *dataset.Dataset) {
	defer s.tasks.Done()
	log := s.log.With(zap.String("task", id))
	start := time.Now()

	res, err := s.analyzer.Analyze(s.ctx, posts, id)
	if err != nil {
		log.Warn("analysis failed", zap.Error(err))
		if ferr := s.store.FailTask(id, taskError(err)); ferr != nil {
			log.Error("recording task failure", zap.Error(ferr))
		}
		return
	}
	if err := s.store.CompleteTask(id, res); err != nil {
		log.Error("recording task result", zap.Error(err))
		if ferr := s.store.FailTask(id, database.TaskError{Message: "storing result failed", Detail: err.Error()}); ferr != nil {
			log.Error("recording task failure", zap.Error(ferr))
		}
		return
	}
	log.Info("analysis task complete", zap.Int("complaints", res.Complaints), zap.Duration("took", time.Since(start)))
}

// taskError maps pipeline errors onto the persisted {message, detail} shape.
func taskError(err error) database.TaskError {
	var failed *validate.FailedError
	if errors.As(err, &failed) {
		return database.TaskError{Message: "validation failed", Detail: failed.Result.Errors}
	}
	var te *classify.TransportError
	if errors.As(err, &te) {
		return database.TaskError{
			Message: "text service call failed",
			Detail: map[string]any{
				"batch": te.Batch,
				"start": te.Start,
				"end":   te.End,
				"error": te.Err.Error(),
			},
		}
	}
	if errors.Is(err, context.Canceled) {
		return database.TaskError{Message: "analysis cancelled"}
	}
	return database.TaskError{Message: "analysis failed", Detail: err.Error()}
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.PathValue("id"))
	if err != nil {
		s.log.Error("loading task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "loading task failed", nil)
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.PathValue("id"))
	if err != nil {
		s.log.Error("loading task", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if task == nil || task.Status != database.TaskCompleted {
		http.NotFound(w, r)
		return
	}

	var data reportData
	if err := json.Unmarshal(task.Result, &data); err != nil {
		s.log.Error("decoding task result", zap.String("task", task.ID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "report.html", map[string]any{
		"TaskID":    task.ID,
		"UpdatedAt": task.UpdatedAt,
		"Markdown":  reportMarkdown(data),
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Error("rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, detail any) {
	writeJSON(w, status, map[string]any{"error": database.TaskError{Message: message, Detail: detail}})
}

// Wait blocks until every started task has finished.
func (s *Server) Wait() {
	s.tasks.Wait()
}

// Serve listens on 127.0.0.1:port until ctx is cancelled, then stops
// accepting requests, cancels running tasks and waits for them.
func (s *Server) Serve(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("url", "http://"+addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.cancel()
		s.Wait()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.cancel()
	s.Wait()
	return err
}
