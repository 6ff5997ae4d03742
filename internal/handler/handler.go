package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/session"
	"github.com/pavelanni/mockexam/internal/tutor"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	exams   session.Exams
	history tutor.History
	tutor   *tutor.Service
	opts    session.Options

	mu       sync.Mutex
	sessions map[string]*entry
}

// entry is a registered session and the time it was last used.
type entry struct {
	c        *session.Controller
	lastSeen time.Time
}

// New creates a new Handler. Every exam session gets its own Controller
// built from exams, history and opts.
func New(exams session.Exams, svc *tutor.Service, history tutor.History, opts session.Options) *Handler {
	return &Handler{
		exams:    exams,
		history:  history,
		tutor:    svc,
		opts:     opts,
		sessions: make(map[string]*entry),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/subjects", h.handleSubjects)

		r.Post("/exams", h.handleStartExam)
		r.Get("/exams/{sessionID}", h.handleExamView)
		r.Put("/exams/{sessionID}/answers/{questionID}", h.handleAnswer)
		r.Post("/exams/{sessionID}/navigate", h.handleNavigate)
		r.Post("/exams/{sessionID}/submit", h.handleSubmit)
		r.Delete("/exams/{sessionID}", h.handleDeleteExam)

		r.Post("/tutor/grade", h.handleGradeAnswer)
		r.Post("/tutor/explain", h.handleExplain)
		r.Post("/study-guide", h.handleStudyGuide)
		r.Get("/resources", h.handleResources)
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/attempts", h.handleAttempts)
	})
}

// Close resets every registered session, stopping their countdowns.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, e := range h.sessions {
		e.c.Reset()
		delete(h.sessions, id)
	}
}

// Sweep resets and removes sessions unused for longer than ttl and returns
// how many were removed. Sessions waiting on the examiner are kept.
func (h *Handler) Sweep(ttl time.Duration) int {
	cutoff := h.now().Add(-ttl)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, e := range h.sessions {
		if !e.lastSeen.Before(cutoff) {
			continue
		}
		if st := e.c.View().State; st == session.Loading || st == session.Grading {
			continue
		}
		e.c.Reset()
		delete(h.sessions, id)
		n++
	}
	if n > 0 {
		slog.Info("expired idle exam sessions", "count", n, "remaining", len(h.sessions))
	}
	return n
}

// ExpireIdle sweeps sessions idle for longer than ttl every interval until
// ctx is done.
func (h *Handler) ExpireIdle(ctx context.Context, ttl, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Sweep(ttl)
		}
	}
}

// Len returns the number of registered sessions.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Handler) now() time.Time {
	if h.opts.Now != nil {
		return h.opts.Now()
	}
	return time.Now()
}

func (h *Handler) register() (string, *session.Controller) {
	c := session.New(h.exams, h.history, h.opts)
	id := uuid.NewString()
	h.mu.Lock()
	h.sessions[id] = &entry{c: c, lastSeen: h.now()}
	h.mu.Unlock()
	return id, c
}

func (h *Handler) lookup(r *http.Request) (string, *session.Controller, error) {
	id := chi.URLParam(r, "sessionID")
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[id]
	if !ok {
		return id, nil, errSessionNotFound
	}
	e.lastSeen = h.now()
	return id, e.c, nil
}

func (h *Handler) forget(id string) *session.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[id]
	if !ok {
		return nil
	}
	delete(h.sessions, id)
	return e.c
}

type subjectResponse struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (h *Handler) handleSubjects(w http.ResponseWriter, _ *http.Request) {
	out := make([]subjectResponse, 0, len(model.Subjects))
	for _, s := range model.Subjects {
		out = append(out, subjectResponse{Name: string(s), Code: s.Code()})
	}
	writeJSON(w, http.StatusOK, out)
}

type startExamRequest struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Kind    string `json:"kind"`
}

type examResponse struct {
	ID string `json:"id"`
	session.View
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	var req startExamRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	// An unknown kind is passed through so the controller reports it.
	kind := model.QuestionKind(strings.TrimSpace(req.Kind))
	if k, err := model.ParseKind(req.Kind); err == nil {
		kind = k
	}
	subject := model.Subject(strings.TrimSpace(req.Subject))

	id, c := h.register()
	if err := c.Start(r.Context(), subject, req.Topic, kind); err != nil {
		h.forget(id)
		h.fail(w, r, err, map[string]any{"Subject": subject})
		return
	}
	slog.Info("exam started", "session", id, "subject", subject, "kind", kind)
	writeJSON(w, http.StatusCreated, examResponse{ID: id, View: c.View()})
}

func (h *Handler) handleExamView(w http.ResponseWriter, r *http.Request) {
	id, c, err := h.lookup(r)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, examResponse{ID: id, View: c.View()})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id, c, err := h.lookup(r)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	var req answerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if err := c.RecordAnswer(chi.URLParam(r, "questionID"), req.Answer); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, examResponse{ID: id, View: c.View()})
}

type navigateRequest struct {
	Direction int `json:"direction"`
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	id, c, err := h.lookup(r)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	var req navigateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if req.Direction == 0 {
		h.fail(w, r, errBadRequest, nil)
		return
	}
	if err := c.Navigate(r.Context(), req.Direction); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, examResponse{ID: id, View: c.View()})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, c, err := h.lookup(r)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if err := c.Submit(r.Context()); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, examResponse{ID: id, View: c.View()})
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	c := h.forget(id)
	if c == nil {
		h.fail(w, r, errSessionNotFound, nil)
		return
	}
	c.Reset()
	slog.Info("exam session removed", "session", id)
	w.WriteHeader(http.StatusNoContent)
}
