package handler

import (
	"net/http"
	"strings"

	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/tutor"
)

type gradeAnswerRequest struct {
	Subject  string `json:"subject"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Image    string `json:"image"` // data URI
	Topic    string `json:"topic"`
}

type gradeAnswerResponse struct {
	*model.FeedbackResponse
	Notice *errorResponse `json:"notice,omitempty"`
}

func (h *Handler) handleGradeAnswer(w http.ResponseWriter, r *http.Request) {
	var req gradeAnswerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	img, err := parseDataURI(req.Image)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	subject := model.Subject(strings.TrimSpace(req.Subject))
	fb, err := h.tutor.GradeAnswer(r.Context(), tutor.AnswerRequest{
		Subject:  subject,
		Question: req.Question,
		Answer:   req.Answer,
		Image:    img,
		Topic:    req.Topic,
	})
	if err != nil {
		h.fail(w, r, err, map[string]any{"Subject": subject})
		return
	}
	writeJSON(w, http.StatusOK, gradeAnswerResponse{
		FeedbackResponse: fb.FeedbackResponse,
		Notice:           noticeFor(r, fb.StorageErr),
	})
}

type topicRequest struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	subject := model.Subject(strings.TrimSpace(req.Subject))
	exp, err := h.tutor.Explain(r.Context(), subject, req.Topic)
	if err != nil {
		h.fail(w, r, err, map[string]any{"Subject": subject})
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) handleStudyGuide(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	subject := model.Subject(strings.TrimSpace(req.Subject))
	guide, err := h.tutor.StudyGuide(r.Context(), subject, req.Topic)
	if err != nil {
		h.fail(w, r, err, map[string]any{"Subject": subject})
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

func (h *Handler) handleResources(w http.ResponseWriter, r *http.Request) {
	subject := model.Subject(strings.TrimSpace(r.URL.Query().Get("subject")))
	resources, err := h.tutor.Resources(r.Context(), subject)
	if err != nil {
		h.fail(w, r, err, map[string]any{"Subject": subject})
		return
	}
	if resources == nil {
		resources = []model.Resource{}
	}
	writeJSON(w, http.StatusOK, resources)
}

type dashboardResponse struct {
	*tutor.Dashboard
	AnalysisError *errorResponse `json:"analysisError,omitempty"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.tutor.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	resp := dashboardResponse{Dashboard: d}
	if d.AnalysisErr != nil {
		_, e := localizedError(r, d.AnalysisErr, nil)
		resp.AnalysisError = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.history.ReadAll(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}
