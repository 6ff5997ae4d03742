// Package tutor implements the study flows outside the timed exam: single
// answer feedback, concept explanations, study guides, resources and the
// performance dashboard.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mockexam/internal/llm"
	"github.com/pavelanni/mockexam/internal/llm/prompts"
	"github.com/pavelanni/mockexam/internal/model"
)

var (
	ErrSubjectRequired  = errors.New("subject is required")
	ErrQuestionRequired = errors.New("question text or image is required")
	ErrAnswerRequired   = errors.New("answer is required")
	ErrTopicRequired    = errors.New("topic is required")
)

// ValidationError names the missing or invalid input field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Oracle is the subset of the exchange client the tutor uses.
type Oracle interface {
	FetchStudyGuide(ctx context.Context, subject model.Subject, topic string) (*model.StudyGuideData, error)
	GradeAnswer(ctx context.Context, subject model.Subject, question, answer string, img *llm.Image) (*model.FeedbackResponse, error)
	ExplainConcept(ctx context.Context, subject model.Subject, topic string) (*model.TeacherExplanation, error)
	AnalyzeStudentPerformance(ctx context.Context, history []model.ExamAttempt) (*model.StudentAnalysis, error)
	FetchResources(ctx context.Context, subject model.Subject) ([]model.Resource, error)
}

// History reads and appends exam attempts.
type History interface {
	ReadAll(ctx context.Context) ([]model.ExamAttempt, error)
	Append(ctx context.Context, a model.ExamAttempt) error
}

// Service runs the tutor flows.
type Service struct {
	oracle  Oracle
	history History
	now     func() time.Time
	newID   func() string
}

// New creates a tutor service.
func New(oracle Oracle, history History) *Service {
	return &Service{
		oracle:  oracle,
		history: history,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func checkSubject(subject model.Subject) error {
	if strings.TrimSpace(string(subject)) == "" {
		return invalid("subject", ErrSubjectRequired)
	}
	if !subject.Valid() {
		return invalid("subject", fmt.Errorf("%w: %q", model.ErrUnknownSubject, subject))
	}
	return nil
}

// AnswerRequest is a free-form answer submitted for feedback.
type AnswerRequest struct {
	Subject  model.Subject
	Question string
	Answer   string
	Image    *llm.Image
	Topic    string
}

// Feedback is the graded answer plus any history write failure.
type Feedback struct {
	*model.FeedbackResponse
	StorageErr error `json:"-"`
}

// GradeAnswer validates req, grades it and records an attempt. A failed
// history write is reported in Feedback.StorageErr without failing the call.
func (s *Service) GradeAnswer(ctx context.Context, req AnswerRequest) (*Feedback, error) {
	if err := checkSubject(req.Subject); err != nil {
		return nil, err
	}
	hasImage := req.Image != nil && len(req.Image.Data) > 0
	if strings.TrimSpace(req.Question) == "" && !hasImage {
		return nil, invalid("question", ErrQuestionRequired)
	}
	if strings.TrimSpace(req.Answer) == "" {
		return nil, invalid("answer", ErrAnswerRequired)
	}

	fb, err := s.oracle.GradeAnswer(ctx, req.Subject, req.Question, req.Answer, req.Image)
	if err != nil {
		return nil, err
	}

	out := &Feedback{FeedbackResponse: fb}
	attempt := model.ExamAttempt{
		ID:        s.newID(),
		Subject:   req.Subject,
		Timestamp: s.now().UnixMilli(),
		Score:     fb.AttainedMarks,
		MaxScore:  fb.TotalMarks,
		Topic:     strings.TrimSpace(req.Topic),
	}
	if err := s.history.Append(ctx, attempt); err != nil {
		slog.Error("failed to record attempt", "subject", req.Subject, "error", err)
		out.StorageErr = err
	}
	return out, nil
}

// Explain explains topic for subject.
func (s *Service) Explain(ctx context.Context, subject model.Subject, topic string) (*model.TeacherExplanation, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	if strings.TrimSpace(topic) == "" {
		return nil, invalid("topic", ErrTopicRequired)
	}
	return s.oracle.ExplainConcept(ctx, subject, topic)
}

// StudyGuide builds a guide for topic. An unusable oracle reply yields an
// empty guide.
func (s *Service) StudyGuide(ctx context.Context, subject model.Subject, topic string) (*model.StudyGuideData, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, invalid("topic", ErrTopicRequired)
	}
	return s.oracle.FetchStudyGuide(ctx, subject, topic)
}

// Resources recommends revision resources for subject.
func (s *Service) Resources(ctx context.Context, subject model.Subject) ([]model.Resource, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	return s.oracle.FetchResources(ctx, subject)
}

// Dashboard is the attempt history with an analysis of the recent attempts.
type Dashboard struct {
	History     []model.ExamAttempt    `json:"history"`
	Subjects    []model.SubjectSummary `json:"subjects"`
	Analysis    *model.StudentAnalysis `json:"analysis,omitempty"`
	AnalysisErr error                  `json:"-"`
}

// Dashboard reads the history and analyzes the newest attempts. With no
// history the oracle is not called. An analysis failure is reported in
// AnalysisErr and the history is still returned.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	history, err := s.history.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{
		History:  history,
		Subjects: model.Summarise(history),
	}
	if d.Subjects == nil {
		d.Subjects = []model.SubjectSummary{}
	}
	if len(history) == 0 {
		return d, nil
	}
	recent := history
	if len(recent) > prompts.HistoryWindow {
		recent = recent[len(recent)-prompts.HistoryWindow:]
	}
	analysis, err := s.oracle.AnalyzeStudentPerformance(ctx, recent)
	if err != nil {
		slog.Warn("performance analysis failed", "attempts", len(recent), "error", err)
		d.AnalysisErr = err
		return d, nil
	}
	d.Analysis = analysis
	return d, nil
}
