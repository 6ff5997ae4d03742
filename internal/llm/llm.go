package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pavelanni/mockexam/internal/llm/prompts"
	"github.com/pavelanni/mockexam/internal/model"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Image is an inline attachment sent with a request.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is one call to the oracle.
type Request struct {
	Op            string
	Model         string
	System        string
	Prompt        string
	Schema        jsonschema.Definition
	Deterministic bool
	Image         *Image
}

// Oracle is a text-generation backend that answers with a JSON document.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client implements the exam exchanges on top of an Oracle.
type Client struct {
	oracle  Oracle
	prompts *prompts.Set
	model   string
	variant prompts.PromptVariant
}

// New creates a new exchange client.
func New(oracle Oracle, set *prompts.Set, modelName string, variant prompts.PromptVariant) *Client {
	if variant == "" {
		variant = prompts.PromptStandard
	}
	return &Client{
		oracle:  oracle,
		prompts: set,
		model:   modelName,
		variant: variant,
	}
}

func (c *Client) call(ctx context.Context, op, prompt string, schema jsonschema.Definition, img *Image) (string, error) {
	raw, err := c.oracle.Complete(ctx, Request{
		Op:            op,
		Model:         c.model,
		System:        c.prompts.System(),
		Prompt:        prompt,
		Schema:        schema,
		Deterministic: true,
		Image:         img,
	})
	if err != nil {
		return "", generationError(op, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", generationError(op, errors.New("empty reply"))
	}
	slog.Debug("oracle reply", "op", op, "raw", raw)
	return raw, nil
}

// GenerateMockPaper asks for a paper of model.PaperSize questions of one kind.
// The returned questions are validated but not counted; callers decide what a
// short paper means.
func (c *Client) GenerateMockPaper(ctx context.Context, subject model.Subject, topic string, kind model.QuestionKind) ([]model.MockQuestion, error) {
	prompt, err := c.prompts.MockPaper(subject, topic, kind)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpMockPaper, prompt, mockPaperSchema(), nil)
	if err != nil {
		return nil, err
	}
	questions, err := decodeMockPaper(raw, kind)
	if err != nil {
		return nil, parseError(OpMockPaper, err)
	}
	return questions, nil
}

// GradeMockExam grades a whole paper. Unanswered questions are sent with the
// prompts.NoAnswer sentinel.
func (c *Client) GradeMockExam(ctx context.Context, subject model.Subject, questions []model.MockQuestion, answers model.AnswerMap) (*model.MockExamResult, error) {
	prompt, err := c.prompts.GradeExam(c.variant, subject, questions, answers)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpGradeExam, prompt, mockResultSchema(), nil)
	if err != nil {
		return nil, err
	}
	result, err := decodeMockResult(raw)
	if err != nil {
		return nil, parseError(OpGradeExam, err)
	}
	return result, nil
}

// FetchStudyGuide builds a revision guide for topic. An unusable reply
// degrades to an empty guide; a failed call is still an error.
func (c *Client) FetchStudyGuide(ctx context.Context, subject model.Subject, topic string) (*model.StudyGuideData, error) {
	prompt, err := c.prompts.StudyGuide(subject, topic)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpStudyGuide, prompt, studyGuideSchema(), nil)
	if err != nil {
		return nil, err
	}
	guide, err := decodeStudyGuide(raw)
	if err != nil {
		slog.Warn("study guide reply unusable, returning empty guide", "subject", subject, "topic", topic, "error", err)
		return model.EmptyStudyGuide(topic), nil
	}
	return guide, nil
}

// GradeAnswer marks a single free-form answer, optionally with an image of
// the question or working.
func (c *Client) GradeAnswer(ctx context.Context, subject model.Subject, question, answer string, img *Image) (*model.FeedbackResponse, error) {
	if img != nil && len(img.Data) == 0 {
		img = nil
	}
	prompt, err := c.prompts.GradeAnswer(c.variant, subject, question, answer, img != nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpGradeAnswer, prompt, feedbackSchema(), img)
	if err != nil {
		return nil, err
	}
	fb, err := decodeFeedback(raw)
	if err != nil {
		return nil, parseError(OpGradeAnswer, err)
	}
	return fb, nil
}

// ExplainConcept explains topic in syllabus terms.
func (c *Client) ExplainConcept(ctx context.Context, subject model.Subject, topic string) (*model.TeacherExplanation, error) {
	prompt, err := c.prompts.Explain(subject, topic)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpExplain, prompt, explanationSchema(), nil)
	if err != nil {
		return nil, err
	}
	exp, err := decodeExplanation(raw)
	if err != nil {
		return nil, parseError(OpExplain, err)
	}
	return exp, nil
}

// AnalyzeStudentPerformance analyzes the most recent attempts of history.
// It returns ErrEmptyHistory without calling the oracle when history is empty.
func (c *Client) AnalyzeStudentPerformance(ctx context.Context, history []model.ExamAttempt) (*model.StudentAnalysis, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	prompt, err := c.prompts.Analysis(history)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpAnalysis, prompt, analysisSchema(), nil)
	if err != nil {
		return nil, err
	}
	analysis, err := decodeAnalysis(raw)
	if err != nil {
		return nil, parseError(OpAnalysis, err)
	}
	return analysis, nil
}

// FetchResources recommends revision resources for subject. Resources get
// sequential ids "0", "1", ... An unusable reply degrades to an empty list.
func (c *Client) FetchResources(ctx context.Context, subject model.Subject) ([]model.Resource, error) {
	prompt, err := c.prompts.Resources(subject)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpResources, prompt, resourcesSchema(), nil)
	if err != nil {
		return nil, err
	}
	resources, err := decodeResources(raw)
	if err != nil {
		slog.Warn("resources reply unusable, returning empty list", "subject", subject, "error", err)
		return []model.Resource{}, nil
	}
	return resources, nil
}
