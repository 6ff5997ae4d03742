package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/mockexam/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// NoAnswer replaces missing answers in grading requests.
const NoAnswer = "No Answer Provided"

// GeneralSyllabus is the topic used when the student names none.
const GeneralSyllabus = "General Syllabus"

// WorkedExamples is the number of worked examples every study guide requests.
const WorkedExamples = 2

// ResourceCount is the number of resources requested per subject.
const ResourceCount = 5

// HistoryWindow is the number of most recent attempts sent for analysis.
const HistoryWindow = 10

const maxInputRunes = 10000

// PromptVariant represents a marking strictness variant.
type PromptVariant string

const (
	// PromptStrict awards a mark only for the exact creditworthy point.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default marking variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives benefit of the doubt.
	PromptLenient PromptVariant = "lenient"
)

var strictness = map[PromptVariant]string{
	PromptStrict:   "Apply the mark scheme strictly: award a mark only when the exact creditworthy point is made.",
	PromptStandard: "Apply the mark scheme as a Cambridge examiner would, accepting equivalent wording.",
	PromptLenient:  "Give benefit of the doubt where the intended point is clear, but never exceed the marks available.",
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	_, ok := strictness[PromptVariant(v)]
	return ok
}

var templateNames = []string{
	"system", "mock_paper", "grade_exam", "study_guide",
	"grade_answer", "explain", "analysis", "resources",
}

// Set is a parsed collection of prompt templates.
type Set struct {
	tmpl   map[string]*template.Template
	system string
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the embedded prompt set, parsed once.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(templateFS)
	})
	return defaultSet, defaultErr
}

// Load parses every prompt template from fsys.
// Templates are read from "templates/<name>.tmpl".
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{tmpl: make(map[string]*template.Template, len(templateNames))}
	for _, name := range templateNames {
		file := "templates/" + name + ".tmpl"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, errors.New("failed to read prompt file " + file + ": " + err.Error())
		}
		t, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, errors.New("failed to parse prompt template " + file + ": " + err.Error())
		}
		s.tmpl[name] = t
	}

	system, err := s.render("system", nil)
	if err != nil {
		return nil, err
	}
	s.system = system
	return s, nil
}

// System returns the policy instruction shared by every request.
func (s *Set) System() string {
	return s.system
}

// MockPaper builds the paper generation prompt.
func (s *Set) MockPaper(subject model.Subject, topic string, kind model.QuestionKind) (string, error) {
	return s.render("mock_paper", struct {
		Subject   model.Subject
		Topic     string
		Kind      model.QuestionKind
		PaperName string
		MCQ       bool
		Count     int
	}{subject, topicOrGeneral(topic), kind, kind.PaperName(), kind == model.KindMCQ, model.PaperSize})
}

// SubmissionItem is the reduced per-question record sent for grading.
type SubmissionItem struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	StudentAnswer string `json:"studentAnswer"`
}

// BuildSubmission reduces a paper and its answers to one record per question.
// Unanswered questions carry the NoAnswer sentinel.
func BuildSubmission(questions []model.MockQuestion, answers model.AnswerMap) []SubmissionItem {
	items := make([]SubmissionItem, 0, len(questions))
	for _, q := range questions {
		answer := Sanitize(answers[q.ID])
		if answer == "" {
			answer = NoAnswer
		}
		items = append(items, SubmissionItem{
			ID:            q.ID,
			Question:      q.Text,
			StudentAnswer: answer,
		})
	}
	return items
}

// GradeExam builds the full-paper grading prompt.
func (s *Set) GradeExam(variant PromptVariant, subject model.Subject, questions []model.MockQuestion, answers model.AnswerMap) (string, error) {
	data, err := json.Marshal(BuildSubmission(questions, answers))
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}
	return s.render("grade_exam", struct {
		Subject    model.Subject
		Strictness string
		NoAnswer   string
		Submission string
	}{subject, strictnessFor(variant), NoAnswer, string(data)})
}

// StudyGuide builds the study guide prompt.
func (s *Set) StudyGuide(subject model.Subject, topic string) (string, error) {
	return s.render("study_guide", struct {
		Subject  model.Subject
		Topic    string
		Examples int
	}{subject, Sanitize(topic), WorkedExamples})
}

// GradeAnswer builds the single-answer grading prompt.
func (s *Set) GradeAnswer(variant PromptVariant, subject model.Subject, question, answer string, hasImage bool) (string, error) {
	return s.render("grade_answer", struct {
		Subject    model.Subject
		Strictness string
		HasImage   bool
		Question   string
		Answer     string
	}{subject, strictnessFor(variant), hasImage, Sanitize(question), answerOrSentinel(answer)})
}

// Explain builds the concept explanation prompt.
func (s *Set) Explain(subject model.Subject, topic string) (string, error) {
	return s.render("explain", struct {
		Subject model.Subject
		Topic   string
	}{subject, Sanitize(topic)})
}

// Analysis builds the performance analysis prompt from the newest HistoryWindow attempts.
func (s *Set) Analysis(history []model.ExamAttempt) (string, error) {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return s.render("analysis", struct{ History string }{string(data)})
}

// Resources builds the resource recommendation prompt.
func (s *Set) Resources(subject model.Subject) (string, error) {
	return s.render("resources", struct {
		Subject model.Subject
		Count   int
	}{subject, ResourceCount})
}

func (s *Set) render(name string, data any) (string, error) {
	tmpl, ok := s.tmpl[name]
	if !ok {
		return "", errors.New("unknown prompt template: " + name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func strictnessFor(v PromptVariant) string {
	if line, ok := strictness[v]; ok {
		return line
	}
	return strictness[PromptStandard]
}

func topicOrGeneral(topic string) string {
	topic = Sanitize(topic)
	if topic == "" {
		return GeneralSyllabus
	}
	return topic
}

func answerOrSentinel(answer string) string {
	answer = Sanitize(answer)
	if answer == "" {
		return NoAnswer
	}
	return answer
}

// Sanitize strips prompt delimiter tags from user text, trims it and caps its length.
func Sanitize(text string) string {
	text = studentAnswerRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > maxInputRunes {
		runes := []rune(text)
		runes = runes[:maxInputRunes]
		text = string(runes) + "\n\n[Input truncated due to length]"
	}

	return text
}
