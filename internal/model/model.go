package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Subject is one examinable CAIE IGCSE syllabus.
type Subject string

const (
	SubjectBiology         Subject = "Biology (0610)"
	SubjectChemistry       Subject = "Chemistry (0620)"
	SubjectPhysics         Subject = "Physics (0625)"
	SubjectCombinedScience Subject = "Combined Science (0653)"
	SubjectMathematics     Subject = "Mathematics (0580)"
	SubjectAdditionalMath  Subject = "Additional Mathematics (0606)"
	SubjectEconomics       Subject = "Economics (0455)"
	SubjectEnglish         Subject = "English (0500)"
)

// Subjects lists every supported subject in display order.
var Subjects = []Subject{
	SubjectBiology,
	SubjectChemistry,
	SubjectPhysics,
	SubjectCombinedScience,
	SubjectMathematics,
	SubjectAdditionalMath,
	SubjectEconomics,
	SubjectEnglish,
}

// ErrUnknownSubject is returned by ParseSubject for names outside the closed set.
var ErrUnknownSubject = errors.New("unknown subject")

var syllabusCodeRegex = regexp.MustCompile(`\((\d{4})\)\s*$`)

// ParseSubject returns the Subject with the given name.
func ParseSubject(name string) (Subject, error) {
	name = strings.TrimSpace(name)
	for _, s := range Subjects {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSubject, name)
}

// Valid reports whether s is one of Subjects.
func (s Subject) Valid() bool {
	_, err := ParseSubject(string(s))
	return err == nil
}

// Code returns the four-digit syllabus code embedded in the subject name.
func (s Subject) Code() string {
	m := syllabusCodeRegex.FindStringSubmatch(string(s))
	if m == nil {
		return ""
	}
	return m[1]
}

// QuestionKind fixes the question format for a whole paper.
type QuestionKind string

const (
	KindMCQ    QuestionKind = "mcq"
	KindTheory QuestionKind = "theory"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown question kind")

// ParseKind accepts "mcq", "multiple-choice" and "theory".
func ParseKind(s string) (QuestionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mcq", "multiple-choice":
		return KindMCQ, nil
	case "theory":
		return KindTheory, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Duration returns the countdown allotted to a paper of this kind.
func (k QuestionKind) Duration() time.Duration {
	if k == KindTheory {
		return 30 * time.Minute
	}
	return 10 * time.Minute
}

// PaperName is the Cambridge component a kind simulates.
func (k QuestionKind) PaperName() string {
	if k == KindTheory {
		return "Paper 4 (Extended Theory)"
	}
	return "Paper 2 (MCQ)"
}

// PaperSize is the number of questions in every mock exam.
const PaperSize = 10

// MCQOption is one labelled choice of a multiple-choice question.
type MCQOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MockQuestion is a single question of a generated paper.
type MockQuestion struct {
	ID                 string       `json:"id"`
	Text               string       `json:"text"`
	Marks              float64      `json:"marks"`
	Type               QuestionKind `json:"type"`
	Options            []MCQOption  `json:"options,omitempty"`
	DiagramDescription string       `json:"diagramDescription,omitempty"`
}

// HasOption reports whether label is one of the question's option ids.
func (q MockQuestion) HasOption(label string) bool {
	for _, o := range q.Options {
		if o.ID == label {
			return true
		}
	}
	return false
}

// AnswerMap maps question ids to the student's response.
type AnswerMap map[string]string

// Clone returns an independent copy.
func (a AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// QuestionFeedback is the graded outcome of one question.
type QuestionFeedback struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	StudentAnswer string `json:"studentAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
}

// MockExamResult is the graded outcome of a full paper.
type MockExamResult struct {
	TotalMarks             float64            `json:"totalMarks"`
	AttainedMarks          float64            `json:"attainedMarks"`
	Percentage             float64            `json:"percentage"`
	Grade                  string             `json:"grade"`
	FeedbackPerQuestion    []QuestionFeedback `json:"feedbackPerQuestion"`
	OverallTeacherComments string             `json:"overallTeacherComments"`
}

// CambridgeScale is the 1-9 style figure shown next to the percentage.
// It is derived for display only and never stored.
func CambridgeScale(percentage float64) int {
	return int(math.Round(percentage / 11.1))
}

// Percent returns score as a rounded percentage of maxScore.
func Percent(score, maxScore float64) int {
	if maxScore <= 0 {
		return 0
	}
	return int(math.Round(score / maxScore * 100))
}

// FormatCountdown renders remaining seconds as m:ss.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Formula is a named formula in a study guide.
type Formula struct {
	Name        string `json:"name"`
	Formula     string `json:"formula"`
	Application string `json:"application"`
}

// WorkedStep is one step of a worked example.
type WorkedStep struct {
	Description string `json:"description"`
	Working     string `json:"working,omitempty"`
}

// WorkedExample is a fully solved exam-style problem.
type WorkedExample struct {
	Title       string       `json:"title"`
	Question    string       `json:"question"`
	Steps       []WorkedStep `json:"steps"`
	FinalAnswer string       `json:"finalAnswer"`
}

// StudyGuideData is a revision guide for one topic.
type StudyGuideData struct {
	Topic          string          `json:"topic"`
	Summary        string          `json:"summary"`
	Subtopics      []string        `json:"subtopics"`
	Formulas       []Formula       `json:"formulas"`
	MustKnows      []string        `json:"mustKnows"`
	WorkedExamples []WorkedExample `json:"workedExamples"`
}

// EmptyStudyGuide is the degraded guide shown when the oracle reply is unusable.
func EmptyStudyGuide(topic string) *StudyGuideData {
	return &StudyGuideData{
		Topic:          topic,
		Subtopics:      []string{},
		Formulas:       []Formula{},
		MustKnows:      []string{},
		WorkedExamples: []WorkedExample{},
	}
}

// MarkPoint is one marking-scheme point of a graded answer.
type MarkPoint struct {
	Point   string `json:"point"`
	Awarded bool   `json:"awarded"`
	Reason  string `json:"reason"`
}

// FeedbackResponse is the examiner's report on a single answer.
type FeedbackResponse struct {
	TotalMarks      float64     `json:"totalMarks"`
	AttainedMarks   float64     `json:"attainedMarks"`
	MarksBreakdown  []MarkPoint `json:"marksBreakdown"`
	TeacherComments string      `json:"teacherComments"`
	ImprovementTips []string    `json:"improvementTips"`
	ModelAnswer     string      `json:"modelAnswer"`
	PredictedGrade  string      `json:"predictedGrade,omitempty"`
}

// TeacherExplanation explains one concept in syllabus terms.
type TeacherExplanation struct {
	Concept           string   `json:"concept"`
	Explanation       string   `json:"explanation"`
	KeyKeywords       []string `json:"keyKeywords"`
	SyllabusReference string   `json:"syllabusReference"`
	FurtherReading    string   `json:"furtherReading"`
}

// ResourceType classifies a study resource.
type ResourceType string

const (
	ResourceBook         ResourceType = "Book"
	ResourceMockPaper    ResourceType = "Mock Paper"
	ResourceRevisionNote ResourceType = "Revision Note"
)

// Resource is a recommended revision resource.
type Resource struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Type        ResourceType `json:"type"`
	Link        string       `json:"link"`
	Description string       `json:"description"`
}

// StudentAnalysis summarises a student's recent history.
type StudentAnalysis struct {
	Strengths          []string          `json:"strengths"`
	Weaknesses         []string          `json:"weaknesses"`
	PredictedGrades    map[string]string `json:"predictedGrades"`
	PersonalizedAdvice string            `json:"personalizedAdvice"`
}

// ExamAttempt is one persisted grading outcome.
type ExamAttempt struct {
	ID        string  `json:"id"`
	Subject   Subject `json:"subject"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"maxScore"`
	Topic     string  `json:"topic,omitempty"`
}

// ErrInvalidAttempt is returned by ExamAttempt.Validate.
var ErrInvalidAttempt = errors.New("invalid attempt")

// Validate checks 0 <= Score <= MaxScore and MaxScore > 0.
func (a ExamAttempt) Validate() error {
	if a.MaxScore <= 0 {
		return fmt.Errorf("%w: maxScore %v must be positive", ErrInvalidAttempt, a.MaxScore)
	}
	if a.Score < 0 || a.Score > a.MaxScore {
		return fmt.Errorf("%w: score %v outside [0, %v]", ErrInvalidAttempt, a.Score, a.MaxScore)
	}
	return nil
}

// Time returns the attempt timestamp.
func (a ExamAttempt) Time() time.Time {
	return time.UnixMilli(a.Timestamp)
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	Model         string // oracle model name
	PromptVariant string // marking strictness (strict, standard, lenient)
	Lang          string
	CORSOrigins   []string
	SessionTTL    time.Duration // idle exam sessions are dropped after this; 0 keeps them
}

type langCtxKey struct{}

// ContextWithLang stores the UI language in context.
func ContextWithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langCtxKey{}, lang)
}

// LangFromContext retrieves the UI language from context (empty if not set).
func LangFromContext(ctx context.Context) string {
	l, _ := ctx.Value(langCtxKey{}).(string)
	return l
}
