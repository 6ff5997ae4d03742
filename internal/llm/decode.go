package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/mockexam/internal/model"
)

const maxRawInError = 500

// checker collects violations while a wire value is converted.
type checker struct {
	problems []string
}

func (c *checker) need(ok bool, path string) {
	if !ok {
		c.problems = append(c.problems, "missing "+path)
	}
}

func (c *checker) check(ok bool, format string, args ...any) {
	if !ok {
		c.problems = append(c.problems, fmt.Sprintf(format, args...))
	}
}

func (c *checker) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(c.problems, "; "))
}

func decodeJSON(raw string, v any) error {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return errors.New("empty reply")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w (raw: %s)", err, clip(raw))
	}
	return nil
}

// decodeList accepts either {"<key>": [...]} or a bare array.
func decodeList(raw, key string, v any) error {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) > 0 && data[0] == '[' {
		return decodeJSON(raw, v)
	}
	var wrapper map[string]json.RawMessage
	if err := decodeJSON(raw, &wrapper); err != nil {
		return err
	}
	list, ok := wrapper[key]
	if !ok {
		return fmt.Errorf("missing %s (raw: %s)", key, clip(raw))
	}
	if err := json.Unmarshal(list, v); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// clip shortens raw to at most maxRawInError bytes without splitting a rune.
func clip(raw string) string {
	if len(raw) <= maxRawInError {
		return raw
	}
	end := maxRawInError
	for end > 0 && !utf8.RuneStart(raw[end]) {
		end--
	}
	return raw[:end] + "..."
}

func strOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func checkMarks(c *checker, total, attained float64) {
	c.check(total > 0, "totalMarks %v must be positive", total)
	c.check(attained >= 0 && attained <= total, "attainedMarks %v outside [0, %v]", attained, total)
}

type wireOption struct {
	ID   *string `json:"id"`
	Text *string `json:"text"`
}

type wireQuestion struct {
	ID                 *string      `json:"id"`
	Text               *string      `json:"text"`
	Marks              *float64     `json:"marks"`
	Type               *string      `json:"type"`
	Options            []wireOption `json:"options"`
	DiagramDescription *string      `json:"diagramDescription"`
}

func decodeMockPaper(raw string, kind model.QuestionKind) ([]model.MockQuestion, error) {
	var wire []wireQuestion
	if err := decodeList(raw, "questions", &wire); err != nil {
		return nil, err
	}

	var c checker
	seen := make(map[string]bool, len(wire))
	questions := make([]model.MockQuestion, 0, len(wire))
	for i, w := range wire {
		path := "questions[" + strconv.Itoa(i) + "]"
		c.need(nonEmpty(w.ID), path+".id")
		c.need(nonEmpty(w.Text), path+".text")
		c.need(w.Marks != nil, path+".marks")
		c.need(w.Type != nil, path+".type")
		if w.ID == nil || w.Text == nil || w.Marks == nil || w.Type == nil {
			continue
		}

		id := strings.TrimSpace(*w.ID)
		c.check(!seen[id], "%s.id %q is duplicated", path, id)
		seen[id] = true
		c.check(*w.Marks > 0, "%s.marks %v must be positive", path, *w.Marks)

		qKind, err := model.ParseKind(*w.Type)
		c.check(err == nil && qKind == kind, "%s.type %q does not match paper kind %q", path, *w.Type, kind)

		q := model.MockQuestion{
			ID:                 id,
			Text:               *w.Text,
			Marks:              *w.Marks,
			Type:               kind,
			DiagramDescription: strOr(w.DiagramDescription),
		}
		if kind == model.KindMCQ {
			c.check(len(w.Options) >= 2, "%s.options must list at least two choices", path)
			for j, o := range w.Options {
				opath := path + ".options[" + strconv.Itoa(j) + "]"
				c.need(nonEmpty(o.ID), opath+".id")
				c.need(o.Text != nil, opath+".text")
				if nonEmpty(o.ID) && o.Text != nil {
					q.Options = append(q.Options, model.MCQOption{ID: strings.TrimSpace(*o.ID), Text: *o.Text})
				}
			}
		}
		questions = append(questions, q)
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return questions, nil
}

type wireQuestionFeedback struct {
	QuestionID    *string `json:"questionId"`
	Correct       *bool   `json:"correct"`
	StudentAnswer *string `json:"studentAnswer"`
	CorrectAnswer *string `json:"correctAnswer"`
	Explanation   *string `json:"explanation"`
}

type wireMockResult struct {
	TotalMarks             *float64                `json:"totalMarks"`
	AttainedMarks          *float64                `json:"attainedMarks"`
	Percentage             *float64                `json:"percentage"`
	Grade                  *string                 `json:"grade"`
	FeedbackPerQuestion    *[]wireQuestionFeedback `json:"feedbackPerQuestion"`
	OverallTeacherComments *string                 `json:"overallTeacherComments"`
}

func decodeMockResult(raw string) (*model.MockExamResult, error) {
	var w wireMockResult
	if err := decodeJSON(raw, &w); err != nil {
		return nil, err
	}

	var c checker
	c.need(w.TotalMarks != nil, "totalMarks")
	c.need(w.AttainedMarks != nil, "attainedMarks")
	c.need(w.Percentage != nil, "percentage")
	c.need(w.Grade != nil, "grade")
	c.need(w.FeedbackPerQuestion != nil, "feedbackPerQuestion")
	c.need(w.OverallTeacherComments != nil, "overallTeacherComments")
	if err := c.err(); err != nil {
		return nil, err
	}
	checkMarks(&c, *w.TotalMarks, *w.AttainedMarks)
	c.check(*w.Percentage >= 0 && *w.Percentage <= 100, "percentage %v outside [0, 100]", *w.Percentage)

	result := &model.MockExamResult{
		TotalMarks:             *w.TotalMarks,
		AttainedMarks:          *w.AttainedMarks,
		Percentage:             *w.Percentage,
		Grade:                  *w.Grade,
		FeedbackPerQuestion:    make([]model.QuestionFeedback, 0, len(*w.FeedbackPerQuestion)),
		OverallTeacherComments: *w.OverallTeacherComments,
	}
	for i, f := range *w.FeedbackPerQuestion {
		path := "feedbackPerQuestion[" + strconv.Itoa(i) + "]"
		c.need(f.QuestionID != nil, path+".questionId")
		c.need(f.Correct != nil, path+".correct")
		if f.QuestionID == nil || f.Correct == nil {
			continue
		}
		result.FeedbackPerQuestion = append(result.FeedbackPerQuestion, model.QuestionFeedback{
			QuestionID:    *f.QuestionID,
			Correct:       *f.Correct,
			StudentAnswer: strOr(f.StudentAnswer),
			CorrectAnswer: strOr(f.CorrectAnswer),
			Explanation:   strOr(f.Explanation),
		})
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return result, nil
}

type wireStep struct {
	Description *string `json:"description"`
	Working     *string `json:"working"`
}

type wireWorkedExample struct {
	Title       *string     `json:"title"`
	Question    *string     `json:"question"`
	Steps       *[]wireStep `json:"steps"`
	FinalAnswer *string     `json:"finalAnswer"`
}

type wireFormula struct {
	Name        *string `json:"name"`
	Formula     *string `json:"formula"`
	Application *string `json:"application"`
}

type wireStudyGuide struct {
	Topic          *string              `json:"topic"`
	Summary        *string              `json:"summary"`
	Subtopics      *[]string            `json:"subtopics"`
	Formulas       []wireFormula        `json:"formulas"`
	MustKnows      []string             `json:"mustKnows"`
	WorkedExamples *[]wireWorkedExample `json:"workedExamples"`
}

func decodeStudyGuide(raw string) (*model.StudyGuideData, error) {
	var w wireStudyGuide
	if err := decodeJSON(raw, &w); err != nil {
		return nil, err
	}

	var c checker
	c.need(w.Topic != nil, "topic")
	c.need(w.Summary != nil, "summary")
	c.need(w.Subtopics != nil, "subtopics")
	c.need(w.WorkedExamples != nil, "workedExamples")
	if err := c.err(); err != nil {
		return nil, err
	}

	guide := &model.StudyGuideData{
		Topic:          *w.Topic,
		Summary:        *w.Summary,
		Subtopics:      orEmpty(*w.Subtopics),
		Formulas:       make([]model.Formula, 0, len(w.Formulas)),
		MustKnows:      orEmpty(w.MustKnows),
		WorkedExamples: make([]model.WorkedExample, 0, len(*w.WorkedExamples)),
	}
	for i, f := range w.Formulas {
		path := "formulas[" + strconv.Itoa(i) + "]"
		c.need(f.Name != nil, path+".name")
		c.need(f.Formula != nil, path+".formula")
		if f.Name == nil || f.Formula == nil {
			continue
		}
		guide.Formulas = append(guide.Formulas, model.Formula{
			Name:        *f.Name,
			Formula:     *f.Formula,
			Application: strOr(f.Application),
		})
	}
	for i, ex := range *w.WorkedExamples {
		path := "workedExamples[" + strconv.Itoa(i) + "]"
		c.need(ex.Title != nil, path+".title")
		c.need(ex.Question != nil, path+".question")
		c.need(ex.Steps != nil, path+".steps")
		c.need(ex.FinalAnswer != nil, path+".finalAnswer")
		if ex.Title == nil || ex.Question == nil || ex.Steps == nil || ex.FinalAnswer == nil {
			continue
		}
		example := model.WorkedExample{
			Title:       *ex.Title,
			Question:    *ex.Question,
			Steps:       make([]model.WorkedStep, 0, len(*ex.Steps)),
			FinalAnswer: *ex.FinalAnswer,
		}
		for j, s := range *ex.Steps {
			c.need(s.Description != nil, path+".steps["+strconv.Itoa(j)+"].description")
			if s.Description == nil {
				continue
			}
			example.Steps = append(example.Steps, model.WorkedStep{
				Description: *s.Description,
				Working:     strOr(s.Working),
			})
		}
		guide.WorkedExamples = append(guide.WorkedExamples, example)
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return guide, nil
}

type wireMarkPoint struct {
	Point   *string `json:"point"`
	Awarded *bool   `json:"awarded"`
	Reason  *string `json:"reason"`
}

type wireFeedback struct {
	TotalMarks      *float64         `json:"totalMarks"`
	AttainedMarks   *float64         `json:"attainedMarks"`
	PredictedGrade  *string          `json:"predictedGrade"`
	MarksBreakdown  *[]wireMarkPoint `json:"marksBreakdown"`
	TeacherComments *string          `json:"teacherComments"`
	ImprovementTips []string         `json:"improvementTips"`
	ModelAnswer     *string          `json:"modelAnswer"`
}

func decodeFeedback(raw string) (*model.FeedbackResponse, error) {
	var w wireFeedback
	if err := decodeJSON(raw, &w); err != nil {
		return nil, err
	}

	var c checker
	c.need(w.TotalMarks != nil, "totalMarks")
	c.need(w.AttainedMarks != nil, "attainedMarks")
	c.need(w.MarksBreakdown != nil, "marksBreakdown")
	c.need(w.TeacherComments != nil, "teacherComments")
	if err := c.err(); err != nil {
		return nil, err
	}
	checkMarks(&c, *w.TotalMarks, *w.AttainedMarks)

	fb := &model.FeedbackResponse{
		TotalMarks:      *w.TotalMarks,
		AttainedMarks:   *w.AttainedMarks,
		MarksBreakdown:  make([]model.MarkPoint, 0, len(*w.MarksBreakdown)),
		TeacherComments: *w.TeacherComments,
		ImprovementTips: orEmpty(w.ImprovementTips),
		ModelAnswer:     strOr(w.ModelAnswer),
		PredictedGrade:  strOr(w.PredictedGrade),
	}
	for i, p := range *w.MarksBreakdown {
		path := "marksBreakdown[" + strconv.Itoa(i) + "]"
		c.need(p.Point != nil, path+".point")
		c.need(p.Awarded != nil, path+".awarded")
		if p.Point == nil || p.Awarded == nil {
			continue
		}
		fb.MarksBreakdown = append(fb.MarksBreakdown, model.MarkPoint{
			Point:   *p.Point,
			Awarded: *p.Awarded,
			Reason:  strOr(p.Reason),
		})
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return fb, nil
}

type wireExplanation struct {
	Concept           *string  `json:"concept"`
	Explanation       *string  `json:"explanation"`
	KeyKeywords       []string `json:"keyKeywords"`
	SyllabusReference *string  `json:"syllabusReference"`
	FurtherReading    *string  `json:"furtherReading"`
}

func decodeExplanation(raw string) (*model.TeacherExplanation, error) {
	var w wireExplanation
	if err := decodeJSON(raw, &w); err != nil {
		return nil, err
	}
	var c checker
	c.need(w.Concept != nil, "concept")
	c.need(nonEmpty(w.Explanation), "explanation")
	if err := c.err(); err != nil {
		return nil, err
	}
	return &model.TeacherExplanation{
		Concept:           *w.Concept,
		Explanation:       *w.Explanation,
		KeyKeywords:       orEmpty(w.KeyKeywords),
		SyllabusReference: strOr(w.SyllabusReference),
		FurtherReading:    strOr(w.FurtherReading),
	}, nil
}

type wireGrade struct {
	Subject *string `json:"subject"`
	Grade   *string `json:"grade"`
}

type wireAnalysis struct {
	Strengths          *[]string       `json:"strengths"`
	Weaknesses         *[]string       `json:"weaknesses"`
	PredictedGrades    json.RawMessage `json:"predictedGrades"`
	PersonalizedAdvice *string         `json:"personalizedAdvice"`
}

func decodeAnalysis(raw string) (*model.StudentAnalysis, error) {
	var w wireAnalysis
	if err := decodeJSON(raw, &w); err != nil {
		return nil, err
	}
	var c checker
	c.need(w.Strengths != nil, "strengths")
	c.need(w.Weaknesses != nil, "weaknesses")
	c.need(len(w.PredictedGrades) > 0 && string(w.PredictedGrades) != "null", "predictedGrades")
	c.need(w.PersonalizedAdvice != nil, "personalizedAdvice")
	if err := c.err(); err != nil {
		return nil, err
	}

	grades, err := decodeGrades(w.PredictedGrades)
	if err != nil {
		return nil, fmt.Errorf("predictedGrades: %w", err)
	}
	return &model.StudentAnalysis{
		Strengths:          orEmpty(*w.Strengths),
		Weaknesses:         orEmpty(*w.Weaknesses),
		PredictedGrades:    grades,
		PersonalizedAdvice: *w.PersonalizedAdvice,
	}, nil
}

// decodeGrades folds [{subject, grade}] into a map. A plain
// {"subject": "grade"} object is accepted as well.
func decodeGrades(data json.RawMessage) (map[string]string, error) {
	grades := make(map[string]string)
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if err := json.Unmarshal(data, &grades); err != nil {
			return nil, err
		}
		return grades, nil
	}

	var list []wireGrade
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	var c checker
	for i, g := range list {
		path := "[" + strconv.Itoa(i) + "]"
		c.need(nonEmpty(g.Subject), path+".subject")
		c.need(g.Grade != nil, path+".grade")
		if nonEmpty(g.Subject) && g.Grade != nil {
			grades[*g.Subject] = *g.Grade
		}
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return grades, nil
}

type wireResource struct {
	Title       *string `json:"title"`
	Type        *string `json:"type"`
	Link        *string `json:"link"`
	Description *string `json:"description"`
}

func decodeResources(raw string) ([]model.Resource, error) {
	var wire []wireResource
	if err := decodeList(raw, "resources", &wire); err != nil {
		return nil, err
	}
	var c checker
	resources := make([]model.Resource, 0, len(wire))
	for i, w := range wire {
		path := "resources[" + strconv.Itoa(i) + "]"
		c.need(nonEmpty(w.Title), path+".title")
		c.need(w.Type != nil, path+".type")
		c.need(nonEmpty(w.Link), path+".link")
		if !nonEmpty(w.Title) || w.Type == nil || !nonEmpty(w.Link) {
			continue
		}
		rt := model.ResourceType(*w.Type)
		c.check(rt == model.ResourceBook || rt == model.ResourceMockPaper || rt == model.ResourceRevisionNote,
			"%s.type %q is not a known resource type", path, *w.Type)
		resources = append(resources, model.Resource{
			ID:          strconv.Itoa(len(resources)),
			Title:       *w.Title,
			Type:        rt,
			Link:        *w.Link,
			Description: strOr(w.Description),
		})
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return resources, nil
}
