package llm

import (
	"github.com/pavelanni/mockexam/internal/model"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Response shapes for each exchange. List results are wrapped in an object,
// e.g. {"questions": [...]}. Shapes are built per request since marshalling
// may fill in nil property maps.

var (
	str     = jsonschema.Definition{Type: jsonschema.String}
	num     = jsonschema.Definition{Type: jsonschema.Number}
	boolean = jsonschema.Definition{Type: jsonschema.Boolean}
)

type props = map[string]jsonschema.Definition

func strList() jsonschema.Definition {
	return arrayOf(str)
}

func object(required []string, properties props) jsonschema.Definition {
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: properties,
		Required:   required,
	}
}

func arrayOf(item jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Array, Items: &item}
}

func enum(values ...string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Enum: values}
}

func mockPaperSchema() jsonschema.Definition {
	option := object([]string{"id", "text"}, props{
		"id":   str,
		"text": str,
	})
	question := object([]string{"id", "text", "marks", "type"}, props{
		"id":                 str,
		"text":               str,
		"marks":              num,
		"type":               enum(string(model.KindTheory), string(model.KindMCQ)),
		"options":            arrayOf(option),
		"diagramDescription": str,
	})
	return object([]string{"questions"}, props{
		"questions": arrayOf(question),
	})
}

func mockResultSchema() jsonschema.Definition {
	feedback := object([]string{"questionId", "correct"}, props{
		"questionId":    str,
		"correct":       boolean,
		"studentAnswer": str,
		"correctAnswer": str,
		"explanation":   str,
	})
	return object(
		[]string{"totalMarks", "attainedMarks", "percentage", "grade", "feedbackPerQuestion", "overallTeacherComments"},
		props{
			"totalMarks":             num,
			"attainedMarks":          num,
			"percentage":             num,
			"grade":                  str,
			"feedbackPerQuestion":    arrayOf(feedback),
			"overallTeacherComments": str,
		},
	)
}

func studyGuideSchema() jsonschema.Definition {
	formula := object([]string{"name", "formula"}, props{
		"name":        str,
		"formula":     str,
		"application": str,
	})
	step := object([]string{"description"}, props{
		"description": str,
		"working":     str,
	})
	example := object([]string{"title", "question", "steps", "finalAnswer"}, props{
		"title":       str,
		"question":    str,
		"steps":       arrayOf(step),
		"finalAnswer": str,
	})
	return object([]string{"topic", "summary", "subtopics", "workedExamples"}, props{
		"topic":          str,
		"summary":        str,
		"subtopics":      strList(),
		"formulas":       arrayOf(formula),
		"mustKnows":      strList(),
		"workedExamples": arrayOf(example),
	})
}

func feedbackSchema() jsonschema.Definition {
	point := object([]string{"point", "awarded"}, props{
		"point":   str,
		"awarded": boolean,
		"reason":  str,
	})
	return object([]string{"totalMarks", "attainedMarks", "marksBreakdown", "teacherComments"}, props{
		"totalMarks":      num,
		"attainedMarks":   num,
		"predictedGrade":  str,
		"marksBreakdown":  arrayOf(point),
		"teacherComments": str,
		"improvementTips": strList(),
		"modelAnswer":     str,
	})
}

func explanationSchema() jsonschema.Definition {
	return object([]string{"concept", "explanation"}, props{
		"concept":           str,
		"explanation":       str,
		"keyKeywords":       strList(),
		"syllabusReference": str,
		"furtherReading":    str,
	})
}

func analysisSchema() jsonschema.Definition {
	grade := object([]string{"subject", "grade"}, props{
		"subject": str,
		"grade":   str,
	})
	return object([]string{"strengths", "weaknesses", "predictedGrades", "personalizedAdvice"}, props{
		"strengths":          strList(),
		"weaknesses":         strList(),
		"predictedGrades":    arrayOf(grade),
		"personalizedAdvice": str,
	})
}

func resourcesSchema() jsonschema.Definition {
	resource := object([]string{"title", "type", "link"}, props{
		"title":       str,
		"type":        enum(string(model.ResourceBook), string(model.ResourceMockPaper), string(model.ResourceRevisionNote)),
		"link":        str,
		"description": str,
	})
	return object([]string{"resources"}, props{
		"resources": arrayOf(resource),
	})
}
