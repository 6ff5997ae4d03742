package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrGeneration reports a failed oracle call or a reply with no content.
	ErrGeneration = errors.New("oracle generation failed")
	// ErrParse reports a reply that is not JSON of the declared shape.
	ErrParse = errors.New("oracle reply does not match the response shape")
	// ErrEmptyHistory is returned by AnalyzeStudentPerformance when there is nothing to analyze.
	ErrEmptyHistory = errors.New("no attempts to analyze")
)

// Operation names used in errors and logs.
const (
	OpMockPaper   = "generateMockPaper"
	OpGradeExam   = "gradeMockExam"
	OpStudyGuide  = "fetchStudyGuide"
	OpGradeAnswer = "gradeAnswer"
	OpExplain     = "explainConcept"
	OpAnalysis    = "analyzeStudentPerformance"
	OpResources   = "fetchResources"
)

// Error is a typed exchange failure. Kind is ErrGeneration or ErrParse.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap lets errors.Is match both the kind and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func generationError(op string, err error) error {
	return &Error{Op: op, Kind: ErrGeneration, Err: err}
}

func parseError(op string, err error) error {
	return &Error{Op: op, Kind: ErrParse, Err: err}
}

// IsGeneration reports whether err is a generation failure.
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsParse reports whether err is a parse failure.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}
