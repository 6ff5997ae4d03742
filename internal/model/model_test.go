package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseSubject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Subject
		wantErr bool
	}{
		{"exact", "Biology (0610)", SubjectBiology, false},
		{"trimmed", "  Physics (0625) ", SubjectPhysics, false},
		{"empty", "", "", true},
		{"missing code", "Biology", "", true},
		{"other board", "Biology (8461)", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubject(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSubject(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownSubject) {
				t.Errorf("expected ErrUnknownSubject, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSubject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSubjectsClosedSet(t *testing.T) {
	if len(Subjects) != 8 {
		t.Fatalf("expected 8 subjects, got %d", len(Subjects))
	}
	seen := make(map[string]bool)
	for _, s := range Subjects {
		code := s.Code()
		if len(code) != 4 {
			t.Errorf("subject %q has code %q", s, code)
		}
		if seen[code] {
			t.Errorf("duplicate syllabus code %q", code)
		}
		seen[code] = true
	}
	if SubjectAdditionalMath.Code() != "0606" {
		t.Errorf("Code() = %q, want 0606", SubjectAdditionalMath.Code())
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]QuestionKind{
		"mcq":             KindMCQ,
		"MCQ":             KindMCQ,
		"multiple-choice": KindMCQ,
		"theory":          KindTheory,
	} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = (%q, %v), want (%q, nil)", in, got, err, want)
		}
	}
	if _, err := ParseKind("essay"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestKindDuration(t *testing.T) {
	if KindMCQ.Duration() != 600*time.Second {
		t.Errorf("mcq duration = %v, want 600s", KindMCQ.Duration())
	}
	if KindTheory.Duration() != 1800*time.Second {
		t.Errorf("theory duration = %v, want 1800s", KindTheory.Duration())
	}
}

func TestExamAttemptValidate(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		max     float64
		wantErr bool
	}{
		{"zero score", 0, 10, false},
		{"full marks", 10, 10, false},
		{"partial", 7, 10, false},
		{"negative", -1, 10, true},
		{"over max", 11, 10, true},
		{"zero max", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExamAttempt{Score: tt.score, MaxScore: tt.max}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAttempt) {
				t.Errorf("expected ErrInvalidAttempt, got %v", err)
			}
		})
	}
}

func TestDisplayHelpers(t *testing.T) {
	if got := CambridgeScale(70); got != 6 {
		t.Errorf("CambridgeScale(70) = %d, want 6", got)
	}
	if got := CambridgeScale(100); got != 9 {
		t.Errorf("CambridgeScale(100) = %d, want 9", got)
	}
	if got := Percent(7, 10); got != 70 {
		t.Errorf("Percent(7, 10) = %d, want 70", got)
	}
	if got := Percent(3, 0); got != 0 {
		t.Errorf("Percent(3, 0) = %d, want 0", got)
	}
	if got := FormatCountdown(600); got != "10:00" {
		t.Errorf("FormatCountdown(600) = %q, want 10:00", got)
	}
	if got := FormatCountdown(65); got != "1:05" {
		t.Errorf("FormatCountdown(65) = %q, want 1:05", got)
	}
}

func TestAnswerMapClone(t *testing.T) {
	a := AnswerMap{"q1": "A"}
	b := a.Clone()
	b["q1"] = "B"
	if a["q1"] != "A" {
		t.Error("Clone shares storage with the original")
	}
}

func TestSummarise(t *testing.T) {
	attempts := []ExamAttempt{
		{Subject: SubjectBiology, Score: 5, MaxScore: 10, Timestamp: 1},
		{Subject: SubjectPhysics, Score: 9, MaxScore: 10, Timestamp: 2},
		{Subject: SubjectBiology, Score: 8, MaxScore: 10, Timestamp: 3},
		{Subject: SubjectBiology, Score: 6, MaxScore: 10, Timestamp: 4},
	}
	got := Summarise(attempts)
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	bio := got[0]
	if bio.Subject != SubjectBiology || bio.Attempts != 3 {
		t.Errorf("unexpected biology summary %+v", bio)
	}
	if bio.BestPercent != 80 || bio.LastPercent != 60 || bio.LastAttempt != 4 {
		t.Errorf("unexpected biology figures %+v", bio)
	}
}
