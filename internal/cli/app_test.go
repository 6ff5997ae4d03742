package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	appI18n "github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/llm"
	"github.com/pavelanni/mockexam/internal/llm/prompts"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/session"
	"github.com/pavelanni/mockexam/internal/store"
)

type scriptedOracle struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	reqs    []llm.Request
}

func (s *scriptedOracle) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.reqs)
	s.reqs = append(s.reqs, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", nil
}

func (s *scriptedOracle) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.reqs {
		out = append(out, r.Op)
	}
	return out
}

func paperJSON(n int) string {
	var qs []string
	for i := 1; i <= n; i++ {
		qs = append(qs, fmt.Sprintf(`{"id":"q%d","text":"Which particle is charged? (%d)","marks":1,"type":"mcq","options":[{"id":"A","text":"neutron"},{"id":"B","text":"electron"}]}`, i, i))
	}
	return `{"questions":[` + strings.Join(qs, ",") + `]}`
}

const resultJSON = `{"totalMarks":10,"attainedMarks":7,"percentage":70,"grade":"B","feedbackPerQuestion":[{"questionId":"q1","correct":true,"studentAnswer":"B","correctAnswer":"B","explanation":"Electrons carry charge."}],"overallTeacherComments":"Solid work."}`

func setup(t *testing.T, oracle *scriptedOracle) (context.Context, *session.Controller, *store.AttemptLog) {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	set, err := prompts.Default()
	if err != nil {
		t.Fatalf("prompts.Default: %v", err)
	}
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	log := store.NewAttemptLog(fs)
	never := func() (<-chan time.Time, func()) { return make(chan time.Time), func() {} }
	c := session.New(llm.New(oracle, set, "test-model", prompts.PromptStandard), log, session.Options{Tick: never})
	t.Cleanup(c.Reset)
	return appI18n.WithLang(context.Background(), "en"), c, log
}

var physicsMCQ = Options{Subject: model.SubjectPhysics, Topic: "Atoms", Kind: model.KindMCQ}

func TestRunAnswersAndSubmits(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{paperJSON(10), resultJSON}}
	ctx, c, log := setup(t, oracle)

	var out bytes.Buffer
	if err := Run(ctx, c, physicsMCQ, strings.NewReader("b\nz\nA\ns\n"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Question 1 of 10 (1 marks)",
		"Time remaining: 10:00",
		"That answer is not valid for this question.",
		"Score: 7/10 (70%), grade B, Cambridge scale 6",
		"[✓] q1: Electrons carry charge.",
		"Solid work.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	grade := oracle.reqs[1].Prompt
	if !strings.Contains(grade, `"studentAnswer":"B"`) && !strings.Contains(grade, `"studentAnswer": "B"`) {
		t.Errorf("grading prompt missing q1 answer:\n%s", grade)
	}
	attempts, err := log.ReadAll(context.Background())
	if err != nil || len(attempts) != 1 || attempts[0].Score != 7 {
		t.Errorf("attempts = %+v, err = %v", attempts, err)
	}
}

func TestRunNextOnLastQuestionSubmits(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{paperJSON(10), resultJSON}}
	ctx, c, _ := setup(t, oracle)

	input := strings.Repeat("n\n", 10)
	var out bytes.Buffer
	if err := Run(ctx, c, physicsMCQ, strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := oracle.ops(); len(got) != 2 || got[1] != llm.OpGradeExam {
		t.Errorf("ops = %v", got)
	}
	if c.View().State != session.Graded {
		t.Errorf("state = %v, want graded", c.View().State)
	}
}

func TestRunQuitDiscardsExam(t *testing.T) {
	for _, input := range []string{"q\n", ""} {
		oracle := &scriptedOracle{replies: []string{paperJSON(10)}}
		ctx, c, log := setup(t, oracle)

		var out bytes.Buffer
		if err := Run(ctx, c, physicsMCQ, strings.NewReader(input), &out); err != nil {
			t.Fatalf("Run(%q): %v", input, err)
		}
		if c.View().State != session.Idle {
			t.Errorf("input %q: state = %v, want idle", input, c.View().State)
		}
		if n := len(oracle.ops()); n != 1 {
			t.Errorf("input %q: %d oracle calls, want 1", input, n)
		}
		attempts, _ := log.ReadAll(context.Background())
		if len(attempts) != 0 {
			t.Errorf("input %q: attempts recorded: %+v", input, attempts)
		}
	}
}

func TestRunGradingRetry(t *testing.T) {
	oracle := &scriptedOracle{
		replies: []string{paperJSON(10), "", resultJSON},
		errs:    []error{nil, errors.New("timeout")},
	}
	ctx, c, _ := setup(t, oracle)

	var out bytes.Buffer
	if err := Run(ctx, c, physicsMCQ, strings.NewReader("s\ns\n"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Grading failed. Your answers are kept") {
		t.Errorf("missing grading failure message:\n%s", out.String())
	}
	if c.View().State != session.Graded {
		t.Errorf("state = %v, want graded", c.View().State)
	}
}

func TestRunStartFailures(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		err  error
		want string
	}{
		{"no subject", Options{Kind: model.KindMCQ}, nil, "Please choose a subject."},
		{"unknown subject", Options{Subject: "Latin", Kind: model.KindMCQ}, nil, "Latin is not a supported subject."},
		{"no kind", Options{Subject: model.SubjectPhysics}, nil, "Please choose a paper type"},
		{"oracle down", physicsMCQ, errors.New("refused"), "The examiner could not be reached."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &scriptedOracle{errs: []error{tt.err}}
			ctx, c, _ := setup(t, oracle)

			var out bytes.Buffer
			err := Run(ctx, c, tt.opts, strings.NewReader(""), &out)
			var f *session.Failure
			if !errors.As(err, &f) {
				t.Fatalf("err = %v, want *session.Failure", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}
