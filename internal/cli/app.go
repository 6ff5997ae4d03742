// Package cli runs a timed mock exam in the terminal.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	appI18n "github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/session"
)

// Options selects the paper to sit.
type Options struct {
	Subject model.Subject
	Topic   string
	Kind    model.QuestionKind
}

// Run sits one exam on c, reading commands and answers from in. Typing an
// option id or free text answers the current question; n, p, s and q move
// next, move back, submit and quit. End of input quits.
func Run(ctx context.Context, c *session.Controller, opts Options, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, appI18n.T(ctx, "Generating"))
	if err := c.Start(ctx, opts.Subject, opts.Topic, opts.Kind); err != nil {
		fmt.Fprintln(out, message(ctx, err, opts.Subject))
		return err
	}

	reader := bufio.NewReader(in)
	for {
		v := c.View()
		if v.State == session.Graded {
			printResult(ctx, out, v)
			return nil
		}
		q, ok := v.Current()
		if !ok {
			return session.ErrNotInProgress
		}
		printQuestion(ctx, out, v, q)

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			c.Reset()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)

		switch strings.ToLower(line) {
		case "":
			continue
		case "q":
			c.Reset()
			return nil
		case "p":
			err = c.Back(ctx)
		case "n":
			err = advance(ctx, out, c, v)
		case "s":
			err = submit(ctx, out, c)
		default:
			if q.Type == model.KindMCQ {
				line = strings.ToUpper(line)
			}
			if err = c.RecordAnswer(q.ID, line); err == nil && v.Index < len(v.Questions)-1 {
				err = c.Advance(ctx)
			}
		}
		if err != nil {
			fmt.Fprintln(out, message(ctx, err, opts.Subject))
		}
	}
}

func advance(ctx context.Context, out io.Writer, c *session.Controller, v session.View) error {
	if v.Index == len(v.Questions)-1 {
		return submit(ctx, out, c)
	}
	return c.Advance(ctx)
}

func submit(ctx context.Context, out io.Writer, c *session.Controller) error {
	fmt.Fprintln(out, appI18n.T(ctx, "Grading"))
	return c.Submit(ctx)
}

func printQuestion(ctx context.Context, out io.Writer, v session.View, q model.MockQuestion) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, appI18n.Td(ctx, "QuestionHeader", map[string]any{
		"Number": v.Index + 1,
		"Total":  len(v.Questions),
		"Marks":  q.Marks,
	}))
	fmt.Fprintf(out, "%s    %s\n\n",
		appI18n.Td(ctx, "TimeRemaining", map[string]any{"Time": v.Countdown}),
		appI18n.Tp(ctx, "QuestionsAnswered", v.Answered))
	fmt.Fprintln(out, q.Text)
	if q.DiagramDescription != "" {
		fmt.Fprintf(out, "[%s]\n", q.DiagramDescription)
	}
	for _, o := range q.Options {
		fmt.Fprintf(out, "%s. %s\n", o.ID, o.Text)
	}
	if a, ok := v.Answers[q.ID]; ok {
		fmt.Fprintf(out, "> %s\n", a)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, appI18n.T(ctx, "PromptAnswer"), " ")
}

func printResult(ctx context.Context, out io.Writer, v session.View) {
	res := v.Result
	fmt.Fprintln(out)
	fmt.Fprintln(out, appI18n.Td(ctx, "ScoreLine", map[string]any{
		"Attained": res.AttainedMarks,
		"Total":    res.TotalMarks,
		"Percent":  int(math.Round(res.Percentage)),
		"Grade":    res.Grade,
		"Scale":    v.CambridgeScale,
	}))
	for _, f := range res.FeedbackPerQuestion {
		mark := "x"
		if f.Correct {
			mark = "✓"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", mark, f.QuestionID, f.Explanation)
	}
	if res.OverallTeacherComments != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, res.OverallTeacherComments)
	}
	if v.Notice != nil {
		fmt.Fprintln(out, appI18n.T(ctx, "ErrStorage"))
	}
}

// message localizes err for the terminal.
func message(ctx context.Context, err error, subject model.Subject) string {
	var f *session.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case session.ValidationFailure:
			switch {
			case errors.Is(f.Err, session.ErrSubjectRequired):
				return appI18n.T(ctx, "ErrSubjectRequired")
			case errors.Is(f.Err, model.ErrUnknownSubject):
				return appI18n.Td(ctx, "ErrUnknownSubject", map[string]any{"Subject": subject})
			default:
				return appI18n.T(ctx, "ErrKindRequired")
			}
		case session.GenerationFailure:
			return appI18n.T(ctx, "ErrGeneration")
		case session.ParseFailure:
			return appI18n.T(ctx, "ErrParse")
		case session.GradingFailure:
			return appI18n.T(ctx, "ErrGrading")
		}
	}
	switch {
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrInvalidOption):
		return appI18n.T(ctx, "ErrInvalidAnswer")
	case errors.Is(err, session.ErrNotIdle):
		return appI18n.T(ctx, "ErrExamRunning")
	case errors.Is(err, session.ErrNotInProgress):
		return appI18n.T(ctx, "ErrNotInProgress")
	}
	return appI18n.T(ctx, "ErrInternal")
}
