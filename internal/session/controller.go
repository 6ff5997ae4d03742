// Package session drives one timed mock exam from paper generation to grading.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mockexam/internal/llm"
	"github.com/pavelanni/mockexam/internal/model"
)

// State is the lifecycle stage of a session.
type State int

const (
	Idle State = iota
	Loading
	InProgress
	Grading
	Graded
)

var stateNames = [...]string{"idle", "loading", "in_progress", "grading", "graded"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	ErrSubjectRequired = errors.New("subject is required")
	ErrKindRequired    = errors.New("question kind is required")
	ErrNotIdle         = errors.New("an exam is already running")
	ErrNotInProgress   = errors.New("no exam in progress")
	ErrUnknownQuestion = errors.New("question is not part of this paper")
	ErrInvalidOption   = errors.New("answer is not one of the question's options")
	ErrShortPaper      = errors.New("paper does not have the required number of questions")
	// ErrDiscarded is returned when a reply arrives after the session was reset.
	ErrDiscarded = errors.New("session was reset while the request was in flight")
)

// FailureKind classifies a failure shown to the student.
type FailureKind string

const (
	ValidationFailure FailureKind = "validation"
	GenerationFailure FailureKind = "generation"
	ParseFailure      FailureKind = "parse"
	GradingFailure    FailureKind = "grading"
	StorageFailure    FailureKind = "storage"
)

// Failure is the declarative error state of a session.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

func newFailure(kind FailureKind, field string, err error) *Failure {
	return &Failure{Kind: kind, Field: field, Message: err.Error(), Err: err}
}

func (f *Failure) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("%s failure (%s): %v", f.Kind, f.Field, f.Err)
	}
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Exams generates and grades mock papers.
type Exams interface {
	GenerateMockPaper(ctx context.Context, subject model.Subject, topic string, kind model.QuestionKind) ([]model.MockQuestion, error)
	GradeMockExam(ctx context.Context, subject model.Subject, questions []model.MockQuestion, answers model.AnswerMap) (*model.MockExamResult, error)
}

// Attempts records graded attempts.
type Attempts interface {
	Append(ctx context.Context, a model.ExamAttempt) error
}

// TickSource returns a channel delivering one value per countdown second and
// a function releasing it.
type TickSource func() (<-chan time.Time, func())

// SecondTicker is the wall-clock TickSource.
func SecondTicker() (<-chan time.Time, func()) {
	t := time.NewTicker(time.Second)
	return t.C, t.Stop
}

// Options configures a Controller. Zero fields take wall-clock defaults.
type Options struct {
	Tick  TickSource
	Now   func() time.Time
	NewID func() string
}

// Controller is the state machine of one exam session. It is safe for
// concurrent use.
type Controller struct {
	exams    Exams
	attempts Attempts
	opts     Options

	mu        sync.Mutex
	state     State
	epoch     uint64
	timerGen  uint64
	stopTimer context.CancelFunc

	subject   model.Subject
	topic     string
	kind      model.QuestionKind
	questions []model.MockQuestion
	answers   model.AnswerMap
	index     int
	remaining int
	result    *model.MockExamResult
	failure   *Failure
	notice    *Failure
}

// New creates an idle Controller.
func New(exams Exams, attempts Attempts, opts Options) *Controller {
	if opts.Tick == nil {
		opts.Tick = SecondTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{
		exams:    exams,
		attempts: attempts,
		opts:     opts,
		answers:  model.AnswerMap{},
	}
}

// Start requests a paper and, once exactly model.PaperSize questions arrive,
// begins the countdown. It is valid only from Idle.
func (c *Controller) Start(ctx context.Context, subject model.Subject, topic string, kind model.QuestionKind) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	if f := validateStart(subject, kind); f != nil {
		c.failure = f
		c.mu.Unlock()
		return f
	}
	topic = strings.TrimSpace(topic)
	c.state = Loading
	c.failure = nil
	c.notice = nil
	c.subject, c.topic, c.kind = subject, topic, kind
	epoch := c.epoch
	c.mu.Unlock()

	slog.Info("requesting mock paper", "subject", subject, "topic", topic, "kind", kind)
	questions, err := c.exams.GenerateMockPaper(ctx, subject, topic, kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state != Loading {
		slog.Debug("discarding stale mock paper", "subject", subject)
		return ErrDiscarded
	}
	if err == nil && len(questions) != model.PaperSize {
		err = fmt.Errorf("%w: got %d, want %d", ErrShortPaper, len(questions), model.PaperSize)
	}
	if err != nil {
		fk := GenerationFailure
		if llm.IsParse(err) {
			fk = ParseFailure
		}
		c.clear()
		c.failure = newFailure(fk, "", err)
		slog.Warn("mock paper generation failed", "subject", subject, "error", err)
		return c.failure
	}

	c.questions = questions
	c.answers = model.AnswerMap{}
	c.index = 0
	c.remaining = int(kind.Duration() / time.Second)
	c.state = InProgress
	c.startTimerLocked()
	return nil
}

func validateStart(subject model.Subject, kind model.QuestionKind) *Failure {
	switch {
	case strings.TrimSpace(string(subject)) == "":
		return newFailure(ValidationFailure, "subject", ErrSubjectRequired)
	case !subject.Valid():
		return newFailure(ValidationFailure, "subject", fmt.Errorf("%w: %q", model.ErrUnknownSubject, subject))
	case kind == "":
		return newFailure(ValidationFailure, "kind", ErrKindRequired)
	case kind != model.KindMCQ && kind != model.KindTheory:
		return newFailure(ValidationFailure, "kind", fmt.Errorf("%w: %q", model.ErrUnknownKind, kind))
	}
	return nil
}

// Tick decrements the countdown by one second while the exam is in
// progress. Reaching zero does not submit.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickLocked()
}

func (c *Controller) tickLocked() {
	if c.state == InProgress && c.remaining > 0 {
		c.remaining--
	}
}

// startTimerLocked runs the countdown until it reaches zero or is stopped.
func (c *Controller) startTimerLocked() {
	c.stopTimerLocked()
	if c.remaining <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopTimer = cancel
	c.timerGen++
	gen := c.timerGen
	ticks, stop := c.opts.Tick()

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				c.mu.Lock()
				if gen == c.timerGen {
					c.tickLocked()
				}
				done := gen != c.timerGen || c.remaining == 0
				c.mu.Unlock()
				if done {
					return
				}
			}
		}
	}()
}

func (c *Controller) stopTimerLocked() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.timerGen++
}

// RecordAnswer stores value as the answer to questionID, replacing any
// earlier answer. A blank value clears the answer.
func (c *Controller) RecordAnswer(questionID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != InProgress {
		return ErrNotInProgress
	}
	q, ok := c.question(questionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		delete(c.answers, questionID)
		return nil
	}
	if q.Type == model.KindMCQ && !q.HasOption(value) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, value)
	}
	c.answers[questionID] = value
	return nil
}

func (c *Controller) question(id string) (model.MockQuestion, bool) {
	for _, q := range c.questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.MockQuestion{}, false
}

// Navigate moves the current question by one in the direction of dir,
// staying within the paper. Moving forward from the last question submits.
func (c *Controller) Navigate(ctx context.Context, dir int) error {
	c.mu.Lock()
	if c.state != InProgress {
		c.mu.Unlock()
		return ErrNotInProgress
	}
	last := len(c.questions) - 1
	switch {
	case dir > 0 && c.index == last:
		c.mu.Unlock()
		return c.Submit(ctx)
	case dir > 0:
		c.index++
	case dir < 0 && c.index > 0:
		c.index--
	}
	c.mu.Unlock()
	return nil
}

// Advance moves to the next question or submits from the last one.
func (c *Controller) Advance(ctx context.Context) error {
	return c.Navigate(ctx, 1)
}

// Back moves to the previous question.
func (c *Controller) Back(ctx context.Context) error {
	return c.Navigate(ctx, -1)
}

// Submit sends every question and the current answers for grading. Calls
// while grading is pending or finished are no-ops. On failure the exam
// resumes with answers intact.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Grading, Graded:
		c.mu.Unlock()
		return nil
	case InProgress:
	default:
		c.mu.Unlock()
		return ErrNotInProgress
	}
	c.stopTimerLocked()
	c.state = Grading
	c.failure = nil
	epoch := c.epoch
	subject, topic := c.subject, c.topic
	questions := append([]model.MockQuestion(nil), c.questions...)
	answers := c.answers.Clone()
	c.mu.Unlock()

	slog.Info("grading mock exam", "subject", subject, "answered", len(answers), "questions", len(questions))
	result, err := c.exams.GradeMockExam(ctx, subject, questions, answers)

	c.mu.Lock()
	if c.epoch != epoch || c.state != Grading {
		c.mu.Unlock()
		slog.Debug("discarding stale grading result", "subject", subject)
		return ErrDiscarded
	}
	if err != nil {
		c.state = InProgress
		c.failure = newFailure(GradingFailure, "", err)
		c.startTimerLocked()
		c.mu.Unlock()
		slog.Warn("grading failed", "subject", subject, "error", err)
		return c.failure
	}
	c.state = Graded
	c.result = result
	attempt := model.ExamAttempt{
		ID:        c.opts.NewID(),
		Subject:   subject,
		Timestamp: c.opts.Now().UnixMilli(),
		Score:     result.AttainedMarks,
		MaxScore:  result.TotalMarks,
		Topic:     topic,
	}
	c.mu.Unlock()

	// The attempt is kept even if the caller goes away after grading.
	if err := c.attempts.Append(context.WithoutCancel(ctx), attempt); err != nil {
		slog.Error("failed to record attempt", "subject", subject, "error", err)
		c.mu.Lock()
		if c.epoch == epoch {
			c.notice = newFailure(StorageFailure, "", err)
		}
		c.mu.Unlock()
	}
	return nil
}

// Reset returns the session to Idle from any state, discarding the paper,
// answers, result and any pending reply.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.clear()
	c.subject, c.topic, c.kind = "", "", ""
	c.failure = nil
	c.notice = nil
}

func (c *Controller) clear() {
	c.stopTimerLocked()
	c.state = Idle
	c.questions = nil
	c.answers = model.AnswerMap{}
	c.index = 0
	c.remaining = 0
	c.result = nil
}

// View is a snapshot of a session.
type View struct {
	State          State                 `json:"state"`
	Subject        model.Subject         `json:"subject,omitempty"`
	Topic          string                `json:"topic,omitempty"`
	Kind           model.QuestionKind    `json:"kind,omitempty"`
	Questions      []model.MockQuestion  `json:"questions"`
	Index          int                   `json:"index"`
	Remaining      int                   `json:"remainingSeconds"`
	Countdown      string                `json:"countdown"`
	Answers        model.AnswerMap       `json:"answers"`
	Answered       int                   `json:"answered"`
	Result         *model.MockExamResult `json:"result,omitempty"`
	CambridgeScale int                   `json:"cambridgeScale,omitempty"`
	Failure        *Failure              `json:"error,omitempty"`
	Notice         *Failure              `json:"notice,omitempty"`
}

// Current returns the question at Index, if any.
func (v View) Current() (model.MockQuestion, bool) {
	if v.Index < 0 || v.Index >= len(v.Questions) {
		return model.MockQuestion{}, false
	}
	return v.Questions[v.Index], true
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:     c.state,
		Subject:   c.subject,
		Topic:     c.topic,
		Kind:      c.kind,
		Questions: append([]model.MockQuestion{}, c.questions...),
		Index:     c.index,
		Remaining: c.remaining,
		Countdown: model.FormatCountdown(c.remaining),
		Answers:   c.answers.Clone(),
		Answered:  len(c.answers),
		Failure:   c.failure,
		Notice:    c.notice,
	}
	if c.result != nil {
		res := *c.result
		v.Result = &res
		v.CambridgeScale = model.CambridgeScale(res.Percentage)
	}
	return v
}
