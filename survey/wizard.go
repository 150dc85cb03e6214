// Package survey implements the survey wizard: a schema-driven multi-step
// form with conditional steps and questions, per-step validation and the
// submission flow (save, then best-effort confirmation mail).
//
// Step 0 is the intro; steps 1..N are the schema steps in order. A step
// whose conditional does not hold is skipped in both directions and is not
// counted by TotalSteps.
//
// A Wizard serves one respondent and is not safe for concurrent use, except
// for Submit which refuses to run twice at the same time.
package survey

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/upload"
)

var (
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrUnknownOption    = errors.New("unknown option")
	ErrWrongKind        = errors.New("operation not supported by question type")
	ErrClosed           = errors.New("survey already submitted")
	ErrStepOutOfRange   = errors.New("step out of range")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrNoStore          = errors.New("no response store configured")
	ErrNoUploader       = errors.New("no upload service configured")
)

// ResponseSaver persists a finished response and returns its id.
type ResponseSaver interface {
	Save(ctx context.Context, r model.Response) (string, error)
}

// Notifier sends the respondent's confirmation mail.
type Notifier interface {
	SendConfirmation(ctx context.Context, to string, data map[string]any) (string, error)
}

type Uploader interface {
	Upload(ctx context.Context, f upload.File, folder string) (upload.Result, error)
}

type Option func(*Wizard)

func WithResponses(s ResponseSaver) Option { return func(w *Wizard) { w.responses = s } }
func WithNotifier(n Notifier) Option       { return func(w *Wizard) { w.notifier = n } }
func WithUploader(u Uploader) Option       { return func(w *Wizard) { w.uploader = u } }
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// UploadFolder is where respondents' files are stored.
const UploadFolder = "survey"

type Wizard struct {
	schema    model.Schema
	kinds     map[string]kind
	questions map[string]model.Question

	answers     model.Answers
	emailErrors map[string]string
	current     int
	indicator   int
	closed      bool
	submitting  atomic.Bool

	responses ResponseSaver
	notifier  Notifier
	uploader  Uploader
	now       func() time.Time
}

// New checks schema and starts a wizard on its intro step, with every
// answer set but undefined.
func New(schema model.Schema, opts ...Option) (*Wizard, error) {
	if err := ValidateSchema(schema); err != nil {
		return nil, err
	}

	w := &Wizard{
		schema:      schema,
		kinds:       map[string]kind{},
		questions:   map[string]model.Question{},
		answers:     model.Answers{},
		emailErrors: map[string]string{},
		now:         time.Now,
	}
	for _, q := range schema.Questions() {
		w.kinds[q.ID], _ = kindOf(q)
		w.questions[q.ID] = q
		w.answers[q.ID] = model.Undefined
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Wizard) Schema() model.Schema { return w.schema }
func (w *Wizard) Current() int         { return w.current }

// Indicator is the progress position; it moves by one per navigation.
func (w *Wizard) Indicator() int { return w.indicator }
func (w *Wizard) Closed() bool   { return w.closed }

func (w *Wizard) Answers() model.Answers { return w.answers.Clone() }

func (w *Wizard) Answer(questionID string) any { return w.answers[questionID] }

// TotalSteps counts the schema steps currently visible.
func (w *Wizard) TotalSteps() int {
	n := 0
	for i := 1; i <= len(w.schema.Steps); i++ {
		if w.visible(i) {
			n++
		}
	}
	return n
}

func (w *Wizard) visible(step int) bool {
	if step == 0 {
		return true
	}
	if step < 0 || step > len(w.schema.Steps) {
		return false
	}
	return w.schema.Steps[step-1].Conditional.Holds(w.answers)
}

func (w *Wizard) nextVisible(from int) int {
	for s := from + 1; s <= len(w.schema.Steps); s++ {
		if w.visible(s) {
			return s
		}
	}
	return -1
}

func (w *Wizard) prevVisible(from int) int {
	for s := from - 1; s > 0; s-- {
		if w.visible(s) {
			return s
		}
	}
	return 0
}

// IsLastStep reports whether moving forward from the current step submits.
func (w *Wizard) IsLastStep() bool {
	return w.current > 0 && w.nextVisible(w.current) < 0
}

// Next moves to the next visible step once the current one is complete.
// On the last step it submits instead; submitted reports that case.
func (w *Wizard) Next(ctx context.Context) (submitted bool, err error) {
	if w.closed {
		return false, ErrClosed
	}
	if w.current > 0 {
		if verr := w.Check(w.current); verr != nil {
			return false, verr
		}
	}

	next := w.nextVisible(w.current)
	if next < 0 {
		if _, err = w.Submit(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	w.current = next
	w.indicator++
	return false, nil
}

// Prev moves back to the previous visible step, or the intro.
func (w *Wizard) Prev() {
	if w.closed || w.current == 0 {
		return
	}
	w.current = w.prevVisible(w.current)
	if w.indicator > 0 {
		w.indicator--
	}
}

// Restore puts the wizard back in a state reported by a client: step,
// progress and answers. Keys that are neither question ids nor follow-up
// keys are dropped.
func (w *Wizard) Restore(step, indicator int, answers model.Answers) error {
	if step < 0 || step > len(w.schema.Steps) {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, step)
	}
	for key, v := range answers {
		if w.acceptsKey(key) && v != nil {
			w.answers[key] = v
		}
	}
	if !w.visible(step) {
		step = w.prevVisible(step)
	}
	w.current = step
	w.indicator = max(0, min(indicator, w.position(step)))
	return nil
}

// position is the 1-based index of step among the visible steps.
func (w *Wizard) position(step int) int {
	n := 0
	for s := 1; s <= step; s++ {
		if w.visible(s) {
			n++
		}
	}
	return n
}

func (w *Wizard) acceptsKey(key string) bool {
	if _, ok := w.questions[key]; ok {
		return true
	}
	for _, q := range w.questions {
		for _, opt := range q.Options {
			if opt.HasFollowUpQuestion && model.FollowUpKey(q.ID, opt.Value) == key {
				return true
			}
		}
	}
	return false
}

// CanProceed reports whether step is complete enough to move past it.
func (w *Wizard) CanProceed(step int) bool {
	return w.Check(step) == nil
}

// Check validates one step: each required question whose condition holds
// must be answered, and so must the follow-up of every selected option
// that has one. A step whose conditional does not hold is always valid.
func (w *Wizard) Check(step int) *ValidationError {
	if step == 0 {
		return nil
	}
	if step < 0 || step > len(w.schema.Steps) {
		return &ValidationError{Step: step}
	}
	return w.checkStep(step, false)
}

func (w *Wizard) checkStep(step int, strict bool) *ValidationError {
	s := w.schema.Steps[step-1]
	if !s.Conditional.Holds(w.answers) {
		return nil
	}

	verr := &ValidationError{Step: step, StepID: s.ID}
	for _, q := range s.Questions {
		if !q.Condition.Holds(w.answers) {
			continue
		}
		missing, invalid := problems(q, w.kinds[q.ID], w.answers, strict)
		verr.Missing = append(verr.Missing, missing...)
		verr.Invalid = append(verr.Invalid, invalid...)
	}
	if len(verr.Missing) == 0 && len(verr.Invalid) == 0 {
		return nil
	}
	return verr
}

// Fields describes the questions of step for rendering.
func (w *Wizard) Fields(step int) []Field {
	if step <= 0 || step > len(w.schema.Steps) {
		return nil
	}
	qs := w.schema.Steps[step-1].Questions
	fields := make([]Field, 0, len(qs))
	for _, q := range qs {
		fields = append(fields, describe(q, w.kinds[q.ID], w.answers, w.emailErrors[q.ID]))
	}
	return fields
}

func (w *Wizard) question(id string) (model.Question, kind, error) {
	q, ok := w.questions[id]
	if !ok {
		return model.Question{}, nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, id)
	}
	return q, w.kinds[id], nil
}

// SetText sets the answer of a text-like question. Telephone numbers keep
// only their digits.
func (w *Wizard) SetText(questionID, value string) error {
	q, k, err := w.question(questionID)
	if err != nil {
		return err
	}
	switch k.(type) {
	case textKind, emailKind:
		w.answers[q.ID] = value
	case telKind:
		w.answers[q.ID] = digitsOnly(value)
	case choiceKind, fileKind:
		return fmt.Errorf("%w: set text on %s question %q", ErrWrongKind, q.Type, q.ID)
	default:
		panic(fmt.Sprintf("unhandled question kind %T", k))
	}
	return nil
}

// BlurEmail checks the shape of an e-mail answer when its input loses
// focus. The returned message is empty if the address looks fine; a bad
// address does not block anything.
func (w *Wizard) BlurEmail(questionID string) (string, error) {
	q, k, err := w.question(questionID)
	if err != nil {
		return "", err
	}
	if _, ok := k.(emailKind); !ok {
		return "", fmt.Errorf("%w: email check on %s question %q", ErrWrongKind, q.Type, q.ID)
	}
	s := w.answers.String(q.ID)
	if s == "" || validEmail(s) {
		delete(w.emailErrors, q.ID)
		return "", nil
	}
	w.emailErrors[q.ID] = msgInvalidEmail
	return msgInvalidEmail, nil
}

// Select picks the single option of a radio question.
func (w *Wizard) Select(questionID, value string) error {
	q, k, err := w.question(questionID)
	if err != nil {
		return err
	}
	c, ok := k.(choiceKind)
	if !ok || c.multiple {
		return fmt.Errorf("%w: select on %s question %q", ErrWrongKind, q.Type, q.ID)
	}
	if _, ok := q.Option(value); !ok {
		return fmt.Errorf("%w: %q of %q", ErrUnknownOption, value, q.ID)
	}
	w.answers[q.ID] = value
	return nil
}

// Toggle flips one option of a checkbox question and reports whether it is
// now selected. Selected values keep the option order.
func (w *Wizard) Toggle(questionID, value string) (bool, error) {
	q, k, err := w.question(questionID)
	if err != nil {
		return false, err
	}
	c, ok := k.(choiceKind)
	if !ok || !c.multiple {
		return false, fmt.Errorf("%w: toggle on %s question %q", ErrWrongKind, q.Type, q.ID)
	}
	if _, ok := q.Option(value); !ok {
		return false, fmt.Errorf("%w: %q of %q", ErrUnknownOption, value, q.ID)
	}

	on := !selected(w.answers, q.ID, value)
	list := []string{}
	for _, opt := range q.Options {
		if opt.Value == value {
			if on {
				list = append(list, value)
			}
		} else if selected(w.answers, q.ID, opt.Value) {
			list = append(list, opt.Value)
		}
	}
	w.answers[q.ID] = list
	return on, nil
}

// SetFollowUp sets the free-text answer tied to an option of a choice question.
func (w *Wizard) SetFollowUp(questionID, optionValue, text string) error {
	q, _, err := w.question(questionID)
	if err != nil {
		return err
	}
	opt, ok := q.Option(optionValue)
	if !ok {
		return fmt.Errorf("%w: %q of %q", ErrUnknownOption, optionValue, q.ID)
	}
	if !opt.HasFollowUpQuestion {
		return fmt.Errorf("%w: option %q of %q has no follow-up", ErrWrongKind, optionValue, q.ID)
	}
	w.answers[model.FollowUpKey(q.ID, opt.Value)] = text
	return nil
}

// AttachResult counts the outcome of a batch of uploads.
type AttachResult struct {
	URLs   []string
	Failed int
	Errors []error
}

// AttachFiles uploads files for a file question. Each stored file adds its
// URL to the answer; failures are counted and never undo the successes.
func (w *Wizard) AttachFiles(ctx context.Context, questionID string, files []upload.File) (AttachResult, error) {
	q, k, err := w.question(questionID)
	if err != nil {
		return AttachResult{}, err
	}
	f, ok := k.(fileKind)
	if !ok {
		return AttachResult{}, fmt.Errorf("%w: attach files to %s question %q", ErrWrongKind, q.Type, q.ID)
	}
	if w.uploader == nil {
		return AttachResult{}, ErrNoUploader
	}
	if !f.multiple && len(files) > 1 {
		files = files[:1]
	}

	res := AttachResult{}
	for _, file := range files {
		out, err := w.uploader.Upload(ctx, file, UploadFolder)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", file.Name, err))
			continue
		}
		res.URLs = append(res.URLs, out.URL)
	}

	if len(res.URLs) > 0 {
		if f.multiple {
			prev, _ := model.StringsOf(w.answers[q.ID])
			w.answers[q.ID] = append(append([]string{}, prev...), res.URLs...)
		} else {
			w.answers[q.ID] = res.URLs[len(res.URLs)-1]
		}
	}
	return res, nil
}
