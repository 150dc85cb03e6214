package survey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
)

// ErrIncomplete matches every *ValidationError.
var ErrIncomplete = errors.New("survey incomplete")

// ValidationError lists what keeps a step from being complete.
type ValidationError struct {
	Step    int      `json:"step"`
	StepID  string   `json:"stepId,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 && len(e.Invalid) == 0 {
		return fmt.Sprintf("step %d: %s", e.Step, ErrStepOutOfRange)
	}
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("step %d: %s", e.Step, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrIncomplete
}

// Fields only ever collected by the brand-collaboration step. They are
// dropped from responses outside that branch even if the schema changes.
var brandFields = []string{
	"companyName",
	"contactPerson",
	"collaborationTitle",
	"collaborationContent",
	"brandPhoneNumber",
}

const (
	collaborationEmailField = "email"
	prizeEmailField         = "emailForPrizes"
)

type SubmitResult struct {
	ResponseID string
	Recipient  string
	// MessageID is empty when no confirmation was sent.
	MessageID string
}

// Submit validates every visible step, saves the response tagged with the
// schema and then sends the confirmation mail. A failed save leaves the
// wizard open so the caller can retry; a failed mail is only logged. The
// wizard is closed after a successful save.
func (w *Wizard) Submit(ctx context.Context) (SubmitResult, error) {
	if !w.submitting.CompareAndSwap(false, true) {
		return SubmitResult{}, ErrSubmitInProgress
	}
	defer w.submitting.Store(false)

	if w.closed {
		return SubmitResult{}, ErrClosed
	}
	if w.responses == nil {
		return SubmitResult{}, ErrNoStore
	}
	if err := w.validateAll(); err != nil {
		return SubmitResult{}, err
	}

	answers := w.submission()
	inBranch := model.BrandCollaboration().Holds(answers)
	res := SubmitResult{Recipient: Recipient(w.schema, answers, inBranch)}

	id, err := w.responses.Save(ctx, model.Response{
		SchemaID:      w.schema.ID,
		SchemaVersion: w.schema.Version,
		Answers:       answers,
		SubmittedAt:   w.now().UTC(),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("survey.save: %w", err)
	}
	res.ResponseID = id
	w.closed = true

	if w.notifier == nil {
		return res, nil
	}
	if res.Recipient == "" {
		log.Debugf("survey.notify: response %s has no recipient", id)
		return res, nil
	}
	msgID, err := w.notifier.SendConfirmation(ctx, res.Recipient, NotificationData(id, w.schema, answers))
	if err != nil {
		log.Warnf("survey.notify: response %s: %s", id, err)
		return res, nil
	}
	res.MessageID = msgID
	return res, nil
}

func (w *Wizard) validateAll() error {
	for step := 1; step <= len(w.schema.Steps); step++ {
		if verr := w.checkStep(step, true); verr != nil {
			return verr
		}
	}
	return nil
}

// submission is the answer set to persist: the questions of skipped steps
// are removed, and so are the brand fields outside the brand branch.
func (w *Wizard) submission() model.Answers {
	answers := w.answers.Clone()
	for _, step := range w.schema.Steps {
		if step.Conditional.Holds(w.answers) {
			continue
		}
		for _, q := range step.Questions {
			delete(answers, q.ID)
			for _, opt := range q.Options {
				delete(answers, model.FollowUpKey(q.ID, opt.Value))
			}
		}
	}
	if model.BrandCollaboration().Holds(answers) {
		return answers
	}
	for _, key := range brandFields {
		delete(answers, key)
	}
	return answers
}

// Recipient picks the address that receives the confirmation: an e-mail
// question flagged sendCouponToThisEmail, else the collaboration contact
// address when in the brand branch, else the prize-draw address.
//
// TODO: confirm this precedence with the campaign owners.
func Recipient(schema model.Schema, answers model.Answers, inBranch bool) string {
	for _, q := range schema.Questions() {
		if q.Type != model.TypeEmail || !q.SendCouponToThisEmail {
			continue
		}
		if s := strings.TrimSpace(answers.String(q.ID)); s != "" {
			return s
		}
	}
	if inBranch {
		if s := strings.TrimSpace(answers.String(collaborationEmailField)); s != "" {
			return s
		}
	}
	return strings.TrimSpace(answers.String(prizeEmailField))
}

// NotificationData flattens a response for the mail template: lists are
// joined, unset answers are empty and a few extra keys are added.
func NotificationData(responseID string, schema model.Schema, answers model.Answers) map[string]any {
	data := make(map[string]any, len(answers)+3)
	for k, v := range answers {
		switch v := v.(type) {
		case []string:
			data[k] = strings.Join(v, ", ")
		default:
			if model.IsEmptyValue(v) {
				data[k] = ""
			} else {
				data[k] = v
			}
		}
	}
	data["responseId"] = responseID
	data["schemaVersion"] = schema.Version
	data["isBrandCollaboration"] = model.BrandCollaboration().Holds(answers)
	return data
}

// Validate checks a complete answer set against schema, step by step.
func Validate(schema model.Schema, answers model.Answers) error {
	w, err := New(schema)
	if err != nil {
		return err
	}
	if err = w.Restore(0, 0, answers); err != nil {
		return err
	}
	return w.validateAll()
}
