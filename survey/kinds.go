package survey

import (
	"fmt"
	"regexp"

	"github.com/mbolis/workation/model"
)

// kind is the closed set of question behaviours. Every switch over it must
// handle all five variants.
type kind interface {
	isKind()
}

type textKind struct{ multiline bool }

type emailKind struct{ coupon bool }

type telKind struct{}

type choiceKind struct {
	multiple bool
	options  []model.Option
}

type fileKind struct{ multiple bool }

func (textKind) isKind()   {}
func (emailKind) isKind()  {}
func (telKind) isKind()    {}
func (choiceKind) isKind() {}
func (fileKind) isKind()   {}

func kindOf(q model.Question) (kind, error) {
	switch q.Type {
	case model.TypeText:
		return textKind{}, nil
	case model.TypeTextarea:
		return textKind{multiline: true}, nil
	case model.TypeEmail:
		return emailKind{coupon: q.SendCouponToThisEmail}, nil
	case model.TypeTel:
		return telKind{}, nil
	case model.TypeRadio:
		return choiceKind{options: q.Options}, nil
	case model.TypeCheckbox:
		return choiceKind{multiple: true, options: q.Options}, nil
	case model.TypeFile:
		return fileKind{multiple: q.Multiple}, nil
	default:
		return nil, fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
	}
}

var (
	reEmail    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	reNotDigit = regexp.MustCompile(`\D+`)
)

const msgInvalidEmail = "Please enter a valid email address."

func validEmail(s string) bool {
	return reEmail.MatchString(s)
}

func digitsOnly(s string) string {
	return reNotDigit.ReplaceAllString(s, "")
}

// problems lists the answer keys that keep q from being complete: q itself
// when required and empty or when its answer has the wrong shape, and the
// follow-up key of a selected option. strict also rejects malformed e-mail
// addresses.
func problems(q model.Question, k kind, answers model.Answers, strict bool) (missing, invalid []string) {
	if q.Required && answers.IsEmpty(q.ID) {
		missing = append(missing, q.ID)
	}
	if !wellFormed(k, answers[q.ID]) {
		invalid = append(invalid, q.ID)
	}

	switch k := k.(type) {
	case textKind, telKind, fileKind:
	case emailKind:
		if s := answers.String(q.ID); strict && s != "" && !validEmail(s) {
			invalid = append(invalid, q.ID)
		}
	case choiceKind:
		for _, opt := range k.options {
			if !opt.HasFollowUpQuestion || !selected(answers, q.ID, opt.Value) {
				continue
			}
			key := model.FollowUpKey(q.ID, opt.Value)
			if answers.IsEmpty(key) {
				missing = append(missing, key)
			} else if _, ok := answers[key].(string); !ok {
				invalid = append(invalid, key)
			}
		}
	default:
		panic(fmt.Sprintf("unhandled question kind %T", k))
	}
	return
}

// wellFormed reports whether v is an answer k can hold: a string for text
// questions, one of the options for radios, a list of options for
// checkboxes, URLs for files. Unset answers are always well formed.
func wellFormed(k kind, v any) bool {
	if model.IsEmptyValue(v) {
		return true
	}
	switch k := k.(type) {
	case textKind, emailKind, telKind:
		_, ok := v.(string)
		return ok
	case fileKind:
		if _, ok := v.(string); ok {
			return true
		}
		_, ok := model.StringsOf(v)
		return ok && k.multiple
	case choiceKind:
		if !k.multiple {
			s, ok := v.(string)
			return ok && k.has(s)
		}
		list, ok := model.StringsOf(v)
		if !ok {
			return false
		}
		for _, s := range list {
			if !k.has(s) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("unhandled question kind %T", k))
	}
}

func (k choiceKind) has(value string) bool {
	for _, opt := range k.options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

func selected(answers model.Answers, questionID, value string) bool {
	v := answers[questionID]
	if list, ok := model.StringsOf(v); ok {
		for _, s := range list {
			if s == value {
				return true
			}
		}
		return false
	}
	s, ok := v.(string)
	return ok && s == value
}

// Field describes one question as a client renders it.
type Field struct {
	ID          string        `json:"id"`
	Input       string        `json:"input"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Required    bool          `json:"required"`
	Visible     bool          `json:"visible"`
	Multiple    bool          `json:"multiple,omitempty"`
	Options     []FieldOption `json:"options,omitempty"`
	Value       any           `json:"value"`
	Error       string        `json:"error,omitempty"`
}

type FieldOption struct {
	Value    string    `json:"value"`
	Label    string    `json:"label"`
	Selected bool      `json:"selected"`
	FollowUp *FollowUp `json:"followUp,omitempty"`
}

// FollowUp is the dependent text input shown under a selected option.
type FollowUp struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
	Value  string `json:"value"`
}

func describe(q model.Question, k kind, answers model.Answers, emailError string) Field {
	f := Field{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Placeholder: q.Placeholder,
		Required:    q.Required,
		Visible:     q.Condition.Holds(answers),
		Value:       answers[q.ID],
	}

	switch k := k.(type) {
	case textKind:
		f.Input = "text"
		if k.multiline {
			f.Input = "textarea"
		}
	case emailKind:
		f.Input = "email"
		f.Error = emailError
	case telKind:
		f.Input = "tel"
	case choiceKind:
		f.Input = "radio"
		if k.multiple {
			f.Input = "checkbox"
			f.Multiple = true
		}
		for _, opt := range k.options {
			fo := FieldOption{
				Value:    opt.Value,
				Label:    opt.Label,
				Selected: selected(answers, q.ID, opt.Value),
			}
			if opt.HasFollowUpQuestion && fo.Selected {
				key := model.FollowUpKey(q.ID, opt.Value)
				fo.FollowUp = &FollowUp{Key: key, Prompt: opt.FollowUpQuestion, Value: answers.String(key)}
			}
			f.Options = append(f.Options, fo)
		}
	case fileKind:
		f.Input = "file"
		f.Multiple = k.multiple
	default:
		panic(fmt.Sprintf("unhandled question kind %T", k))
	}

	if f.Value == model.Undefined {
		f.Value = nil
	}
	return f
}
