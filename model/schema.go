package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type QuestionType string

const (
	TypeText     QuestionType = "text"
	TypeTextarea QuestionType = "textarea"
	TypeEmail    QuestionType = "email"
	TypeTel      QuestionType = "tel"
	TypeRadio    QuestionType = "radio"
	TypeCheckbox QuestionType = "checkbox"
	TypeFile     QuestionType = "file"
)

// Schema is one immutable version of the survey definition.
type Schema struct {
	ID          string    `json:"id,omitempty"`
	Version     string    `json:"version,omitempty"`
	IsActive    bool      `json:"isActive"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Step struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Conditional *Condition `json:"conditional,omitempty"`
	Questions   []Question `json:"questions"`
}

type Question struct {
	ID          string       `json:"id"`
	Type        QuestionType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Required    bool         `json:"required"`
	Options     []Option     `json:"options,omitempty"`
	Condition   *Condition   `json:"condition,omitempty"`

	// email only: the answer receives the confirmation mail
	SendCouponToThisEmail bool `json:"sendCouponToThisEmail,omitempty"`
	// file only
	Multiple bool `json:"multiple,omitempty"`
}

type Option struct {
	Value               string `json:"value"`
	Label               string `json:"label"`
	HasFollowUpQuestion bool   `json:"hasFollowUpQuestion,omitempty"`
	FollowUpQuestion    string `json:"followUpQuestion,omitempty"`
}

// Questions returns every question of the schema in display order.
func (s *Schema) Questions() []Question {
	var qs []Question
	for _, step := range s.Steps {
		qs = append(qs, step.Questions...)
	}
	return qs
}

func (s *Schema) Question(id string) (Question, bool) {
	for _, step := range s.Steps {
		for _, q := range step.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

func (q Question) Option(value string) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// FollowUpKey is the answer key of the free-text follow-up of an option.
func FollowUpKey(questionID, optionValue string) string {
	return questionID + "_" + optionValue + "_followUp"
}

const (
	BrandCollaborationField = "visitPurpose"
	BrandCollaborationValue = "brand_collaboration"
)

// BrandCollaboration is the condition of the brand-collaboration branch.
func BrandCollaboration() *Condition {
	return &Condition{Field: BrandCollaborationField, Op: OpIncludes, Value: BrandCollaborationValue}
}

type ConditionOp string

const (
	OpEquals   ConditionOp = "equals"
	OpIncludes ConditionOp = "includes"
)

// Condition is either {field, equals} or {field, includes}.
// A nil condition, or one without a field, always holds.
type Condition struct {
	Field string
	Op    ConditionOp
	Value string
}

func (c *Condition) Holds(answers Answers) bool {
	if c == nil || c.Field == "" {
		return true
	}
	v, ok := answers[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case OpIncludes:
		if list, ok := StringsOf(v); ok {
			for _, s := range list {
				if s == c.Value {
					return true
				}
			}
			return false
		}
		s, ok := v.(string)
		return ok && s == c.Value
	default:
		s, ok := v.(string)
		return ok && s == c.Value
	}
}

func (c Condition) MarshalJSON() ([]byte, error) {
	if c.Field == "" {
		return []byte("null"), nil
	}
	op := c.Op
	if op == "" {
		op = OpEquals
	}
	return json.Marshal(map[string]string{
		"field":    c.Field,
		string(op): c.Value,
	})
}

// UnmarshalJSON accepts the legacy shapes as well: a bare `true` marks the
// brand-collaboration branch and `{field, value}` means equals.
func (c *Condition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false":
		*c = Condition{}
		return nil
	case "true":
		*c = *BrandCollaboration()
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	field, _ := raw["field"].(string)
	if field == "" {
		return fmt.Errorf("condition: missing field")
	}
	*c = Condition{Field: field}
	switch {
	case raw["includes"] != nil:
		c.Op = OpIncludes
		c.Value = scalarString(raw["includes"])
	case raw["equals"] != nil:
		c.Op = OpEquals
		c.Value = scalarString(raw["equals"])
	case raw["value"] != nil:
		c.Op = OpEquals
		c.Value = scalarString(raw["value"])
	default:
		return fmt.Errorf("condition on %q: missing equals or includes", field)
	}
	return nil
}

func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
