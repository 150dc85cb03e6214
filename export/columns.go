package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbolis/workation/model"
)

type Column struct {
	Key    string
	Header string
	StepID string
	// Brand marks columns of a conditional (brand collaboration) step.
	Brand    bool
	question *model.Question
}

// Columns lists one column per question of schema, each followed by the
// follow-up columns of its options.
func Columns(schema model.Schema) []Column {
	var cols []Column
	for _, step := range schema.Steps {
		prefix := ""
		if step.Conditional != nil {
			prefix = "[" + firstNonEmpty(step.Title, step.ID) + "] "
		}
		for i := range step.Questions {
			q := &step.Questions[i]
			cols = append(cols, Column{
				Key:      q.ID,
				Header:   prefix + firstNonEmpty(q.Title, q.ID),
				StepID:   step.ID,
				Brand:    step.Conditional != nil,
				question: q,
			})
			for _, opt := range q.Options {
				if !opt.HasFollowUpQuestion {
					continue
				}
				cols = append(cols, Column{
					Key:    model.FollowUpKey(q.ID, opt.Value),
					Header: fmt.Sprintf("%s%s - %s", prefix, firstNonEmpty(q.Title, q.ID), firstNonEmpty(opt.FollowUpQuestion, opt.Label)),
					StepID: step.ID,
					Brand:  step.Conditional != nil,
				})
			}
		}
	}
	return cols
}

// Value formats an answer for display; option values become their labels.
func (c Column) Value(v any) string {
	if model.IsEmptyValue(v) {
		return ""
	}
	if list, ok := model.StringsOf(v); ok {
		parts := make([]string, len(list))
		for i, s := range list {
			parts[i] = c.label(s)
		}
		return strings.Join(parts, ", ")
	}
	if s, ok := v.(string); ok {
		return c.label(s)
	}
	return fmt.Sprint(v)
}

func (c Column) label(value string) string {
	if c.question == nil {
		return value
	}
	if opt, ok := c.question.Option(value); ok && opt.Label != "" {
		return opt.Label
	}
	return value
}

// extraKeys lists the answer keys of rs that no column covers, sorted.
func extraKeys(cols []Column, rs []model.Response) []string {
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Key] = true
	}
	seen := map[string]bool{}
	var extra []string
	for _, r := range rs {
		for k := range r.Answers {
			if !known[k] && !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return extra
}

// Field is one labelled answer of a response.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Step  string `json:"step,omitempty"`
	Brand bool   `json:"brand,omitempty"`
	Value string `json:"value"`
}

// Describe pairs each answer of r with its column in schema. Answers the
// schema does not know are listed last under their raw key.
func Describe(schema model.Schema, r model.Response) []Field {
	cols := Columns(schema)
	for _, k := range extraKeys(cols, []model.Response{r}) {
		cols = append(cols, Column{Key: k, Header: k})
	}

	fields := make([]Field, 0, len(cols))
	for _, c := range cols {
		v, ok := r.Answers[c.Key]
		if !ok {
			continue
		}
		fields = append(fields, Field{
			Key:   c.Key,
			Label: c.Header,
			Step:  c.StepID,
			Brand: c.Brand,
			Value: c.Value(v),
		})
	}
	return fields
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
