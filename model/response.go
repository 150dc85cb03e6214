package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type undefinedValue struct{}

// MarshalJSON keeps an unset answer from ever being persisted as anything
// other than an empty string.
func (undefinedValue) MarshalJSON() ([]byte, error) { return []byte(`""`), nil }

// Undefined marks an answer key that exists but was never given a value.
var Undefined any = undefinedValue{}

// Answers maps question ids (and follow-up keys) to answer values:
// string for text-like and radio questions, []string for checkbox and file.
type Answers map[string]any

func (a Answers) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Answers) Strings(key string) []string {
	list, _ := StringsOf(a[key])
	return list
}

// IsEmpty reports whether key holds nothing usable: missing, nil, Undefined,
// blank string or empty list.
func (a Answers) IsEmpty(key string) bool {
	return IsEmptyValue(a[key])
}

// UnmarshalJSON normalizes list answers to []string.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = make(Answers, len(raw))
	for k, v := range raw {
		if list, ok := StringsOf(v); ok {
			v = list
		}
		(*a)[k] = v
	}
	return nil
}

func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

func IsEmptyValue(v any) bool {
	switch v := v.(type) {
	case nil, undefinedValue:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// StringsOf converts list-shaped answers, including []any coming out of
// encoding/json, to []string.
func StringsOf(v any) ([]string, bool) {
	switch v := v.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// CleanAnswers prepares answers for persistence: unset values become empty
// strings and nil values are dropped.
func CleanAnswers(a Answers) Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		switch v.(type) {
		case nil:
			continue
		case undefinedValue:
			out[k] = ""
		default:
			if list, ok := StringsOf(v); ok {
				v = list
			}
			out[k] = v
		}
	}
	return out
}

type Response struct {
	ID            string
	SchemaID      string
	SchemaVersion string
	Answers       Answers
	SubmittedAt   time.Time
	CreatedAt     time.Time
}

var reservedKeys = map[string]bool{
	"id":            true,
	"schemaId":      true,
	"schemaVersion": true,
	"submittedAt":   true,
	"createdAt":     true,
}

// IsReservedKey reports whether key is used by response metadata and thus
// cannot be a question id.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// MarshalJSON writes the flat document shape: answers side by side with
// the metadata keys.
func (r Response) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Answers)+len(reservedKeys))
	for k, v := range r.Answers {
		doc[k] = v
	}
	if r.ID != "" {
		doc["id"] = r.ID
	}
	doc["schemaId"] = r.SchemaID
	doc["schemaVersion"] = r.SchemaVersion
	doc["submittedAt"] = r.SubmittedAt
	doc["createdAt"] = r.CreatedAt
	return json.Marshal(doc)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = Response{Answers: Answers{}}
	for k, v := range doc {
		if !reservedKeys[k] {
			if list, ok := StringsOf(v); ok {
				v = list
			}
			r.Answers[k] = v
			continue
		}
		s, _ := v.(string)
		switch k {
		case "id":
			r.ID = s
		case "schemaId":
			r.SchemaID = s
		case "schemaVersion":
			r.SchemaVersion = s
		case "submittedAt", "createdAt":
			if s == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("response %s: %w", k, err)
			}
			if k == "submittedAt" {
				r.SubmittedAt = ts
			} else {
				r.CreatedAt = ts
			}
		}
	}
	return nil
}
