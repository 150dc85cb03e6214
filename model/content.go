package model

import (
	"encoding/json"
	"errors"
	"sort"
)

// Content document names.
const (
	DocGallery        = "gallery"
	DocWorkLife       = "workLifeSection"
	DocEmailTemplates = "emailTemplates"
)

type Gallery struct {
	Images []string `json:"images" validate:"dive,required"`
}

type WorkLifeItem struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// WorkLifeSection is stored flat: {"itemOrder": [...], "item1": {...}, ...}.
type WorkLifeSection struct {
	ItemOrder []string                `validate:"dive,required"`
	Items     map[string]WorkLifeItem `validate:"dive"`
}

func (s WorkLifeSection) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Items)+1)
	for k, v := range s.Items {
		doc[k] = v
	}
	order := s.ItemOrder
	if order == nil {
		order = []string{}
	}
	doc["itemOrder"] = order
	return json.Marshal(doc)
}

func (s *WorkLifeSection) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*s = WorkLifeSection{Items: map[string]WorkLifeItem{}}
	for k, raw := range doc {
		if k == "itemOrder" {
			if err := json.Unmarshal(raw, &s.ItemOrder); err != nil {
				return err
			}
			continue
		}
		var item WorkLifeItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		s.Items[k] = item
	}
	return nil
}

// Ordered lists the items following ItemOrder; items missing from the order
// come last, sorted by key.
func (s WorkLifeSection) Ordered() []WorkLifeItem {
	seen := make(map[string]bool, len(s.ItemOrder))
	out := make([]WorkLifeItem, 0, len(s.Items))
	for _, key := range s.ItemOrder {
		item, ok := s.Items[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	var rest []string
	for key := range s.Items {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		out = append(out, s.Items[key])
	}
	return out
}

type EmailTemplate struct {
	Subject string `json:"subject" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type EmailTemplates struct {
	Confirmation EmailTemplate `json:"confirmation"`
}

var ErrIndexOutOfRange = errors.New("index out of range")

// MoveItem moves the element at from to position to, shifting the others.
func MoveItem[T any](s []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) {
		return nil, ErrIndexOutOfRange
	}
	out := make([]T, 0, len(s))
	out = append(out, s[:from]...)
	out = append(out, s[from+1:]...)
	item := s[from]
	out = append(out[:to], append([]T{item}, out[to:]...)...)
	return out, nil
}
