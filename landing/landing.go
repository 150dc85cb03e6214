// Package landing assembles the marketing page: the content documents the
// admin edits, and the scroll sections laid over them.
package landing

import (
	"context"
	"fmt"

	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/store"
)

// Section is a band of the page, from Start to End as a fraction of the
// total scroll height.
type Section struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// Sticky sections pin their content while text is revealed.
	Sticky bool `json:"sticky,omitempty"`
}

// SurveySection opens the survey wizard once reached.
const SurveySection = "survey"

// DefaultSections is the campaign page from top to bottom.
var DefaultSections = []Section{
	{ID: "intro", Start: 0, End: 0.12},
	{ID: "video", Start: 0.12, End: 0.3},
	{ID: "gallery", Start: 0.3, End: 0.48},
	{ID: "workLife", Start: 0.48, End: 0.78, Sticky: true},
	{ID: SurveySection, Start: 0.78, End: 1},
}

// ValidateSections checks that sections cover [0, 1] without gaps or
// overlaps, in order.
func ValidateSections(sections []Section) error {
	if len(sections) == 0 {
		return fmt.Errorf("no sections")
	}
	at := 0.0
	for _, s := range sections {
		if s.Start != at {
			return fmt.Errorf("section %q: starts at %g, expected %g", s.ID, s.Start, at)
		}
		if s.End <= s.Start {
			return fmt.Errorf("section %q: empty", s.ID)
		}
		at = s.End
	}
	if at != 1 {
		return fmt.Errorf("sections end at %g", at)
	}
	return nil
}

type Page struct {
	Gallery  []string             `json:"gallery"`
	WorkLife []model.WorkLifeItem `json:"workLife"`
	Sections []Section            `json:"sections"`
}

// LoadPage reads the page content. Documents never saved come back empty.
func LoadPage(ctx context.Context, content store.ContentStore) (Page, error) {
	gallery, err := store.LoadGallery(ctx, content)
	if err != nil {
		return Page{}, fmt.Errorf("load gallery: %w", err)
	}
	workLife, err := store.LoadWorkLife(ctx, content)
	if err != nil {
		return Page{}, fmt.Errorf("load work-life section: %w", err)
	}
	return Page{
		Gallery:  gallery.Images,
		WorkLife: workLife.Ordered(),
		Sections: DefaultSections,
	}, nil
}
