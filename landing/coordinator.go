package landing

import (
	"errors"
	"sync"
	"sync/atomic"
)

var ErrNotOwner = errors.New("landing: not the coordinator owner")

// Owner is the token allowed to change a Coordinator's flags.
type Owner struct {
	id uint64
}

var owners atomic.Uint64

// State is what every section reads before reacting to scroll.
type State struct {
	// StickyScrollDisabled stops sticky sections from pinning, e.g. while the
	// page jumps to an anchor.
	StickyScrollDisabled bool `json:"stickyScrollDisabled"`
	// MenuScrolling is set while a menu click scrolls the page; sections
	// must not trigger on positions crossed along the way.
	MenuScrolling bool `json:"menuScrolling"`
	SurveyOpen    bool `json:"surveyOpen"`
}

// Coordinator is shared by reference between the page sections. Anyone may
// read it; only the holder of its Owner may change it.
type Coordinator struct {
	owner    Owner
	sections []Section

	mu    sync.RWMutex
	state State
}

func NewCoordinator(sections []Section) (*Coordinator, Owner, error) {
	if err := ValidateSections(sections); err != nil {
		return nil, Owner{}, err
	}
	owner := Owner{id: owners.Add(1)}
	return &Coordinator{owner: owner, sections: sections}, owner, nil
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Update applies fn to the state on behalf of o.
func (c *Coordinator) Update(o Owner, fn func(*State)) error {
	if o != c.owner {
		return ErrNotOwner
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	return nil
}

func (c *Coordinator) SetStickyScrollDisabled(o Owner, v bool) error {
	return c.Update(o, func(s *State) { s.StickyScrollDisabled = v })
}

func (c *Coordinator) SetMenuScrolling(o Owner, v bool) error {
	return c.Update(o, func(s *State) { s.MenuScrolling = v })
}

func (c *Coordinator) SetSurveyOpen(o Owner, v bool) error {
	return c.Update(o, func(s *State) { s.SurveyOpen = v })
}

type Observation struct {
	Section string `json:"section"`
	// Progress within the section, 0 to 1.
	Progress float64 `json:"progress"`
	Pinned   bool    `json:"pinned"`
	// OpenSurvey is true when the survey should open at this position.
	OpenSurvey bool `json:"openSurvey"`
}

// Observe maps a page scroll position (0 to 1, clamped) to its section.
func (c *Coordinator) Observe(progress float64) Observation {
	progress = min(max(progress, 0), 1)
	state := c.State()

	sec := c.sections[len(c.sections)-1]
	for _, s := range c.sections {
		if progress < s.End {
			sec = s
			break
		}
	}
	return Observation{
		Section:    sec.ID,
		Progress:   (progress - sec.Start) / (sec.End - sec.Start),
		Pinned:     sec.Sticky && !state.StickyScrollDisabled,
		OpenSurvey: sec.ID == SurveySection && !state.MenuScrolling && !state.SurveyOpen,
	}
}
