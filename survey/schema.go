package survey

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/store"
)

// SchemaError collects every problem found in a schema draft.
type SchemaError struct {
	Problems []string `json:"problems"`
}

func (e *SchemaError) Error() string {
	return "invalid schema: " + strings.Join(e.Problems, "; ")
}

// ValidateSchema checks that answers of schema can be stored unambiguously
// and that every question has a known behaviour.
func ValidateSchema(schema model.Schema) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if len(schema.Steps) == 0 {
		add("no steps")
	}

	stepIDs := map[string]bool{}
	questionIDs := map[string]bool{}
	followUps := map[string]bool{}
	for i, step := range schema.Steps {
		if step.ID == "" {
			add("step %d: missing id", i+1)
		} else if stepIDs[step.ID] {
			add("step %q: duplicate id", step.ID)
		}
		stepIDs[step.ID] = true

		for _, q := range step.Questions {
			switch {
			case q.ID == "":
				add("step %q: question without id", step.ID)
				continue
			case questionIDs[q.ID]:
				add("question %q: duplicate id", q.ID)
			case model.IsReservedKey(q.ID):
				add("question %q: id is reserved", q.ID)
			}
			questionIDs[q.ID] = true

			k, err := kindOf(q)
			if err != nil {
				add("%s", err)
				continue
			}
			switch k := k.(type) {
			case choiceKind:
				if len(k.options) == 0 {
					add("question %q: no options", q.ID)
				}
				values := map[string]bool{}
				for _, opt := range k.options {
					if opt.Value == "" {
						add("question %q: option without value", q.ID)
					} else if values[opt.Value] {
						add("question %q: duplicate option %q", q.ID, opt.Value)
					}
					values[opt.Value] = true
					if opt.HasFollowUpQuestion {
						followUps[model.FollowUpKey(q.ID, opt.Value)] = true
					}
				}
			case textKind, emailKind, telKind, fileKind:
				if len(q.Options) > 0 {
					add("question %q: options are only allowed on radio and checkbox", q.ID)
				}
			default:
				panic(fmt.Sprintf("unhandled question kind %T", k))
			}
			if q.SendCouponToThisEmail && q.Type != model.TypeEmail {
				add("question %q: sendCouponToThisEmail needs an email question", q.ID)
			}
			if q.Multiple && q.Type != model.TypeFile {
				add("question %q: multiple needs a file question", q.ID)
			}
		}
	}

	for key := range followUps {
		if questionIDs[key] {
			add("question %q: id collides with a follow-up answer", key)
		}
	}
	checkCondition := func(owner string, c *model.Condition) {
		if c != nil && c.Field != "" && !questionIDs[c.Field] {
			add("%s: condition on unknown question %q", owner, c.Field)
		}
	}
	for _, step := range schema.Steps {
		checkCondition(fmt.Sprintf("step %q", step.ID), step.Conditional)
		for _, q := range step.Questions {
			checkCondition(fmt.Sprintf("question %q", q.ID), q.Condition)
		}
	}

	if len(problems) > 0 {
		return &SchemaError{Problems: problems}
	}
	return nil
}

// EnsureActive returns the active schema, creating and activating the
// built-in one first when no schema is active.
func EnsureActive(ctx context.Context, schemas store.SchemaStore) (*model.Schema, error) {
	active, err := schemas.GetActive(ctx)
	if err != nil || active != nil {
		return active, err
	}

	id, err := schemas.Create(ctx, DefaultSchema())
	if err != nil {
		return nil, fmt.Errorf("create default schema: %w", err)
	}
	log.Infof("survey: no active schema, created default %s", id)

	active, err = schemas.GetByID(ctx, id)
	if err == nil && active == nil {
		err = store.ErrNotFound
	}
	return active, err
}

func yesNo() []model.Option {
	return []model.Option{{Value: "yes", Label: "Yes"}, {Value: "no", Label: "No"}}
}

// DefaultSchema is the campaign survey used until an admin saves one.
func DefaultSchema() model.Schema {
	return model.Schema{
		Title:       "Workation campaign",
		Description: "Tell us about yourself and win a workation stay. It takes about three minutes.",
		Steps: []model.Step{{
			ID:    "basic",
			Title: "About you",
			Questions: []model.Question{
				{ID: "name", Type: model.TypeText, Title: "Name", Required: true},
				{ID: "phone", Type: model.TypeTel, Title: "Phone number", Placeholder: "01012345678", Required: true},
				{ID: "ageGroup", Type: model.TypeRadio, Title: "Age group", Required: true, Options: []model.Option{
					{Value: "20s", Label: "20s"}, {Value: "30s", Label: "30s"}, {Value: "40s", Label: "40s"}, {Value: "50plus", Label: "50 and over"},
				}},
			},
		}, {
			ID:    "visit",
			Title: "Your workation",
			Questions: []model.Question{
				{ID: "hasExperienced", Type: model.TypeRadio, Title: "Have you ever been on a workation?", Required: true, Options: yesNo()},
				{
					ID: "experiencePlace", Type: model.TypeText, Title: "Where did you go?",
					Condition: &model.Condition{Field: "hasExperienced", Op: model.OpEquals, Value: "yes"},
					Required:  true,
				},
				{ID: model.BrandCollaborationField, Type: model.TypeCheckbox, Title: "Why would you visit?", Required: true, Options: []model.Option{
					{Value: "rest", Label: "Rest and recharge"},
					{Value: "remote_work", Label: "Remote work"},
					{Value: "team_retreat", Label: "Team retreat"},
					{Value: model.BrandCollaborationValue, Label: "Brand collaboration"},
					{Value: "other", Label: "Other", HasFollowUpQuestion: true, FollowUpQuestion: "Please tell us more"},
				}},
			},
		}, {
			ID:          "brandCollaboration",
			Title:       "Brand collaboration",
			Conditional: model.BrandCollaboration(),
			Questions: []model.Question{
				{ID: "companyName", Type: model.TypeText, Title: "Company name", Required: true},
				{ID: "contactPerson", Type: model.TypeText, Title: "Contact person", Required: true},
				{ID: "email", Type: model.TypeEmail, Title: "Contact email", Required: true},
				{ID: "brandPhoneNumber", Type: model.TypeTel, Title: "Contact phone number", Required: true},
				{ID: "collaborationTitle", Type: model.TypeText, Title: "Proposal title", Required: true},
				{ID: "collaborationContent", Type: model.TypeTextarea, Title: "Proposal", Required: true},
			},
		}, {
			ID:    "preferences",
			Title: "Preferences",
			Questions: []model.Question{
				{ID: "stayDuration", Type: model.TypeRadio, Title: "How long would you stay?", Required: true, Options: []model.Option{
					{Value: "weekend", Label: "A weekend"},
					{Value: "week", Label: "About a week"},
					{Value: "month", Label: "A month or more"},
				}},
				{ID: "workspaceNeeds", Type: model.TypeCheckbox, Title: "What do you need to work?", Options: []model.Option{
					{Value: "fast_wifi", Label: "Fast Wi-Fi"},
					{Value: "meeting_room", Label: "Meeting room"},
					{Value: "monitor", Label: "External monitor"},
					{Value: "other", Label: "Other", HasFollowUpQuestion: true, FollowUpQuestion: "What else?"},
				}},
				{ID: "expectations", Type: model.TypeTextarea, Title: "What do you expect from the stay?"},
			},
		}, {
			ID:    "photos",
			Title: "Share your workspace",
			Questions: []model.Question{
				{ID: "photos", Type: model.TypeFile, Title: "Photos of your current workspace", Multiple: true},
			},
		}, {
			ID:    "prize",
			Title: "Prize draw",
			Questions: []model.Question{
				{ID: "emailForPrizes", Type: model.TypeEmail, Title: "Email for the prize draw", Required: true},
				{ID: "privacyConsent", Type: model.TypeRadio, Title: "Do you agree to the processing of your personal data?", Required: true, Options: []model.Option{
					{Value: "agree", Label: "I agree"},
				}},
			},
		}},
	}
}

// FallbackSchema labels responses whose own schema can no longer be found.
func FallbackSchema() model.Schema {
	return model.Schema{
		ID:      "fallback",
		Version: "fallback",
		Title:   "Survey response",
		Steps: []model.Step{{
			ID:    "response",
			Title: "Response",
			Questions: []model.Question{
				{ID: "name", Type: model.TypeText, Title: "Name"},
				{ID: "phone", Type: model.TypeTel, Title: "Phone number"},
				{ID: "emailForPrizes", Type: model.TypeEmail, Title: "Email for the prize draw"},
				{ID: "hasExperienced", Type: model.TypeRadio, Title: "Workation experience", Options: yesNo()},
				{ID: model.BrandCollaborationField, Type: model.TypeCheckbox, Title: "Visit purpose", Options: []model.Option{
					{Value: "rest", Label: "Rest and recharge"},
					{Value: "remote_work", Label: "Remote work"},
					{Value: model.BrandCollaborationValue, Label: "Brand collaboration"},
				}},
			},
		}, {
			ID:          "brandCollaboration",
			Title:       "Brand collaboration",
			Conditional: model.BrandCollaboration(),
			Questions: []model.Question{
				{ID: "companyName", Type: model.TypeText, Title: "Company name"},
				{ID: "contactPerson", Type: model.TypeText, Title: "Contact person"},
				{ID: "email", Type: model.TypeEmail, Title: "Contact email"},
			},
		}},
	}
}
