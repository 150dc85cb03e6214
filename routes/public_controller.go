package routes

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/guard"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/landing"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/metrics"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/survey"
)

const (
	msgIncomplete  = "Please answer every required question."
	msgUnavailable = "This survey is no longer available."
)

// loadSchema returns the schema with the given id, or the active one
// (created on first use) when id is empty.
func loadSchema(ctx context.Context, app app.App, id string) (*model.Schema, error) {
	if id == "" {
		return survey.EnsureActive(ctx, app.Stores.Schemas)
	}
	return app.Stores.Schemas.GetByID(ctx, id)
}

func ActiveSchema(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schema, err := survey.EnsureActive(r.Context(), app.Stores.Schemas)
		if err != nil {
			httpx.FailInternal(w, r, "db.get_active_schema", err)
			return
		}
		httpx.Result(w, r, http.StatusOK, httpx.Envelope{"schema": schema})
	}
}

type wizardState struct {
	SchemaID      string         `json:"schemaId"`
	SchemaVersion string         `json:"schemaVersion"`
	Step          int            `json:"step"`
	Indicator     int            `json:"indicator"`
	TotalSteps    int            `json:"totalSteps"`
	IsLastStep    bool           `json:"isLastStep"`
	CanProceed    bool           `json:"canProceed"`
	Fields        []survey.Field `json:"fields"`
	Answers       model.Answers  `json:"answers"`
}

func stateOf(w *survey.Wizard) wizardState {
	schema := w.Schema()
	step := w.Current()
	if step > 0 {
		for _, q := range schema.Steps[step-1].Questions {
			if q.Type == model.TypeEmail {
				_, _ = w.BlurEmail(q.ID)
			}
		}
	}
	return wizardState{
		SchemaID:      schema.ID,
		SchemaVersion: schema.Version,
		Step:          step,
		Indicator:     w.Indicator(),
		TotalSteps:    w.TotalSteps(),
		IsLastStep:    w.IsLastStep(),
		CanProceed:    w.CanProceed(step),
		Fields:        w.Fields(step),
		Answers:       w.Answers(),
	}
}

type navigateRequest struct {
	SchemaID  string        `json:"schemaId"`
	Step      int           `json:"step" validate:"min=0"`
	Indicator int           `json:"indicator" validate:"min=0"`
	Answers   model.Answers `json:"answers"`
	Direction string        `json:"direction" validate:"omitempty,oneof=next prev stay"`
}

// Navigate replays a client's wizard state and moves it one step. The
// last step is never submitted from here: responses go to SubmitResponse.
func Navigate(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req navigateRequest
		if err := decodeValid(r, &req); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "navigate.decode", invalidMessage(err))
			return
		}

		schema, err := loadSchema(r.Context(), app, req.SchemaID)
		if err != nil {
			httpx.FailInternal(w, r, "db.navigate.get_schema", err)
			return
		}
		if schema == nil {
			httpx.Fail(w, r, http.StatusNotFound, log.DebugLevel, "navigate.schema", msgUnavailable)
			return
		}

		wiz, err := survey.New(*schema)
		if err != nil {
			httpx.FailInternal(w, r, "navigate.new_wizard", err)
			return
		}
		if err = wiz.Restore(req.Step, req.Indicator, req.Answers); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "navigate.restore", err.Error())
			return
		}

		switch req.Direction {
		case "prev":
			wiz.Prev()
		case "next":
			var verr *survey.ValidationError
			if wiz.IsLastStep() {
				verr = wiz.Check(wiz.Current())
			} else if _, err = wiz.Next(r.Context()); err != nil && !errors.As(err, &verr) {
				httpx.FailInternal(w, r, "navigate.next", err)
				return
			}
			if verr != nil {
				httpx.FailWith(w, r, http.StatusBadRequest, msgIncomplete, httpx.Envelope{
					"validation": verr,
					"state":      stateOf(wiz),
				})
				return
			}
		}

		httpx.Result(w, r, http.StatusOK, httpx.Envelope{"state": stateOf(wiz)})
	}
}

// meteredNotifier counts the confirmation mails by outcome.
type meteredNotifier struct {
	next    survey.Notifier
	metrics *metrics.Metrics
}

func (n meteredNotifier) SendConfirmation(ctx context.Context, to string, data map[string]any) (string, error) {
	id, err := n.next.SendConfirmation(ctx, to, data)
	n.metrics.Notifications.WithLabelValues(metrics.Result(err)).Inc()
	return id, err
}

// submissionKey identifies the client for the submission guard.
func submissionKey(r *http.Request) string {
	if key := r.Header.Get("x-submission-key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type submitRequest struct {
	SchemaID string        `json:"schemaId"`
	Answers  model.Answers `json:"answers" validate:"required"`
}

// SubmitResponse validates the answers against their schema, stores them
// and sends the confirmation mail. One submission per client at a time.
func SubmitResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeValid(r, &req); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "submit.decode", invalidMessage(err))
			return
		}

		release, err := app.Guard.Acquire(r.Context(), submissionKey(r))
		if errors.Is(err, guard.ErrBusy) {
			app.Metrics.SubmitFailures.WithLabelValues("busy").Inc()
			httpx.Fail(w, r, http.StatusConflict, log.InfoLevel, "submit.guard", "Your response is already being submitted.")
			return
		}
		if err != nil {
			httpx.FailInternal(w, r, "submit.guard", err)
			return
		}
		defer release()

		schema, err := loadSchema(r.Context(), app, req.SchemaID)
		if err != nil {
			httpx.FailInternal(w, r, "db.submit.get_schema", err)
			return
		}
		if schema == nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "submit.schema", msgUnavailable)
			return
		}

		wiz, err := survey.New(*schema,
			survey.WithResponses(app.Stores.Responses),
			survey.WithNotifier(meteredNotifier{app.Notify, app.Metrics}),
		)
		if err != nil {
			httpx.FailInternal(w, r, "submit.new_wizard", err)
			return
		}
		last := len(schema.Steps)
		if err = wiz.Restore(last, last, req.Answers); err != nil {
			httpx.FailInternal(w, r, "submit.restore", err)
			return
		}

		res, err := wiz.Submit(r.Context())
		var verr *survey.ValidationError
		switch {
		case errors.As(err, &verr):
			app.Metrics.SubmitFailures.WithLabelValues("invalid").Inc()
			log.Debugf("submit.validate: %s", verr)
			httpx.FailWith(w, r, http.StatusBadRequest, msgIncomplete, httpx.Envelope{"validation": verr})
			return
		case err != nil:
			app.Metrics.SubmitFailures.WithLabelValues("save").Inc()
			log.Errorf("db.submit.save: %s", err)
			httpx.FailWith(w, r, http.StatusInternalServerError, "We could not save your response, please try again.", nil)
			return
		}

		app.Metrics.ResponsesSaved.Inc()
		httpx.Result(w, r, http.StatusOK, httpx.Envelope{
			"id":        res.ResponseID,
			"emailSent": res.MessageID != "",
		})
	}
}

func PageContent(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := landing.LoadPage(r.Context(), app.Stores.Content)
		if err != nil {
			httpx.FailInternal(w, r, "db.page_content", err)
			return
		}
		httpx.Result(w, r, http.StatusOK, httpx.Envelope{"page": page})
	}
}

type observeRequest struct {
	Progress *float64      `json:"progress" validate:"required"`
	State    landing.State `json:"state"`
}

// ObservePage tells the page which section a scroll position falls in and
// whether the survey should open there, given the page's current flags.
func ObservePage(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req observeRequest
		if err := decodeValid(r, &req); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "observe_page.decode", invalidMessage(err))
			return
		}

		coord, owner, err := landing.NewCoordinator(landing.DefaultSections)
		if err != nil {
			httpx.FailInternal(w, r, "observe_page.sections", err)
			return
		}
		if err = coord.Update(owner, func(s *landing.State) { *s = req.State }); err != nil {
			httpx.FailInternal(w, r, "observe_page.state", err)
			return
		}
		httpx.Result(w, r, http.StatusOK, httpx.Envelope{
			"observation": coord.Observe(*req.Progress),
			"state":       coord.State(),
		})
	}
}
