package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/export"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/metrics"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/notify"
	"github.com/mbolis/workation/survey"
)

// emailRequest asks for the confirmation of a stored response to be sent
// again. Recipient and content always come from the stored response; the
// fields a client could use to address or fill the mail itself are refused.
type emailRequest struct {
	Type       string               `json:"type" validate:"omitempty,oneof=confirmation"`
	ResponseID string               `json:"responseId"`
	SurveyData model.Answers        `json:"surveyData"`
	To         string               `json:"to"`
	Template   *model.EmailTemplate `json:"template"`
}

// SendEmail resends the confirmation of a stored response. Arbitrary
// recipients and templates are only accepted by the admin EmailTest.
func SendEmail(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeValid(r, &req); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "send_email.decode", invalidMessage(err))
			return
		}
		if req.Template != nil || req.To != "" || req.SurveyData != nil {
			httpx.Fail(w, r, http.StatusForbidden, log.InfoLevel, "send_email.direct", "Emails can only be sent for submitted responses.")
			return
		}
		if req.ResponseID == "" {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "send_email.response_id", "Nothing to send.")
			return
		}

		resp, err := app.Stores.Responses.GetByID(r.Context(), req.ResponseID)
		if err != nil {
			httpx.FailInternal(w, r, "db.send_email.get_response", err)
			return
		}
		if resp == nil {
			httpx.Fail(w, r, http.StatusNotFound, log.DebugLevel, "send_email.response", "This response does not exist.")
			return
		}

		schema, _ := export.NewResolver(app.Stores.Schemas).Resolve(r.Context(), *resp)
		answers := resp.Answers
		to := survey.Recipient(schema, answers, model.BrandCollaboration().Holds(answers))
		id, err := app.Notify.SendConfirmation(r.Context(), to, survey.NotificationData(resp.ID, schema, answers))

		app.Metrics.Notifications.WithLabelValues(metrics.Result(err)).Inc()
		var provider *notify.HTTPError
		switch {
		case err == nil:
			httpx.Result(w, r, http.StatusOK, httpx.Envelope{"messageId": id})
		case errors.Is(err, notify.ErrNoRecipient), errors.Is(err, notify.ErrInvalidRecipient):
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "send_email.recipient", "This response has no valid email address.")
		case errors.As(err, &provider) && provider.Rejected():
			httpx.Fail(w, r, http.StatusBadRequest, log.WarnLevel, "send_email.provider", "The email provider rejected the message.")
		default:
			httpx.FailInternal(w, r, "send_email.send", err)
		}
	}
}

type emailTestRequest struct {
	To       string               `json:"to" validate:"required,email"`
	Template *model.EmailTemplate `json:"template"`
	TestData map[string]any       `json:"testData"`
}

// EmailTest sends a test message from the admin panel: the given template,
// or the current confirmation template when none is given.
func EmailTest(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailTestRequest
		if err := decodeValid(r, &req); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "email_test.decode", "%s", invalidMessage(err))
			return
		}

		tpl := app.Notify.Confirmation(r.Context())
		if req.Template != nil {
			tpl = *req.Template
		}
		id, err := app.Notify.SendTemplate(r.Context(), req.To, tpl, req.TestData)
		app.Metrics.Notifications.WithLabelValues(metrics.Result(err)).Inc()

		var provider *notify.HTTPError
		switch {
		case err == nil:
			render.JSON(w, r, map[string]string{"messageId": id})
		case errors.As(err, &provider) && provider.Rejected():
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.WarnLevel, "email_test.provider", "rejected by the email provider: %s", provider.Message)
		default:
			httpx.LogInternalError(w, "email_test.send", err)
		}
	}
}
