package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/metrics"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/survey"
	"github.com/mbolis/workation/upload"
)

// room for the multipart envelope around the file
const multipartOverhead = 1 << 20

// UploadFile stores the multipart "file" under "folder" and returns its
// public URL.
func UploadFile(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, app.UploadMaxBytes+multipartOverhead)

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			msg := "The upload could not be read."
			switch {
			case errors.Is(err, http.ErrMissingFile):
				msg = "No file was uploaded."
			case errors.As(err, &tooLarge):
				msg = "The file is too large."
			}
			app.Metrics.Uploads.WithLabelValues(metrics.ResultRejected).Inc()
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "upload.form_file", msg)
			return
		}
		defer file.Close()

		res, err := app.Upload.Upload(r.Context(), upload.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("content-type"),
			Size:        header.Size,
			Body:        file,
		}, r.FormValue("folder"))

		var msg string
		switch {
		case err == nil:
			app.Metrics.Uploads.WithLabelValues(metrics.ResultOK).Inc()
			httpx.Result(w, r, http.StatusOK, httpx.Envelope{
				"url":      res.URL,
				"key":      res.Key,
				"filename": res.Filename,
			})
			return
		case errors.Is(err, upload.ErrUnsupportedType):
			msg = "Only image files can be uploaded."
		case errors.Is(err, upload.ErrTooLarge):
			msg = "The file is too large."
		case errors.Is(err, upload.ErrEmpty):
			msg = "The file is empty."
		default:
			app.Metrics.Uploads.WithLabelValues(metrics.ResultFailed).Inc()
			httpx.FailInternal(w, r, "upload.store", err)
			return
		}
		app.Metrics.Uploads.WithLabelValues(metrics.ResultRejected).Inc()
		httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "upload.validate", msg)
	}
}

const maxAttachFiles = 10

// attachState is the wizard state sent along the files, as the "state"
// form field.
type attachState struct {
	SchemaID  string        `json:"schemaId"`
	Step      int           `json:"step"`
	Indicator int           `json:"indicator"`
	Answers   model.Answers `json:"answers"`
}

// AttachFiles uploads the multipart "files" as answers to the file question
// "questionId" and returns the updated wizard state. Files that cannot be
// stored are counted, the others are kept.
func AttachFiles(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAttachFiles*app.UploadMaxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(multipartOverhead); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "attach.parse", "The upload could not be read.")
			return
		}
		defer r.MultipartForm.RemoveAll()

		var state attachState
		if err := json.Unmarshal([]byte(r.FormValue("state")), &state); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "attach.state", "The survey state could not be read.")
			return
		}
		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 || len(headers) > maxAttachFiles {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "attach.files", "Send between 1 and 10 files.")
			return
		}

		schema, err := loadSchema(r.Context(), app, state.SchemaID)
		if err != nil {
			httpx.FailInternal(w, r, "db.attach.get_schema", err)
			return
		}
		if schema == nil {
			httpx.Fail(w, r, http.StatusNotFound, log.DebugLevel, "attach.schema", msgUnavailable)
			return
		}
		wiz, err := survey.New(*schema, survey.WithUploader(app.Upload))
		if err != nil {
			httpx.FailInternal(w, r, "attach.new_wizard", err)
			return
		}
		if err = wiz.Restore(state.Step, state.Indicator, state.Answers); err != nil {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "attach.restore", err.Error())
			return
		}

		files := make([]upload.File, 0, len(headers))
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				httpx.FailInternal(w, r, "attach.open", err)
				return
			}
			defer f.Close()
			files = append(files, upload.File{
				Name:        h.Filename,
				ContentType: h.Header.Get("content-type"),
				Size:        h.Size,
				Body:        f,
			})
		}

		res, err := wiz.AttachFiles(r.Context(), r.FormValue("questionId"), files)
		if errors.Is(err, survey.ErrUnknownQuestion) || errors.Is(err, survey.ErrWrongKind) {
			httpx.Fail(w, r, http.StatusBadRequest, log.DebugLevel, "attach.question", err.Error())
			return
		}
		if err != nil {
			httpx.FailInternal(w, r, "attach.files", err)
			return
		}

		app.Metrics.Uploads.WithLabelValues(metrics.ResultOK).Add(float64(len(res.URLs)))
		failures := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			log.Debugf("attach.upload: %s", e)
			app.Metrics.Uploads.WithLabelValues(uploadOutcome(e)).Inc()
			failures[i] = e.Error()
		}
		httpx.Result(w, r, http.StatusOK, httpx.Envelope{
			"urls":     res.URLs,
			"failed":   res.Failed,
			"failures": failures,
			"state":    stateOf(wiz),
		})
	}
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, upload.ErrUnsupportedType), errors.Is(err, upload.ErrTooLarge), errors.Is(err, upload.ErrEmpty):
		return metrics.ResultRejected
	}
	return metrics.ResultFailed
}
