package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/export"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/store"
	"github.com/mbolis/workation/survey"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func ListSchemas(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schemas, err := app.Stores.Schemas.ListAll(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.list_schemas", err)
			return
		}
		if schemas == nil {
			schemas = []model.Schema{}
		}
		render.JSON(w, r, schemas)
	}
}

// CreateSchema saves the draft as a new version and activates it.
func CreateSchema(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft := model.Schema{}
		if err := render.DecodeJSON(r.Body, &draft); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err := survey.ValidateSchema(draft); err != nil {
			var serr *survey.SchemaError
			if errors.As(err, &serr) {
				log.Debugf("create_schema.validate: %s", serr)
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, serr)
				return
			}
			httpx.LogInternalError(w, "create_schema.validate", err)
			return
		}

		id, err := app.Stores.Schemas.Create(r.Context(), draft)
		if err != nil {
			httpx.LogInternalError(w, "db.create_schema", err)
			return
		}
		app.Metrics.SchemaActivations.Inc()

		schema, err := app.Stores.Schemas.GetByID(r.Context(), id)
		if err != nil {
			httpx.LogInternalError(w, "db.create_schema.get", err)
			return
		}
		if schema == nil {
			httpx.LogNotFound(w, "create_schema.get", id)
			return
		}
		log.WithFields(log.Fields{"schema": id, "version": schema.Version}).Info("schema created and activated")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, schema)
	}
}

func GetSchemaByID(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		schema, err := app.Stores.Schemas.GetByID(r.Context(), id)
		if err != nil {
			httpx.LogInternalError(w, "db.get_schema", err)
			return
		}
		if schema == nil {
			httpx.LogNotFound(w, "get_schema", id)
			return
		}
		render.JSON(w, r, schema)
	}
}

func GetSchemaByVersion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := chi.URLParam(r, "version")
		schema, err := app.Stores.Schemas.GetByVersion(r.Context(), version)
		if err != nil {
			httpx.LogInternalError(w, "db.get_schema_version", err)
			return
		}
		if schema == nil {
			httpx.LogNotFound(w, "get_schema_version", version)
			return
		}
		render.JSON(w, r, schema)
	}
}

type activateRequest struct {
	ID string `json:"id"`
	// Expected, when set, is the active id the admin saw; the change is
	// refused if another admin switched the schema meanwhile.
	Expected *string `json:"expected"`
}

// SetActiveSchema activates the given schema; an empty id deactivates all.
func SetActiveSchema(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		var err error
		if req.Expected != nil {
			err = app.Stores.Schemas.SwapActive(r.Context(), *req.Expected, req.ID)
		} else {
			err = app.Stores.Schemas.SetActive(r.Context(), req.ID)
		}
		switch {
		case errors.Is(err, store.ErrNotFound):
			httpx.LogNotFound(w, "set_active_schema", req.ID)
			return
		case errors.Is(err, store.ErrActivationConflict):
			httpx.LogStatusMsg(w, http.StatusConflict, log.InfoLevel, "set_active_schema.conflict", "the active schema was changed by someone else")
			return
		case err != nil:
			httpx.LogInternalError(w, "db.set_active_schema", err)
			return
		}
		app.Metrics.SchemaActivations.Inc()
		log.WithFields(log.Fields{"schema": req.ID}).Info("active schema changed")

		w.WriteHeader(http.StatusNoContent)
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

type responsePage struct {
	Items []model.Response `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// ListResponses pages through the responses, newest first.
func ListResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page", 1)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "list_responses.page", "%s", err)
			return
		}
		size, err := queryInt(r, "size", defaultPageSize)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "list_responses.size", "%s", err)
			return
		}
		size = min(size, maxPageSize)

		all, err := app.Stores.Responses.ListAll(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.list_responses", err)
			return
		}

		from := min((page-1)*size, len(all))
		to := min(from+size, len(all))
		items := all[from:to]
		if items == nil {
			items = []model.Response{}
		}
		render.JSON(w, r, responsePage{Items: items, Total: len(all), Page: page, Size: size})
	}
}

type schemaRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

type responseDetail struct {
	Response model.Response `json:"response"`
	Schema   schemaRef      `json:"schema"`
	Fallback bool           `json:"fallback"`
	Fields   []export.Field `json:"fields"`
}

// GetResponse returns a response labelled through the schema it was
// answered on.
func GetResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		resp, err := app.Stores.Responses.GetByID(r.Context(), id)
		if err != nil {
			httpx.LogInternalError(w, "db.get_response", err)
			return
		}
		if resp == nil {
			httpx.LogNotFound(w, "get_response", id)
			return
		}

		schema, fallback := export.NewResolver(app.Stores.Schemas).Resolve(r.Context(), *resp)
		render.JSON(w, r, responseDetail{
			Response: *resp,
			Schema:   schemaRef{ID: schema.ID, Version: schema.Version, Title: schema.Title},
			Fallback: fallback,
			Fields:   export.Describe(schema, *resp),
		})
	}
}

func DeleteResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := app.Stores.Responses.DeleteByID(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httpx.LogNotFound(w, "delete_response", id)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.delete_response", err)
			return
		}
		log.WithFields(log.Fields{"response": id}).Info("response deleted")

		w.WriteHeader(http.StatusNoContent)
	}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportResponses downloads every response as a workbook with one sheet
// per schema version.
func ExportResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := app.Stores.Responses.ListAll(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.export_responses", err)
			return
		}

		book, err := export.Workbook(r.Context(), all, export.NewResolver(app.Stores.Schemas))
		if err != nil {
			httpx.LogInternalError(w, "export_responses.workbook", err)
			return
		}
		defer book.Close()

		filename := fmt.Sprintf("responses-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
		w.Header().Set("content-type", xlsxContentType)
		w.Header().Set("content-disposition", `attachment; filename="`+filename+`"`)
		if err = book.Write(w); err != nil {
			log.Errorf("export_responses.write: %s", err)
		}
	}
}
