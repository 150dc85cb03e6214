package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/config"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RealIP, middleware.Logger, middleware.Recoverer, app.Metrics.Middleware)

	root.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	root.Mount("/api", apiRouter(app))

	if app.UploadBackend == config.UploadLocal {
		root.Mount("/uploads", serveUploads(app.UploadDir))
	}
	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	api.Use(httpx.CORS(app.AllowedOrigins))

	api.Get("/schema/active", ActiveSchema(app))
	api.Post("/survey/navigate", Navigate(app))
	api.Post("/survey/attach", AttachFiles(app))
	api.Post("/responses", SubmitResponse(app))
	api.Post("/upload", UploadFile(app))
	api.Post("/send-email", SendEmail(app))
	api.Get("/content/page", PageContent(app))
	api.Post("/content/page/observe", ObservePage(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// schema versions
		r.Get("/schemas", ListSchemas(app))
		r.Post("/schemas", CreateSchema(app))
		r.Put("/schemas/active", SetActiveSchema(app))
		r.Get("/schemas/versions/{version}", GetSchemaByVersion(app))
		r.Get("/schemas/{id}", GetSchemaByID(app))

		r.Get("/responses", ListResponses(app))
		r.Get("/responses/export", ExportResponses(app))
		r.Get("/responses/{id}", GetResponse(app))
		r.Delete("/responses/{id}", DeleteResponse(app))

		r.Route("/content", func(r chi.Router) {
			r.Get("/gallery", GetGallery(app))
			r.Put("/gallery", PutGallery(app))
			r.Post("/gallery/reorder", ReorderGallery(app))
			r.Get("/work-life", GetWorkLife(app))
			r.Put("/work-life", PutWorkLife(app))
			r.Post("/work-life/reorder", ReorderWorkLife(app))
			r.Get("/email-template", GetEmailTemplate(app))
			r.Put("/email-template", PutEmailTemplate(app))
		})
		r.Post("/email/test", EmailTest(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}

func serveUploads(dir string) http.Handler {
	return http.StripPrefix("/uploads", http.FileServer(http.Dir(dir)))
}
