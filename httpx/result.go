package httpx

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/render"

	"github.com/mbolis/workation/log"
)

// Envelope is the body of every JSON answer of the public API:
// {"success": bool, "error": string, ...}.
type Envelope map[string]any

// Result sends a successful envelope carrying fields.
func Result(w http.ResponseWriter, r *http.Request, status int, fields Envelope) {
	body := Envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// Fail logs code at the given level and sends a failed envelope with a
// message meant for the user.
func Fail(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, msg string) {
	log.Log(level, code+":", msg)
	FailWith(w, r, status, msg, nil)
}

// FailWith sends a failed envelope with extra fields and logs nothing.
func FailWith(w http.ResponseWriter, r *http.Request, status int, msg string, fields Envelope) {
	body := Envelope{"success": false, "error": msg}
	for k, v := range fields {
		body[k] = v
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// FailInternal logs err under code and sends a generic 500 envelope.
func FailInternal(w http.ResponseWriter, r *http.Request, code string, err error) {
	log.Errorf("%s: %s", code, err)
	FailWith(w, r, http.StatusInternalServerError, "Something went wrong, please try again later.", nil)
}

// CORS allows the given origins ("*" for any) to call the API from a
// browser. Preflight requests are answered directly.
func CORS(origins []string) func(http.Handler) http.Handler {
	anyOrigin := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("origin")
			header := w.Header()
			switch {
			case anyOrigin:
				header.Set("access-control-allow-origin", "*")
			case origin != "" && slices.Contains(origins, origin):
				header.Set("access-control-allow-origin", origin)
				header.Add("vary", "Origin")
			}
			header.Set("access-control-allow-methods", "GET, POST, PUT, DELETE, OPTIONS")
			header.Set("access-control-allow-headers", strings.Join([]string{
				"Content-Type", "Authorization", "X-Submission-Key",
			}, ", "))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
