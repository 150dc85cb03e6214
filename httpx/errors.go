package httpx

import (
	"fmt"
	"net/http"

	"github.com/mbolis/workation/log"
)

// The Log* helpers answer admin API calls with a plain text body. Public
// endpoints answer with an Envelope instead (see Fail).

func logStatus(w http.ResponseWriter, status int, level log.Level, code, msg string) {
	if msg == "" {
		log.Log(level, code)
		msg = http.StatusText(status)
	} else {
		log.Log(level, code+":", msg)
	}
	http.Error(w, msg, status)
}

// LogInternalError logs err and answers 500 without details.
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// LogNotFound answers 404 naming the missing id.
func LogNotFound(w http.ResponseWriter, code string, id any) {
	logStatus(w, http.StatusNotFound, log.DebugLevel, code, fmt.Sprintf("%v not found", id))
}

func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	logStatus(w, status, level, code, "")
}

// LogStatusMsg answers status with the formatted message as body.
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	logStatus(w, status, level, code, fmt.Sprintf(msg, args...))
}
