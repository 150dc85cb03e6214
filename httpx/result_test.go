package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/workation/log"
)

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestEnvelope(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	Result(rec, r, http.StatusCreated, Envelope{"id": "42"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "id": "42"}, body(t, rec))

	rec = httptest.NewRecorder()
	Fail(rec, r, http.StatusBadRequest, log.DebugLevel, "test.fail", "Nope.")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "error": "Nope."}, body(t, rec))

	rec = httptest.NewRecorder()
	FailInternal(rec, r, "test.internal", errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	h := CORS([]string{"https://workation.example"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/responses", nil)
	req.Header.Set("origin", "https://workation.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://workation.example", rec.Header().Get("access-control-allow-origin"))
	assert.Contains(t, rec.Header().Get("access-control-allow-headers"), "X-Submission-Key")

	req = httptest.NewRequest(http.MethodPost, "/api/responses", nil)
	req.Header.Set("origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("access-control-allow-origin"))

	h = CORS([]string{"*"})(next)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "*", rec.Header().Get("access-control-allow-origin"))
}

func TestResponseBuffer(t *testing.T) {
	buf := NewResponseBuffer()
	assert.Nil(t, buf.Body())

	buf.Header().Set("x-test", "1")
	buf.WriteHeader(http.StatusAccepted)
	_, err := buf.Write([]byte("hello"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, buf.Flush(rec))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("x-test"))
	assert.Equal(t, "hello", rec.Body.String())
}
