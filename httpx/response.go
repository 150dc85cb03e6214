package httpx

import (
	"bytes"
	"net/http"
)

// ResponseBuffer holds a whole response so a handler's answer can be
// inspected (e.g. for a 401 from the bearer server) before it is sent.
type ResponseBuffer interface {
	http.ResponseWriter
	Status() int
	Body() []byte
	Flush(w http.ResponseWriter) error
}

type responseBuffer struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func NewResponseBuffer() ResponseBuffer {
	return &responseBuffer{header: http.Header{}}
}

// Status is 0 until WriteHeader is called.
func (b *responseBuffer) Status() int         { return b.status }
func (b *responseBuffer) Header() http.Header { return b.header }

// Body is nil while nothing was written.
func (b *responseBuffer) Body() []byte {
	if b.body.Len() == 0 {
		return nil
	}
	return b.body.Bytes()
}

func (b *responseBuffer) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *responseBuffer) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

// Flush copies the buffered headers, status and body to w.
func (b *responseBuffer) Flush(w http.ResponseWriter) error {
	header := w.Header()
	for key, values := range b.header {
		header[key] = values
	}
	if b.status != 0 {
		w.WriteHeader(b.status)
	}
	if b.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(b.body.Bytes())
	return err
}
