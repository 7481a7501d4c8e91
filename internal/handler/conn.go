package handler

import (
	"net/http"
	"time"

	"github.com/angeloszaimis/tinyproxy/internal/reverse"
)

// requestConn is the view of the client connection the rewrite engine
// works against for one request.
type requestConn struct {
	w     *statusRecorder
	state reverse.RoutingState
	start time.Time
}

func (c *requestConn) RoutingState() *reverse.RoutingState {
	return &c.state
}

func (c *requestConn) IndicateError(status int, reason string, details ...string) error {
	if c.w.wroteHeader {
		return errAlreadyResponded
	}
	return writeErrorPage(c.w, status, reason, details...)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
