package core

import (
	"errors"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/searchktools/static-server/core/http"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/static"
)

// DefaultReadTimeout is the per-read receive timeout of a connection
const DefaultReadTimeout = 5 * time.Second

// ConnHandler runs the keep-alive request loop of one connection:
// read a request, dispatch it, answer, then either wait for the next
// request or close.
type ConnHandler struct {
	responder   *static.Responder
	readTimeout time.Duration
	metrics     *observability.Metrics
	verbose     bool
}

// NewConnHandler creates a handler. readTimeout <= 0 disables the
// receive timeout.
func NewConnHandler(responder *static.Responder, readTimeout time.Duration, m *observability.Metrics, verbose bool) *ConnHandler {
	return &ConnHandler{
		responder:   responder,
		readTimeout: readTimeout,
		metrics:     m,
		verbose:     verbose,
	}
}

// deadlineReader arms a fresh read deadline before every Read, so each
// read may block for at most timeout.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}

// Serve handles conn until the peer leaves, a read times out, a request is
// malformed, keep-alive ends or a write fails. It closes conn.
func (h *ConnHandler) Serve(conn net.Conn) {
	defer conn.Close()

	h.metrics.JobStarted()
	defer h.metrics.JobDone()

	rd := &deadlineReader{conn: conn, timeout: h.readTimeout}
	req := http.AcquireRequest()
	defer http.ReleaseRequest(req)

	for served := 0; ; served++ {
		err := http.ReadRequest(rd, req)
		if req.Method == "" {
			if h.verbose {
				h.logf(conn, "closing: %s", closeReason(err))
			}
			return
		}
		if served > 0 {
			h.metrics.KeepAliveReuse()
		}

		if req.Method == "GET" {
			err = h.responder.Serve(conn, req.Path)
		} else {
			h.metrics.ObserveRequest(methodLabel(req.Method), http.StatusMethodNotAllowed, 0)
			err = http.WriteError(conn, http.StatusMethodNotAllowed)
		}
		if err != nil {
			if h.verbose {
				h.logf(conn, "closing after %s %s: %v", req.Method, req.Path, err)
			}
			return
		}

		if !http.KeepAlive(req) {
			if h.verbose {
				h.logf(conn, "closing: keep-alive not requested")
			}
			return
		}
	}
}

func (h *ConnHandler) logf(conn net.Conn, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{conn.RemoteAddr()}, args...)...)
}

func closeReason(err error) string {
	switch {
	case err == nil:
		return "empty request"
	case errors.Is(err, io.EOF):
		return "peer closed"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "receive timeout"
	default:
		return err.Error()
	}
}
