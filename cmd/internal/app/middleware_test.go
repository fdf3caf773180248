package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestLoggingPassesThrough(t *testing.T) {
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), discardLogger())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}
	if rr.Body.String() != "short and stout" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

// WebSocket upgrades hijack the connection through the logging wrapper, so
// the wrapper must keep the optional writer interfaces visible.
func TestLoggingResponseWriterOptionalInterfaces(t *testing.T) {
	var w interface{} = &loggingResponseWriter{ResponseWriter: httptest.NewRecorder()}

	if _, ok := w.(http.Hijacker); !ok {
		t.Fatalf("loggingResponseWriter must implement http.Hijacker")
	}
	if _, ok := w.(http.Flusher); !ok {
		t.Fatalf("loggingResponseWriter must implement http.Flusher")
	}
	if _, ok := w.(http.Pusher); !ok {
		t.Fatalf("loggingResponseWriter must implement http.Pusher")
	}
	if _, ok := w.(io.ReaderFrom); !ok {
		t.Fatalf("loggingResponseWriter must implement io.ReaderFrom")
	}
}
