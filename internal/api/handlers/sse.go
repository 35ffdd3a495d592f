// Package handlers implements the HTTP handlers: chat streaming, question and
// link CRUD, embedding backfill, and health.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// errStreamingUnsupported means the ResponseWriter cannot flush incrementally.
var errStreamingUnsupported = errors.New("streaming unsupported by connection")

// sseWriter frames text chunks as Server-Sent Events. Each chunk becomes
// exactly one `data:` frame; embedded newlines are escaped as the literal
// two-character sequence \n so the one-frame-per-chunk contract holds.
// No terminal sentinel frame is emitted; the stream simply ends.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// newSSEWriter prepares the connection for event streaming and sends headers.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tell buffering reverse proxies to pass frames through immediately.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &sseWriter{w: w, f: f}, nil
}

// WriteData sends one data frame and flushes it to the client.
func (s *sseWriter) WriteData(text string) error {
	escaped := strings.ReplaceAll(text, "\n", "\\n")

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", escaped); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}

	s.f.Flush()

	return nil
}
