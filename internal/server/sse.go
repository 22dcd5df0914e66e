package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// sseWriter writes server-sent events, flushing after each one.
type sseWriter struct {
	resp *echo.Response
}

// newSSEWriter sends the event-stream headers and the 200 status.
func newSSEWriter(resp *echo.Response) *sseWriter {
	h := resp.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering (nginx)
	h.Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()
	return &sseWriter{resp: resp}
}

// WriteJSON sends v as one data event.
func (s *sseWriter) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(s.resp, "data: %s\n\n", data); err != nil {
		return err
	}
	s.resp.Flush()
	return nil
}

// WriteDone sends the terminating [DONE] sentinel.
func (s *sseWriter) WriteDone() error {
	if _, err := io.WriteString(s.resp, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.resp.Flush()
	return nil
}
