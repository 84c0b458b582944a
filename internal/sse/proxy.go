// Package sse relays server-sent event streams from upstream services.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorExcerpt = 512

// UpstreamStatusError describes a non-2xx upstream reply that was reported
// to the client instead of being streamed.
type UpstreamStatusError struct {
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream stream returned %d", e.Status)
}

// Proxy copies upstream's body to w unchanged, flushing after every read.
// The upstream body is always closed.
func Proxy(w http.ResponseWriter, upstream *http.Response) error {
	defer upstream.Body.Close()

	if upstream.StatusCode < 200 || upstream.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(upstream.Body, maxErrorExcerpt))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "upstream stream failed",
			"code":  "UPSTREAM_ERROR",
			"details": map[string]any{
				"status": upstream.StatusCode,
				"body":   strings.TrimSpace(string(body)),
			},
		})
		return &UpstreamStatusError{Status: upstream.StatusCode}
	}

	controller := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = controller.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = controller.Flush()

	buf := make([]byte, 4096)
	for {
		n, readErr := upstream.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("write stream: %w", err)
			}
			if err := controller.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return fmt.Errorf("flush stream: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read upstream stream: %w", readErr)
		}
	}
}

// WriteEvent frames data as a single "data:" event and flushes it.
func WriteEvent(w http.ResponseWriter, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
