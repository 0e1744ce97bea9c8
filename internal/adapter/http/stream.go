package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// ndjsonWriter writes one JSON document per line and flushes after each.
type ndjsonWriter struct {
	w   http.ResponseWriter
	enc *json.Encoder
}

// startNDJSON writes the stream headers. Streams outlive the server's write
// timeout, so the deadline is cleared where the writer supports it.
func startNDJSON(w http.ResponseWriter) *ndjsonWriter {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	s := &ndjsonWriter{w: w, enc: json.NewEncoder(w)}
	s.flush()
	return s
}

func (s *ndjsonWriter) send(v any) error {
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *ndjsonWriter) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
