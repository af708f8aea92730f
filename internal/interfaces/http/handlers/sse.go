package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stream writes server-sent events. Send is safe for concurrent use so
// heartbeats and progress callbacks cannot interleave mid-frame.
type Stream struct {
	w      http.ResponseWriter
	f      http.Flusher
	logger *zap.Logger

	mu sync.Mutex
}

// OpenStream switches the response to text/event-stream. It fails when
// the writer cannot flush, which streaming requires; the caller should
// fall back to a plain HTTP error.
func OpenStream(w http.ResponseWriter, logger *zap.Logger) (*Stream, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	f.Flush()
	return &Stream{w: w, f: f, logger: logger}, true
}

// Send marshals data and writes one named event in the standard SSE
// framing.
func (s *Stream) Send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to encode stream event",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload)
	s.f.Flush()
}

// Heartbeat emits heartbeat events until ctx ends, keeping idle proxies
// from cutting a quiet stream. Run it in its own goroutine.
func (s *Stream) Heartbeat(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Send("heartbeat", struct{}{})
		}
	}
}
