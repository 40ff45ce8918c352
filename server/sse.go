package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmer/x402-demo/events"
)

// heartbeatInterval keeps intermediaries from timing out idle streams.
const heartbeatInterval = 25 * time.Second

// handleEvents exposes the event bus as a server-sent-events stream. Each
// connection holds one bus subscription for its whole lifetime and releases
// it deterministically on disconnect or shutdown.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Reject before accepting a connection doomed to fail subscription.
	if s.bus.ListenerCount() >= events.MaxListeners {
		sendUnavailable(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.bus.Subscribe()
	if err != nil {
		// Lost the race between the pre-check and subscribe.
		sendUnavailable(w)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	// Tell nginx and friends not to buffer the stream.
	w.Header().Set("X-Accel-Buffering", "no")

	// An initial comment gives the client its first byte immediately, so
	// EventSource.onopen fires without waiting for an event or heartbeat.
	if _, err := fmt.Fprint(w, ": ok\n\n"); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case e, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Error("marshal event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sendUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "10")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"error": "Too many concurrent listeners"})
}
