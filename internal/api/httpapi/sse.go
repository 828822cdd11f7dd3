package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/game/event"
)

// sseHeartbeatInterval is how long the stream waits for an event before
// writing a comment frame. Heartbeats keep proxies from closing idle
// connections and let the server notice dead clients.
const sseHeartbeatInterval = 15 * time.Second

// handleEventStream serves GET /api/game_event_stream as Server-Sent
// Events. Events are drained from the shared queue in sequence order;
// each queued event is delivered to exactly one stream read.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Connection preamble so clients know the stream is live before the
	// first game event arrives.
	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	// A full state snapshot follows the preamble so a reconnecting client
	// does not depend on events it missed while disconnected.
	if _, err := s.emitter.EmitStateSnapshot("", event.StateSnapshotPayload{State: s.orch.Snapshot()}); err != nil {
		log.Printf("emit state snapshot failed error=%v", err)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		evt, ok := s.queue.Get(sseHeartbeatInterval)
		if !ok {
			if _, err := fmt.Fprint(w, ":heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		}

		data, err := json.Marshal(evt)
		if err != nil {
			log.Printf("marshal sse event failed sequence=%d error=%v", evt.SequenceNumber, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}
