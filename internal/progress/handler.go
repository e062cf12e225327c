package progress

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// sseEvent is the wire shape written for one Event, matching the named
// JSON payloads per event type.
func sseEvent(ev Event) (eventName string, payload map[string]interface{}) {
	switch ev.Type {
	case EventStatus:
		return "status", map[string]interface{}{"stage": ev.Stage, "message": ev.Message}
	case EventProgress:
		return "progress", map[string]interface{}{"stage": ev.Stage, "percent": ev.Percent}
	case EventCompleted:
		return "completed", map[string]interface{}{"filename": ev.Filename, "message": ev.Message}
	case EventDone:
		return "done", map[string]interface{}{"filename": ev.Filename}
	default:
		return "error", map[string]interface{}{
			"stage":         ev.Stage,
			"error_type":    ev.ErrorType,
			"error_message": ev.ErrorMessage,
			"trace_id":      ev.TraceID,
			"hint":          ev.Hint,
		}
	}
}

// WriteStream drains events onto w as server-sent events, flushing after
// each frame, until the channel closes or the client disconnects.
func WriteStream(w http.ResponseWriter, r *http.Request, events <-chan Event, log zerolog.Logger) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	done := r.Context().Done()
	for {
		select {
		case <-done:
			log.Info().Msg("client disconnected from generate stream")
			return

		case ev, open := <-events:
			if !open {
				return
			}
			name, payload := sseEvent(ev)
			data, err := json.Marshal(payload)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal progress event")
				continue
			}
			fmt.Fprintf(w, "event: %s\n", name)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
