package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleEvents streams ledger notifications as server-sent events.
// Each event is one `data:` line of JSON. The subscription is torn
// down when the client disconnects, so abandoned streams do not leak.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.ledger.Notifier().Subscribe(64)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.Info().
		Str("request_id", GetRequestID(r.Context())).
		Str("remote", r.RemoteAddr).
		Msg("Event stream opened")

	for {
		select {
		case <-r.Context().Done():
			s.log.Info().
				Str("request_id", GetRequestID(r.Context())).
				Msg("Event stream closed")
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.log.Error().Err(err).Msg("Encoding event failed")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}
