package api

import (
	"fmt"
	"net/http"
)

// handleEventStream serves Server-Sent Events for trade_created,
// trade_updated, trade_closed, and roll_linked notifications. It subscribes
// to the bus for the lifetime of the connection and unsubscribes on
// disconnect.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: {\"trade_id\":%d,\"detail\":%q}\n\n", e.Type, e.TradeID, e.Detail)
			flusher.Flush()
		}
	}
}
