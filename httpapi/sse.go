package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pubky-canvas/indexer/broadcast"
	"github.com/pubky-canvas/indexer/logger"
)

type ssePixelPayload struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Color    int    `json:"color"`
	UserPK   string `json:"user_pk"`
	PlacedAt int64  `json:"placed_at"`
}

type sseResizePayload struct {
	OldSize int `json:"old_size"`
	NewSize int `json:"new_size"`
}

// handleEvents streams accepted pixel placements and canvas resizes as
// server-sent events. A lagged subscriber is sent a reconnect event and
// dropped; the client is expected to refetch the canvas snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	handle, ch, ok := s.broadcaster.Subscribe()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
		return
	}
	defer s.broadcaster.Unsubscribe(handle)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprint(w, "retry: 5000\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			if s.broadcaster.Lagged(handle) {
				fmt.Fprint(w, "event: reconnect\ndata: \n\n")
				flusher.Flush()
				return
			}

			if err := writeSSEEvent(w, msg); err != nil {
				logger.Warnw("sse write failed", logger.FieldError, err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, msg broadcast.Message) error {
	switch msg.Kind {
	case broadcast.KindPixel:
		payload, err := json.Marshal(ssePixelPayload{X: msg.X, Y: msg.Y, Color: msg.Color, UserPK: msg.UserPK, PlacedAt: msg.PlacedAt})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: pixel\ndata: %s\n\n", payload)
		return err

	case broadcast.KindResize:
		payload, err := json.Marshal(sseResizePayload{OldSize: msg.OldSize, NewSize: msg.NewSize})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: resize\ndata: %s\n\n", payload)
		return err

	default:
		return nil
	}
}
