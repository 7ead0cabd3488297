package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"go.uber.org/zap"
)

const keepAliveInterval = 30 * time.Second

// stream writes every feed snapshot as a Server-Sent Event until the client
// disconnects. The feed is closed on return.
func stream[T any](w http.ResponseWriter, r *http.Request, feed *events.Feed[T], logger *zap.Logger) {
	defer feed.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-feed.Snapshots():
			if !ok {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				logger.Error("Failed to encode snapshot", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
