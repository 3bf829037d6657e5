package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"votecast/internal/platform/apperr"
)

// handleEvents is the live delivery surface: a Server-Sent-Events stream.
// Connecting registers the client with the broadcast router; the optional
// "poll" query parameter joins that poll's room. When the request context
// ends the client is removed from every room — membership is volatile and
// clients rejoin after reconnecting.
//
// @Summary     Live vote-update stream (SSE)
// @Tags        events
// @Produce     text/event-stream
// @Param       poll  query  int64  false  "Poll room to join"
// @Success     200
// @Failure     400  {object}  map[string]string  "invalid poll id"
// @Router      /api/v1/events [get]
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		errorResponse(w, apperr.Internal("streaming_unsupported", "streaming unsupported", nil))
		return
	}

	var pollID int64
	if s := r.URL.Query().Get("poll"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
			return
		}
		pollID = id
	}

	clientID := uuid.NewString()
	ch := h.hub.Register(clientID)
	defer h.hub.Disconnect(clientID)

	if pollID != 0 {
		h.hub.Join(clientID, pollID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {\"clientId\":%q}\n\n", clientID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}
