package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// heartbeatInterval — период keep-alive комментариев в SSE-потоке,
// чтобы прокси не закрывали простаивающее соединение.
const heartbeatInterval = 30 * time.Second

// handleNotificationStream — GET /api/notifications/stream.
// Отдаёт события пользователя в формате Server-Sent Events до закрытия
// соединения клиентом.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "streaming unsupported"})
		return
	}
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "notifications unavailable"})
		return
	}

	userID := CallerID(r.Context())
	events, unregister := s.hub.Register(userID)
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				s.logger.WithError(err).WithField("user_id", userID).Warn("sse write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
