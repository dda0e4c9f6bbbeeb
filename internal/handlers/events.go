package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-engine/internal/services/events"
)

const keepaliveInterval = 30 * time.Second

// Subscriber opens a Pub/Sub subscription to one session's events.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) *redis.PubSub
}

// EventsHandler handles Server-Sent Events (SSE) for live combat updates
type EventsHandler struct {
	subscriber Subscriber
	logger     *slog.Logger
	keepalive  time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(subscriber Subscriber, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		subscriber: subscriber,
		logger:     logger,
		keepalive:  keepaliveInterval,
	}
}

// Register mounts GET /v1/events/combat/{session_id}.
func (h *EventsHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /v1/events/combat/{session_id}", h)
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeBadRequest(w, h.logger, "Invalid path. Expected /v1/events/combat/{session_id}")
		return
	}
	log := h.logger.With("session_id", sessionID)

	pubsub := h.subscriber.Subscribe(r.Context(), sessionID)
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Error("Failed to close pubsub", "error", err)
		}
	}()
	// Wait for the subscription to be confirmed so nothing published after
	// the connected event is missed.
	if _, err := pubsub.Receive(r.Context()); err != nil {
		log.Error("Failed to subscribe to session events", "error", err)
		writeJSON(w, h.logger, http.StatusServiceUnavailable, ErrorResponse{Error: "Event stream unavailable"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	log.Info("SSE connection established", "remote_addr", r.RemoteAddr)

	msgChan := pubsub.Channel()
	keepaliveTicker := time.NewTicker(h.keepalive)
	defer keepaliveTicker.Stop()

	h.sendSSE(w, "connected", map[string]any{
		"session_id": sessionID,
		"channel":    events.Channel(sessionID),
	})

	for {
		select {
		case <-r.Context().Done():
			log.Info("SSE client disconnected")
			return

		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			h.sendSSE(w, string(event.Type), event)
			if event.Type == events.EventTypeSessionEnded {
				return
			}

		case <-keepaliveTicker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				log.Error("Failed to write keepalive", "error", err)
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// sendSSE sends a Server-Sent Event to the client
func (h *EventsHandler) sendSSE(w http.ResponseWriter, eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		h.logger.Error("Failed to write event", "error", err)
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
