package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeSessionCreated EventType = "combat.session_created"
	EventTypeActionResolved EventType = "combat.action_resolved"
	EventTypeSessionEnded   EventType = "combat.session_ended"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	MoveID    string         `json:"move_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher is what the Session Runtime needs from a broadcaster.
type Publisher interface {
	PublishSessionCreated(ctx context.Context, meta *combat.SessionMeta) error
	PublishActionResolved(ctx context.Context, result *combat.ActionResult) error
	PublishSessionEnded(ctx context.Context, summary combat.ResolutionSummary) error
}

// Channel returns the Pub/Sub channel of one session.
func Channel(sessionID string) string {
	return fmt.Sprintf("combat-events:%s", sessionID)
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishSessionCreated announces a new live session.
func (b *Broadcaster) PublishSessionCreated(ctx context.Context, meta *combat.SessionMeta) error {
	return b.publishToSession(ctx, meta.ID, Event{
		Type:      EventTypeSessionCreated,
		SessionID: meta.ID,
		Data: map[string]any{
			"teams":       meta.Teams,
			"battle_type": meta.BattleType,
			"mode":        meta.Mode,
			"is_shadow":   meta.IsShadow,
		},
	})
}

// PublishActionResolved publishes the result of one resolved pair.
func (b *Broadcaster) PublishActionResolved(ctx context.Context, result *combat.ActionResult) error {
	return b.publishToSession(ctx, result.SessionID, Event{
		Type:      EventTypeActionResolved,
		SessionID: result.SessionID,
		MoveID:    result.MoveID,
		Data: map[string]any{
			"round":  result.Round,
			"state":  result.State,
			"events": result.Events,
			"ended":  result.Ended,
		},
	})
}

// PublishSessionEnded publishes the resolution summary.
func (b *Broadcaster) PublishSessionEnded(ctx context.Context, summary combat.ResolutionSummary) error {
	return b.publishToSession(ctx, summary.SessionID, Event{
		Type:      EventTypeSessionEnded,
		SessionID: summary.SessionID,
		Data: map[string]any{
			"reason":      summary.Reason,
			"winner":      summary.Winner,
			"rounds":      summary.Rounds,
			"dead_actors": summary.DeadActors,
			"rewards":     summary.Rewards,
		},
	})
}

// publishToSession publishes an event to the session-specific channel
func (b *Broadcaster) publishToSession(ctx context.Context, sessionID string, event Event) error {
	channel := Channel(sessionID)
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Published event",
		"channel", channel,
		"type", event.Type,
		"session_id", sessionID)
	return nil
}

// Subscribe opens a subscription to one session's events.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionID))
}
