package repositories

import (
	"context"
	"encoding/json"
	"fmt"
)

// UIEventsChannel carries user-facing events to the (out of scope) UI
// layer. Delivery is best-effort push.
const UIEventsChannel = "ui-events"

// RedisNotifier publishes UI events on a dedicated pub/sub channel, where
// the presentation layer picks them up per user room.
type RedisNotifier struct {
	redis RedisClient
}

func NewRedisNotifier(redis RedisClient) *RedisNotifier {
	return &RedisNotifier{redis: redis}
}

type uiEvent struct {
	Event   string      `json:"event"`
	Room    string      `json:"room,omitempty"`
	Payload interface{} `json:"payload"`
}

func (n *RedisNotifier) Emit(ctx context.Context, event string, payload interface{}, room string) error {
	raw, err := json.Marshal(uiEvent{Event: event, Room: room, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	return n.redis.Publish(ctx, UIEventsChannel, raw)
}
