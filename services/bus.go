package services

import (
	"context"
	"encoding/json"
	"fmt"

	"card-stock-tracker/domain"
)

// Publisher pushes raw payloads onto a named pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PublishMessage wraps a payload in the discriminated envelope and
// publishes it.
func PublishMessage(ctx context.Context, pub Publisher, channel, msgType string, payload interface{}) error {
	msg, err := domain.NewPubSubMessage(msgType, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", msgType, err)
	}
	return pub.Publish(ctx, channel, raw)
}
