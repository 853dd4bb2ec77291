package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"card-stock-tracker/domain"
	"card-stock-tracker/repositories"
)

// MessageHandler processes one decoded payload for a message type.
type MessageHandler func(ctx context.Context, payload json.RawMessage) error

// Subscriber opens pub/sub subscriptions on the broker.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) repositories.Subscription
	RPush(ctx context.Context, key, value string) error
}

// ChannelListener runs one background goroutine consuming a single pub/sub
// channel: blocking receive, envelope decode, dispatch through a static
// name-to-handler table. A failed message is logged and pushed to the
// channel's dead-letter list; the loop keeps going.
type ChannelListener struct {
	channel  string
	broker   Subscriber
	handlers map[string]MessageHandler

	mu   sync.Mutex
	sub  repositories.Subscription
	done chan struct{}
}

func NewChannelListener(channel string, broker Subscriber, handlers map[string]MessageHandler) *ChannelListener {
	return &ChannelListener{
		channel:  channel,
		broker:   broker,
		handlers: handlers,
	}
}

// Start subscribes and launches the listener goroutine. Starting an
// already-running listener is a no-op.
func (l *ChannelListener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		log.Printf("listener for %s is already running", l.channel)
		return
	}

	l.sub = l.broker.Subscribe(ctx, l.channel)
	l.done = make(chan struct{})
	go l.listen(ctx, l.sub, l.done)
	log.Printf("listener started, subscribed to %q", l.channel)
}

// Stop closes the subscription, which unblocks the pending receive, then
// waits for the goroutine with a bounded timeout.
func (l *ChannelListener) Stop(timeout time.Duration) {
	l.mu.Lock()
	sub, done := l.sub, l.done
	l.sub, l.done = nil, nil
	l.mu.Unlock()

	if sub == nil {
		return
	}
	log.Printf("shutting down listener for %s...", l.channel)
	if err := sub.Close(); err != nil {
		log.Printf("failed to close subscription for %s: %v", l.channel, err)
	}
	select {
	case <-done:
		log.Printf("listener for %s shut down gracefully", l.channel)
	case <-time.After(timeout):
		log.Printf("listener for %s did not stop within %s", l.channel, timeout)
	}
}

func (l *ChannelListener) listen(ctx context.Context, sub repositories.Subscription, done chan struct{}) {
	defer close(done)

	for {
		raw, err := sub.ReceiveMessage(ctx)
		if err != nil {
			// Reached when the subscription is closed or the broker
			// connection drops.
			log.Printf("listener for %s exiting: %v", l.channel, err)
			return
		}

		if err := l.dispatch(ctx, raw); err != nil {
			log.Printf("failed to process message on %s: %v. Message: %s", l.channel, err, raw)
			l.deadLetter(ctx, raw)
		}
	}
}

func (l *ChannelListener) dispatch(ctx context.Context, raw string) error {
	var msg domain.PubSubMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return fmt.Errorf("undecodable message: %w", err)
	}

	handler, ok := l.handlers[msg.Type]
	if !ok {
		return fmt.Errorf("no handler for message type %q", msg.Type)
	}
	return handler(ctx, msg.Payload)
}

func (l *ChannelListener) deadLetter(ctx context.Context, raw string) {
	dlq := l.channel + domain.DeadLetterSuffix
	if err := l.broker.RPush(ctx, dlq, raw); err != nil {
		log.Printf("failed to push message to %s: %v", dlq, err)
	}
}
