package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"card-stock-tracker/domain"
	"card-stock-tracker/repositories"
)

// fakeSubscription feeds canned messages and blocks until closed.
type fakeSubscription struct {
	messages chan string
	once     sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{messages: make(chan string, 16)}
}

func (s *fakeSubscription) ReceiveMessage(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-s.messages:
		if !ok {
			return "", errors.New("subscription closed")
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.messages) })
	return nil
}

type fakeBroker struct {
	sub *fakeSubscription

	mu  sync.Mutex
	dlq map[string][]string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{sub: newFakeSubscription(), dlq: make(map[string][]string)}
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) repositories.Subscription {
	return b.sub
}

func (b *fakeBroker) RPush(ctx context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dlq[key] = append(b.dlq[key], value)
	return nil
}

func (b *fakeBroker) deadLetters(key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.dlq[key]...)
}

func envelope(t *testing.T, msgType string, payload interface{}) string {
	t.Helper()
	msg, err := domain.NewPubSubMessage(msgType, payload)
	assert.NoError(t, err)
	raw, err := json.Marshal(msg)
	assert.NoError(t, err)
	return string(raw)
}

func TestChannelListener_DispatchesByType(t *testing.T) {
	broker := newFakeBroker()
	received := make(chan string, 1)

	handlers := map[string]MessageHandler{
		"greeting": func(ctx context.Context, payload json.RawMessage) error {
			var text string
			if err := json.Unmarshal(payload, &text); err != nil {
				return err
			}
			received <- text
			return nil
		},
	}

	l := NewChannelListener("test-channel", broker, handlers)
	l.Start(context.Background())
	defer l.Stop(time.Second)

	broker.sub.messages <- envelope(t, "greeting", "hello")

	select {
	case text := <-received:
		assert.Equal(t, "hello", text)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestChannelListener_UndecodableMessageGoesToDeadLetter(t *testing.T) {
	broker := newFakeBroker()
	l := NewChannelListener("test-channel", broker, map[string]MessageHandler{})
	l.Start(context.Background())

	broker.sub.messages <- "this is not json"

	assert.Eventually(t, func() bool {
		return len(broker.deadLetters("test-channel"+domain.DeadLetterSuffix)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	l.Stop(time.Second)
	assert.Equal(t, []string{"this is not json"}, broker.deadLetters("test-channel"+domain.DeadLetterSuffix))
}

func TestChannelListener_UnknownTypeGoesToDeadLetter(t *testing.T) {
	broker := newFakeBroker()
	l := NewChannelListener("test-channel", broker, map[string]MessageHandler{})
	l.Start(context.Background())
	defer l.Stop(time.Second)

	broker.sub.messages <- envelope(t, "nobody_handles_this", nil)

	assert.Eventually(t, func() bool {
		return len(broker.deadLetters("test-channel"+domain.DeadLetterSuffix)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannelListener_HandlerErrorGoesToDeadLetterAndLoopContinues(t *testing.T) {
	broker := newFakeBroker()
	received := make(chan string, 2)

	handlers := map[string]MessageHandler{
		"flaky": func(ctx context.Context, payload json.RawMessage) error {
			var text string
			_ = json.Unmarshal(payload, &text)
			if text == "bad" {
				return errors.New("boom")
			}
			received <- text
			return nil
		},
	}

	l := NewChannelListener("test-channel", broker, handlers)
	l.Start(context.Background())
	defer l.Stop(time.Second)

	broker.sub.messages <- envelope(t, "flaky", "bad")
	broker.sub.messages <- envelope(t, "flaky", "good")

	select {
	case text := <-received:
		assert.Equal(t, "good", text)
	case <-time.After(2 * time.Second):
		t.Fatal("listener stopped after a handler error")
	}
	assert.Len(t, broker.deadLetters("test-channel"+domain.DeadLetterSuffix), 1)
}

func TestChannelListener_StopUnblocksReceive(t *testing.T) {
	broker := newFakeBroker()
	l := NewChannelListener("test-channel", broker, map[string]MessageHandler{})
	l.Start(context.Background())

	done := make(chan struct{})
	go func() {
		l.Stop(5 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestChannelListener_DoubleStartIsNoOp(t *testing.T) {
	broker := newFakeBroker()
	l := NewChannelListener("test-channel", broker, map[string]MessageHandler{})
	l.Start(context.Background())
	l.Start(context.Background())
	l.Stop(time.Second)
}
