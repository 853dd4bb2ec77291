package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"card-stock-tracker/domain"
)

// Mocks
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) SendMessage(ctx context.Context, queueURL string, body []byte) error {
	args := m.Called(ctx, queueURL, body)
	return args.Error(0)
}

type MockScheduleGuard struct {
	mock.Mock
}

func (m *MockScheduleGuard) SAdd(ctx context.Context, key string, member string) (int64, error) {
	args := m.Called(ctx, key, member)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockScheduleGuard) SRem(ctx context.Context, key string, member string) error {
	args := m.Called(ctx, key, member)
	return args.Error(0)
}

func (m *MockScheduleGuard) Expire(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func noopTask(ctx context.Context, args []json.RawMessage) error { return nil }

func TestDispatcher_EnqueueBuildsJobDescriptor(t *testing.T) {
	registry := NewTaskRegistry()
	registry.Register(domain.TaskUpdateSingleCard, noopTask)

	queue := new(MockJobQueue)
	var sent []byte
	queue.On("SendMessage", mock.Anything, "queue-url", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).([]byte) }).
		Return(nil)

	d := NewDispatcher(registry, queue, "queue-url")
	d.Enqueue(context.Background(), domain.TaskUpdateSingleCard, "alice", "home-store", domain.CardData{CardName: "Lightning Bolt"})

	queue.AssertNumberOfCalls(t, "SendMessage", 1)

	var job domain.JobDescriptor
	assert.NoError(t, json.Unmarshal(sent, &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.TaskUpdateSingleCard, job.TaskID)
	assert.Len(t, job.Args, 3)

	var username string
	assert.NoError(t, json.Unmarshal(job.Args[0], &username))
	assert.Equal(t, "alice", username)

	var card domain.CardData
	assert.NoError(t, json.Unmarshal(job.Args[2], &card))
	assert.Equal(t, "Lightning Bolt", card.CardName)
}

func TestDispatcher_UnknownTaskEnqueuesNothing(t *testing.T) {
	registry := NewTaskRegistry()
	queue := new(MockJobQueue)

	d := NewDispatcher(registry, queue, "queue-url")
	d.Enqueue(context.Background(), "no_such_task")

	queue.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_QueueFailureDoesNotPanic(t *testing.T) {
	registry := NewTaskRegistry()
	registry.Register(domain.TaskUpdateFullCatalog, noopTask)

	queue := new(MockJobQueue)
	queue.On("SendMessage", mock.Anything, "queue-url", mock.Anything).Return(assert.AnError)

	d := NewDispatcher(registry, queue, "queue-url")
	d.Enqueue(context.Background(), domain.TaskUpdateFullCatalog)

	queue.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestTaskRegistry_ResolveUnknown(t *testing.T) {
	registry := NewTaskRegistry()
	_, ok := registry.Resolve("missing")
	assert.False(t, ok)

	registry.Register("present", noopTask)
	fn, ok := registry.Resolve("present")
	assert.True(t, ok)
	assert.NotNil(t, fn)
}

func TestRecurringScheduler_ClaimedJobIsSkipped(t *testing.T) {
	registry := NewTaskRegistry()
	registry.Register(domain.TaskUpdateWantedCards, noopTask)
	queue := new(MockJobQueue)

	guard := new(MockScheduleGuard)
	guard.On("SAdd", mock.Anything, domain.RedisKeyScheduledJobs, "sweep").Return(0, nil)

	s := NewRecurringScheduler(NewDispatcher(registry, queue, "queue-url"), guard, time.Hour)
	s.ScheduleEvery(context.Background(), "sweep", domain.TaskUpdateWantedCards, time.Hour)
	s.Stop(context.Background())

	queue.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	guard.AssertNotCalled(t, "SRem", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecurringScheduler_FirstEnqueueIsImmediate(t *testing.T) {
	registry := NewTaskRegistry()
	registry.Register(domain.TaskUpdateWantedCards, noopTask)

	queue := new(MockJobQueue)
	enqueued := make(chan struct{}, 1)
	queue.On("SendMessage", mock.Anything, "queue-url", mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case enqueued <- struct{}{}:
			default:
			}
		}).
		Return(nil)

	guard := new(MockScheduleGuard)
	guard.On("SAdd", mock.Anything, domain.RedisKeyScheduledJobs, "sweep").Return(1, nil)
	guard.On("Expire", mock.Anything, domain.RedisKeyScheduledJobs, mock.Anything).Return(nil)
	guard.On("SRem", mock.Anything, domain.RedisKeyScheduledJobs, "sweep").Return(nil)

	s := NewRecurringScheduler(NewDispatcher(registry, queue, "queue-url"), guard, time.Hour)
	s.ScheduleEvery(context.Background(), "sweep", domain.TaskUpdateWantedCards, time.Hour, "")

	select {
	case <-enqueued:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate enqueue")
	}

	s.Stop(context.Background())
	guard.AssertCalled(t, "SRem", mock.Anything, domain.RedisKeyScheduledJobs, "sweep")
}
