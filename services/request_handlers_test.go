package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"card-stock-tracker/domain"
)

func requestFixture() (*MockJobQueue, *MockUserDirectory, *MockNotifier, *RequestHandlers) {
	registry := NewTaskRegistry()
	RegisterTaskIDs(registry)

	queue := new(MockJobQueue)
	users := new(MockUserDirectory)
	notifier := new(MockNotifier)
	h := NewRequestHandlers(NewDispatcher(registry, queue, "queue-url"), users, notifier)
	return queue, users, notifier, h
}

func decodeJob(t *testing.T, body []byte) domain.JobDescriptor {
	t.Helper()
	var job domain.JobDescriptor
	assert.NoError(t, json.Unmarshal(body, &job))
	return job
}

func TestHandleAvailabilityRequest_EnqueuesSingleCardJob(t *testing.T) {
	queue, _, _, h := requestFixture()

	var sent []byte
	queue.On("SendMessage", mock.Anything, "queue-url", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).([]byte) }).
		Return(nil)

	payload := domain.AvailabilityRequestPayload{
		Username:  "alice",
		StoreSlug: "home-store",
		CardData:  domain.CardData{CardName: "Lightning Bolt"},
	}
	handler := h.HandlerMap()[domain.MsgAvailabilityRequest]
	assert.NoError(t, handler(context.Background(), rawPayload(t, payload)))

	job := decodeJob(t, sent)
	assert.Equal(t, domain.TaskUpdateSingleCard, job.TaskID)
	assert.Len(t, job.Args, 3)
}

func TestHandleAvailabilityRequest_MissingFieldsRejected(t *testing.T) {
	queue, _, _, h := requestFixture()
	handler := h.HandlerMap()[domain.MsgAvailabilityRequest]

	err := handler(context.Background(), rawPayload(t, domain.AvailabilityRequestPayload{Username: "alice"}))
	assert.Error(t, err)
	queue.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleQueueAllChecks_FansOutPerCardAndStore(t *testing.T) {
	queue, users, notifier, h := requestFixture()

	users.On("LoadCardList", "alice").Return([]domain.CardData{
		{CardName: "Lightning Bolt"},
		{CardName: "Shock"},
	}, nil)
	users.On("GetUserStores", "alice").Return([]domain.Store{
		{Slug: "home-store"},
		{Slug: "second-store"},
		{Slug: "third-store"},
	}, nil)
	queue.On("SendMessage", mock.Anything, "queue-url", mock.Anything).Return(nil)
	notifier.On("Emit", mock.Anything, domain.EventAvailabilityCheckQueued, mock.Anything, "alice").Return(nil)

	handler := h.HandlerMap()[domain.MsgQueueAllAvailabilityChecks]
	payload := domain.QueueAllAvailabilityChecksPayload{Username: "alice"}
	assert.NoError(t, handler(context.Background(), rawPayload(t, payload)))

	// Two cards times three stores.
	queue.AssertNumberOfCalls(t, "SendMessage", 6)
	notifier.AssertExpectations(t)
}

func TestHandleQueueAllChecks_NothingToQueueIsANoOp(t *testing.T) {
	queue, users, notifier, h := requestFixture()

	users.On("LoadCardList", "alice").Return([]domain.CardData{}, nil)
	users.On("GetUserStores", "alice").Return([]domain.Store{{Slug: "home-store"}}, nil)

	handler := h.HandlerMap()[domain.MsgQueueAllAvailabilityChecks]
	payload := domain.QueueAllAvailabilityChecksPayload{Username: "alice"}
	assert.NoError(t, handler(context.Background(), rawPayload(t, payload)))

	queue.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleQueueAllChecks_MissingUsernameRejected(t *testing.T) {
	_, _, _, h := requestFixture()
	handler := h.HandlerMap()[domain.MsgQueueAllAvailabilityChecks]

	err := handler(context.Background(), rawPayload(t, domain.QueueAllAvailabilityChecksPayload{}))
	assert.Error(t, err)
}

func TestHandleQueueAllChecks_UndecodablePayloadRejected(t *testing.T) {
	_, _, _, h := requestFixture()
	handler := h.HandlerMap()[domain.MsgQueueAllAvailabilityChecks]
	assert.Error(t, handler(context.Background(), json.RawMessage("not json")))
}
