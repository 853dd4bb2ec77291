package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"card-stock-tracker/domain"
	"card-stock-tracker/repositories"
)

// Mocks
type MockCatalogFeed struct {
	mock.Mock
}

func (m *MockCatalogFeed) FetchCardNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCatalogFeed) FetchSets(ctx context.Context) ([]repositories.FeedSet, error) {
	args := m.Called(ctx)
	return args.Get(0).([]repositories.FeedSet), args.Error(1)
}

func (m *MockCatalogFeed) StreamCards(ctx context.Context, fn func(repositories.FeedCard) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// capturingPublisher records every envelope published, optionally failing
// chosen channels of the sequence.
type capturingPublisher struct {
	mu       sync.Mutex
	messages []domain.PubSubMessage
	failNext map[int]bool
	calls    int
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{failNext: make(map[int]bool)}
}

func (p *capturingPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.calls
	p.calls++
	if p.failNext[call] {
		return fmt.Errorf("broker unavailable")
	}
	var msg domain.PubSubMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingPublisher) byType(msgType string) []domain.PubSubMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.PubSubMessage
	for _, msg := range p.messages {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.store[key]
	return val, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
	return nil
}

func feedCard(name, set, cn string, finishes ...string) repositories.FeedCard {
	return repositories.FeedCard{Name: name, Set: set, CollectorNumber: cn, Finishes: finishes}
}

func streamOf(cards ...repositories.FeedCard) func(mock.Arguments) {
	return func(args mock.Arguments) {
		fn := args.Get(1).(func(repositories.FeedCard) error)
		for _, card := range cards {
			if err := fn(card); err != nil {
				return
			}
		}
	}
}

func TestUpdateCardCatalog_PublishesNames(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchCardNames", mock.Anything).Return([]string{"Lightning Bolt", "Shock"}, nil)
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub))
	assert.NoError(t, svc.UpdateCardCatalog(context.Background()))

	published := pub.byType(domain.MsgCatalogCardNames)
	assert.Len(t, published, 1)

	var payload domain.CatalogCardNamesPayload
	assert.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	assert.Equal(t, []string{"Lightning Bolt", "Shock"}, payload.Names)
}

func TestUpdateCardCatalog_CacheHitSkipsFeed(t *testing.T) {
	feed := new(MockCatalogFeed)
	cache := newFakeCache()
	cached, _ := json.Marshal([]string{"Lightning Bolt"})
	cache.store[domain.RedisKeyCardNames] = string(cached)
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub), WithCatalogCache(cache))
	assert.NoError(t, svc.UpdateCardCatalog(context.Background()))

	feed.AssertNotCalled(t, "FetchCardNames", mock.Anything)
	assert.Len(t, pub.byType(domain.MsgCatalogCardNames), 1)
}

func TestUpdateCardCatalog_MissPopulatesCache(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchCardNames", mock.Anything).Return([]string{"Lightning Bolt"}, nil)
	cache := newFakeCache()
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub), WithCatalogCache(cache))
	assert.NoError(t, svc.UpdateCardCatalog(context.Background()))

	assert.Contains(t, cache.store, domain.RedisKeyCardNames)
}

func TestUpdateSetCatalog_SkipsIncompleteSets(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchSets", mock.Anything).Return([]repositories.FeedSet{
		{Code: "m10", Name: "Magic 2010", ReleasedAt: "2009-07-17"},
		{Code: "", Name: "Nameless Code"},
		{Code: "xyz", Name: ""},
	}, nil)
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub))
	assert.NoError(t, svc.UpdateSetCatalog(context.Background()))

	published := pub.byType(domain.MsgCatalogSetData)
	assert.Len(t, published, 1)

	var payload domain.CatalogSetDataPayload
	assert.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	assert.Len(t, payload.Sets, 1)
	assert.Equal(t, "m10", payload.Sets[0].Code)
	assert.Equal(t, "2009-07-17", payload.Sets[0].ReleaseDate)
}

func TestUpdateFullCatalog_ChunksAndFinishes(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchSets", mock.Anything).Return([]repositories.FeedSet{}, nil)
	feed.On("FetchCardNames", mock.Anything).Return([]string{}, nil)

	// Five records with chunk size two: three chunk messages.
	cards := []repositories.FeedCard{
		feedCard("Card A", "m10", "1", "nonfoil"),
		feedCard("Card B", "m10", "2", "nonfoil", "foil"),
		feedCard("Card C", "m10", "3", "foil"),
		feedCard("Card D", "m10", "4", "etched"),
		feedCard("Card E", "m10", "5", "nonfoil"),
	}
	feed.On("StreamCards", mock.Anything, mock.Anything).Run(streamOf(cards...)).Return(nil)
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub), WithChunkSize(2))
	assert.NoError(t, svc.UpdateFullCatalog(context.Background()))

	chunks := pub.byType(domain.MsgCatalogPrintingsChunk)
	assert.Len(t, chunks, 3)

	var total []domain.PrintingRecord
	for i, chunk := range chunks {
		var payload domain.CatalogPrintingsChunkPayload
		assert.NoError(t, json.Unmarshal(chunk.Payload, &payload))
		if i < 2 {
			assert.Len(t, payload.Printings, 2)
		} else {
			assert.Len(t, payload.Printings, 1)
		}
		total = append(total, payload.Printings...)
	}
	assert.Len(t, total, 5)
	assert.Equal(t, "Card A", total[0].CardName)
	assert.Equal(t, "Card E", total[4].CardName)

	finishMsgs := pub.byType(domain.MsgCatalogFinishesChunk)
	assert.Len(t, finishMsgs, 1)
	var finishes domain.CatalogFinishesPayload
	assert.NoError(t, json.Unmarshal(finishMsgs[0].Payload, &finishes))
	assert.ElementsMatch(t, []string{"nonfoil", "foil", "etched"}, finishes.Finishes)
}

func TestUpdateFullCatalog_SkipsIncompleteRecords(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchSets", mock.Anything).Return([]repositories.FeedSet{}, nil)
	feed.On("FetchCardNames", mock.Anything).Return([]string{}, nil)
	feed.On("StreamCards", mock.Anything, mock.Anything).Run(streamOf(
		feedCard("Card A", "m10", "1", "nonfoil"),
		feedCard("", "m10", "2", "nonfoil"),
		feedCard("Card C", "", "3", "nonfoil"),
		feedCard("Card D", "m10", ""),
	)).Return(nil)
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub), WithChunkSize(10))
	assert.NoError(t, svc.UpdateFullCatalog(context.Background()))

	chunks := pub.byType(domain.MsgCatalogPrintingsChunk)
	assert.Len(t, chunks, 1)
	var payload domain.CatalogPrintingsChunkPayload
	assert.NoError(t, json.Unmarshal(chunks[0].Payload, &payload))
	assert.Len(t, payload.Printings, 1)
}

func TestUpdateFullCatalog_ChunkPublishFailureContinues(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchSets", mock.Anything).Return([]repositories.FeedSet{}, nil)
	feed.On("FetchCardNames", mock.Anything).Return([]string{}, nil)
	feed.On("StreamCards", mock.Anything, mock.Anything).Run(streamOf(
		feedCard("Card A", "m10", "1", "nonfoil"),
		feedCard("Card B", "m10", "2", "nonfoil"),
		feedCard("Card C", "m10", "3", "nonfoil"),
		feedCard("Card D", "m10", "4", "nonfoil"),
	)).Return(nil)

	pub := newCapturingPublisher()
	// The first publish of the run is the first printings chunk (the set
	// and name refreshes publish nothing here); fail it.
	pub.failNext[0] = true

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub), WithChunkSize(2))
	assert.NoError(t, svc.UpdateFullCatalog(context.Background()))

	chunks := pub.byType(domain.MsgCatalogPrintingsChunk)
	assert.Len(t, chunks, 1)
	var payload domain.CatalogPrintingsChunkPayload
	assert.NoError(t, json.Unmarshal(chunks[0].Payload, &payload))
	assert.Equal(t, "Card C", payload.Printings[0].CardName)
}

func TestUpdateFullCatalog_StreamFailureIsAnError(t *testing.T) {
	feed := new(MockCatalogFeed)
	feed.On("FetchSets", mock.Anything).Return([]repositories.FeedSet{}, nil)
	feed.On("FetchCardNames", mock.Anything).Return([]string{}, nil)
	feed.On("StreamCards", mock.Anything, mock.Anything).Return(fmt.Errorf("download interrupted"))
	pub := newCapturingPublisher()

	svc := NewCatalogService(WithCatalogFeed(feed), WithCatalogPublisher(pub))
	assert.Error(t, svc.UpdateFullCatalog(context.Background()))
}
