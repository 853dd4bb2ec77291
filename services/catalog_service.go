package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"card-stock-tracker/domain"
	"card-stock-tracker/repositories"
)

// Consumer-side interfaces
type CatalogFeed interface {
	FetchCardNames(ctx context.Context) ([]string, error)
	FetchSets(ctx context.Context) ([]repositories.FeedSet, error)
	StreamCards(ctx context.Context, fn func(repositories.FeedCard) error) error
}

type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CatalogService runs the worker-side catalog tasks: the small card-name
// and set fetches, and the chunked ingestion of the bulk printing feed.
type CatalogService struct {
	feed      CatalogFeed
	publisher Publisher
	cache     CacheStore
	chunkSize int
	namesTTL  time.Duration
}

// Functional Options Pattern
type CatalogOption func(*CatalogService)

func WithCatalogFeed(f CatalogFeed) CatalogOption {
	return func(s *CatalogService) { s.feed = f }
}

func WithCatalogPublisher(p Publisher) CatalogOption {
	return func(s *CatalogService) { s.publisher = p }
}

func WithCatalogCache(c CacheStore) CatalogOption {
	return func(s *CatalogService) { s.cache = c }
}

func WithChunkSize(n int) CatalogOption {
	return func(s *CatalogService) { s.chunkSize = n }
}

func WithNamesCacheTTL(ttl time.Duration) CatalogOption {
	return func(s *CatalogService) { s.namesTTL = ttl }
}

func NewCatalogService(opts ...CatalogOption) *CatalogService {
	s := &CatalogService{
		chunkSize: 20000,
		namesTTL:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateCardCatalog fetches every card name (24h cached) and publishes
// them for the server to upsert.
func (s *CatalogService) UpdateCardCatalog(ctx context.Context) error {
	log.Println("starting task: update_card_catalog")

	names, err := s.cachedCardNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		log.Println("no card names fetched from source; catalog update skipped")
		return nil
	}

	payload := domain.CatalogCardNamesPayload{Names: names}
	if err := PublishMessage(ctx, s.publisher, domain.ChannelWorkerResults, domain.MsgCatalogCardNames, payload); err != nil {
		return fmt.Errorf("failed to publish card names: %w", err)
	}
	log.Printf("published %d card names", len(names))
	return nil
}

func (s *CatalogService) cachedCardNames(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, domain.RedisKeyCardNames); err == nil && found {
			var names []string
			if err := json.Unmarshal([]byte(raw), &names); err == nil {
				log.Printf("loaded %d card names from cache", len(names))
				return names, nil
			}
		}
	}

	names, err := s.feed.FetchCardNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch card names: %w", err)
	}

	if s.cache != nil && len(names) > 0 {
		if raw, err := json.Marshal(names); err == nil {
			if err := s.cache.Set(ctx, domain.RedisKeyCardNames, string(raw), s.namesTTL); err != nil {
				log.Printf("failed to cache card names: %v", err)
			}
		}
	}
	return names, nil
}

// UpdateSetCatalog fetches all set data and publishes it for upsert.
func (s *CatalogService) UpdateSetCatalog(ctx context.Context) error {
	log.Println("starting task: update_set_catalog")

	rawSets, err := s.feed.FetchSets(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sets: %w", err)
	}

	sets := make([]domain.SetData, 0, len(rawSets))
	for _, raw := range rawSets {
		if raw.Code == "" || raw.Name == "" {
			continue
		}
		sets = append(sets, domain.SetData{Code: raw.Code, Name: raw.Name, ReleaseDate: raw.ReleasedAt})
	}
	if len(sets) == 0 {
		log.Println("no set data fetched from source; catalog update skipped")
		return nil
	}

	payload := domain.CatalogSetDataPayload{Sets: sets}
	if err := PublishMessage(ctx, s.publisher, domain.ChannelWorkerResults, domain.MsgCatalogSetData, payload); err != nil {
		return fmt.Errorf("failed to publish set data: %w", err)
	}
	log.Printf("published %d sets", len(sets))
	return nil
}

// UpdateFullCatalog streams the bulk feed, publishing fixed-size printing
// chunks as they fill and the distinct finish set once at the end. One
// chunk's publish failure is logged and skipped; the stream continues.
func (s *CatalogService) UpdateFullCatalog(ctx context.Context) error {
	// The printing tables reference sets and card names, so those
	// catalogs are refreshed first.
	if err := s.UpdateSetCatalog(ctx); err != nil {
		log.Printf("set catalog refresh failed before full catalog run: %v", err)
	}
	if err := s.UpdateCardCatalog(ctx); err != nil {
		log.Printf("card catalog refresh failed before full catalog run: %v", err)
	}

	log.Println("starting task: update_full_catalog")
	start := time.Now()

	finishes := make(map[string]bool)
	chunk := make([]domain.PrintingRecord, 0, s.chunkSize)
	total := 0

	err := s.feed.StreamCards(ctx, func(card repositories.FeedCard) error {
		total++
		for _, finish := range card.Finishes {
			finishes[finish] = true
		}

		if card.Name == "" || card.Set == "" || card.CollectorNumber == "" || len(card.Finishes) == 0 {
			return nil
		}
		chunk = append(chunk, domain.PrintingRecord{
			CardName:        card.Name,
			SetCode:         card.Set,
			CollectorNumber: card.CollectorNumber,
			Finishes:        card.Finishes,
		})

		if len(chunk) >= s.chunkSize {
			s.publishPrintingsChunk(ctx, chunk)
			chunk = make([]domain.PrintingRecord, 0, s.chunkSize)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bulk card stream failed: %w", err)
	}

	if len(chunk) > 0 {
		log.Println("publishing final chunk...")
		s.publishPrintingsChunk(ctx, chunk)
	}

	if len(finishes) > 0 {
		names := make([]string, 0, len(finishes))
		for finish := range finishes {
			names = append(names, finish)
		}
		payload := domain.CatalogFinishesPayload{Finishes: names}
		if err := PublishMessage(ctx, s.publisher, domain.ChannelWorkerResults, domain.MsgCatalogFinishesChunk, payload); err != nil {
			log.Printf("failed to publish finishes: %v", err)
		}
	}

	log.Printf("finished task: update_full_catalog. Processed %d cards in %s", total, time.Since(start).Round(time.Millisecond))
	return nil
}

// publishPrintingsChunk degrades a transient broker outage to reduced
// completeness rather than aborting the run.
func (s *CatalogService) publishPrintingsChunk(ctx context.Context, chunk []domain.PrintingRecord) {
	payload := domain.CatalogPrintingsChunkPayload{Printings: chunk}
	if err := PublishMessage(ctx, s.publisher, domain.ChannelWorkerResults, domain.MsgCatalogPrintingsChunk, payload); err != nil {
		log.Printf("failed to publish chunk of %d printings, skipping: %v", len(chunk), err)
		return
	}
	log.Printf("published chunk of %d printings", len(chunk))
}
