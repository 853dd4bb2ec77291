package services

import (
	"context"
	"log"
	"net/url"
	"strings"

	"card-stock-tracker/domain"
)

// Consumer-side interfaces
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string, params url.Values) (string, error)
}

type SetCodeLookup interface {
	SetCode(setName string) (string, bool)
}

// StorefrontStrategy scrapes raw listings for one storefront template
// family.
type StorefrontStrategy interface {
	ScrapeListings(ctx context.Context, store domain.Store, cardName string) ([]domain.Listing, error)
}

// StorefrontRegistry maps template-family ids to their shared scraping
// strategy. Unrecognized families fall back to a null strategy.
type StorefrontRegistry struct {
	strategies map[string]StorefrontStrategy
}

func NewStorefrontRegistry() *StorefrontRegistry {
	return &StorefrontRegistry{strategies: make(map[string]StorefrontStrategy)}
}

func (r *StorefrontRegistry) Register(family string, strategy StorefrontStrategy) {
	r.strategies[family] = strategy
}

func (r *StorefrontRegistry) Strategy(family string) StorefrontStrategy {
	if strategy, ok := r.strategies[family]; ok {
		return strategy
	}
	return nullStrategy{}
}

// nullStrategy returns empty results for storefronts whose template
// family has no implementation yet.
type nullStrategy struct{}

func (nullStrategy) ScrapeListings(ctx context.Context, store domain.Store, cardName string) ([]domain.Listing, error) {
	log.Printf("no scraping strategy for template family %q (store %s); returning no listings",
		store.TemplateFamily, store.Slug)
	return nil, nil
}

// ScraperService produces filtered, deduplicated listings for one
// (store, card) pair. An empty result is a valid out-of-stock answer;
// scraping failures degrade to it.
type ScraperService struct {
	registry *StorefrontRegistry
}

// Functional Options Pattern
type ScraperOption func(*ScraperService)

func WithStorefrontRegistry(r *StorefrontRegistry) ScraperOption {
	return func(s *ScraperService) { s.registry = r }
}

func NewScraperService(opts ...ScraperOption) *ScraperService {
	s := &ScraperService{registry: NewStorefrontRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCardAvailability scrapes a store for a card and filters results
// against the caller's specifications. Never returns an error: retries are
// exhausted inside the fetcher, and whatever fails here yields no data.
func (s *ScraperService) FetchCardAvailability(ctx context.Context, store domain.Store, cardName string, specs []domain.ListingSpec) []domain.Listing {
	log.Printf("checking availability for %q at %s", cardName, store.Name)

	strategy := s.registry.Strategy(store.TemplateFamily)
	raw, err := strategy.ScrapeListings(ctx, store, cardName)
	if err != nil {
		log.Printf("failed to scrape %s for %q: %v", store.Slug, cardName, err)
		return []domain.Listing{}
	}

	filtered := FilterListings(cardName, raw, specs)
	log.Printf("found %d raw / %d matching listings for %q at %s", len(raw), len(filtered), cardName, store.Name)
	return filtered
}

// FilterListings keeps listings whose name matches the card and that
// satisfy at least one of the given specifications. Nil spec fields are
// wildcards; no specifications at all means a name match is enough.
func FilterListings(cardName string, listings []domain.Listing, specs []domain.ListingSpec) []domain.Listing {
	filtered := make([]domain.Listing, 0, len(listings))
	for _, listing := range listings {
		if !strings.EqualFold(cardName, listing.CardName) {
			continue
		}
		if len(specs) == 0 {
			filtered = append(filtered, listing)
			continue
		}
		for _, spec := range specs {
			if matchesSpec(listing, spec) {
				filtered = append(filtered, listing)
				break
			}
		}
	}
	return filtered
}

func matchesSpec(listing domain.Listing, spec domain.ListingSpec) bool {
	if spec.SetCode != nil && !strings.EqualFold(*spec.SetCode, listing.SetCode) {
		return false
	}
	if spec.CollectorNumber != nil && *spec.CollectorNumber != listing.CollectorNumber {
		return false
	}
	if spec.Finish != nil && !strings.EqualFold(*spec.Finish, domain.FinishAny) &&
		!strings.EqualFold(*spec.Finish, listing.Finish) {
		return false
	}
	return true
}
