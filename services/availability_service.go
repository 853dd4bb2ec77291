package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"card-stock-tracker/domain"
)

// Consumer-side interfaces
type AvailabilityStore interface {
	GetAvailability(ctx context.Context, storeSlug, cardName string) ([]domain.Listing, bool, error)
	SetAvailability(ctx context.Context, storeSlug, cardName string, listings []domain.Listing) error
	LoadSnapshot(ctx context.Context, snapshotCtx string) (domain.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshotCtx string, snap domain.Snapshot) error
	MarkLastUpdate(ctx context.Context) error
}

type UserDirectory interface {
	GetUserByUsername(username string) (*domain.User, error)
	GetAllUsers() ([]domain.User, error)
	GetUserStores(username string) ([]domain.Store, error)
	LoadCardList(username string) ([]domain.CardData, error)
	GetTrackingUsersForCards(cardNames []string) (map[string][]domain.User, error)
	AllStores() ([]domain.Store, error)
}

type CardScraper interface {
	FetchCardAvailability(ctx context.Context, store domain.Store, cardName string, specs []domain.ListingSpec) []domain.Listing
}

// Notifier delivers best-effort events to the UI layer.
type Notifier interface {
	Emit(ctx context.Context, event string, payload interface{}, room string) error
}

// AvailabilityService runs the worker-side availability tasks: single
// (store, card) checks and whole-context sweeps with change detection.
type AvailabilityService struct {
	cache     AvailabilityStore
	users     UserDirectory
	scraper   CardScraper
	publisher Publisher
	notifier  Notifier
}

// Functional Options Pattern
type AvailabilityOption func(*AvailabilityService)

func WithAvailabilityStore(c AvailabilityStore) AvailabilityOption {
	return func(s *AvailabilityService) { s.cache = c }
}

func WithUserDirectory(u UserDirectory) AvailabilityOption {
	return func(s *AvailabilityService) { s.users = u }
}

func WithCardScraper(c CardScraper) AvailabilityOption {
	return func(s *AvailabilityService) { s.scraper = c }
}

func WithResultPublisher(p Publisher) AvailabilityOption {
	return func(s *AvailabilityService) { s.publisher = p }
}

func WithNotifier(n Notifier) AvailabilityOption {
	return func(s *AvailabilityService) { s.notifier = n }
}

func NewAvailabilityService(opts ...AvailabilityOption) *AvailabilityService {
	s := &AvailabilityService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateSingleCard scrapes one (store, card) pair, caches the result and
// publishes it on the result channel.
func (s *AvailabilityService) UpdateSingleCard(ctx context.Context, username, storeSlug string, card domain.CardData) error {
	store, err := s.storeBySlug(storeSlug)
	if err != nil {
		return err
	}

	listings := s.scraper.FetchCardAvailability(ctx, store, card.CardName, card.Specifications)

	if err := s.cache.SetAvailability(ctx, storeSlug, card.CardName, listings); err != nil {
		log.Printf("failed to cache availability for %s/%s: %v", storeSlug, card.CardName, err)
	}

	payload := domain.AvailabilityResultPayload{Store: storeSlug, Card: card.CardName, Items: listings}
	if err := PublishMessage(ctx, s.publisher, domain.ChannelWorkerResults, domain.MsgAvailabilityResult, payload); err != nil {
		return fmt.Errorf("failed to publish availability result: %w", err)
	}
	return nil
}

// Sweep refreshes availability for every card wanted in the context,
// diffs against the previous snapshot, persists the new one and notifies
// tracking users of the changes. An empty username runs the system-wide
// sweep under the shared "system" context.
func (s *AvailabilityService) Sweep(ctx context.Context, username string) error {
	users, snapshotCtx, err := s.sweepScope(username)
	if err != nil {
		return err
	}

	wanted := s.wantedCards(users)
	if len(wanted) == 0 {
		log.Printf("no wanted cards to update for context %q", snapshotCtx)
		return nil
	}
	log.Printf("updating availability for %d wanted cards (context %q)", len(wanted), snapshotCtx)

	stores, err := s.users.AllStores()
	if err != nil {
		return fmt.Errorf("failed to load stores: %w", err)
	}

	snapshot := domain.Snapshot{Cards: make(map[string]domain.StoreListings, len(wanted)), UpdatedAt: time.Now().UTC()}
	for _, card := range wanted {
		snapshot.Cards[card] = s.loadStoreAvailability(ctx, stores, card)
	}

	previous, err := s.cache.LoadSnapshot(ctx, snapshotCtx)
	if err != nil {
		log.Printf("failed to load previous snapshot for %q, diffing against empty: %v", snapshotCtx, err)
		previous = domain.Snapshot{Cards: map[string]domain.StoreListings{}}
	}

	changes := DetectChanges(previous, snapshot)

	if err := s.cache.SaveSnapshot(ctx, snapshotCtx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot for %q: %w", snapshotCtx, err)
	}
	if err := s.cache.MarkLastUpdate(ctx); err != nil {
		log.Printf("failed to mark last update: %v", err)
	}

	if changes.Empty() {
		log.Printf("no availability changes detected for context %q", snapshotCtx)
		return nil
	}
	s.notifyUsersOfChanges(ctx, changes)
	return nil
}

func (s *AvailabilityService) sweepScope(username string) ([]domain.User, string, error) {
	if username == "" {
		users, err := s.users.GetAllUsers()
		if err != nil {
			return nil, "", fmt.Errorf("failed to load users: %w", err)
		}
		return users, domain.SystemContext, nil
	}

	user, err := s.users.GetUserByUsername(username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load user %s: %w", username, err)
	}
	if user == nil {
		return nil, "", fmt.Errorf("cannot update availability, user %q not found", username)
	}
	return []domain.User{*user}, username, nil
}

// wantedCards aggregates the distinct card names across users' lists.
func (s *AvailabilityService) wantedCards(users []domain.User) []string {
	seen := make(map[string]bool)
	var wanted []string
	for _, user := range users {
		if user.Username == "" {
			continue
		}
		cards, err := s.users.LoadCardList(user.Username)
		if err != nil {
			log.Printf("failed to load card list for %s: %v", user.Username, err)
			continue
		}
		for _, card := range cards {
			if card.CardName == "" || seen[card.CardName] {
				continue
			}
			seen[card.CardName] = true
			wanted = append(wanted, card.CardName)
		}
	}
	return wanted
}

// loadStoreAvailability is the read-through path: cached listings are
// used as-is, misses are scraped and cached. Stores with nothing in stock
// are omitted.
func (s *AvailabilityService) loadStoreAvailability(ctx context.Context, stores []domain.Store, cardName string) domain.StoreListings {
	availability := make(domain.StoreListings)
	for _, store := range stores {
		if store.Slug == "" {
			continue
		}

		listings, found, err := s.cache.GetAvailability(ctx, store.Slug, cardName)
		if err != nil {
			log.Printf("failed to read cached availability for %s/%s: %v", store.Slug, cardName, err)
		}
		if !found {
			listings = s.scraper.FetchCardAvailability(ctx, store, cardName, nil)
			if err := s.cache.SetAvailability(ctx, store.Slug, cardName, listings); err != nil {
				log.Printf("failed to cache availability for %s/%s: %v", store.Slug, cardName, err)
			}
		}

		if len(listings) > 0 {
			availability[store.Slug] = listings
		}
	}
	return availability
}

func (s *AvailabilityService) notifyUsersOfChanges(ctx context.Context, changes domain.ChangeSet) {
	changedCards := changes.ChangedCards()
	log.Printf("processing notifications for %d changed cards", len(changedCards))

	tracking, err := s.users.GetTrackingUsersForCards(changedCards)
	if err != nil {
		log.Printf("failed to load tracking users: %v", err)
		return
	}

	for _, cardName := range changedCards {
		users := tracking[cardName]
		if len(users) == 0 {
			continue
		}
		summary := SummarizeForCard(changes, cardName)
		for _, user := range users {
			if err := s.notifier.Emit(ctx, domain.EventAvailabilityChanged, summary, user.Username); err != nil {
				log.Printf("failed to notify %s of change to %q: %v", user.Username, cardName, err)
			}
		}
	}
}

func (s *AvailabilityService) storeBySlug(slug string) (domain.Store, error) {
	stores, err := s.users.AllStores()
	if err != nil {
		return domain.Store{}, fmt.Errorf("failed to load stores: %w", err)
	}
	for _, store := range stores {
		if store.Slug == slug {
			return store, nil
		}
	}
	return domain.Store{}, fmt.Errorf("unknown store slug %q", slug)
}
