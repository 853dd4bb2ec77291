package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Listing is one in-stock card offer at a specific storefront.
type Listing struct {
	StoreID         string  `json:"store_id"`
	CardName        string  `json:"card_name"`
	SetCode         string  `json:"set_code"`
	CollectorNumber string  `json:"collector_number"`
	Finish          string  `json:"finish"`
	Price           float64 `json:"price"`
	StockCount      int     `json:"stock_count"`
	Condition       string  `json:"condition"`
	URL             string  `json:"url"`
}

// Identity returns the dedup key for a listing. URL and stock count are
// intentionally excluded: two variant rows that differ only by URL or
// quantity are the same offer.
func (l Listing) Identity() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%.2f|%s",
		l.StoreID, l.CardName, l.SetCode, l.CollectorNumber, l.Finish, l.Price, l.Condition)
}

// ListingSpec narrows an availability check. Nil fields are wildcards.
type ListingSpec struct {
	SetCode         *string `json:"set_code"`
	CollectorNumber *string `json:"collector_number"`
	Finish          *string `json:"finish"`
}

// CardData identifies a tracked card plus its optional specifications.
type CardData struct {
	CardName       string        `json:"card_name"`
	Specifications []ListingSpec `json:"specifications,omitempty"`
}

// StoreListings maps a store slug to the listings found there.
type StoreListings map[string][]Listing

// Snapshot is the complete availability state for one context at one point
// in time. It is replaced wholesale on every refresh.
type Snapshot struct {
	Cards     map[string]StoreListings `json:"cards"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// NewSnapshot returns an empty snapshot stamped now.
func NewSnapshot() Snapshot {
	return Snapshot{Cards: make(map[string]StoreListings), UpdatedAt: time.Now().UTC()}
}

// UpdateDetail holds the per-store listing delta for an updated card.
type UpdateDetail struct {
	New     []Listing `json:"new"`
	Removed []Listing `json:"removed"`
}

// ChangeSet is the structured diff between two snapshots.
type ChangeSet struct {
	Added   map[string]StoreListings           `json:"added"`
	Removed map[string]StoreListings           `json:"removed"`
	Updated map[string]map[string]UpdateDetail `json:"updated"`
}

// Empty reports whether the change set carries no changes at all.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// ChangedCards returns the union of card names touched by the change set.
func (c ChangeSet) ChangedCards() []string {
	seen := make(map[string]bool)
	var cards []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			cards = append(cards, name)
		}
	}
	for name := range c.Added {
		add(name)
	}
	for name := range c.Removed {
		add(name)
	}
	for name := range c.Updated {
		add(name)
	}
	return cards
}

// CardChangeSummary is the per-card slice of a ChangeSet sent to one user.
// Empty sections are omitted from the payload.
type CardChangeSummary struct {
	CardName string                  `json:"card_name"`
	Added    StoreListings           `json:"added,omitempty"`
	Removed  StoreListings           `json:"removed,omitempty"`
	Updated  map[string]UpdateDetail `json:"updated,omitempty"`
}

// PubSubMessage is the discriminated envelope carried on both channels.
type PubSubMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewPubSubMessage wraps a payload value in an envelope.
func NewPubSubMessage(msgType string, payload interface{}) (PubSubMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return PubSubMessage{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return PubSubMessage{Type: msgType, Payload: raw}, nil
}

// AvailabilityRequestPayload asks the scheduler for one store/card check.
type AvailabilityRequestPayload struct {
	Username  string   `json:"username"`
	StoreSlug string   `json:"store"`
	CardData  CardData `json:"card_data"`
}

// QueueAllAvailabilityChecksPayload fans out one job per card and
// preferred store for the named user.
type QueueAllAvailabilityChecksPayload struct {
	Username string `json:"username"`
}

// AvailabilityResultPayload is produced by a worker after scraping one
// (store, card) pair. An empty Items slice means out of stock.
type AvailabilityResultPayload struct {
	Store string    `json:"store"`
	Card  string    `json:"card"`
	Items []Listing `json:"items"`
}

// PrintingRecord is one catalog entry from the bulk feed.
type PrintingRecord struct {
	CardName        string   `json:"card_name"`
	SetCode         string   `json:"set_code"`
	CollectorNumber string   `json:"collector_number"`
	Finishes        []string `json:"finishes"`
}

// SetData describes one card set from the external catalog.
type SetData struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date,omitempty"`
}

type CatalogCardNamesPayload struct {
	Names []string `json:"names"`
}

type CatalogSetDataPayload struct {
	Sets []SetData `json:"sets"`
}

type CatalogFinishesPayload struct {
	Finishes []string `json:"finishes"`
}

// CatalogPrintingsChunkPayload is one bounded chunk of the ingestion
// stream. The chunk size is a memory/message-size bound, not a domain
// concept.
type CatalogPrintingsChunkPayload struct {
	Printings []PrintingRecord `json:"printings"`
}

// JobRetryNoticePayload tells the requester a job was interrupted by a
// worker shutdown and will be redelivered by the queue.
type JobRetryNoticePayload struct {
	JobID  string `json:"job_id"`
	TaskID string `json:"task_id"`
}

// JobDescriptor is what the dispatcher places on the job queue. Args are
// positional and decoded by the task itself.
type JobDescriptor struct {
	ID     string            `json:"id"`
	TaskID string            `json:"task_id"`
	Args   []json.RawMessage `json:"args"`
}

// User is the tracked-user shape consumed from the persistence layer.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Store is a registered storefront consumed from the persistence layer.
type Store struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Homepage       string `json:"homepage"`
	SearchURL      string `json:"search_url"`
	TemplateFamily string `json:"template_family"`
}
