package services

import (
	"card-stock-tracker/domain"
)

// DetectChanges compares two availability snapshots and returns the
// structured delta. Pure: neither snapshot is mutated, and diffing a
// snapshot against itself yields an empty change set.
//
// Cards missing from new are removed wholesale; cards missing from old are
// added wholesale. For cards present in both, each store listed in new is
// compared by listing identity. A store that vanishes from new while the
// card persists produces no entry at all; that is the reference behavior
// and is pinned by test.
func DetectChanges(old, new domain.Snapshot) domain.ChangeSet {
	changes := domain.ChangeSet{
		Added:   map[string]domain.StoreListings{},
		Removed: map[string]domain.StoreListings{},
		Updated: map[string]map[string]domain.UpdateDetail{},
	}

	for card, stores := range old.Cards {
		if _, ok := new.Cards[card]; !ok {
			changes.Removed[card] = copyStoreListings(stores)
		}
	}

	for card, newStores := range new.Cards {
		oldStores, ok := old.Cards[card]
		if !ok {
			changes.Added[card] = copyStoreListings(newStores)
			continue
		}

		for store, newListings := range newStores {
			oldListings := oldStores[store]
			added, removed := listingDelta(oldListings, newListings)
			if len(added) == 0 && len(removed) == 0 {
				continue
			}
			if changes.Updated[card] == nil {
				changes.Updated[card] = map[string]domain.UpdateDetail{}
			}
			changes.Updated[card][store] = domain.UpdateDetail{New: added, Removed: removed}
		}
	}

	return changes
}

// listingDelta computes the identity-based set difference in both
// directions, preserving input order.
func listingDelta(old, new []domain.Listing) (added, removed []domain.Listing) {
	oldSet := identitySet(old)
	newSet := identitySet(new)

	for _, l := range new {
		if !oldSet[l.Identity()] {
			added = append(added, l)
		}
	}
	for _, l := range old {
		if !newSet[l.Identity()] {
			removed = append(removed, l)
		}
	}
	return added, removed
}

func identitySet(listings []domain.Listing) map[string]bool {
	set := make(map[string]bool, len(listings))
	for _, l := range listings {
		set[l.Identity()] = true
	}
	return set
}

func copyStoreListings(stores domain.StoreListings) domain.StoreListings {
	out := make(domain.StoreListings, len(stores))
	for store, listings := range stores {
		copied := make([]domain.Listing, len(listings))
		copy(copied, listings)
		out[store] = copied
	}
	return out
}

// SummarizeForCard extracts the per-card slice of a change set, omitting
// empty sections.
func SummarizeForCard(changes domain.ChangeSet, cardName string) domain.CardChangeSummary {
	summary := domain.CardChangeSummary{CardName: cardName}
	if stores, ok := changes.Added[cardName]; ok {
		summary.Added = stores
	}
	if stores, ok := changes.Removed[cardName]; ok {
		summary.Removed = stores
	}
	if updates, ok := changes.Updated[cardName]; ok {
		summary.Updated = updates
	}
	return summary
}
