package services

import (
	"fmt"
	"log"

	"card-stock-tracker/domain"
	"card-stock-tracker/models"
	"card-stock-tracker/repositories"
)

// CatalogStore is the receiver-side persistence surface for catalog data.
type CatalogStore interface {
	AddCardNames(names []string) error
	AddSetData(sets []domain.SetData) error
	BulkAddFinishes(finishes []string) error
	BulkAddPrintings(printings []domain.PrintingRecord) error
	BulkAddPrintingFinishAssociations(assocs []models.PrintingFinish) error
	PrintingsMap() (map[string]int, error)
	FinishesMap() (map[string]int, error)
}

// CatalogWriter applies catalog result messages to the database. All
// inserts ignore duplicates on their natural keys, so replaying or
// concurrently processing a chunk is safe.
type CatalogWriter struct {
	store CatalogStore
}

func NewCatalogWriter(store CatalogStore) *CatalogWriter {
	return &CatalogWriter{store: store}
}

func (w *CatalogWriter) WriteCardNames(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("empty card names payload")
	}
	log.Printf("received %d card names; updating catalog", len(names))
	return w.store.AddCardNames(names)
}

func (w *CatalogWriter) WriteSetData(sets []domain.SetData) error {
	if len(sets) == 0 {
		return fmt.Errorf("empty set data payload")
	}
	log.Printf("received %d sets; updating catalog", len(sets))
	return w.store.AddSetData(sets)
}

func (w *CatalogWriter) WriteFinishes(finishes []string) error {
	if len(finishes) == 0 {
		return fmt.Errorf("empty finishes payload")
	}
	log.Printf("received %d finishes; updating catalog", len(finishes))
	return w.store.BulkAddFinishes(finishes)
}

// WritePrintingsChunk upserts one chunk of printings and then builds the
// printing-finish associations. The association pass resolves surrogate
// ids, so it cannot run until the printing insert for this chunk has
// landed.
func (w *CatalogWriter) WritePrintingsChunk(chunk []domain.PrintingRecord) error {
	if len(chunk) == 0 {
		return fmt.Errorf("empty printings chunk payload")
	}
	log.Printf("processing chunk of %d printings", len(chunk))

	if err := w.store.BulkAddPrintings(chunk); err != nil {
		return fmt.Errorf("failed to insert printings: %w", err)
	}

	printingsMap, err := w.store.PrintingsMap()
	if err != nil {
		return err
	}
	finishesMap, err := w.store.FinishesMap()
	if err != nil {
		return err
	}

	var assocs []models.PrintingFinish
	for _, record := range chunk {
		printingID, ok := printingsMap[repositories.PrintingKey(record.CardName, record.SetCode, record.CollectorNumber)]
		if !ok {
			continue
		}
		for _, finish := range record.Finishes {
			finishID, ok := finishesMap[finish]
			if !ok {
				continue
			}
			assocs = append(assocs, models.PrintingFinish{PrintingID: printingID, FinishID: finishID})
		}
	}

	if len(assocs) == 0 {
		return nil
	}
	if err := w.store.BulkAddPrintingFinishAssociations(assocs); err != nil {
		return fmt.Errorf("failed to insert printing-finish associations: %w", err)
	}
	return nil
}
