package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"card-stock-tracker/domain"
)

// ResultHandlers is the server role's handler table for the
// worker-results channel.
type ResultHandlers struct {
	cache    AvailabilityStore
	catalog  *CatalogWriter
	notifier Notifier
}

func NewResultHandlers(cache AvailabilityStore, catalog *CatalogWriter, notifier Notifier) *ResultHandlers {
	return &ResultHandlers{cache: cache, catalog: catalog, notifier: notifier}
}

// HandlerMap returns the static name-to-handler table for the result
// channel.
func (h *ResultHandlers) HandlerMap() map[string]MessageHandler {
	return map[string]MessageHandler{
		domain.MsgAvailabilityResult:    h.handleAvailabilityResult,
		domain.MsgCatalogCardNames:      h.handleCatalogCardNames,
		domain.MsgCatalogSetData:        h.handleCatalogSetData,
		domain.MsgCatalogFinishesChunk:  h.handleCatalogFinishes,
		domain.MsgCatalogPrintingsChunk: h.handleCatalogPrintingsChunk,
		domain.MsgJobRetryNotice:        h.handleJobRetryNotice,
	}
}

func (h *ResultHandlers) handleAvailabilityResult(ctx context.Context, payload json.RawMessage) error {
	var result domain.AvailabilityResultPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("invalid availability result payload: %w", err)
	}
	if result.Store == "" || result.Card == "" {
		return fmt.Errorf("invalid availability result payload: missing store or card")
	}

	log.Printf("received availability result for %q at %q", result.Card, result.Store)
	if err := h.cache.SetAvailability(ctx, result.Store, result.Card, result.Items); err != nil {
		return fmt.Errorf("failed to cache availability result: %w", err)
	}

	// Best-effort push to whoever is watching this card.
	if err := h.notifier.Emit(ctx, domain.EventCardAvailabilityData, result, ""); err != nil {
		log.Printf("failed to emit availability data for %q at %q: %v", result.Card, result.Store, err)
	}
	return nil
}

func (h *ResultHandlers) handleCatalogCardNames(ctx context.Context, payload json.RawMessage) error {
	var p domain.CatalogCardNamesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid card names payload: %w", err)
	}
	return h.catalog.WriteCardNames(p.Names)
}

func (h *ResultHandlers) handleCatalogSetData(ctx context.Context, payload json.RawMessage) error {
	var p domain.CatalogSetDataPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid set data payload: %w", err)
	}
	return h.catalog.WriteSetData(p.Sets)
}

func (h *ResultHandlers) handleCatalogFinishes(ctx context.Context, payload json.RawMessage) error {
	var p domain.CatalogFinishesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid finishes payload: %w", err)
	}
	return h.catalog.WriteFinishes(p.Finishes)
}

func (h *ResultHandlers) handleCatalogPrintingsChunk(ctx context.Context, payload json.RawMessage) error {
	var p domain.CatalogPrintingsChunkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid printings chunk payload: %w", err)
	}
	return h.catalog.WritePrintingsChunk(p.Printings)
}

func (h *ResultHandlers) handleJobRetryNotice(ctx context.Context, payload json.RawMessage) error {
	var p domain.JobRetryNoticePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid job retry notice payload: %w", err)
	}
	log.Printf("job %s (task %q) was interrupted and will be redelivered by the queue", p.JobID, p.TaskID)
	return nil
}
