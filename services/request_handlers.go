package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"card-stock-tracker/domain"
)

// RequestHandlers is the scheduler role's handler table for the
// scheduler-requests channel. Requests are turned into queued jobs;
// the scheduler never scrapes anything itself.
type RequestHandlers struct {
	dispatcher *Dispatcher
	users      UserDirectory
	notifier   Notifier
}

func NewRequestHandlers(dispatcher *Dispatcher, users UserDirectory, notifier Notifier) *RequestHandlers {
	return &RequestHandlers{dispatcher: dispatcher, users: users, notifier: notifier}
}

func (h *RequestHandlers) HandlerMap() map[string]MessageHandler {
	return map[string]MessageHandler{
		domain.MsgAvailabilityRequest:        h.handleAvailabilityRequest,
		domain.MsgQueueAllAvailabilityChecks: h.handleQueueAllChecks,
	}
}

func (h *RequestHandlers) handleAvailabilityRequest(ctx context.Context, payload json.RawMessage) error {
	var req domain.AvailabilityRequestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid availability request payload: %w", err)
	}
	if req.StoreSlug == "" || req.CardData.CardName == "" {
		return fmt.Errorf("invalid availability request payload: missing store or card")
	}

	h.dispatcher.Enqueue(ctx, domain.TaskUpdateSingleCard, req.Username, req.StoreSlug, req.CardData)
	return nil
}

// handleQueueAllChecks fans out one job per (card, preferred store)
// combination for the named user.
func (h *RequestHandlers) handleQueueAllChecks(ctx context.Context, payload json.RawMessage) error {
	var req domain.QueueAllAvailabilityChecksPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid queue-all payload: %w", err)
	}
	if req.Username == "" {
		return fmt.Errorf("invalid queue-all payload: missing username")
	}

	cards, err := h.users.LoadCardList(req.Username)
	if err != nil {
		return fmt.Errorf("failed to load card list for %q: %w", req.Username, err)
	}
	stores, err := h.users.GetUserStores(req.Username)
	if err != nil {
		return fmt.Errorf("failed to load stores for %q: %w", req.Username, err)
	}
	if len(cards) == 0 || len(stores) == 0 {
		log.Printf("no availability checks to queue for %q (%d cards, %d stores)", req.Username, len(cards), len(stores))
		return nil
	}

	queued := 0
	for _, card := range cards {
		for _, store := range stores {
			h.dispatcher.Enqueue(ctx, domain.TaskUpdateSingleCard, req.Username, store.Slug, card)
			queued++
		}
	}
	log.Printf("queued %d availability checks for %q", queued, req.Username)

	if h.notifier != nil {
		info := map[string]interface{}{"username": req.Username, "queued": queued}
		if err := h.notifier.Emit(ctx, domain.EventAvailabilityCheckQueued, info, req.Username); err != nil {
			log.Printf("failed to emit check-queued event for %q: %v", req.Username, err)
		}
	}
	return nil
}
