package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"card-stock-tracker/domain"
	"card-stock-tracker/services"
)

// HealthCheck probes one dependency by name.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler serves the HTTP API of the server role. Mutating endpoints
// only publish requests onto the scheduler channel; nothing is scraped
// in-process.
type Handler struct {
	publisher services.Publisher
	cache     services.AvailabilityStore
	users     services.UserDirectory
	checks    []HealthCheck
}

func New(publisher services.Publisher, cache services.AvailabilityStore, users services.UserDirectory, checks ...HealthCheck) *Handler {
	return &Handler{publisher: publisher, cache: cache, users: users, checks: checks}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /api/v1/health. Liveness only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Ready handles GET /api/v1/ready and probes the broker and database.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			log.Printf("readiness probe %q failed: %v", check.Name, err)
			results[check.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = "ok"
	}

	resp := healthResponse{Status: "ready", Timestamp: time.Now().UTC(), Checks: results}
	if status != http.StatusOK {
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

type refreshRequest struct {
	Username string `json:"username"`
}

// RefreshAvailability handles POST /api/v1/availability/refresh. It
// asks the scheduler to queue a check for every card and preferred
// store of the named user.
func (h *Handler) RefreshAvailability(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	payload := domain.QueueAllAvailabilityChecksPayload{Username: req.Username}
	if err := services.PublishMessage(r.Context(), h.publisher, domain.ChannelSchedulerRequests, domain.MsgQueueAllAvailabilityChecks, payload); err != nil {
		log.Printf("failed to publish refresh request for %q: %v", req.Username, err)
		writeError(w, http.StatusBadGateway, "failed to queue refresh")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "username": req.Username})
}

type checkRequest struct {
	Username string          `json:"username"`
	Store    string          `json:"store"`
	CardData domain.CardData `json:"card_data"`
}

// CheckAvailability handles POST /api/v1/availability/check for one
// (store, card) pair.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Store == "" || req.CardData.CardName == "" {
		writeError(w, http.StatusBadRequest, "store and card_data.card_name are required")
		return
	}

	payload := domain.AvailabilityRequestPayload{Username: req.Username, StoreSlug: req.Store, CardData: req.CardData}
	if err := services.PublishMessage(r.Context(), h.publisher, domain.ChannelSchedulerRequests, domain.MsgAvailabilityRequest, payload); err != nil {
		log.Printf("failed to publish availability request for %q at %q: %v", req.CardData.CardName, req.Store, err)
		writeError(w, http.StatusBadGateway, "failed to queue check")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "store": req.Store, "card": req.CardData.CardName})
}

// GetAvailability handles GET /api/v1/availability/{store}/{card} and
// serves the cached listings for one pair. A cache miss is a 404; the
// client should queue a check and wait for the push event.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	store := chi.URLParam(r, "store")
	card := chi.URLParam(r, "card")

	listings, found, err := h.cache.GetAvailability(r.Context(), store, card)
	if err != nil {
		log.Printf("failed to read availability for %q at %q: %v", card, store, err)
		writeError(w, http.StatusInternalServerError, "failed to read availability")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no cached availability for this store and card")
		return
	}
	writeJSON(w, http.StatusOK, domain.AvailabilityResultPayload{Store: store, Card: card, Items: listings})
}

// GetUserCards handles GET /api/v1/users/{username}/cards.
func (h *Handler) GetUserCards(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	cards, err := h.users.LoadCardList(username)
	if err != nil {
		log.Printf("failed to load card list for %q: %v", username, err)
		writeError(w, http.StatusInternalServerError, "failed to load card list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"username": username, "cards": cards})
}

// GetStores handles GET /api/v1/stores.
func (h *Handler) GetStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.users.AllStores()
	if err != nil {
		log.Printf("failed to load stores: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load stores")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stores": stores})
}
