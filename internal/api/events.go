package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"windalert/internal/domain"
	"windalert/internal/engine"
	"windalert/internal/store"
)

type EventHandler struct {
	store     *store.PostgresStore
	scheduler *engine.Scheduler
}

func NewEventHandler(s *store.PostgresStore, scheduler *engine.Scheduler) *EventHandler {
	return &EventHandler{store: s, scheduler: scheduler}
}

type createEventRequest struct {
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

type createEventResponse struct {
	EventKey         string `json:"event_key"`
	DeliveriesQueued int    `json:"deliveries_queued"`
}

// Create injects an event manually. Re-posting a known key is replay-safe
// and queues only the deliveries that do not exist yet.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	key := req.Key
	if key == "" {
		key = fmt.Sprintf("manual:%d", time.Now().Unix())
	}

	payload, err := json.Marshal(domain.EventPayload{Message: req.Message})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode payload")
		return
	}

	queued, err := h.scheduler.OnEvent(r.Context(), domain.Event{Key: key, Payload: payload})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to dispatch event")
		return
	}

	respondJSON(w, http.StatusCreated, createEventResponse{
		EventKey:         key,
		DeliveriesQueued: queued,
	})
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	ev, err := h.store.GetEvent(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if ev == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, ev)
}
