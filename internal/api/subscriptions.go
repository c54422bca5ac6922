package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"windalert/internal/domain"
	"windalert/internal/store"
)

type SubscriptionHandler struct {
	store *store.PostgresStore
}

func NewSubscriptionHandler(s *store.PostgresStore) *SubscriptionHandler {
	return &SubscriptionHandler{store: s}
}

type createSubscriptionRequest struct {
	UserID *int64 `json:"user_id"`
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == nil {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sub, err := h.store.Subscribe(r.Context(), *req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateSubscription):
			respondError(w, http.StatusConflict, "subscription already exists")
		case errors.Is(err, domain.ErrInvalidUserID):
			respondError(w, http.StatusBadRequest, "user_id must be non-negative")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create subscription")
		}
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListActive(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.store.Unsubscribe(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
