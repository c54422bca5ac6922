package api

import (
	"net/http"

	"windalert/internal/engine"
	"windalert/internal/store"
	ws "windalert/internal/websocket"
)

type MetricsHandler struct {
	store       *store.PostgresStore
	cb          *engine.CircuitBreaker
	channelName string
	hub         *ws.Hub
}

func NewMetricsHandler(s *store.PostgresStore, cb *engine.CircuitBreaker, channelName string, hub *ws.Hub) *MetricsHandler {
	return &MetricsHandler{store: s, cb: cb, channelName: channelName, hub: hub}
}

// Metrics returns aggregated ledger statistics plus channel health.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetLedgerMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	type metricsResponse struct {
		store.LedgerMetrics
		Channel          engine.CircuitState `json:"channel"`
		WebSocketClients int                 `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		LedgerMetrics:    *metrics,
		Channel:          h.cb.GetState(r.Context(), h.channelName),
		WebSocketClients: h.hub.ClientCount(),
	})
}
