package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"windalert/internal/engine"
	"windalert/internal/store"
	ws "windalert/internal/websocket"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, redisStore *store.RedisStore, scheduler *engine.Scheduler, cb *engine.CircuitBreaker, channelName string, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	healthHandler := NewHealthHandler(pgStore, redisStore)
	subHandler := NewSubscriptionHandler(pgStore)
	eventHandler := NewEventHandler(pgStore, scheduler)
	deliveryHandler := NewDeliveryHandler(pgStore)
	metricsHandler := NewMetricsHandler(pgStore, cb, channelName, hub)

	r.Get("/ws", hub.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Delete("/{userID}", subHandler.Delete)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Create)
			r.Get("/", eventHandler.List)
			r.Get("/{key}", eventHandler.Get)
		})

		r.Get("/deliveries", deliveryHandler.List)

		r.Get("/metrics", metricsHandler.Metrics)
	})

	return r
}
