package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"shopsy-inventory-api/internal/handler"
	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	InventoryHandler *handler.InventoryHandler
	FeedHandler      *handler.FeedHandler
	AdminHandler     *handler.AdminHandler
	MetricsHandler   http.Handler
	AuthMiddleware   func(http.Handler) http.Handler
	Logger           *zap.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	log := logger.OrNop(cfg.Logger)
	requireKey := cfg.AuthMiddleware
	if requireKey == nil {
		requireKey = middleware.NewAuthMiddleware(middleware.AuthConfig{Logger: log})
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(chimw.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Cache-Control", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if h := cfg.InventoryHandler; h != nil {
			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", h.List)
				r.Get("/check_stock", h.CheckStock)
				r.With(requireKey).Post("/", h.Create)
				r.With(requireKey).Delete("/product/{product_id}", h.DeleteByProduct)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Get("/events", h.Events)
					r.Post("/reserve_stock", h.ReserveStock)
					r.Post("/release_stock", h.ReleaseStock)
					r.Post("/confirm_sale", h.ConfirmSale)
					r.With(requireKey).Put("/quantity", h.SetQuantity)
				})
			})
		}

		if h := cfg.FeedHandler; h != nil {
			r.Get("/events/inventory", h.Stream)
			r.Get("/polling/inventory/changes", h.Changes)
		}

		if h := cfg.AdminHandler; h != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(requireKey)
				r.Get("/stats", h.GetStats)
			})
		}
	})

	return r
}
