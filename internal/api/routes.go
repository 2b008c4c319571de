package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouteConfig carries the knobs SetupRoutes needs beyond the handlers.
type RouteConfig struct {
	AllowedOrigins []string
	AdminToken     string
}

// SetupRoutes builds the router for the public signup flow, the RSS feed,
// health probes and the token-guarded admin endpoints.
func SetupRoutes(h *Handlers, hc *HealthChecker, cfg RouteConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 && h.site.BaseURL != "" {
		origins = []string{h.site.BaseURL}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)

	r.Get("/rss.xml", h.RSS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/subscribe", h.Subscribe)
		r.Get("/confirm/{token}", h.Confirm)
		r.Get("/unsubscribe", h.Unsubscribe)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(cfg.AdminToken))
			r.Post("/send-newsletter", h.SendNewsletter)
			r.Post("/resend-confirmation", h.ResendConfirmation)
			r.Get("/stats", h.Stats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	return r
}
