package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/handlers"
	"github.com/parleychat/parley/internal/relay"
	"github.com/parleychat/parley/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, hub *relay.Hub, st store.MessageStore, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS for the REST read endpoints
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(hub, st, cfg, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Static chat page
	r.Get("/", serveChatPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))

	// Real-time transport
	r.Get("/ws", h.ServeWS)

	// REST surface
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{room}/messages", h.RoomHistory)

	return r
}

// serveChatPage serves the bundled single-page chat client.
func serveChatPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "web/static/index.html")
}
