package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig configures NewRouter
type RouterConfig struct {
	APIKeys        []string
	RequestTimeout time.Duration
	// WebSocket serves /ws when set
	WebSocket http.HandlerFunc
}

func NewRouter(h *Handler, cfg RouterConfig, logger zerolog.Logger) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)

	// the upgraded connection outlives the request timeout
	if cfg.WebSocket != nil {
		r.With(APIKeyAuth(cfg.APIKeys)).Get("/ws", cfg.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Get("/mqtt/status", h.HandleMQTTStatus)
		r.With(APIKeyAuth(cfg.APIKeys)).Post("/data/{username}/{deviceId}", h.HandleDataIngest)
	})

	return r
}
