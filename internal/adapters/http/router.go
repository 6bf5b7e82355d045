package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/application"
)

// Handler is the HTTP adapter entrypoint for the operational surface.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers M62 HTTP routes and middleware stack. The surface is
// operator-facing only; subscriber traffic never enters this service over HTTP.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/ops/v1", func(r chi.Router) {
		r.Get("/token/status", handler.tokenStatus)
		r.Post("/token/refresh", handler.tokenRefresh)
		r.Get("/messages", handler.listMessages)
		r.Get("/messages/stats", handler.messageStats)
		r.Get("/messages/{message_id}", handler.getMessage)
		r.Post("/messages/{message_id}/replay", handler.replayMessage)
	})

	return r
}
