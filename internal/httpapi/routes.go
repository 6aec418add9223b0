package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lcu-draft-client/internal/ws"
)

func SetupRoutes(src ws.StatusSource, feed ws.Feed, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/status", GetStatus(src))
	r.Get("/ws", ws.Handler(feed, src, logger))
	return r
}
