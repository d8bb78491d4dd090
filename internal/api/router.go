// internal/api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notification-system/internal/common/logger"
)

// NewRouter wires the API routes.
func NewRouter(h *Handlers, log logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.healthz)

	r.Route("/masters", func(r chi.Router) {
		r.Get("/", h.listMasters)
		r.Post("/", h.createMaster)
		r.Get("/{id}", h.getMaster)
		r.Put("/{id}", h.updateMaster)
		r.Get("/{masterId}/fields", h.listFields)
		r.Get("/{masterId}/meta", h.listMeta)
	})

	r.Post("/fields", h.createField)
	r.Delete("/fields/{id}", h.deleteField)

	r.Post("/meta", h.createMeta)
	r.Put("/meta/{id}", h.updateMeta)
	r.Delete("/meta/{id}", h.deleteMeta)

	r.Post("/notifications", h.enqueueNotification)
	r.Get("/notifications/{id}", h.getNotification)

	return r
}

// requestLogger logs one line per request.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			})
		})
	}
}
