package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mosaic-keeper/geometry"
	"mosaic-keeper/logging"
	"mosaic-keeper/metrics"
	"mosaic-keeper/orchestrator"
	"mosaic-keeper/page"
	"mosaic-keeper/preset"
)

func RegisterRoutes(pages *page.Manager, orch *orchestrator.Orchestrator, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &handler{pages: pages, orch: orch, log: logging.WithComponent("api")}

	// Page contexts
	r.Get("/api/pages", h.listPages)
	r.Post("/api/pages", h.createPage)
	r.Delete("/api/pages/{id}", h.deletePage)
	r.Post("/api/pages/{id}/load", h.loadPage)
	r.Post("/api/pages/{id}/toggle", h.togglePage)
	r.Post("/api/pages/{id}/switch", h.switchPreset)
	r.Get("/api/pages/{id}/mosaics", h.getMosaics)
	r.Get("/api/pages/{id}/key", h.getKey)

	// Presets of the page's current key
	r.Get("/api/pages/{id}/presets", h.listPresets)
	r.Post("/api/pages/{id}/presets", h.savePreset)
	r.Delete("/api/pages/{id}/presets/{name}", h.deletePreset)

	// WebSocket
	r.Get("/api/pages/{id}/ws", h.handleWS)

	// Saved records across keys
	r.Get("/api/records", h.listRecords)
	r.Delete("/api/records", h.deleteRecord)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	return r
}

type handler struct {
	pages *page.Manager
	orch  *orchestrator.Orchestrator
	log   *slog.Logger
}

// lookupPage resolves {id} or writes a 404.
func (h *handler) lookupPage(w http.ResponseWriter, r *http.Request) (*page.Page, bool) {
	p, ok := h.pages.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return nil, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, page.ErrNotFound),
		errors.Is(err, preset.ErrPresetNotFound),
		errors.Is(err, geometry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, preset.ErrPresetExists):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, preset.ErrInvalidPresetName):
		return http.StatusBadRequest
	case errors.Is(err, preset.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, page.ErrPeerUnreachable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	}
	http.Error(w, err.Error(), status)
}
