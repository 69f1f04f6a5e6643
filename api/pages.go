package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"mosaic-keeper/identity"
	"mosaic-keeper/page"
	"mosaic-keeper/preset"
)

func (h *handler) listPages(w http.ResponseWriter, r *http.Request) {
	list := h.pages.List()
	infos := make([]page.Info, 0, len(list))
	for _, p := range list {
		infos = append(infos, p.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *handler) createPage(w http.ResponseWriter, r *http.Request) {
	p := h.pages.Create()
	writeJSON(w, http.StatusCreated, p.Info())
}

func (h *handler) deletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.pages.Remove(id); err != nil {
		if errors.Is(err, page.ErrNotFound) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to remove page", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) loadPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.orch.Navigate(r.Context(), p, req.URL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) togglePage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.orch.Toggle(p, *req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": p.Enabled()})
}

type switchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (h *handler) switchPreset(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	var req struct {
		PresetName string `json:"presetName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PresetName == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.orch.SwitchPreset(r.Context(), p, req.PresetName); err != nil {
		writeJSON(w, statusFor(err), switchResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, switchResponse{Success: true})
}

func (h *handler) getMosaics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.orch.CurrentMosaics(p))
}

func (h *handler) getKey(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	key, err := h.orch.StorageKey(p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"key":         key,
		"displayName": identity.DisplayName(key),
	})
}

func (h *handler) listPresets(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	names, active, err := h.orch.Presets(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": names, "activePreset": active})
}

func (h *handler) savePreset(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	var req struct {
		Name      string `json:"name"`
		Overwrite bool   `json:"overwrite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	existed, err := h.orch.SavePreset(r.Context(), p, req.Name, req.Overwrite)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"activePreset": p.ActivePreset(), "existed": existed})
}

func (h *handler) deletePreset(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, "invalid preset name", http.StatusBadRequest)
		return
	}
	active, err := h.orch.DeletePreset(r.Context(), p, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activePreset": active})
}

type recordView struct {
	preset.Summary
	DisplayName string `json:"displayName"`
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	list, err := h.orch.Records(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]recordView, 0, len(list))
	for _, s := range list {
		out = append(out, recordView{Summary: s, DisplayName: identity.DisplayName(s.Key)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	if err := h.orch.DeleteKey(r.Context(), key); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
