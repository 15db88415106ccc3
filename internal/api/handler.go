// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/poster"
	"github.com/prism-media/prism/internal/rsshub"
)

// Handler serves the admin API.
type Handler struct {
	store      *config.Store
	rssStore   *rsshub.Store
	poster     *poster.Generator
	itemsCache *cache.TTLCache[[]models.Item]
}

func NewHandler(store *config.Store, rssStore *rsshub.Store, gen *poster.Generator, itemsCache *cache.TTLCache[[]models.Item]) *Handler {
	return &Handler{
		store:      store,
		rssStore:   rssStore,
		poster:     gen,
		itemsCache: itemsCache,
	}
}

// Routes mounts the admin endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handleUpdateSettings)
	r.Put("/display-order", h.handleSetDisplayOrder)

	r.Get("/libraries", h.handleListLibraries)
	r.Post("/libraries", h.handleCreateLibrary)
	r.Get("/libraries/{id}", h.handleGetLibrary)
	r.Put("/libraries/{id}", h.handleUpdateLibrary)
	r.Delete("/libraries/{id}", h.handleDeleteLibrary)
	r.Post("/libraries/{id}/cover", h.handleGenerateCover)

	r.Get("/filters", h.handleListFilters)
	r.Post("/filters", h.handleCreateFilter)
	r.Put("/filters/{id}", h.handleUpdateFilter)
	r.Delete("/filters/{id}", h.handleDeleteFilter)

	r.Get("/covers/styles", h.handleListStyles)
}

// Settings is the runtime-tunable subset of the configuration.
type Settings struct {
	ForceMergeByTmdbID  *bool     `json:"force_merge_by_tmdb_id,omitempty"`
	ShowMissingEpisodes *bool     `json:"show_missing_episodes,omitempty"`
	HiddenViews         *[]string `json:"hidden_views,omitempty"`
	DisplayOrder        *[]string `json:"display_order,omitempty"`
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.Snapshot()
	respondData(w, r, http.StatusOK, map[string]any{
		"force_merge_by_tmdb_id": cfg.ForceMergeByTmdbID,
		"show_missing_episodes":  cfg.ShowMissingEpisodes,
		"hidden_views":           cfg.HiddenViews,
		"display_order":          cfg.DisplayOrder,
	})
}

// handleUpdateSettings patches only the fields present in the request.
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.store.Update(func(cfg *config.Config) error {
		if req.ForceMergeByTmdbID != nil {
			cfg.ForceMergeByTmdbID = *req.ForceMergeByTmdbID
		}
		if req.ShowMissingEpisodes != nil {
			cfg.ShowMissingEpisodes = *req.ShowMissingEpisodes
		}
		if req.HiddenViews != nil {
			cfg.HiddenViews = *req.HiddenViews
		}
		if req.DisplayOrder != nil {
			cfg.DisplayOrder = *req.DisplayOrder
		}
		return nil
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	h.handleGetSettings(w, r)
}

func (h *Handler) handleSetDisplayOrder(w http.ResponseWriter, r *http.Request) {
	var order []string
	if !decodeBody(w, r, &order) {
		return
	}
	err := h.store.Update(func(cfg *config.Config) error {
		cfg.DisplayOrder = order
		return nil
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	respondData(w, r, http.StatusOK, order)
}

func (h *Handler) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.store.Snapshot().VirtualLibraries)
}

func (h *Handler) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.store.Snapshot().LibraryByID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "virtual library not found")
		return
	}
	respondData(w, r, http.StatusOK, lib)
}

func (h *Handler) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var lib models.VirtualLibrary
	if !decodeBody(w, r, &lib) {
		return
	}
	lib.ID = uuid.NewString()
	lib.ImageTag = ""

	err := h.store.Update(func(cfg *config.Config) error {
		cfg.VirtualLibraries = append(cfg.VirtualLibraries, lib)
		return nil
	})
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}
	logging.Ctx(r.Context()).Info().Str("library", lib.ID).Str("name", lib.Name).Msg("Virtual library created")
	respondData(w, r, http.StatusCreated, lib)
}

// handleUpdateLibrary replaces the editable fields while keeping the
// server-owned image tag unless the client explicitly clears covers.
func (h *Handler) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.VirtualLibrary
	if !decodeBody(w, r, &req) {
		return
	}

	var updated models.VirtualLibrary
	err := h.store.Update(func(cfg *config.Config) error {
		for i := range cfg.VirtualLibraries {
			if cfg.VirtualLibraries[i].ID != id {
				continue
			}
			req.ID = id
			if req.ImageTag == "" {
				req.ImageTag = cfg.VirtualLibraries[i].ImageTag
			}
			cfg.VirtualLibraries[i] = req
			updated = req
			return nil
		}
		return errNotFound
	})
	switch {
	case err == errNotFound:
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "virtual library not found")
	case err != nil:
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	default:
		respondData(w, r, http.StatusOK, updated)
	}
}

func (h *Handler) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var removed *models.VirtualLibrary
	err := h.store.Update(func(cfg *config.Config) error {
		for i := range cfg.VirtualLibraries {
			if cfg.VirtualLibraries[i].ID == id {
				lib := cfg.VirtualLibraries[i]
				removed = &lib
				cfg.VirtualLibraries = append(cfg.VirtualLibraries[:i], cfg.VirtualLibraries[i+1:]...)
				cfg.DisplayOrder = removeString(cfg.DisplayOrder, id)
				return nil
			}
		}
		return errNotFound
	})
	switch {
	case err == errNotFound:
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "virtual library not found")
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	log := logging.Ctx(r.Context())
	if removed.IsRSS() && h.rssStore != nil {
		if err := h.rssStore.DeleteLibrary(r.Context(), id); err != nil {
			log.Warn().Err(err).Str("library", id).Msg("Failed to drop RSS rows")
		}
	}
	h.itemsCache.Remove(id)
	if err := os.Remove(h.poster.CoverPath(id)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("library", id).Msg("Failed to remove cover file")
	}
	log.Info().Str("library", id).Msg("Virtual library deleted")
	respondData(w, r, http.StatusOK, map[string]string{"id": id})
}

// CoverRequest identifies the upstream user the generation task acts as.
type CoverRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key,omitempty"`
}

func (h *Handler) handleGenerateCover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg := h.store.Snapshot()
	if _, ok := cfg.LibraryByID(id); !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "virtual library not found")
		return
	}

	var req CoverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	token := req.APIKey
	if token == "" {
		token = cfg.Upstream.APIKey
	}
	if token == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "no API key available")
		return
	}

	if !h.poster.Trigger(id, req.UserID, token) {
		respondError(w, r, http.StatusConflict, ErrCodeConflict, "cover generation already in progress")
		return
	}
	respondData(w, r, http.StatusAccepted, map[string]string{"status": "generating"})
}

func (h *Handler) handleListFilters(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.store.Snapshot().AdvancedFilters)
}

func (h *Handler) handleCreateFilter(w http.ResponseWriter, r *http.Request) {
	var af models.AdvancedFilter
	if !decodeBody(w, r, &af) {
		return
	}
	af.ID = uuid.NewString()

	err := h.store.Update(func(cfg *config.Config) error {
		cfg.AdvancedFilters = append(cfg.AdvancedFilters, af)
		return nil
	})
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}
	respondData(w, r, http.StatusCreated, af)
}

func (h *Handler) handleUpdateFilter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.AdvancedFilter
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.store.Update(func(cfg *config.Config) error {
		for i := range cfg.AdvancedFilters {
			if cfg.AdvancedFilters[i].ID == id {
				req.ID = id
				cfg.AdvancedFilters[i] = req
				return nil
			}
		}
		return errNotFound
	})
	switch {
	case err == errNotFound:
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "advanced filter not found")
	case err != nil:
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	default:
		respondData(w, r, http.StatusOK, req)
	}
}

// handleDeleteFilter refuses to delete a filter still referenced by a
// library, keeping the cross-reference invariant intact.
func (h *Handler) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Update(func(cfg *config.Config) error {
		for _, lib := range cfg.VirtualLibraries {
			if lib.AdvancedFilterID == id {
				return errInUse
			}
		}
		for i := range cfg.AdvancedFilters {
			if cfg.AdvancedFilters[i].ID == id {
				cfg.AdvancedFilters = append(cfg.AdvancedFilters[:i], cfg.AdvancedFilters[i+1:]...)
				return nil
			}
		}
		return errNotFound
	})
	switch {
	case err == errNotFound:
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "advanced filter not found")
	case err == errInUse:
		respondError(w, r, http.StatusConflict, ErrCodeConflict, "filter is referenced by a virtual library")
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	default:
		respondData(w, r, http.StatusOK, map[string]string{"id": id})
	}
}

func (h *Handler) handleListStyles(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.poster.Styles())
}

var (
	errNotFound = &sentinelError{"not found"}
	errInUse    = &sentinelError{"in use"}
)

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if !strings.EqualFold(v, s) {
			out = append(out, v)
		}
	}
	return out
}
