// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
views.go - View injection

Inserts virtual libraries into the upstream's root view listing. With a
configured display order the proxy takes full control of the home
layout: only the ordered ids appear, real or virtual. Without one the
legacy behavior applies, appending virtual libraries after the real
views and hiding configured collection types.
*/

package proxy

import (
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/poster"
	"github.com/prism-media/prism/internal/upstream"
)

// generatingTag is the placeholder image tag injected while a cover is
// being generated; the image interceptor resolves it to a static asset.
const generatingTag = "generating_placeholder"

type ViewsInterceptor struct {
	store    *config.Store
	upstream *upstream.Client
	poster   *poster.Generator
}

func NewViewsInterceptor(store *config.Store, client *upstream.Client, gen *poster.Generator) *ViewsInterceptor {
	return &ViewsInterceptor{store: store, upstream: client, poster: gen}
}

func (ic *ViewsInterceptor) Name() string { return "view-injection" }

func (ic *ViewsInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet ||
		!strings.Contains(r.URL.Path, "Users") ||
		!strings.Contains(r.URL.Path, "/Views") {
		return false
	}
	return ic.Inject(w, r, r.URL.Path)
}

// Inject fetches the upstream views at viewsPath and rewrites them with
// the virtual libraries. It also backs the listing fallback for clients
// that request the root views through an Items path.
func (ic *ViewsInterceptor) Inject(w http.ResponseWriter, r *http.Request, viewsPath string) bool {
	cfg := ic.store.Snapshot()
	if len(cfg.DisplayOrder) == 0 {
		return ic.legacyInject(w, r, viewsPath, cfg)
	}

	page, ok := ic.fetchViews(r, viewsPath)
	if !ok {
		return false
	}

	byID := make(map[string]models.Item, len(page.Items)+len(cfg.VirtualLibraries))
	for _, item := range page.Items {
		byID[item.ID()] = item
	}
	serverID := firstServerID(page.Items)

	for i := range cfg.VirtualLibraries {
		lib := &cfg.VirtualLibraries[i]
		byID[lib.ID] = ic.viewItem(r, lib, serverID, cfg)
	}

	items := make([]models.Item, 0, len(cfg.DisplayOrder))
	for _, id := range cfg.DisplayOrder {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	writeItemsPage(w, models.NewItemsPage(items))
	return true
}

func (ic *ViewsInterceptor) legacyInject(w http.ResponseWriter, r *http.Request, viewsPath string, cfg *config.Config) bool {
	page, ok := ic.fetchViews(r, viewsPath)
	if !ok {
		return false
	}

	hidden := make(map[string]struct{}, len(cfg.HiddenViews))
	for _, ct := range cfg.HiddenViews {
		hidden[ct] = struct{}{}
	}
	items := make([]models.Item, 0, len(page.Items))
	for _, item := range page.Items {
		if _, hide := hidden[item.String("CollectionType")]; hide {
			continue
		}
		items = append(items, item)
	}

	serverID := firstServerID(items)
	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.ID()] = struct{}{}
	}

	libs := append([]models.VirtualLibrary(nil), cfg.VirtualLibraries...)
	sort.SliceStable(libs, func(a, b int) bool { return libs[a].Order < libs[b].Order })
	for i := range libs {
		if _, dup := present[libs[i].ID]; dup {
			continue
		}
		items = append(items, ic.viewItem(r, &libs[i], serverID, cfg))
	}

	writeItemsPage(w, models.NewItemsPage(items))
	return true
}

// fetchViews retrieves the real view listing. Anything but a JSON 200
// declines the interception so the forwarder stays authoritative.
func (ic *ViewsInterceptor) fetchViews(r *http.Request, viewsPath string) (*models.ItemsPage, bool) {
	resp, err := ic.upstream.Do(r.Context(), http.MethodGet, viewsPath, r.URL.RawQuery,
		upstream.ForwardHeaders(r.Header), nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("View fetch failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK ||
		!strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, false
	}

	page := &models.ItemsPage{}
	if err := json.NewDecoder(resp.Body).Decode(page); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("View listing decode failed")
		return nil, false
	}
	return page, true
}

// viewItem synthesizes the root-view entry for one virtual library,
// kicking off cover generation when none exists yet.
func (ic *ViewsInterceptor) viewItem(r *http.Request, lib *models.VirtualLibrary, serverID string, cfg *config.Config) models.Item {
	item := models.Item{
		"Name":           lib.Name,
		"ServerId":       serverID,
		"Id":             lib.ID,
		"Type":           "CollectionFolder",
		"CollectionType": "tvshows",
		"IsFolder":       true,
		"ImageTags":      map[string]any{},
	}

	if ic.poster.CoverExists(lib.ID) {
		if lib.ImageTag != "" {
			item["ImageTags"] = map[string]any{"Primary": lib.ImageTag}
			item["HasPrimaryImage"] = true
		}
		return item
	}

	if !ic.poster.InFlight(lib.ID) {
		userID := requestUserID(r)
		token := requestToken(r)
		if token == "" {
			token = cfg.Upstream.APIKey
		}
		if userID != "" && token != "" {
			ic.poster.Trigger(lib.ID, userID, token)
		} else {
			logging.Ctx(r.Context()).Warn().Str("library", lib.ID).Msg("Cannot trigger cover generation without user and token")
		}
	}
	item["ImageTags"] = map[string]any{"Primary": generatingTag}
	item["HasPrimaryImage"] = true
	return item
}

func firstServerID(items []models.Item) string {
	for _, item := range items {
		if sid := item.String("ServerId"); sid != "" {
			return sid
		}
	}
	return "unknown"
}
