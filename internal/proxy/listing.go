// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
listing.go - Virtual library item listings

Rewrites a listing request against a virtual library into the narrowest
upstream query the native search parameters allow, then applies whatever
could not be expressed natively on the proxy side. Three strategies:

  - plain scoped query: client paging passes straight through
  - TMDB merge without residual rules: exhaustive pagination so the
    dedup sees the whole library, then manual paging
  - residual rules present: single-page post-filtering, which trades
    pagination precision for bounded upstream load
*/

package proxy

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/filter"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/merge"
	"github.com/prism-media/prism/internal/metrics"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/rsshub"
	"github.com/prism-media/prism/internal/upstream"
)

// listingSafeParams pass through from the client, paging and sorting
// included.
var listingSafeParams = []string{
	"SortBy", "SortOrder", "Fields", "EnableImageTypes", "ImageTypeLimit",
	"EnableTotalRecordCount", "X-Emby-Token", "StartIndex", "Limit",
}

// listingRequiredFields are always requested so post-filter rules and
// the TMDB merge have the attributes they inspect.
var listingRequiredFields = []string{
	"ProviderIds", "Genres", "Tags", "Studios", "People",
	"OfficialRatings", "CommunityRating", "ProductionYear", "VideoRange", "Container",
}

const listingDefaultLimit = 50

type ListingInterceptor struct {
	store      *config.Store
	upstream   *upstream.Client
	rss        *rsshub.Resolver
	views      *ViewsInterceptor
	itemsCache *cache.TTLCache[[]models.Item]
}

func NewListingInterceptor(store *config.Store, client *upstream.Client, rss *rsshub.Resolver, views *ViewsInterceptor, itemsCache *cache.TTLCache[[]models.Item]) *ListingInterceptor {
	return &ListingInterceptor{
		store:      store,
		upstream:   client,
		rss:        rss,
		views:      views,
		itemsCache: itemsCache,
	}
}

func (ic *ListingInterceptor) Name() string { return "item-listing" }

func (ic *ListingInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	path := r.URL.Path
	if strings.Contains(path, "/Items/Prefixes") ||
		strings.Contains(path, "/Items/Counts") ||
		strings.Contains(path, "/Items/Latest") {
		return false
	}

	query := r.URL.Query()
	cfg := ic.store.Snapshot()

	lib, ok := cfg.LibraryByID(query.Get("ParentId"))
	if !ok && r.Method == http.MethodGet {
		lib, ok = cfg.LibraryByID(pathSegmentAfter(path, "Items"))
	}
	if !ok {
		return ic.fallbackViews(w, r, query)
	}

	userID := requestUserID(r)
	if userID == "" {
		http.Error(w, "UserId not found", http.StatusBadRequest)
		return true
	}

	ctx := r.Context()
	log := logging.Ctx(ctx)
	log.Debug().Str("library", lib.Name).Str("user", userID).Msg("Intercepting virtual library listing")

	params := inheritParams(query, listingSafeParams)
	params.Set("Fields", mergeFields(params.Get("Fields"), listingRequiredFields))
	params.Set("Recursive", "true")
	params.Set("IncludeItemTypes", "Movie,Series,Video")

	if cp := lib.ContainerParam(); cp != "" {
		params.Set(cp, lib.ResourceID)
	}

	startIndex, limit := clientPaging(query, 0, listingDefaultLimit)

	if lib.IsRSS() {
		page, err := ic.rss.Resolve(ctx, lib.ID, userID, params, r.Header)
		if err != nil {
			log.Error().Err(err).Str("library", lib.ID).Msg("RSS listing failed")
			writeItemsPage(w, models.NewItemsPage(nil))
			return true
		}
		total := len(page.Items)
		writeJSON(w, http.StatusOK, map[string]any{
			"Items":            page.Slice(startIndex, limit),
			"TotalRecordCount": total,
		})
		return true
	}

	var residual []models.FilterRule
	if af, ok := cfg.LibraryFilter(lib); ok {
		native, rest := filter.Translate(af.Rules)
		for k, v := range native {
			params.Set(k, v)
		}
		residual = rest
	}

	merging := lib.EffectiveMerge(cfg.ForceMergeByTmdbID)
	hdr := upstream.ForwardHeaders(r.Header)

	if merging && len(residual) == 0 {
		ic.serveMerged(w, r, lib, userID, params, hdr, startIndex, limit)
		return true
	}
	ic.serveSinglePage(w, r, lib, userID, params, hdr, residual, merging)
	return true
}

// fallbackViews handles clients that request the root views through an
// Items path with no id parameter at all.
func (ic *ListingInterceptor) fallbackViews(w http.ResponseWriter, r *http.Request, query url.Values) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for key := range query {
		if strings.HasSuffix(strings.ToLower(key), "id") {
			return false
		}
	}
	userID := requestUserID(r)
	if userID == "" {
		return false
	}
	logging.Ctx(r.Context()).Debug().Str("user", userID).Msg("Id-less listing request, serving root views")
	return ic.views.Inject(w, r, "/emby/Users/"+userID+"/Views")
}

// serveSinglePage proxies one upstream page and applies residual rules
// and the merge to it. With residual rules active the reported totals
// remain the upstream's, so deep pagination can under-fill pages.
func (ic *ListingInterceptor) serveSinglePage(w http.ResponseWriter, r *http.Request, lib *models.VirtualLibrary, userID string, params url.Values, hdr http.Header, residual []models.FilterRule, merging bool) {
	log := logging.Ctx(r.Context())
	if merging && len(residual) > 0 {
		log.Warn().Str("library", lib.Name).Msg("Merge limited to the current page because residual rules are present")
	}

	resp, err := ic.upstream.Do(r.Context(), http.MethodGet, "/emby/Users/"+userID+"/Items", params.Encode(), hdr, nil)
	if err != nil {
		log.Error().Err(err).Str("library", lib.ID).Msg("Listing fetch failed")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Listing read failed")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	for k, vals := range resp.Header {
		if _, hop := hopHeaders[strings.ToLower(k)]; hop {
			continue
		}
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}

	if resp.StatusCode != http.StatusOK ||
		!strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	var page models.ItemsPage
	if err := json.Unmarshal(body, &page); err != nil {
		log.Error().Err(err).Msg("Listing decode failed")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	items := filter.Apply(page.Items, residual)
	if merging {
		items = merge.ByTmdbID(items)
	}
	page.Items = items
	if len(items) > 0 {
		ic.itemsCache.Add(lib.ID, items)
	}
	writeItemsPage(w, &page)
}

// serveMerged fetches the complete scoped listing, dedups by TMDB id
// and pages the merged result itself.
func (ic *ListingInterceptor) serveMerged(w http.ResponseWriter, r *http.Request, lib *models.VirtualLibrary, userID string, params url.Values, hdr http.Header, startIndex, limit int) {
	log := logging.Ctx(r.Context())
	metrics.MergeOperations.WithLabelValues("listing").Inc()

	params.Del("StartIndex")
	params.Del("Limit")

	all, err := ic.upstream.AllUserItems(r.Context(), userID, params, hdr)
	if err != nil {
		log.Error().Err(err).Str("library", lib.ID).Msg("Exhaustive fetch failed")
		writeJSON(w, http.StatusOK, map[string]any{"Items": []models.Item{}, "TotalRecordCount": 0})
		return
	}

	merged := merge.ByTmdbID(all)
	page := models.NewItemsPage(merged)
	paged := page.Slice(startIndex, limit)
	log.Debug().Int("total", len(merged)).Int("page", len(paged)).Msg("Merged listing paged")

	if len(paged) > 0 {
		ic.itemsCache.Add(lib.ID, paged)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"Items":            paged,
		"TotalRecordCount": len(merged),
		"StartIndex":       startIndex,
	})
}
