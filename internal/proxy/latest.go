// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/filter"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/merge"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/poster"
	"github.com/prism-media/prism/internal/rsshub"
	"github.com/prism-media/prism/internal/upstream"
)

// latestDefaultLimit matches the home screen's row size.
const latestDefaultLimit = 20

// latestSafeParams are the client parameters a Latest request may pass
// through to the upstream.
var latestSafeParams = []string{
	"Fields", "IncludeItemTypes", "EnableImageTypes", "ImageTypeLimit",
	"X-Emby-Token", "EnableUserData", "Limit", "ParentId",
}

// LatestInterceptor serves the home screen's "latest in library" row for
// virtual libraries.
type LatestInterceptor struct {
	store    *config.Store
	upstream *upstream.Client
	rss      *rsshub.Resolver
	poster   *poster.Generator
}

func NewLatestInterceptor(store *config.Store, client *upstream.Client, rss *rsshub.Resolver, gen *poster.Generator) *LatestInterceptor {
	return &LatestInterceptor{store: store, upstream: client, rss: rss, poster: gen}
}

func (ic *LatestInterceptor) Name() string { return "home-latest" }

func (ic *LatestInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet || !strings.Contains(r.URL.Path, "/Items/Latest") {
		return false
	}
	query := r.URL.Query()
	cfg := ic.store.Snapshot()
	lib, ok := cfg.LibraryByID(query.Get("ParentId"))
	if !ok {
		return false
	}
	userID := requestUserID(r)
	if userID == "" {
		return false
	}

	ctx := r.Context()
	log := logging.Ctx(ctx)
	_, clientLimit := clientPaging(query, 0, latestDefaultLimit)

	if lib.IsRSS() {
		page, err := ic.rss.ResolveLatest(ctx, lib.ID, userID, clientLimit, query, r.Header)
		if err != nil {
			log.Error().Err(err).Str("library", lib.ID).Msg("RSS latest lookup failed")
			writeJSON(w, http.StatusOK, []models.Item{})
			return true
		}
		writeJSON(w, http.StatusOK, page.Items)
		return true
	}

	// The home screen is usually the first place a new library shows up,
	// so it doubles as the cover generation trigger.
	if !ic.poster.CoverExists(lib.ID) && !ic.poster.InFlight(lib.ID) {
		token := requestToken(r)
		if token == "" {
			token = cfg.Upstream.APIKey
		}
		if token != "" {
			ic.poster.Trigger(lib.ID, userID, token)
		}
	}

	params := inheritParams(query, latestSafeParams)
	params.Set("SortBy", "DateCreated")
	params.Set("SortOrder", "Descending")
	params.Set("Recursive", "true")
	params.Set("IncludeItemTypes", "Movie,Series,Video")

	var native map[string]string
	var residual []models.FilterRule
	if af, ok := cfg.LibraryFilter(lib); ok {
		native, residual = filter.Translate(af.Rules)
		for k, v := range native {
			params.Set(k, v)
		}
	}

	merging := lib.EffectiveMerge(cfg.ForceMergeByTmdbID)
	if len(residual) > 0 || merging {
		params.Set("Limit", strconv.Itoa(widenLimit(clientLimit)))
	}

	required := map[string]struct{}{"ProviderIds": {}}
	for _, rule := range residual {
		root, _, _ := strings.Cut(rule.Field, ".")
		required[root] = struct{}{}
	}
	fields := make([]string, 0, len(required))
	for f := range required {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	params.Set("Fields", mergeFields(params.Get("Fields"), fields))

	if lib.ResourceType == models.ResourceAll {
		params.Del("ParentId")
	} else if cp := lib.ContainerParam(); cp != "" {
		params.Set(cp, lib.ResourceID)
		params.Del("ParentId")
	}

	page, err := ic.upstream.UserItems(ctx, userID, params, upstream.ForwardHeaders(r.Header))
	if err != nil {
		log.Error().Err(err).Str("library", lib.ID).Msg("Latest fetch failed")
		writeJSON(w, http.StatusOK, []models.Item{})
		return true
	}

	items := filter.Apply(page.Items, residual)
	if merging {
		items = merge.ByTmdbID(items)
	}
	if len(items) > clientLimit {
		items = items[:clientLimit]
	}
	writeJSON(w, http.StatusOK, items)
	return true
}

// widenLimit over-fetches so post-filtering and dedup still fill the
// client's row.
func widenLimit(clientLimit int) int {
	n := clientLimit * 10
	if n < 50 {
		n = 50
	}
	if n > 200 {
		n = 200
	}
	return n
}
