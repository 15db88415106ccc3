// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"sync"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/upstream"
)

var seasonsPathRe = regexp.MustCompile(`/Shows/([a-f0-9\-]+)/Seasons`)

// SeasonsInterceptor merges the season lists of every upstream series
// sharing one TMDB id, so split libraries present a single show.
type SeasonsInterceptor struct {
	store    *config.Store
	upstream *upstream.Client
	checker  *mergeChecker
}

func NewSeasonsInterceptor(store *config.Store, client *upstream.Client) *SeasonsInterceptor {
	return &SeasonsInterceptor{
		store:    store,
		upstream: client,
		checker:  &mergeChecker{store: store, upstream: client},
	}
}

func (ic *SeasonsInterceptor) Name() string { return "seasons-merge" }

func (ic *SeasonsInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	m := seasonsPathRe.FindStringSubmatch(r.URL.Path)
	if m == nil {
		return false
	}
	seriesID := m[1]

	query := r.URL.Query()
	userID := requestUserID(r)
	if userID == "" {
		http.Error(w, "UserId is required", http.StatusBadRequest)
		return true
	}

	ctx := r.Context()
	log := logging.Ctx(ctx)
	hdr := upstream.StripHostHeaders(r.Header)

	if !ic.checker.shouldMerge(ctx, userID, seriesID, query, hdr) {
		return false
	}

	tmdbID, ok := seriesTmdbID(ctx, ic.upstream, userID, seriesID, query, hdr)
	if !ok {
		return false
	}

	seriesIDs, err := ic.upstream.FindSeriesIDsByTmdbID(ctx, userID, tmdbID, authTokenParams(query), hdr)
	if err != nil {
		log.Warn().Err(err).Str("tmdb", tmdbID).Msg("Series scan failed")
		return false
	}
	if len(seriesIDs) < 2 {
		return false
	}

	metrics.MergeOperations.WithLabelValues("seasons").Inc()
	log.Debug().Str("tmdb", tmdbID).Int("series", len(seriesIDs)).Msg("Merging seasons")

	merged := mergeByIndexNumber(fanOutSeasons(ctx, ic.upstream, seriesIDs, query, hdr))
	writeItemsPage(w, models.NewItemsPage(merged))
	return true
}

// seriesTmdbID resolves a series' TMDB id from its provider ids.
func seriesTmdbID(ctx context.Context, client *upstream.Client, userID, seriesID string, query url.Values, hdr http.Header) (string, bool) {
	item, err := client.ItemDetail(ctx, userID, seriesID, "ProviderIds", authTokenParams(query), hdr)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("series", seriesID).Msg("Provider id lookup failed")
		return "", false
	}
	id, ok := item.TmdbID()
	return id, ok && id != ""
}

// fanOutSeasons fetches each series' seasons concurrently, preserving
// the series order in the result. Failed fetches contribute nothing.
func fanOutSeasons(ctx context.Context, client *upstream.Client, seriesIDs []string, query url.Values, hdr http.Header) [][]models.Item {
	results := make([][]models.Item, len(seriesIDs))
	var wg sync.WaitGroup
	for i, sid := range seriesIDs {
		wg.Add(1)
		go func(i int, sid string) {
			defer wg.Done()
			page, err := client.SeriesSeasons(ctx, sid, query, hdr)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("series", sid).Msg("Season fetch failed")
				return
			}
			results[i] = page.Items
		}(i, sid)
	}
	wg.Wait()
	return results
}

// mergeByIndexNumber keeps the first item seen for each index and sorts
// ascending. Items without an index share one slot.
func mergeByIndexNumber(groups [][]models.Item) []models.Item {
	seen := map[int]struct{}{}
	var merged []models.Item
	for _, items := range groups {
		for _, item := range items {
			idx, ok := item.IndexNumber()
			if !ok {
				idx = -1
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			merged = append(merged, item)
		}
	}
	sort.SliceStable(merged, func(a, b int) bool {
		ia, _ := merged[a].IndexNumber()
		ib, _ := merged[b].IndexNumber()
		return ia < ib
	})
	if merged == nil {
		merged = []models.Item{}
	}
	return merged
}
