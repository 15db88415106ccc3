// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
episodes.go - Cross-version episode merge

When one show exists as multiple upstream series (different qualities or
sources), episode listings for a season are merged across all of them,
keeping the first version of each episode number. With
show_missing_episodes enabled, episodes TMDB knows about but no upstream
series has are appended as synthesized placeholder entries.
*/

package proxy

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/tmdb"
	"github.com/prism-media/prism/internal/upstream"
)

var episodesPathRe = regexp.MustCompile(`/Shows/([a-f0-9\-]+)/Episodes`)

// placeholderAspectRatio matches the upstream's default episode image
// aspect so synthesized cards line up with real ones.
const placeholderAspectRatio = 1.7777777777777777

type EpisodesInterceptor struct {
	store    *config.Store
	upstream *upstream.Client
	tmdb     *tmdb.Client
	checker  *mergeChecker
}

func NewEpisodesInterceptor(store *config.Store, client *upstream.Client, tmdbClient *tmdb.Client) *EpisodesInterceptor {
	return &EpisodesInterceptor{
		store:    store,
		upstream: client,
		tmdb:     tmdbClient,
		checker:  &mergeChecker{store: store, upstream: client},
	}
}

func (ic *EpisodesInterceptor) Name() string { return "episodes-merge" }

func (ic *EpisodesInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	m := episodesPathRe.FindStringSubmatch(r.URL.Path)
	if m == nil {
		return false
	}
	seriesID := m[1]

	query := r.URL.Query()
	seasonID := query.Get("SeasonId")
	if seasonID == "" {
		return false
	}
	userID := requestUserID(r)
	if userID == "" {
		http.Error(w, "UserId is required", http.StatusBadRequest)
		return true
	}

	ctx := r.Context()
	log := logging.Ctx(ctx)
	hdr := upstream.StripHostHeaders(r.Header)
	cfg := ic.store.Snapshot()

	if !ic.checker.shouldMerge(ctx, userID, seriesID, query, hdr) {
		return false
	}

	tmdbID, ok := seriesTmdbID(ctx, ic.upstream, userID, seriesID, query, hdr)
	if !ok {
		return false
	}
	seasonNumber, ok := ic.seasonNumber(ctx, userID, seasonID, query, hdr)
	if !ok {
		return false
	}

	seriesIDs, err := ic.upstream.FindSeriesIDsByTmdbID(ctx, userID, tmdbID, authTokenParams(query), hdr)
	if err != nil {
		log.Warn().Err(err).Str("tmdb", tmdbID).Msg("Series scan failed")
		return false
	}
	if !cfg.ShowMissingEpisodes && len(seriesIDs) < 2 {
		return false
	}

	metrics.MergeOperations.WithLabelValues("episodes").Inc()
	log.Debug().Str("tmdb", tmdbID).Int("season", seasonNumber).Int("series", len(seriesIDs)).Msg("Merging episodes")

	merged := mergeByIndexNumber(ic.fanOutEpisodes(ctx, seriesIDs, seasonNumber, query, hdr))

	if cfg.ShowMissingEpisodes && ic.tmdb.Enabled() {
		merged = ic.appendMissing(ctx, merged, userID, seriesID, tmdbID, seasonNumber, query, hdr)
		sort.SliceStable(merged, func(a, b int) bool {
			ia, _ := merged[a].IndexNumber()
			ib, _ := merged[b].IndexNumber()
			return ia < ib
		})
	}

	writeItemsPage(w, models.NewItemsPage(merged))
	return true
}

// seasonNumber resolves the season's ordinal from its item detail.
func (ic *EpisodesInterceptor) seasonNumber(ctx context.Context, userID, seasonID string, query url.Values, hdr http.Header) (int, bool) {
	item, err := ic.upstream.ItemDetail(ctx, userID, seasonID, "IndexNumber", authTokenParams(query), hdr)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("season", seasonID).Msg("Season lookup failed")
		return 0, false
	}
	n, ok := item.IndexNumber()
	return n, ok
}

// fanOutEpisodes fetches, per sibling series, the episodes of its season
// matching the requested ordinal. The client's paging is dropped so the
// merge sees complete seasons.
func (ic *EpisodesInterceptor) fanOutEpisodes(ctx context.Context, seriesIDs []string, seasonNumber int, query url.Values, hdr http.Header) [][]models.Item {
	epParams := url.Values{}
	for k, vals := range query {
		switch k {
		case "SeasonId", "StartIndex", "Limit":
			continue
		}
		epParams[k] = vals
	}

	results := make([][]models.Item, len(seriesIDs))
	var wg sync.WaitGroup
	for i, sid := range seriesIDs {
		wg.Add(1)
		go func(i int, sid string) {
			defer wg.Done()
			log := logging.Ctx(ctx)

			seasons, err := ic.upstream.SeriesSeasons(ctx, sid, authTokenParams(query), hdr)
			if err != nil {
				log.Warn().Err(err).Str("series", sid).Msg("Season fetch failed")
				return
			}
			var matchID string
			for _, season := range seasons.Items {
				if n, ok := season.IndexNumber(); ok && n == seasonNumber {
					matchID = season.ID()
					break
				}
			}
			if matchID == "" {
				return
			}

			p := cloneQuery(epParams)
			p.Set("SeasonId", matchID)
			episodes, err := ic.upstream.SeriesEpisodes(ctx, sid, p, hdr)
			if err != nil {
				log.Warn().Err(err).Str("series", sid).Msg("Episode fetch failed")
				return
			}
			results[i] = episodes.Items
		}(i, sid)
	}
	wg.Wait()
	return results
}

// appendMissing adds placeholder entries for TMDB episodes absent from
// every upstream series.
func (ic *EpisodesInterceptor) appendMissing(ctx context.Context, merged []models.Item, userID, seriesID, tmdbID string, seasonNumber int, query url.Values, hdr http.Header) []models.Item {
	log := logging.Ctx(ctx)

	season, err := ic.tmdb.Season(ctx, tmdbID, seasonNumber)
	if err != nil {
		log.Warn().Err(err).Str("tmdb", tmdbID).Int("season", seasonNumber).Msg("Season metadata fetch failed")
		return merged
	}

	present := map[int]struct{}{}
	serverID := ""
	for _, item := range merged {
		if n, ok := item.IndexNumber(); ok {
			present[n] = struct{}{}
		}
		if serverID == "" {
			serverID = item.String("ServerId")
		}
	}

	seriesName := ""
	seriesImageTag := ""
	if info, err := ic.upstream.ItemDetail(ctx, userID, seriesID, "", authTokenParams(query), hdr); err == nil {
		seriesName = info.Name()
		if tags, ok := info.Map("ImageTags"); ok {
			if tag, ok := tags["Primary"].(string); ok {
				seriesImageTag = tag
			}
		}
	}

	for _, ep := range season.Episodes {
		if _, have := present[ep.EpisodeNumber]; have {
			continue
		}
		merged = append(merged, models.Item{
			"Name":                    ep.Name,
			"IndexNumber":             ep.EpisodeNumber,
			"ParentIndexNumber":       seasonNumber,
			"Id":                      "tmdb_" + strconv.Itoa(ep.ID),
			"Type":                    "Episode",
			"IsFolder":                false,
			"UserData":                map[string]any{"Played": false},
			"SeriesId":                seriesID,
			"SeriesName":              seriesName,
			"SeriesPrimaryImageTag":   seriesImageTag,
			"ImageTags":               map[string]any{"Primary": "placeholder"},
			"PrimaryImageAspectRatio": placeholderAspectRatio,
			"ServerId":                serverID,
			"Overview":                ep.Overview,
			"PremiereDate":            ep.AirDate,
		})
	}
	return merged
}

func cloneQuery(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
