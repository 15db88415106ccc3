// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package rsshub

import (
	"context"
	"net/http"
	"net/url"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/tmdb"
	"github.com/prism-media/prism/internal/upstream"
)

// fallbackServerID is used when no resolved item reveals the real
// upstream server id.
const fallbackServerID = "emby"

// Resolver assembles an RSS-backed virtual library's listing: resolved
// rows fetched from upstream, unresolved rows served from the metadata
// cache as placeholders.
type Resolver struct {
	store    *Store
	metadata *MetadataCache
	client   *upstream.Client
}

// NewResolver wires the lookup table, metadata cache and upstream client.
func NewResolver(store *Store, metadata *MetadataCache, client *upstream.Client) *Resolver {
	return &Resolver{store: store, metadata: metadata, client: client}
}

// Resolve builds the full unsliced listing for the library. Callers apply
// the client's paging window over the result.
func (r *Resolver) Resolve(ctx context.Context, libraryID, userID string, params url.Values, header http.Header) (*models.ItemsPage, error) {
	rows, err := r.store.ItemsForLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, rows, userID, params, header)
}

// ResolveLatest builds the newest-rows-first listing for the home-latest
// branch, capped at limit rows before resolution.
func (r *Resolver) ResolveLatest(ctx context.Context, libraryID, userID string, limit int, params url.Values, header http.Header) (*models.ItemsPage, error) {
	rows, err := r.store.LatestForLibrary(ctx, libraryID, limit)
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, rows, userID, params, header)
}

func (r *Resolver) assemble(ctx context.Context, rows []Row, userID string, params url.Values, header http.Header) (*models.ItemsPage, error) {
	if len(rows) == 0 {
		return models.NewItemsPage(nil), nil
	}

	var resolvedIDs []string
	var missing []Row
	for _, row := range rows {
		if row.Resolved() {
			resolvedIDs = append(resolvedIDs, row.EmbyItemID)
		} else {
			missing = append(missing, row)
		}
	}

	// Only the field selection is inherited; everything else on the
	// client request targets the virtual listing, not this sub-fetch.
	sub := url.Values{}
	if f := params.Get("Fields"); f != "" {
		sub.Set("Fields", f)
	}
	hdr := upstream.ForwardHeaders(header)
	if tok := params.Get("X-Emby-Token"); tok != "" {
		hdr.Set("X-Emby-Token", tok)
	}

	var resolved []models.Item
	if len(resolvedIDs) > 0 {
		page, err := r.client.ItemsByIDs(ctx, userID, resolvedIDs, sub, hdr)
		if err != nil {
			logging.Warn().Err(err).Int("ids", len(resolvedIDs)).Msg("Batch fetch of resolved rss items failed, degrading to placeholders only")
		} else {
			resolved = page.Items
		}
	}

	serverID := fallbackServerID
	if len(resolved) > 0 {
		if sid := resolved[0].String("ServerId"); sid != "" {
			serverID = sid
		}
	}

	items := append([]models.Item{}, resolved...)
	for _, row := range missing {
		item, ok := r.metadata.Get(row.TmdbID, row.MediaType)
		if !ok {
			// Hydration happens off the request path.
			continue
		}
		item["ServerId"] = serverID
		items = append(items, item)
	}

	return models.NewItemsPage(items), nil
}

// BuildPlaceholder formats external title details as a catalog item the
// clients can render. The id carries the tmdb- prefix so the image
// interceptor can recognize it.
func BuildPlaceholder(details *tmdb.TitleDetails, mediaType, tmdbID, serverID string) models.Item {
	itemType := "Series"
	embyMediaType := "Series"
	if mediaType == tmdb.MediaTypeMovie {
		itemType = "Movie"
		embyMediaType = "Video"
	}
	return models.Item{
		"Name":                    details.DisplayName(),
		"ProductionYear":          details.Year(),
		"Id":                      "tmdb-" + tmdbID,
		"Type":                    itemType,
		"IsFolder":                false,
		"MediaType":               embyMediaType,
		"ServerId":                serverID,
		"ImageTags":               map[string]any{"Primary": "placeholder"},
		"HasPrimaryImage":         true,
		"PrimaryImageAspectRatio": 0.6666666666666666,
		"ProviderIds":             map[string]any{"Tmdb": tmdbID},
		"UserData": map[string]any{
			"Played":                false,
			"PlayCount":             0,
			"IsFavorite":            false,
			"PlaybackPositionTicks": 0,
		},
		"Overview":     details.Overview,
		"PremiereDate": details.PremiereDate(),
	}
}
