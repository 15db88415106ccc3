// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/upstream"
)

// mergeMembershipFields are the item fields needed to decide whether a
// series belongs to any merge-enabled library.
const mergeMembershipFields = "CollectionIds,TagItems,GenreItems,Studios,People,ProviderIds"

// mergeChecker decides whether a series-level request should go through
// the cross-version merge path.
type mergeChecker struct {
	store    *config.Store
	upstream *upstream.Client
}

// shouldMerge is true when the global force flag is set, or when the
// series is a member of at least one merge-enabled virtual library.
// Upstream failures fall back to the unmerged passthrough.
func (m *mergeChecker) shouldMerge(ctx context.Context, userID, seriesID string, query url.Values, header http.Header) bool {
	cfg := m.store.Snapshot()
	if cfg.ForceMergeByTmdbID {
		return true
	}
	mergeLibs := cfg.MergeEnabledLibraries()
	if len(mergeLibs) == 0 {
		return false
	}

	item, err := m.upstream.ItemDetail(ctx, userID, seriesID, mergeMembershipFields,
		authTokenParams(query), upstream.StripHostHeaders(header))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("series", seriesID).Msg("Merge membership lookup failed")
		return false
	}

	for i := range mergeLibs {
		if seriesInLibrary(item, &mergeLibs[i]) {
			return true
		}
	}
	return false
}

func seriesInLibrary(item models.Item, lib *models.VirtualLibrary) bool {
	var ids []string
	switch lib.ResourceType {
	case models.ResourceAll:
		return true
	case models.ResourceCollection:
		ids = idList(item["CollectionIds"])
	case models.ResourceTag:
		ids = idList(item["TagItems"])
	case models.ResourceGenre:
		ids = idList(item["GenreItems"])
	case models.ResourceStudio:
		ids = idList(item["Studios"])
	case models.ResourcePerson:
		ids = idList(item["People"])
	default:
		return false
	}
	return slices.Contains(ids, lib.ResourceID)
}
