// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package merge deduplicates catalog listings by external content
// identifier so the same title imported from multiple sources shows up
// once.
package merge

import (
	"github.com/prism-media/prism/internal/models"
)

// mergeableTypes are the item types subject to dedup. Episodes, seasons
// and folders always pass through.
var mergeableTypes = map[string]struct{}{
	"Movie":  {},
	"Series": {},
}

// ByTmdbID returns the input list with at most one Movie/Series per TMDB
// id. The first item seen with a given id is kept as representative;
// later duplicates are dropped. Items without a TMDB id and items of any
// other type pass through untouched. Relative input order is preserved.
func ByTmdbID(items []models.Item) []models.Item {
	seen := make(map[string]struct{})
	out := make([]models.Item, 0, len(items))

	for _, item := range items {
		if _, mergeable := mergeableTypes[item.Type()]; !mergeable {
			out = append(out, item)
			continue
		}
		tmdbID, ok := item.TmdbID()
		if !ok {
			out = append(out, item)
			continue
		}
		if _, dup := seen[tmdbID]; dup {
			continue
		}
		seen[tmdbID] = struct{}{}
		out = append(out, item)
	}
	return out
}
