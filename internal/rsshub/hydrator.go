// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package rsshub

import (
	"context"
	"time"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/tmdb"
)

// hydrateInterval is how often the hydrator sweeps for unresolved rows
// lacking cached metadata.
const hydrateInterval = 10 * time.Minute

// Hydrator fills the metadata cache for unresolved lookup rows so the
// request path can serve placeholders without ever calling out to the
// external catalog itself. Runs as a supervised service.
type Hydrator struct {
	store    *Store
	metadata *MetadataCache
	tmdb     *tmdb.Client
}

// NewHydrator wires the hydration sweep.
func NewHydrator(store *Store, metadata *MetadataCache, client *tmdb.Client) *Hydrator {
	return &Hydrator{store: store, metadata: metadata, tmdb: client}
}

// Serve sweeps periodically until the context is canceled. Satisfies
// suture's Service interface.
func (h *Hydrator) Serve(ctx context.Context) error {
	ticker := time.NewTicker(hydrateInterval)
	defer ticker.Stop()

	// Initial sweep on startup so fresh rows are usable quickly.
	h.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep hydrates every unresolved row that has no cached metadata yet.
// Individual failures are logged and skipped; the sweep never aborts.
func (h *Hydrator) Sweep(ctx context.Context) {
	if !h.tmdb.Enabled() {
		return
	}

	rows, err := h.store.UnresolvedRows(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Hydration sweep could not list unresolved rows")
		return
	}

	var hydrated int
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		if h.metadata.Contains(row.TmdbID, row.MediaType) {
			continue
		}

		details, err := h.tmdb.TitleDetails(ctx, row.MediaType, row.TmdbID)
		if err != nil {
			logging.Warn().Err(err).
				Str("tmdb_id", row.TmdbID).
				Str("media_type", row.MediaType).
				Msg("Failed to fetch title details")
			continue
		}

		item := BuildPlaceholder(details, row.MediaType, row.TmdbID, fallbackServerID)
		if err := h.metadata.Put(row.TmdbID, row.MediaType, item); err != nil {
			logging.Warn().Err(err).Str("tmdb_id", row.TmdbID).Msg("Failed to cache title metadata")
			continue
		}
		hydrated++
	}

	if hydrated > 0 {
		logging.Info().Int("hydrated", hydrated).Msg("Metadata hydration sweep complete")
	}
}

func (h *Hydrator) String() string {
	return "rsshub-hydrator"
}
