// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/poster"
)

// imagePathRe matches primary-image requests for virtual library ids and
// synthesized tmdb-backed item ids.
var imagePathRe = regexp.MustCompile(`/Items/([a-f0-9\-]{36}|tmdb[-_]\d+)/Images/(\w+)`)

// Placeholder asset names under covers.placeholder_dir.
const (
	placeholderEpisode    = "missing_episode.jpg"
	placeholderRSS        = "rss_item.jpg"
	placeholderGenerating = "generating.jpg"
)

// ImageInterceptor serves generated covers and static placeholders for
// ids that do not exist upstream.
type ImageInterceptor struct {
	store  *config.Store
	poster *poster.Generator
}

func NewImageInterceptor(store *config.Store, gen *poster.Generator) *ImageInterceptor {
	return &ImageInterceptor{store: store, poster: gen}
}

func (ic *ImageInterceptor) Name() string { return "images" }

func (ic *ImageInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	m := imagePathRe.FindStringSubmatch(r.URL.Path)
	if m == nil || m[2] != "Primary" {
		return false
	}
	id := m[1]

	if cover := ic.poster.CoverPath(id); fileExists(cover) {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, cover)
		return true
	}

	cfg := ic.store.Snapshot()
	name := placeholderGenerating
	switch {
	case strings.HasPrefix(id, "tmdb_"):
		name = placeholderEpisode
	case strings.HasPrefix(id, "tmdb-"):
		name = placeholderRSS
	}

	asset := filepath.Join(cfg.Covers.PlaceholderDir, name)
	if !fileExists(asset) {
		logging.Ctx(r.Context()).Warn().Str("asset", asset).Msg("Placeholder image missing")
		http.NotFound(w, r)
		return true
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, asset)
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
