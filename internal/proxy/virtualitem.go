// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"net/http"
	"strings"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/models"
)

// VirtualItemInterceptor answers detail requests for a virtual library's
// own container item so clients can render it with its generated cover.
type VirtualItemInterceptor struct {
	store *config.Store
}

func NewVirtualItemInterceptor(store *config.Store) *VirtualItemInterceptor {
	return &VirtualItemInterceptor{store: store}
}

func (ic *VirtualItemInterceptor) Name() string { return "virtual-item" }

func (ic *VirtualItemInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/emby"), "/")
	segs := strings.Split(path, "/")
	if len(segs) != 4 || segs[0] != "Users" || segs[2] != "Items" {
		return false
	}
	libID := segs[3]

	cfg := ic.store.Snapshot()
	lib, ok := cfg.LibraryByID(libID)
	if !ok || lib.ImageTag == "" {
		return false
	}

	writeJSON(w, http.StatusOK, models.Item{
		"Name":            lib.Name,
		"ServerId":        "unknown_server_id",
		"Id":              lib.ID,
		"Type":            "CollectionFolder",
		"CollectionType":  "folder",
		"IsFolder":        true,
		"ImageTags":       map[string]any{"Primary": lib.ImageTag},
		"HasPrimaryImage": true,
		"UserData": map[string]any{
			"PlaybackPositionTicks": 0,
			"PlayCount":             0,
			"IsFavorite":            false,
			"Played":                false,
		},
	})
	return true
}
