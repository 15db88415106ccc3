// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package models

import (
	"reflect"
	"testing"
)

func movieItem() Item {
	return Item{
		"Id":   "abc-123",
		"Type": "Movie",
		"Name": "Heat",
		"ProviderIds": map[string]any{
			"Tmdb": "949",
			"Imdb": "tt0113277",
		},
		"CommunityRating": 8.3,
		"People": []any{
			map[string]any{"Name": "Al Pacino", "Id": "p1"},
			map[string]any{"Name": "Robert De Niro", "Id": "p2"},
		},
	}
}

func TestItemAccessors(t *testing.T) {
	t.Parallel()

	it := movieItem()

	if it.ID() != "abc-123" {
		t.Errorf("ID() = %q", it.ID())
	}
	if it.Type() != "Movie" {
		t.Errorf("Type() = %q", it.Type())
	}
	if id, ok := it.TmdbID(); !ok || id != "949" {
		t.Errorf("TmdbID() = %q, %v", id, ok)
	}
	if _, ok := (Item{"Type": "Movie"}).TmdbID(); ok {
		t.Error("TmdbID() should report absence without ProviderIds")
	}
}

func TestProviderIDCaseInsensitive(t *testing.T) {
	t.Parallel()

	it := Item{"ProviderIds": map[string]any{"tmdb": "77"}}
	if id, ok := it.ProviderID("Tmdb"); !ok || id != "77" {
		t.Errorf("ProviderID(Tmdb) = %q, %v", id, ok)
	}
}

func TestProviderIDNumeric(t *testing.T) {
	t.Parallel()

	it := Item{"ProviderIds": map[string]any{"Tmdb": float64(1399)}}
	if id, ok := it.TmdbID(); !ok || id != "1399" {
		t.Errorf("TmdbID() = %q, %v", id, ok)
	}
}

func TestGetPath(t *testing.T) {
	t.Parallel()

	it := movieItem()

	tests := []struct {
		path string
		want any
	}{
		{"Name", "Heat"},
		{"ProviderIds.Tmdb", "949"},
		{"CommunityRating", 8.3},
		{"People.Name", nil},
		{"Missing.Path", nil},
		{"ProviderIds.Tvdb", nil},
	}

	for _, tt := range tests {
		got := it.GetPath(tt.path)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("GetPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestItemClone(t *testing.T) {
	t.Parallel()

	orig := movieItem()
	clone := orig.Clone()

	clone["Name"] = "Changed"
	ids, _ := clone.Map("ProviderIds")
	ids["Tmdb"] = "0"

	if orig.Name() != "Heat" {
		t.Error("clone mutation leaked into original name")
	}
	if id, _ := orig.TmdbID(); id != "949" {
		t.Error("clone mutation leaked into original provider ids")
	}
}

func TestItemsPageSlice(t *testing.T) {
	t.Parallel()

	items := []Item{{"Id": "a"}, {"Id": "b"}, {"Id": "c"}, {"Id": "d"}}
	page := NewItemsPage(items)

	if page.TotalRecordCount != 4 {
		t.Errorf("TotalRecordCount = %d", page.TotalRecordCount)
	}

	tests := []struct {
		offset, limit int
		want          []string
	}{
		{0, 2, []string{"a", "b"}},
		{2, 2, []string{"c", "d"}},
		{3, 10, []string{"d"}},
		{0, 0, []string{"a", "b", "c", "d"}},
		{10, 2, []string{}},
		{-1, 1, []string{"a"}},
	}

	for _, tt := range tests {
		got := page.Slice(tt.offset, tt.limit)
		ids := make([]string, len(got))
		for i, it := range got {
			ids[i] = it.ID()
		}
		if !reflect.DeepEqual(ids, tt.want) {
			t.Errorf("Slice(%d, %d) = %v, want %v", tt.offset, tt.limit, ids, tt.want)
		}
	}
}

func TestVirtualLibraryHelpers(t *testing.T) {
	t.Parallel()

	lib := VirtualLibrary{ID: "v1", ResourceType: ResourceTag, ResourceID: "42"}

	if lib.ContainerParam() != "TagIds" {
		t.Errorf("ContainerParam() = %q", lib.ContainerParam())
	}
	if lib.IsRSS() {
		t.Error("tag library reported as RSS")
	}
	if lib.EffectiveMerge(false) {
		t.Error("merge should be off")
	}
	if !lib.EffectiveMerge(true) {
		t.Error("global force flag should enable merge")
	}

	rss := VirtualLibrary{ResourceType: ResourceRSSHub}
	if !rss.IsRSS() {
		t.Error("rsshub library not reported as RSS")
	}
	if rss.ContainerParam() != "" {
		t.Errorf("rss ContainerParam() = %q", rss.ContainerParam())
	}
}
