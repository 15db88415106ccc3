// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package rsshub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/tmdb"
	"github.com/prism-media/prism/internal/upstream"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rss.duckdb"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMetadata(t *testing.T) *MetadataCache {
	t.Helper()
	m, err := OpenMetadataCache(filepath.Join(t.TempDir(), "metadata"))
	if err != nil {
		t.Fatalf("OpenMetadataCache: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func insertRow(t *testing.T, s *Store, libraryID, tmdbID, mediaType, embyID string, at time.Time) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO rss_library_items (library_id, tmdb_id, media_type, emby_item_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		libraryID, tmdbID, mediaType, embyID, at)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestStoreQueries(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertRow(t, s, "lib1", "100", "movie", "e1", base)
	insertRow(t, s, "lib1", "200", "tv", "", base.Add(time.Hour))
	insertRow(t, s, "lib2", "300", "movie", "", base)

	ctx := context.Background()

	rows, err := s.ItemsForLibrary(ctx, "lib1")
	if err != nil {
		t.Fatalf("ItemsForLibrary: %v", err)
	}
	if len(rows) != 2 || rows[0].TmdbID != "100" || !rows[0].Resolved() || rows[1].Resolved() {
		t.Fatalf("unexpected rows %+v", rows)
	}

	latest, err := s.LatestForLibrary(ctx, "lib1", 1)
	if err != nil {
		t.Fatalf("LatestForLibrary: %v", err)
	}
	if len(latest) != 1 || latest[0].TmdbID != "200" {
		t.Fatalf("latest = %+v, want newest row first", latest)
	}

	unresolved, err := s.UnresolvedRows(ctx)
	if err != nil {
		t.Fatalf("UnresolvedRows: %v", err)
	}
	if len(unresolved) != 2 {
		t.Fatalf("unresolved = %+v, want 2 rows", unresolved)
	}

	if err := s.DeleteLibrary(ctx, "lib1"); err != nil {
		t.Fatalf("DeleteLibrary: %v", err)
	}
	rows, _ = s.ItemsForLibrary(ctx, "lib1")
	if len(rows) != 0 {
		t.Error("rows remain after DeleteLibrary")
	}
}

func TestMetadataCacheRoundTrip(t *testing.T) {
	m := testMetadata(t)

	if _, ok := m.Get("1", "movie"); ok {
		t.Fatal("hit on empty cache")
	}
	item := models.Item{"Id": "tmdb-1", "Name": "Placeholder"}
	if err := m.Put("1", "movie", item); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := m.Get("1", "movie")
	if !ok || got.Name() != "Placeholder" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if !m.Contains("1", "movie") || m.Contains("1", "tv") {
		t.Error("Contains keyed incorrectly")
	}
}

func TestResolverOrdersResolvedThenPlaceholders(t *testing.T) {
	s := testStore(t)
	m := testMetadata(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	insertRow(t, s, "lib1", "100", "movie", "e1", base)
	insertRow(t, s, "lib1", "200", "tv", "", base.Add(time.Minute))
	insertRow(t, s, "lib1", "300", "movie", "", base.Add(2*time.Minute))

	// Only tmdb 200 has cached metadata; 300 must be omitted.
	_ = m.Put("200", "tv", models.Item{"Id": "tmdb-200", "Name": "Cached Show", "ServerId": "stale"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("Ids") != "e1" {
			t.Errorf("Ids = %q, want e1", q.Get("Ids"))
		}
		if q.Get("Fields") != "ProviderIds" {
			t.Errorf("Fields = %q, want inherited ProviderIds", q.Get("Fields"))
		}
		if len(q["SortBy"]) != 0 {
			t.Error("client listing params leaked into sub-fetch")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Items":            []models.Item{{"Id": "e1", "Name": "Real Movie", "ServerId": "srv-9"}},
			"TotalRecordCount": 1,
		})
	}))
	defer srv.Close()

	client := upstream.NewClient(config.UpstreamConfig{URL: srv.URL, Timeout: 2 * time.Second})
	r := NewResolver(s, m, client)

	params := url.Values{"Fields": {"ProviderIds"}, "SortBy": {"SortName"}}
	page, err := r.Resolve(context.Background(), "lib1", "u1", params, http.Header{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if page.TotalRecordCount != 2 {
		t.Fatalf("TotalRecordCount = %d, want 2", page.TotalRecordCount)
	}
	if page.Items[0].ID() != "e1" || page.Items[1].ID() != "tmdb-200" {
		t.Fatalf("order = [%s %s], want resolved then placeholder", page.Items[0].ID(), page.Items[1].ID())
	}
	if sid := page.Items[1].String("ServerId"); sid != "srv-9" {
		t.Errorf("placeholder ServerId = %q, want real server id srv-9", sid)
	}
}

func TestResolverEmptyLibrary(t *testing.T) {
	s := testStore(t)
	m := testMetadata(t)
	client := upstream.NewClient(config.UpstreamConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})

	page, err := NewResolver(s, m, client).Resolve(context.Background(), "nope", "u1", url.Values{}, http.Header{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if page.TotalRecordCount != 0 || page.Items == nil {
		t.Fatalf("page = %+v, want empty non-nil items", page)
	}
}

func TestHydratorSweep(t *testing.T) {
	s := testStore(t)
	m := testMetadata(t)
	insertRow(t, s, "lib1", "603", "movie", "", time.Now().UTC())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/603" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"title":"The Matrix","overview":"o","release_date":"1999-03-31"}`))
	}))
	defer srv.Close()

	client := tmdb.NewClient(config.TMDBConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 2 * time.Second})
	NewHydrator(s, m, client).Sweep(context.Background())

	item, ok := m.Get("603", "movie")
	if !ok {
		t.Fatal("metadata not hydrated")
	}
	if item.Name() != "The Matrix" || item.ID() != "tmdb-603" {
		t.Errorf("unexpected placeholder %+v", item)
	}
	if year, _ := item.Int("ProductionYear"); year != 1999 {
		t.Errorf("ProductionYear = %d, want 1999", year)
	}
}

func TestBuildPlaceholderShapes(t *testing.T) {
	t.Parallel()

	movie := BuildPlaceholder(&tmdb.TitleDetails{Title: "M", ReleaseDate: "2020-05-01"}, tmdb.MediaTypeMovie, "7", "srv")
	if movie.Type() != "Movie" || movie.String("MediaType") != "Video" {
		t.Errorf("movie placeholder mis-typed: %+v", movie)
	}
	if movie.ID() != "tmdb-7" {
		t.Errorf("Id = %q, want tmdb-7", movie.ID())
	}
	if tag := movie.GetPath("ImageTags.Primary"); tag != "placeholder" {
		t.Errorf("ImageTags.Primary = %v", tag)
	}

	show := BuildPlaceholder(&tmdb.TitleDetails{Name: "S", FirstAirDate: "2011-04-17"}, tmdb.MediaTypeTV, "8", "srv")
	if show.Type() != "Series" || show.String("MediaType") != "Series" {
		t.Errorf("series placeholder mis-typed: %+v", show)
	}
}
