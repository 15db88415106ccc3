// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/poster"
)

func newListing(t *testing.T, store *config.Store, upstreamHandler http.Handler) (*ListingInterceptor, *cache.TTLCache[[]models.Item]) {
	t.Helper()
	client, _ := upstreamFor(t, store, upstreamHandler)
	gen := poster.NewGenerator(store, poster.NewRegistry())
	views := NewViewsInterceptor(store, client, gen)
	itemsCache := cache.New[[]models.Item](10, 0)
	return NewListingInterceptor(store, client, nil, views, itemsCache), itemsCache
}

func genreLibrary(merge bool, filterID string) models.VirtualLibrary {
	return models.VirtualLibrary{
		ID:               testLibID,
		Name:             "Action Library",
		ResourceType:     models.ResourceGenre,
		ResourceID:       "g-action",
		MergeByTmdbID:    merge,
		AdvancedFilterID: filterID,
	}
}

func TestListingScopesQueryNatively(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(false, "")}
	})

	ic, itemsCache := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emby/Users/u1/Items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("GenreIds") != "g-action" {
			t.Errorf("GenreIds = %q", q.Get("GenreIds"))
		}
		if q.Get("Recursive") != "true" || q.Get("IncludeItemTypes") != "Movie,Series,Video" {
			t.Errorf("forced params missing: %v", q)
		}
		for _, f := range []string{"ProviderIds", "Container", "CommunityRating"} {
			if !strings.Contains(q.Get("Fields"), f) {
				t.Errorf("Fields missing %s: %q", f, q.Get("Fields"))
			}
		}
		if q.Get("StartIndex") != "0" || q.Get("Limit") != "25" {
			t.Errorf("client paging not inherited: %v", q)
		}
		if q.Get("ParentId") != "" {
			t.Errorf("ParentId must not reach the upstream")
		}
		writeItemsJSON(w, []models.Item{{"Id": "m1"}, {"Id": "m2"}}, 42)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/emby/Users/u1/Items?ParentId="+testLibID+"&StartIndex=0&Limit=25&SortBy=SortName", nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("request not handled")
	}

	page := decodePage(t, rec.Body.Bytes())
	if page.TotalRecordCount != 42 {
		t.Fatalf("TotalRecordCount = %d, upstream total must survive", page.TotalRecordCount)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d", len(page.Items))
	}
	if _, ok := itemsCache.Get(testLibID); !ok {
		t.Fatal("listing page not cached for the cover generator")
	}
}

func TestListingMatchesLibraryByPathSegment(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(false, "")}
	})
	ic, _ := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeItemsJSON(w, nil, 0)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Users/u1/Items/"+testLibID+"?ParentId=other", nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("library in the path segment must match")
	}
}

func TestListingRequiresUser(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(false, "")}
	})
	ic, _ := newListing(t, store, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Items?ParentId="+testLibID, nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("request not handled")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// Merged listings fetch the complete catalog page by page, dedup by TMDB
// id, and page the merged result themselves.
func TestListingMergesExhaustively(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(true, "")}
	})

	// 250 upstream items collapsing onto 100 distinct TMDB ids.
	const totalItems = 250
	ic, itemsCache := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.Atoi(q.Get("StartIndex"))
		limit, _ := strconv.Atoi(q.Get("Limit"))
		var batch []models.Item
		for i := start; i < start+limit && i < totalItems; i++ {
			batch = append(batch, models.Item{
				"Id":          fmt.Sprintf("item-%d", i),
				"ProviderIds": map[string]any{"Tmdb": strconv.Itoa(i % 100)},
			})
		}
		writeItemsJSON(w, batch, totalItems)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/emby/Users/u1/Items?ParentId="+testLibID+"&StartIndex=0&Limit=20", nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("request not handled")
	}

	page := decodePage(t, rec.Body.Bytes())
	if page.TotalRecordCount != 100 {
		t.Fatalf("TotalRecordCount = %d, want 100 after dedup", page.TotalRecordCount)
	}
	if len(page.Items) != 20 {
		t.Fatalf("page size = %d, want 20", len(page.Items))
	}
	if page.StartIndex == nil || *page.StartIndex != 0 {
		t.Fatal("StartIndex missing from merged response")
	}
	seen := map[string]struct{}{}
	for _, item := range page.Items {
		id, _ := item.TmdbID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate TMDB id %s in merged page", id)
		}
		seen[id] = struct{}{}
	}
	if _, ok := itemsCache.Get(testLibID); !ok {
		t.Fatal("merged page not cached for the cover generator")
	}
}

func TestListingMergedBatchFailureReturnsEmptyPage(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(true, "")}
	})
	ic, _ := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Users/u1/Items?ParentId="+testLibID, nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("request not handled")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, batch failures degrade to an empty page", rec.Code)
	}
	page := decodePage(t, rec.Body.Bytes())
	if len(page.Items) != 0 || page.TotalRecordCount != 0 {
		t.Fatalf("expected empty page, got %d/%d", len(page.Items), page.TotalRecordCount)
	}
}

// Residual rules run on the fetched page; translatable rules become
// native query parameters.
func TestListingAppliesResidualRules(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.AdvancedFilters = []models.AdvancedFilter{{
			ID:   "f1",
			Name: "Star Action",
			Rules: []models.FilterRule{
				{Field: "Genres", Operator: models.OpEquals, Value: "Action"},
				{Field: "Name", Operator: models.OpContains, Value: "Star"},
			},
		}}
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(false, "f1")}
	})

	ic, _ := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("Genres"); got != "Action" {
			t.Errorf("Genres = %q, rule should translate natively", got)
		}
		writeItemsJSON(w, []models.Item{
			{"Id": "m1", "Name": "Star Wars"},
			{"Id": "m2", "Name": "Alien"},
			{"Id": "m3", "Name": "Starship Troopers"},
		}, 3)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Users/u1/Items?ParentId="+testLibID, nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("request not handled")
	}

	page := decodePage(t, rec.Body.Bytes())
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, residual Name rule should drop Alien", len(page.Items))
	}
	for _, item := range page.Items {
		if !strings.Contains(item.Name(), "Star") {
			t.Fatalf("unexpected item %q", item.Name())
		}
	}
}

func TestListingPassesThroughUpstreamErrors(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(false, "")}
	})
	ic, _ := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Access token required"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Users/u1/Items?ParentId="+testLibID, nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("request not handled")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, upstream errors pass through", rec.Code)
	}
	if rec.Body.String() != "Access token required" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestListingDeclinesExcludedPaths(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		cfg.VirtualLibraries = []models.VirtualLibrary{genreLibrary(false, "")}
	})
	ic, _ := newListing(t, store, http.NotFoundHandler())

	paths := []string{
		"/emby/Users/u1/Items/Prefixes?ParentId=" + testLibID,
		"/emby/Users/u1/Items/Counts?ParentId=" + testLibID,
		"/emby/Users/u1/Items/Latest?ParentId=" + testLibID,
	}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		if ic.Intercept(rec, httptest.NewRequest(http.MethodGet, p, nil)) {
			t.Fatalf("path %s must not be treated as a listing", p)
		}
	}
}

// Clients that fetch the root views through an id-less Items request get
// the injected view listing.
func TestListingFallsBackToViews(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(cfg *config.Config) {
		lib := genreLibrary(false, "")
		lib.ImageTag = "tag-1"
		cfg.VirtualLibraries = []models.VirtualLibrary{lib}
		cfg.DisplayOrder = []string{"real-1", testLibID}
	})

	ic, _ := newListing(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emby/Users/u1/Views" {
			t.Errorf("fallback must fetch the views path, got %s", r.URL.Path)
		}
		writeItemsJSON(w, []models.Item{{"Id": "real-1", "ServerId": "srv-1", "Name": "Movies"}}, 1)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Users/u1/Items?SortBy=SortName", nil)
	if !ic.Intercept(rec, req) {
		t.Fatal("id-less listing must be served as views")
	}

	page := decodePage(t, rec.Body.Bytes())
	if len(page.Items) != 2 {
		t.Fatalf("items = %d", len(page.Items))
	}
	if page.Items[0].ID() != "real-1" || page.Items[1].ID() != testLibID {
		t.Fatalf("display order not honored: %s, %s", page.Items[0].ID(), page.Items[1].ID())
	}
}

func TestListingFallbackDeclinesWithIDParams(t *testing.T) {
	t.Parallel()

	store := testStore(t, nil)
	ic, _ := newListing(t, store, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emby/Users/u1/Items?ParentId=real-library", nil)
	if ic.Intercept(rec, req) {
		t.Fatal("requests scoped to a real library must pass through")
	}
}
