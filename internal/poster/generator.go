// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
generator.go - Background cover generation

Covers are composed from the items actually visible inside a virtual
library. The item listing is fetched back through the proxy itself with
the triggering request's credential, so per-session visibility rules
apply to the cover exactly as they do to the listing. At most one
generation runs per library id at a time.
*/

package poster

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
	"github.com/prism-media/prism/internal/models"
)

const (
	fetchLimit   = 100
	maxTiles     = 9
	fetchTimeout = 60 * time.Second
	imageTimeout = 20 * time.Second
)

// Generator runs cover generation tasks.
type Generator struct {
	store    *config.Store
	registry *Registry

	// selfURL points back at the proxy's own listening address.
	selfURL    string
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGenerator wires the generator against the proxy's own address.
func NewGenerator(store *config.Store, registry *Registry) *Generator {
	cfg := store.Snapshot()
	return &Generator{
		store:      store,
		registry:   registry,
		selfURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{},
		inflight:   make(map[string]struct{}),
	}
}

// SetSelfURL overrides the loopback address, mainly for tests.
func (g *Generator) SetSelfURL(u string) {
	g.selfURL = u
}

// Styles lists the registered cover styles.
func (g *Generator) Styles() []string {
	return g.registry.Styles()
}

// InFlight reports whether a generation task for the library is running.
func (g *Generator) InFlight(libraryID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[libraryID]
	return ok
}

// CoverPath returns the on-disk location of a library's generated cover.
func (g *Generator) CoverPath(libraryID string) string {
	return filepath.Join(g.store.Snapshot().Covers.Dir, libraryID+".jpg")
}

// CoverExists reports whether a generated cover is materialized on disk.
func (g *Generator) CoverExists(libraryID string) bool {
	info, err := os.Stat(g.CoverPath(libraryID))
	return err == nil && !info.IsDir()
}

// Trigger starts a detached generation task for the library using the
// triggering request's identity. Returns false when a task is already in
// flight for the id; the insert-if-absent and the check are one atomic
// step so concurrent triggers cannot both start.
func (g *Generator) Trigger(libraryID, userID, token string) bool {
	g.mu.Lock()
	if _, busy := g.inflight[libraryID]; busy {
		g.mu.Unlock()
		return false
	}
	g.inflight[libraryID] = struct{}{}
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.inflight, libraryID)
			g.mu.Unlock()
		}()
		if err := g.generate(context.Background(), libraryID, userID, token); err != nil {
			metrics.CoverGenerations.WithLabelValues("error").Inc()
			logging.Error().Err(err).Str("library_id", libraryID).Msg("Cover generation failed")
			return
		}
		metrics.CoverGenerations.WithLabelValues("ok").Inc()
	}()
	return true
}

// Generate runs one generation synchronously. Exposed for the admin API's
// explicit trigger endpoint and for tests.
func (g *Generator) Generate(ctx context.Context, libraryID, userID, token string) error {
	g.mu.Lock()
	if _, busy := g.inflight[libraryID]; busy {
		g.mu.Unlock()
		return fmt.Errorf("generation already in flight for library %s", libraryID)
	}
	g.inflight[libraryID] = struct{}{}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.inflight, libraryID)
		g.mu.Unlock()
	}()
	return g.generate(ctx, libraryID, userID, token)
}

func (g *Generator) generate(ctx context.Context, libraryID, userID, token string) error {
	cfg := g.store.Snapshot()
	vlib, ok := cfg.LibraryByID(libraryID)
	if !ok {
		return fmt.Errorf("virtual library %s not found", libraryID)
	}

	items, err := g.fetchItems(ctx, libraryID, userID, token)
	if err != nil {
		return err
	}

	var withImages []models.Item
	for _, item := range items {
		if tag, _ := item.GetPath("ImageTags.Primary").(string); tag != "" {
			withImages = append(withImages, item)
		}
	}
	if len(withImages) == 0 {
		return fmt.Errorf("no items with primary images in library %q", vlib.Name)
	}

	rand.Shuffle(len(withImages), func(i, j int) {
		withImages[i], withImages[j] = withImages[j], withImages[i]
	})
	if len(withImages) > maxTiles {
		withImages = withImages[:maxTiles]
	}

	images := g.downloadImages(ctx, cfg.Upstream.URL, withImages, token)
	if len(images) == 0 {
		return fmt.Errorf("no cover source images downloadable for library %q", vlib.Name)
	}

	style := vlib.CoverStyle
	if style == "" {
		style = cfg.Covers.DefaultStyle
	}
	renderer, err := g.registry.Lookup(style)
	if err != nil {
		return err
	}

	encoded, err := renderer.Render(vlib.Name, images)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Covers.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create covers dir: %w", err)
	}
	coverPath := filepath.Join(cfg.Covers.Dir, libraryID+".jpg")
	if err := os.WriteFile(coverPath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write cover: %w", err)
	}

	sum := md5.Sum([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	newTag := hex.EncodeToString(sum[:])
	err = g.store.Update(func(c *config.Config) error {
		for i := range c.VirtualLibraries {
			if c.VirtualLibraries[i].ID == libraryID {
				c.VirtualLibraries[i].ImageTag = newTag
				return nil
			}
		}
		return fmt.Errorf("virtual library %s vanished from config", libraryID)
	})
	if err != nil {
		return err
	}

	logging.Info().
		Str("library_id", libraryID).
		Str("cover", coverPath).
		Str("image_tag", newTag).
		Msg("Cover generated")
	return nil
}

// fetchItems lists the library's items through the proxy itself so that
// virtual-library resolution and the caller's visibility both apply.
func (g *Generator) fetchItems(ctx context.Context, libraryID, userID, token string) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	params := url.Values{
		"ParentId":         {libraryID},
		"Limit":            {strconv.Itoa(fetchLimit)},
		"Fields":           {"ImageTags,ProviderIds"},
		"Recursive":        {"true"},
		"IncludeItemTypes": {"Movie,Series,Video"},
		"X-Emby-Token":     {token},
	}
	u := fmt.Sprintf("%s/emby/Users/%s/Items?%s", g.selfURL, userID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create internal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Emby-Token", token)
	req.Header.Set("X-Emby-Client", "Prism AutoGen")
	req.Header.Set("X-Emby-Device-Name", "PrismAutoGen")
	req.Header.Set("X-Emby-Device-Id", "prism-autogen")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("internal listing request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("internal listing request returned status %d", resp.StatusCode)
	}

	var page models.ItemsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode internal listing: %w", err)
	}
	return page.Items, nil
}

// downloadImages fetches primary images directly from upstream. A failed
// download drops that tile and continues.
func (g *Generator) downloadImages(ctx context.Context, upstreamURL string, items []models.Item, token string) [][]byte {
	var images [][]byte
	for _, item := range items {
		data, err := g.downloadImage(ctx, upstreamURL, item.ID(), token)
		if err != nil {
			logging.Debug().Err(err).Str("item_id", item.ID()).Msg("Cover source image download failed")
			continue
		}
		images = append(images, data)
	}
	return images
}

func (g *Generator) downloadImage(ctx context.Context, upstreamURL, itemID, token string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/emby/Items/%s/Images/Primary", upstreamURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
