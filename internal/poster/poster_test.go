// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package poster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/models"
)

func encodeTestImage(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Lookup("mosaic"); err != nil {
		t.Fatalf("built-in style missing: %v", err)
	}

	_, err := r.Lookup("style_multi_1")
	var unknown *ErrUnknownStyle
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want ErrUnknownStyle", err)
	}
	if unknown.Name != "style_multi_1" {
		t.Errorf("Name = %q", unknown.Name)
	}
}

func TestMosaicRender(t *testing.T) {
	t.Parallel()

	images := [][]byte{
		encodeTestImage(t, color.RGBA{200, 0, 0, 255}),
		encodeTestImage(t, color.RGBA{0, 200, 0, 255}),
		[]byte("not an image"),
	}
	out, err := (&MosaicRenderer{}).Render("My Library", images)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output not decodable jpeg: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != coverWidth || b.Dy() != coverHeight {
		t.Errorf("bounds = %v", b)
	}
}

func TestMosaicRenderNoUsableImages(t *testing.T) {
	t.Parallel()

	if _, err := (&MosaicRenderer{}).Render("x", nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := (&MosaicRenderer{}).Render("x", [][]byte{[]byte("junk")}); err == nil {
		t.Error("expected error when nothing decodes")
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	coversDir := t.TempDir()

	cfg := config.Default()
	cfg.Covers.Dir = coversDir
	cfg.VirtualLibraries = []models.VirtualLibrary{
		{ID: "lib1", Name: "Action", ResourceType: models.ResourceGenre, ResourceID: "g1"},
	}

	img := encodeTestImage(t, color.RGBA{0, 0, 200, 255})
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "tok" {
			t.Errorf("upstream image fetch missing token")
		}
		_, _ = w.Write(img)
	}))
	defer upstreamSrv.Close()
	cfg.Upstream.URL = upstreamSrv.URL

	store := config.NewStore(cfg, filepath.Join(t.TempDir(), "config.yaml"))

	selfSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emby/Users/u1/Items" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("ParentId") != "lib1" {
			t.Errorf("ParentId = %q", r.URL.Query().Get("ParentId"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Items": []models.Item{
				{"Id": "a", "ImageTags": map[string]any{"Primary": "t1"}},
				{"Id": "b", "ImageTags": map[string]any{}},
				{"Id": "c", "ImageTags": map[string]any{"Primary": "t2"}},
			},
			"TotalRecordCount": 3,
		})
	}))
	defer selfSrv.Close()

	g := NewGenerator(store, NewRegistry())
	g.SetSelfURL(selfSrv.URL)

	if err := g.Generate(context.Background(), "lib1", "u1", "tok"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := os.Stat(filepath.Join(coversDir, "lib1.jpg")); err != nil {
		t.Errorf("cover file missing: %v", err)
	}
	if !g.CoverExists("lib1") {
		t.Error("CoverExists = false after generation")
	}

	lib, _ := store.Snapshot().LibraryByID("lib1")
	if lib.ImageTag == "" {
		t.Error("image tag not persisted")
	}
	if g.InFlight("lib1") {
		t.Error("in-flight marker not released")
	}
}

func TestGenerateRefusesConcurrentRun(t *testing.T) {
	store := config.NewStore(config.Default(), filepath.Join(t.TempDir(), "config.yaml"))
	g := NewGenerator(store, NewRegistry())

	g.mu.Lock()
	g.inflight["busy"] = struct{}{}
	g.mu.Unlock()

	if err := g.Generate(context.Background(), "busy", "u1", "tok"); err == nil {
		t.Error("expected in-flight rejection")
	}
	if ok := g.Trigger("busy", "u1", "tok"); ok {
		t.Error("Trigger started despite in-flight marker")
	}
}

func TestGenerateUnknownLibrary(t *testing.T) {
	store := config.NewStore(config.Default(), filepath.Join(t.TempDir(), "config.yaml"))
	g := NewGenerator(store, NewRegistry())
	if err := g.Generate(context.Background(), "nope", "u1", "tok"); err == nil {
		t.Error("expected error for unknown library")
	}
}
