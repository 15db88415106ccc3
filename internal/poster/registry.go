// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package poster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
)

// Renderer composes a library cover from source images. Implementations
// return encoded JPEG bytes.
type Renderer interface {
	Render(title string, images [][]byte) ([]byte, error)
}

// ErrUnknownStyle is returned when a style name has no registered renderer.
type ErrUnknownStyle struct {
	Name string
}

func (e *ErrUnknownStyle) Error() string {
	return fmt.Sprintf("unknown cover style %q", e.Name)
}

// Registry maps style names to renderers. Resolved once at startup so an
// unknown configured style fails loudly instead of at generation time.
type Registry struct {
	styles map[string]Renderer
}

// NewRegistry builds the registry with the built-in styles.
func NewRegistry() *Registry {
	return &Registry{
		styles: map[string]Renderer{
			"mosaic": &MosaicRenderer{},
		},
	}
}

// Register adds or replaces a named style.
func (r *Registry) Register(name string, renderer Renderer) {
	r.styles[name] = renderer
}

// Lookup resolves a style name.
func (r *Registry) Lookup(name string) (Renderer, error) {
	renderer, ok := r.styles[name]
	if !ok {
		return nil, &ErrUnknownStyle{Name: name}
	}
	return renderer, nil
}

// Styles lists the registered style names.
func (r *Registry) Styles() []string {
	names := make([]string, 0, len(r.styles))
	for name := range r.styles {
		names = append(names, name)
	}
	return names
}

const (
	coverWidth  = 960
	coverHeight = 540
	gridCols    = 3
	gridRows    = 3
)

// MosaicRenderer tiles up to nine posters into a 3x3 grid.
type MosaicRenderer struct{}

// Render decodes each source image and scales it into its grid cell.
// Undecodable images leave their cell on the dark background; at least
// one decodable image is required.
func (m *MosaicRenderer) Render(title string, images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no source images for cover %q", title)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, coverWidth, coverHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{20, 20, 20, 255}), image.Point{}, draw.Src)

	cellW := coverWidth / gridCols
	cellH := coverHeight / gridRows

	var placed int
	for i, data := range images {
		if i >= gridCols*gridRows {
			break
		}
		src, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		cell := image.Rect(
			(i%gridCols)*cellW,
			(i/gridCols)*cellH,
			(i%gridCols+1)*cellW,
			(i/gridCols+1)*cellH,
		)
		scaleInto(canvas, cell, src)
		placed++
	}
	if placed == 0 {
		return nil, fmt.Errorf("no decodable source images for cover %q", title)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleInto draws src scaled to dst's rect with nearest-neighbor sampling.
func scaleInto(dst *image.RGBA, rect image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		sy := sb.Min.Y + (y-rect.Min.Y)*sb.Dy()/rect.Dy()
		for x := rect.Min.X; x < rect.Max.X; x++ {
			sx := sb.Min.X + (x-rect.Min.X)*sb.Dx()/rect.Dx()
			dst.Set(x, y, src.At(sx, sy))
		}
	}
}
