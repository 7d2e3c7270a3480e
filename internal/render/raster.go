// Package render turns a computed layout into pixels: it resolves the shared
// motif, builds the canvas or tile strip and cuts one window per plate.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rueckwand/configurator/internal/layout"
)

// Options controls rasterization. A zero Filter means Lanczos.
type Options struct {
	Background color.Color
	Filter     imaging.ResampleFilter
}

// DefaultOptions draws on white with Lanczos resampling.
func DefaultOptions() Options {
	return Options{Background: color.White, Filter: imaging.Lanczos}
}

// Rasterize draws res into an image of the viewport's size. Each plate shows
// the window of the motif canvas (slice mode) or tile strip (tiled mode) that
// lies behind it; the rest of the box keeps the background colour.
func Rasterize(res layout.Result, motif image.Image, opts Options) *image.NRGBA {
	if opts.Background == nil {
		opts.Background = color.White
	}
	if opts.Filter.Support == 0 && opts.Filter.Kernel == nil {
		opts.Filter = imaging.Lanczos
	}

	boxW := max(1, int(math.Round(res.Viewport.WidthPx)))
	boxH := max(1, int(math.Round(res.Viewport.HeightPx)))
	box := imaging.New(boxW, boxH, opts.Background)
	if len(res.Plates) == 0 {
		return box
	}

	strip := buildStrip(res, motif, opts.Filter)
	stripH := strip.Bounds().Dy()

	for _, p := range res.Plates {
		// The strip sits at OffsetXPx from the plate's left edge and shares
		// its bottom edge, so the plate sees strip columns from -OffsetXPx.
		x0 := -p.Sampling.OffsetXPx
		window := imaging.Crop(strip, image.Rect(x0, stripH-p.HeightPx, x0+p.WidthPx, stripH))
		box = imaging.Paste(box, window, image.Pt(p.LeftPx, boxH-window.Bounds().Dy()))
	}
	return box
}

// buildStrip renders the shared canvas: one cover-fitted motif in slice mode,
// alternating plain and mirrored tiles in tiled mode.
func buildStrip(res layout.Result, motif image.Image, filter imaging.ResampleFilter) *image.NRGBA {
	h := res.CanvasHeightPx
	if res.Mode != layout.ModeTiled {
		return imaging.Fill(motif, res.CanvasWidthPx, h, imaging.Center, filter)
	}

	tile := imaging.Fill(motif, res.TileWidthPx, h, imaging.Center, filter)
	mirrored := imaging.FlipH(tile)

	strip := imaging.New(res.TileCount*res.TileWidthPx, h, color.Transparent)
	for _, t := range res.Tiles {
		src := tile
		if t.Mirrored {
			src = mirrored
		}
		strip = imaging.Paste(strip, src, image.Pt(t.LeftPx, 0))
	}
	return strip
}

// ParseHexColor parses #rgb or #rrggbb.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
