// Package layout computes the preview geometry for a row of plates that share
// one motif.
//
// All plates are windows onto a single virtual canvas as wide as the whole
// row. Up to the motif's base coverage width the canvas holds one cover-fit
// copy of the motif; beyond it the canvas is filled with motif tiles whose
// odd-indexed copies are mirrored so neighbouring edges always match.
//
// Compute is a pure function: it keeps no state, never mutates its inputs and
// returns fresh slices on every call.
package layout

import (
	"math"

	"github.com/rueckwand/configurator/internal/models"
)

// Default reference values of the preview box.
const (
	DefaultMaxHeightCm      = 128.0
	DefaultBaseMotifWidthCm = 300.0
)

// Config holds the physical reference constants of the preview.
type Config struct {
	// MaxHeightCm is the physical height the preview box always represents.
	MaxHeightCm float64 `json:"maxHeightCm" yaml:"max_height_cm"`
	// BaseMotifWidthCm is the width one untiled copy of the motif covers.
	BaseMotifWidthCm float64 `json:"baseMotifWidthCm" yaml:"base_motif_width_cm"`
}

// DefaultConfig returns the 128 cm / 300 cm reference.
func DefaultConfig() Config {
	return Config{
		MaxHeightCm:      DefaultMaxHeightCm,
		BaseMotifWidthCm: DefaultBaseMotifWidthCm,
	}
}

func (c Config) withDefaults() Config {
	if !(c.MaxHeightCm > 0) || math.IsInf(c.MaxHeightCm, 0) {
		c.MaxHeightCm = DefaultMaxHeightCm
	}
	if !(c.BaseMotifWidthCm > 0) || math.IsInf(c.BaseMotifWidthCm, 0) {
		c.BaseMotifWidthCm = DefaultBaseMotifWidthCm
	}
	return c
}

// Viewport is the pixel size of the rendering surface.
type Viewport struct {
	WidthPx  float64 `json:"widthPx" msgpack:"widthPx"`
	HeightPx float64 `json:"heightPx" msgpack:"heightPx"`
}

// Mode selects how a plate samples the motif.
type Mode string

const (
	// ModeSlice shifts one canvas-sized motif copy behind every plate.
	ModeSlice Mode = "slice"
	// ModeTiled shifts a strip of alternating mirrored tiles behind every plate.
	ModeTiled Mode = "tiled"
)

// Tile is one motif copy in the tiled strip.
type Tile struct {
	Index    int  `json:"index" msgpack:"index"`
	LeftPx   int  `json:"leftPx" msgpack:"leftPx"`
	WidthPx  int  `json:"widthPx" msgpack:"widthPx"`
	Mirrored bool `json:"mirrored" msgpack:"mirrored"`
}

// Sampling tells the rendering surface what to draw inside a plate window.
//
// The canvas (or tile strip) is placed at OffsetXPx relative to the plate's
// left edge and bottom-anchored to the plate's bottom edge, then clipped to
// the plate's own width and height. In ModeSlice the canvas is one motif copy
// cover-fitted (center anchored) to CanvasWidthPx x CanvasHeightPx. In
// ModeTiled it is the sequence Tiles, each cover-fitted to its WidthPx x
// CanvasHeightPx.
type Sampling struct {
	Mode           Mode   `json:"mode" msgpack:"mode"`
	OffsetXPx      int    `json:"offsetXPx" msgpack:"offsetXPx"`
	CanvasWidthPx  int    `json:"canvasWidthPx" msgpack:"canvasWidthPx"`
	CanvasHeightPx int    `json:"canvasHeightPx" msgpack:"canvasHeightPx"`
	Tiles          []Tile `json:"tiles,omitempty" msgpack:"tiles,omitempty"`
}

// PlateGeometry is the pixel placement of one plate inside the box.
// Plates are bottom-aligned, so BottomPx is always 0.
type PlateGeometry struct {
	PlateID  string   `json:"plateId" msgpack:"plateId"`
	Index    int      `json:"index" msgpack:"index"`
	LeftPx   int      `json:"leftPx" msgpack:"leftPx"`
	BottomPx int      `json:"bottomPx" msgpack:"bottomPx"`
	WidthPx  int      `json:"widthPx" msgpack:"widthPx"`
	HeightPx int      `json:"heightPx" msgpack:"heightPx"`
	Sampling Sampling `json:"sampling" msgpack:"sampling"`
}

// Result is the full layout of one computation.
type Result struct {
	Motif           string          `json:"motif" msgpack:"motif"`
	Viewport        Viewport        `json:"viewport" msgpack:"viewport"`
	TotalWidthCm    float64         `json:"totalWidthCm" msgpack:"totalWidthCm"`
	VerticalScale   float64         `json:"verticalScale" msgpack:"verticalScale"`
	HorizontalScale float64         `json:"horizontalScale" msgpack:"horizontalScale"`
	Scale           float64         `json:"scale" msgpack:"scale"`
	Mode            Mode            `json:"mode" msgpack:"mode"`
	CanvasWidthPx   int             `json:"canvasWidthPx" msgpack:"canvasWidthPx"`
	CanvasHeightPx  int             `json:"canvasHeightPx" msgpack:"canvasHeightPx"`
	TileWidthPx     int             `json:"tileWidthPx,omitempty" msgpack:"tileWidthPx,omitempty"`
	TileCount       int             `json:"tileCount,omitempty" msgpack:"tileCount,omitempty"`
	Tiles           []Tile          `json:"tiles,omitempty" msgpack:"tiles,omitempty"`
	Plates          []PlateGeometry `json:"plates" msgpack:"plates"`
}

// Compute lays out plates left to right over the viewport.
//
// The vertical scale maps cfg.MaxHeightCm onto the viewport height. The
// effective scale is the smaller of that and the scale that fits the total
// plate width into the viewport width; it drives every horizontal quantity,
// while plate heights keep the vertical scale.
//
// Degenerate inputs are floored instead of rejected: an empty or zero-width
// plate list counts as 1 cm, viewport sides below 1 px count as 1 px and
// pixel sizes never drop below 1.
func Compute(plates []models.Plate, motif string, vp Viewport, cfg Config) Result {
	vp = Viewport{
		WidthPx:  math.Max(1, finiteOr(vp.WidthPx, 1)),
		HeightPx: math.Max(1, finiteOr(vp.HeightPx, 1)),
	}

	cfg = cfg.withDefaults()

	total := TotalWidthCm(plates)
	if total <= 0 {
		total = 1
	}

	vScale := vp.HeightPx / cfg.MaxHeightCm
	hScale := vp.WidthPx / total
	scale := math.Min(vScale, hScale)

	res := Result{
		Motif:           motif,
		Viewport:        vp,
		TotalWidthCm:    total,
		VerticalScale:   vScale,
		HorizontalScale: hScale,
		Scale:           scale,
		CanvasWidthPx:   atLeastOne(roundPx(total * scale)),
		CanvasHeightPx:  atLeastOne(roundPx(vp.HeightPx)),
		Plates:          make([]PlateGeometry, 0, len(plates)),
	}

	if NeedsTiling(total, cfg) {
		res.Mode = ModeTiled
		res.TileWidthPx = atLeastOne(roundPx(cfg.BaseMotifWidthCm * scale))
		res.TileCount = tileCount(res.CanvasWidthPx, res.TileWidthPx)
		res.Tiles = buildTiles(res.TileCount, res.TileWidthPx)
	} else {
		res.Mode = ModeSlice
	}

	var offsetCm float64
	for i, p := range plates {
		left := roundPx(offsetCm * scale)
		g := PlateGeometry{
			PlateID:  p.ID,
			Index:    i,
			LeftPx:   left,
			WidthPx:  atLeastOne(roundPx(p.WidthCm * scale)),
			HeightPx: atLeastOne(roundPx(p.HeightCm * vScale)),
			Sampling: Sampling{
				Mode:           res.Mode,
				OffsetXPx:      -left,
				CanvasWidthPx:  res.CanvasWidthPx,
				CanvasHeightPx: res.CanvasHeightPx,
			},
		}
		if res.Mode == ModeTiled {
			g.Sampling.Tiles = buildTiles(res.TileCount, res.TileWidthPx)
		}
		res.Plates = append(res.Plates, g)
		offsetCm += p.WidthCm
	}

	return res
}

// TotalWidthCm sums the widths of all plates.
func TotalWidthCm(plates []models.Plate) float64 {
	var sum float64
	for _, p := range plates {
		sum += p.WidthCm
	}
	return sum
}

// NeedsTiling reports whether a row of totalWidthCm exceeds one motif copy.
func NeedsTiling(totalWidthCm float64, cfg Config) bool {
	return totalWidthCm > cfg.BaseMotifWidthCm
}

func tileCount(canvasPx, tilePx int) int {
	n := int(math.Ceil(float64(canvasPx) / float64(tilePx)))
	if n < 1 {
		return 1
	}
	return n
}

func buildTiles(count, widthPx int) []Tile {
	tiles := make([]Tile, count)
	for i := range tiles {
		tiles[i] = Tile{
			Index:    i,
			LeftPx:   i * widthPx,
			WidthPx:  widthPx,
			Mirrored: i%2 == 1,
		}
	}
	return tiles
}

// roundPx rounds half up, matching the browser's Math.round for positive
// and negative values alike.
func roundPx(v float64) int {
	return int(math.Floor(v + 0.5))
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
