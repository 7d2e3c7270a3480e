package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/rueckwand/configurator/internal/cache"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/models"
)

// MaxExportSidePx bounds each side of an exported image.
const MaxExportSidePx = 8192

// ErrExportTooLarge is returned when viewport x pixel ratio exceeds MaxExportSidePx.
var ErrExportTooLarge = errors.New("export dimensions too large")

// ExportOptions configures an Exporter.
type ExportOptions struct {
	Layout        layout.Config
	Background    color.Color
	PixelRatio    float64
	MaxPixelRatio float64
	CacheTTL      time.Duration
}

// Exporter renders plate configurations to PNG.
type Exporter struct {
	motifs MotifSource
	cache  cache.Cache
	opts   ExportOptions
	logger *log.Logger
}

// NewExporter creates an exporter. c may be nil to disable caching.
func NewExporter(motifs MotifSource, c cache.Cache, opts ExportOptions, logger *log.Logger) *Exporter {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.Background == nil {
		opts.Background = color.White
	}
	if opts.PixelRatio < 1 {
		opts.PixelRatio = 2
	}
	if opts.MaxPixelRatio < opts.PixelRatio {
		opts.MaxPixelRatio = opts.PixelRatio
	}
	return &Exporter{motifs: motifs, cache: c, opts: opts, logger: logger}
}

// PixelRatio resolves a requested ratio: non-positive or non-finite values
// take the default, others are clamped to [1, MaxPixelRatio].
func (e *Exporter) PixelRatio(requested float64) float64 {
	if !(requested > 0) || math.IsInf(requested, 0) {
		return e.opts.PixelRatio
	}
	return math.Min(math.Max(requested, 1), e.opts.MaxPixelRatio)
}

// ExportPNG lays plates out at viewport x ratio and returns the encoded PNG.
func (e *Exporter) ExportPNG(ctx context.Context, plates []models.Plate, motif string, vp layout.Viewport, ratio float64) ([]byte, error) {
	ratio = e.PixelRatio(ratio)
	scaled := layout.Viewport{
		WidthPx:  math.Round(math.Max(1, vp.WidthPx) * ratio),
		HeightPx: math.Round(math.Max(1, vp.HeightPx) * ratio),
	}
	if math.IsNaN(scaled.WidthPx) || math.IsNaN(scaled.HeightPx) ||
		scaled.WidthPx > MaxExportSidePx || scaled.HeightPx > MaxExportSidePx {
		return nil, fmt.Errorf("%w: %.0fx%.0f px, limit %d", ErrExportTooLarge, scaled.WidthPx, scaled.HeightPx, MaxExportSidePx)
	}

	r, g, b, a := e.opts.Background.RGBA()
	key := cache.Key(cache.NamespaceExport, plates, motif, scaled, e.opts.Layout, []uint32{r, g, b, a})
	if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		e.logger.Debug("export cache hit", "key", cache.ShortKey(key))
		return data, nil
	}

	img, err := e.motifs.Load(ctx, motif)
	if err != nil {
		return nil, fmt.Errorf("load motif: %w", err)
	}

	start := time.Now()
	res := layout.Compute(plates, motif, scaled, e.opts.Layout)
	out := Rasterize(res, img, Options{Background: e.opts.Background, Filter: imaging.Lanczos})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	if err := e.cache.Set(ctx, key, buf.Bytes(), e.opts.CacheTTL); err != nil {
		e.logger.Warn("export cache write failed", "err", err)
	}
	e.logger.Debug("exported preview", "plates", len(plates), "mode", res.Mode,
		"width", res.Viewport.WidthPx, "height", res.Viewport.HeightPx, "took", time.Since(start))
	return buf.Bytes(), nil
}
