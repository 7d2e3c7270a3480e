package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rueckwand/configurator/internal/cache"
	"github.com/rueckwand/configurator/internal/config"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/render"
	"github.com/rueckwand/configurator/internal/storage"
	"github.com/spf13/cobra"
)

type renderOpts struct {
	output    string
	width     float64
	height    float64
	ratio     float64
	motifFile string
	noCache   bool
}

func newRenderCmd(a *app) *cobra.Command {
	opts := renderOpts{width: defaultWidth, height: defaultHeight}

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render the preview of a plates file to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), a, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output PNG path (default: export file name from config)")
	cmd.Flags().Float64Var(&opts.width, "width", opts.width, "viewport width in pixels")
	cmd.Flags().Float64Var(&opts.height, "height", opts.height, "viewport height in pixels")
	cmd.Flags().Float64Var(&opts.ratio, "ratio", 0, "pixel ratio (default from config)")
	cmd.Flags().StringVar(&opts.motifFile, "motif-file", "", "local image used instead of the file's motif")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the render cache")
	return cmd
}

func runRender(ctx context.Context, a *app, path string, opts renderOpts) error {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	cfg, rep, err := readPlatesFile(path, a.cfg.PlateDefaults())
	if err != nil {
		return err
	}
	logSubstitutions(logger, rep)

	// Exports are cached by motif reference, which a local file does not change.
	c := cache.NewNullCache()
	if !opts.noCache && opts.motifFile == "" {
		c, err = cache.Open(ctx, cache.Options{
			Backend:   a.cfg.Cache.Backend,
			Directory: a.cfg.Cache.Directory,
			RedisAddr: a.cfg.Cache.RedisAddr,
		})
		if err != nil {
			logger.Warn("render cache unavailable, continuing without", "backend", a.cfg.Cache.Backend, "err", err)
			c = cache.NewNullCache()
		}
	}
	defer c.Close()

	source, err := motifSource(a.cfg, c, opts.motifFile, logger)
	if err != nil {
		return err
	}

	bg, err := render.ParseHexColor(a.cfg.Export.Background)
	if err != nil {
		return err
	}
	exporter := render.NewExporter(source, c, render.ExportOptions{
		Layout:        a.cfg.Layout,
		Background:    bg,
		PixelRatio:    a.cfg.Export.PixelRatio,
		MaxPixelRatio: a.cfg.Export.MaxPixelRatio,
		CacheTTL:      time.Duration(a.cfg.Cache.TTLMinutes) * time.Minute,
	}, logger)

	data, err := exporter.ExportPNG(ctx, cfg.Plates, cfg.Motif, layout.Viewport{WidthPx: opts.width, HeightPx: opts.height}, opts.ratio)
	if err != nil {
		return err
	}

	out := opts.output
	if out == "" {
		out = a.cfg.Export.FileName
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	prog.done(fmt.Sprintf("Rendered %d plate(s) to %s", len(cfg.Plates), out))
	return nil
}

// motifSource resolves motifs from a local file when one is given, else from
// the plates file's reference (stored motifs are looked up in the configured
// motif directory when it exists).
func motifSource(cfg *config.AppConfig, c cache.Cache, motifFile string, logger *log.Logger) (render.MotifSource, error) {
	if motifFile != "" {
		f, err := os.Open(motifFile)
		if err != nil {
			return nil, fmt.Errorf("open motif file: %w", err)
		}
		defer f.Close()
		img, err := render.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", motifFile, err)
		}
		return fixedMotif{img}, nil
	}

	var store storage.Store
	if info, err := os.Stat(cfg.Storage.MotifsDirectory); err == nil && info.IsDir() {
		local, err := storage.NewLocalStore(cfg.Storage.MotifsDirectory)
		if err != nil {
			return nil, err
		}
		store = local
		logger.Debug("using motif store", "dir", cfg.Storage.MotifsDirectory)
	}
	return render.NewMotifLoader(store, c, render.LoaderOptions{
		Timeout:  time.Duration(cfg.Motif.FetchTimeoutSeconds) * time.Second,
		MaxBytes: cfg.Motif.MaxBytes,
		CacheTTL: time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
	}, logger), nil
}

// fixedMotif answers every reference with the same image.
type fixedMotif struct{ img image.Image }

func (m fixedMotif) Load(context.Context, string) (image.Image, error) { return m.img, nil }
