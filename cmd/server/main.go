package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/api"
	"github.com/rueckwand/configurator/internal/cache"
	"github.com/rueckwand/configurator/internal/config"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/realtime"
	"github.com/rueckwand/configurator/internal/render"
	"github.com/rueckwand/configurator/internal/session"
	"github.com/rueckwand/configurator/internal/storage"
	"github.com/rueckwand/configurator/internal/upload"
	"github.com/rueckwand/configurator/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "configurator.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// configPath returns $CONFIG_PATH or the config file next to the executable.
func configPath() (string, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), configFileName), nil
}

func run(ctx context.Context) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           level,
	})
	api.SetErrorDetails(level == log.DebugLevel)

	defaults := cfg.PlateDefaults()

	// Persistence
	var store persistence.Store = persistence.NullStore{}
	if cfg.Storage.EnablePersistence {
		duck, err := persistence.OpenDuckStore(cfg.Storage.DatabasePath, defaults, logger.WithPrefix("store"))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		store = duck
	}
	defer store.Close()

	// Render cache
	renderCache, err := cache.Open(ctx, cache.Options{
		Backend:   cfg.Cache.Backend,
		Directory: cfg.Cache.Directory,
		RedisAddr: cfg.Cache.RedisAddr,
	})
	if err != nil {
		logger.Warn("render cache unavailable, continuing without", "backend", cfg.Cache.Backend, "err", err)
		renderCache = cache.NewNullCache()
	}
	defer renderCache.Close()
	cacheTTL := time.Duration(cfg.Cache.TTLMinutes) * time.Minute

	// Motifs
	motifs, err := storage.NewLocalStore(cfg.Storage.MotifsDirectory)
	if err != nil {
		return fmt.Errorf("failed to initialize motif storage: %w", err)
	}
	loader := render.NewMotifLoader(motifs, renderCache, render.LoaderOptions{
		Timeout:  time.Duration(cfg.Motif.FetchTimeoutSeconds) * time.Second,
		MaxBytes: cfg.Motif.MaxBytes,
		CacheTTL: cacheTTL,
	}, logger.WithPrefix("motif"))

	background, err := render.ParseHexColor(cfg.Export.Background)
	if err != nil {
		return fmt.Errorf("export.background: %w", err)
	}
	exporter := render.NewExporter(loader, renderCache, render.ExportOptions{
		Layout:        cfg.Layout,
		Background:    background,
		PixelRatio:    cfg.Export.PixelRatio,
		MaxPixelRatio: cfg.Export.MaxPixelRatio,
		CacheTTL:      cacheTTL,
	}, logger.WithPrefix("export"))

	uploads := upload.NewManager(motifs, upload.Options{
		MaxBytes:       cfg.Motif.MaxBytes,
		MaxDimensionPx: cfg.Motif.MaxDimensionPx,
	}, logger.WithPrefix("upload"))

	// Sessions
	sessions := session.NewManager(store, realtime.NewBroadcaster(), logger.WithPrefix("session"), session.Options{
		Defaults:    defaults,
		MinPlates:   cfg.Limits.MinPlates,
		MaxSessions: cfg.Sessions.MaxSessions,
	})

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Sessions.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.CleanupOldSessions(time.Duration(cfg.Sessions.TimeoutMinutes) * time.Minute); n > 0 {
					logger.Info("unloaded idle sessions", "count", n, "active", sessions.Len())
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, cfg.Server, logger.WithPrefix("http"))
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Sessions:       sessions,
		Motifs:         motifs,
		Ingest:         uploads,
		Exporter:       exporter,
		Layout:         cfg.Layout,
		ExportFileName: cfg.Export.FileName,
		Logger:         logger,
		Version:        Version,
	}))

	// Register embedded frontend if available
	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", "err", err)
			embeddedMode = false
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Rückwand Configurator Server                    ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Frontend:   %-45v║\n", embeddedMode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", path)
	fmt.Printf("║  Listen:    http://%-39s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("║  Cache:     %-46s║\n", cfg.Cache.Backend)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
