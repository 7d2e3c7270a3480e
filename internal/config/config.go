// Package config provides YAML-based configuration for the configurator server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/units"
	"gopkg.in/yaml.v3"
)

// DefaultMotifURL is the stock kitchen motif used until a user picks one.
const DefaultMotifURL = "https://rueckwand24.com/cdn/shop/files/Kuechenrueckwand-Kuechenrueckwand-Gruene-frische-Kraeuter-KR-000018-HB.jpg?v=1695288356&width=1200"

// AppConfig represents the root configuration document.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Layout   layout.Config  `yaml:"layout"`
	Limits   LimitsConfig   `yaml:"limits"`
	Motif    MotifConfig    `yaml:"motif"`
	Export   ExportConfig   `yaml:"export"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit"`
	EnableCompression    bool   `yaml:"enable_compression"`
	CompressionLevel     int    `yaml:"compression_level"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// StorageConfig contains file and database locations.
type StorageConfig struct {
	DataDirectory     string `yaml:"data_directory"`
	MotifsDirectory   string `yaml:"motifs_directory"`
	DatabasePath      string `yaml:"database_path"`
	EnablePersistence bool   `yaml:"enable_persistence"`
}

// SessionsConfig bounds the in-memory plate store.
type SessionsConfig struct {
	MaxSessions            int `yaml:"max_sessions"`
	TimeoutMinutes         int `yaml:"timeout_minutes"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
}

// LimitsConfig holds the validation bounds applied before plates reach the
// layout engine.
type LimitsConfig struct {
	Width     units.Bounds `yaml:"width"`
	Height    units.Bounds `yaml:"height"`
	MinPlates int          `yaml:"min_plates"`
	MaxPlates int          `yaml:"max_plates"`
}

// MotifConfig controls motif resolution and uploads.
type MotifConfig struct {
	DefaultURL          string `yaml:"default_url"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	MaxBytes            int64  `yaml:"max_bytes"`
	MaxDimensionPx      int    `yaml:"max_dimension_px"`
}

// ExportConfig controls PNG export.
type ExportConfig struct {
	PixelRatio    float64 `yaml:"pixel_ratio"`
	MaxPixelRatio float64 `yaml:"max_pixel_ratio"`
	Background    string  `yaml:"background"`
	FileName      string  `yaml:"file_name"`
}

// CacheConfig selects the render cache backend: none, file or redis.
type CacheConfig struct {
	Backend    string `yaml:"backend"`
	Directory  string `yaml:"directory"`
	RedisAddr  string `yaml:"redis_addr"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         60,
			IdleTimeout:          120,
			BodyLimit:            "25M",
			EnableCompression:    true,
			CompressionLevel:     5,
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			MotifsDirectory:   "./data/motifs",
			DatabasePath:      "./data/configurator.duckdb",
			EnablePersistence: true,
		},
		Sessions: SessionsConfig{
			MaxSessions:            1000,
			TimeoutMinutes:         24 * 60,
			CleanupIntervalMinutes: 15,
		},
		Layout: layout.DefaultConfig(),
		Limits: LimitsConfig{
			Width:     units.Bounds{MinCm: 20, MaxCm: 300},
			Height:    units.Bounds{MinCm: 30, MaxCm: 128},
			MinPlates: 1,
			MaxPlates: 10,
		},
		Motif: MotifConfig{
			DefaultURL:          DefaultMotifURL,
			FetchTimeoutSeconds: 15,
			MaxBytes:            20 << 20,
			MaxDimensionPx:      4096,
		},
		Export: ExportConfig{
			PixelRatio:    2,
			MaxPixelRatio: 4,
			Background:    "#ffffff",
			FileName:      "Rueckwand-Preview.png",
		},
		Cache: CacheConfig{
			Backend:    "file",
			Directory:  "./data/cache",
			RedisAddr:  "localhost:6379",
			TTLMinutes: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with defaults. Keys absent from the file keep their default values.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Rückwand configurator configuration\n# This file is auto-generated on first run\n\n")
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the layout engine and plate store cannot work with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Layout.MaxHeightCm <= 0 {
		errs = append(errs, errors.New("layout.max_height_cm must be positive"))
	}
	if c.Layout.BaseMotifWidthCm <= 0 {
		errs = append(errs, errors.New("layout.base_motif_width_cm must be positive"))
	}
	if c.Limits.Width.MinCm <= 0 || c.Limits.Width.MinCm > c.Limits.Width.MaxCm {
		errs = append(errs, errors.New("limits.width must satisfy 0 < min <= max"))
	}
	if c.Limits.Height.MinCm <= 0 || c.Limits.Height.MinCm > c.Limits.Height.MaxCm {
		errs = append(errs, errors.New("limits.height must satisfy 0 < min <= max"))
	}
	if c.Limits.MinPlates < 1 || c.Limits.MinPlates > c.Limits.MaxPlates {
		errs = append(errs, errors.New("limits must satisfy 1 <= min_plates <= max_plates"))
	}
	if c.Sessions.CleanupIntervalMinutes <= 0 || c.Sessions.TimeoutMinutes <= 0 {
		errs = append(errs, errors.New("sessions timeout and cleanup interval must be positive"))
	}
	if c.Export.PixelRatio < 1 {
		errs = append(errs, errors.New("export.pixel_ratio must be at least 1"))
	}
	switch c.Cache.Backend {
	case "", "none", "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of none, file, redis", c.Cache.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.MotifsDirectory = filepath.Join(dataDir, "motifs")
		c.Storage.DatabasePath = filepath.Join(dataDir, "configurator.duckdb")
		c.Cache.Directory = filepath.Join(dataDir, "cache")
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.Backend = "redis"
		c.Cache.RedisAddr = addr
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
}

// resolvePaths converts relative paths to absolute based on config file location.
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.MotifsDirectory,
		&c.Storage.DatabasePath,
		&c.Cache.Directory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// PlateDefaults returns the plate defaults and limits used by the plate
// store and the storage decoder.
func (c *AppConfig) PlateDefaults() persistence.Defaults {
	d := persistence.StandardDefaults(c.Motif.DefaultURL)
	d.Width = c.Limits.Width
	d.Height = c.Limits.Height
	d.MaxPlates = c.Limits.MaxPlates
	d.Plate.WidthCm = d.Width.Clamp(d.Plate.WidthCm)
	d.Plate.HeightCm = d.Height.Clamp(d.Plate.HeightCm)
	d.NewPlate.WidthCm = d.Width.Clamp(d.NewPlate.WidthCm)
	d.NewPlate.HeightCm = d.Height.Clamp(d.NewPlate.HeightCm)
	return d
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.MotifsDirectory,
		filepath.Dir(c.Storage.DatabasePath),
	}
	if c.Cache.Backend == "file" {
		dirs = append(dirs, c.Cache.Directory)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
