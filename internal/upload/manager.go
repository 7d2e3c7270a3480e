// Package upload ingests user-supplied motif images: it enforces the size
// limit, decodes, downscales oversized images and stores a normalized copy.
package upload

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/render"
	"github.com/rueckwand/configurator/internal/storage"
)

// ErrTooLarge is returned when an upload exceeds the byte limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Options configures a Manager.
type Options struct {
	MaxBytes       int64
	MaxDimensionPx int
	JPEGQuality    int
}

// Result is a stored motif and the reference plates use to point at it.
type Result struct {
	File *models.FileInfo `json:"file"`
	Ref  string           `json:"ref"`
}

// Manager handles motif ingest.
type Manager struct {
	store  storage.Store
	opts   Options
	logger *log.Logger
}

// NewManager creates a new ingest manager.
func NewManager(store storage.Store, opts Options, logger *log.Logger) *Manager {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.MaxDimensionPx <= 0 {
		opts.MaxDimensionPx = 4096
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{store: store, opts: opts, logger: logger}
}

// Ingest reads an image from r and stores a normalized copy. Gzip-wrapped
// uploads are unwrapped first.
func (m *Manager) Ingest(name string, r io.Reader) (*Result, error) {
	data, err := m.readLimited(r)
	if err != nil {
		return nil, err
	}

	if isGzip(data) {
		data, err = m.gunzip(data)
		if err != nil {
			return nil, err
		}
	}

	img, err := render.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()

	if maxSide := m.opts.MaxDimensionPx; srcW > maxSide || srcH > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	format, contentType, ext := imaging.PNG, "image/png", ".png"
	var encodeOpts []imaging.EncodeOption
	if isOpaque(img) {
		format, contentType, ext = imaging.JPEG, "image/jpeg", ".jpg"
		encodeOpts = []imaging.EncodeOption{imaging.JPEGQuality(m.opts.JPEGQuality)}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, encodeOpts...); err != nil {
		return nil, fmt.Errorf("encoding motif: %w", err)
	}

	info, err := m.store.SaveBytes(models.FileInfo{
		Name:        normalizeName(name, ext),
		ContentType: contentType,
		WidthPx:     img.Bounds().Dx(),
		HeightPx:    img.Bounds().Dy(),
	}, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("storing motif: %w", err)
	}

	m.logger.Info("motif ingested", "id", info.ID, "name", info.Name,
		"src", fmt.Sprintf("%dx%d", srcW, srcH), "stored", fmt.Sprintf("%dx%d", info.WidthPx, info.HeightPx),
		"bytes", info.Size)

	return &Result{File: info, Ref: render.PrefixMotif + info.ID}, nil
}

// IngestDataURI stores the image embedded in a data: URI, as produced by a
// browser FileReader.
func (m *Manager) IngestDataURI(name, uri string) (*Result, error) {
	data, _, err := render.ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	return m.Ingest(name, bytes.NewReader(data))
}

func (m *Manager) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(r), m.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > m.opts.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, m.opts.MaxBytes)
	}
	return data, nil
}

func (m *Manager) gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompressing upload: %w", err)
	}
	defer zr.Close()
	out, err := m.readLimited(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// isOpaque reports whether every pixel is fully opaque. Images that do not
// say are treated as having transparency.
func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

func normalizeName(name, ext string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "motif"
	}
	return base + ext
}
