package persistence

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/units"
)

// Storage keys used by the browser app. The legacy key holds a single plate
// object written by the first version of the configurator.
const (
	StorageKeyPlates = "plates-step3@1"
	StorageKeyLegacy = "plate-gen-step1@2"
)

// Report sources.
const (
	SourceCurrent  = "current"
	SourceLegacy   = "legacy"
	SourceDefaults = "defaults"
)

// Defaults supplies the fallback values used while decoding stored data.
type Defaults struct {
	Motif     string
	Plate     models.Plate // first plate of a fresh configuration
	NewPlate  models.Plate // plate appended by "add"
	Width     units.Bounds
	Height    units.Bounds
	MaxPlates int
}

// StandardDefaults returns the browser app's defaults: a 250x128 plate, new
// plates of 30x30 and the given motif.
func StandardDefaults(motif string) Defaults {
	return Defaults{
		Motif:     motif,
		Plate:     models.Plate{WidthCm: 250, HeightCm: 128},
		NewPlate:  models.Plate{WidthCm: 30, HeightCm: 30},
		Width:     units.Bounds{MinCm: 20, MaxCm: 300},
		Height:    units.Bounds{MinCm: 30, MaxCm: 128},
		MaxPlates: 10,
	}
}

// Initial returns the configuration a brand-new session starts with.
func (d Defaults) Initial() models.Configuration {
	return models.Configuration{
		Plates: []models.Plate{d.withID(d.Plate), d.withID(d.NewPlate)},
		Motif:  d.Motif,
	}
}

// Single returns the one-plate configuration used by reset.
func (d Defaults) Single() models.Configuration {
	return models.Configuration{
		Plates: []models.Plate{d.withID(d.Plate)},
		Motif:  d.Motif,
	}
}

func (d Defaults) withID(p models.Plate) models.Plate {
	p.ID = uuid.NewString()
	return p
}

// Substitution records one field replaced during decoding.
type Substitution struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Report describes where a decoded configuration came from and what had to
// be repaired on the way.
type Report struct {
	Source        string         `json:"source"`
	Substitutions []Substitution `json:"substitutions,omitempty"`
}

func (r *Report) add(index int, field, format string, args ...any) {
	r.Substitutions = append(r.Substitutions, Substitution{
		Index:  index,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	})
}

// storedPlate is the browser's on-disk plate shape.
type storedPlate struct {
	ID       string  `json:"id"`
	WidthCm  float64 `json:"widthCm"`
	HeightCm float64 `json:"heightCm"`
	MotifURL string  `json:"motifUrl"`
}

// Encode serializes a configuration in the browser's current storage format:
// a JSON array of plates, each carrying the shared motif.
func Encode(cfg models.Configuration) ([]byte, error) {
	out := make([]storedPlate, len(cfg.Plates))
	for i, p := range cfg.Plates {
		out[i] = storedPlate{ID: p.ID, WidthCm: p.WidthCm, HeightCm: p.HeightCm, MotifURL: cfg.Motif}
	}
	return json.Marshal(out)
}

// Decode turns raw stored values into a valid configuration. The current
// value wins when it holds at least one usable plate, then the legacy single
// plate, then the defaults. Each field falls back on its own:
//   - missing or duplicate ids get a fresh id
//   - non-numeric dimensions take the new-plate default
//   - finite dimensions are clamped into the configured bounds
//   - a motif is kept only with an http, data: or motif: prefix
//   - plates beyond MaxPlates are dropped
func Decode(current, legacy []byte, d Defaults) (models.Configuration, Report) {
	if cfg, rep, ok := decodeCurrent(current, d); ok {
		return cfg, rep
	}
	if cfg, rep, ok := decodeLegacy(legacy, d); ok {
		return cfg, rep
	}
	return d.Initial(), Report{Source: SourceDefaults}
}

func decodeCurrent(raw []byte, d Defaults) (models.Configuration, Report, bool) {
	rep := Report{Source: SourceCurrent}
	if len(raw) == 0 {
		return models.Configuration{}, rep, false
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return models.Configuration{}, rep, false
	}

	cfg := models.Configuration{Motif: d.Motif}
	seen := make(map[string]bool, len(entries))
	motifSet := false

	for i, entry := range entries {
		var fields map[string]any
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			rep.add(i, "plate", "not an object, dropped")
			continue
		}
		if len(cfg.Plates) >= d.MaxPlates {
			rep.add(i, "plate", "more than %d plates, dropped", d.MaxPlates)
			continue
		}

		p := models.Plate{
			ID:       stringField(fields, "id"),
			WidthCm:  dimension(fields, "widthCm", d.NewPlate.WidthCm, d.Width, i, &rep),
			HeightCm: dimension(fields, "heightCm", d.NewPlate.HeightCm, d.Height, i, &rep),
		}
		if p.ID == "" || seen[p.ID] {
			rep.add(i, "id", "missing or duplicate, regenerated")
			p.ID = uuid.NewString()
		}
		seen[p.ID] = true

		if !motifSet {
			cfg.Motif = motif(fields, d.Motif, i, &rep)
			motifSet = true
		}
		cfg.Plates = append(cfg.Plates, p)
	}

	if len(cfg.Plates) == 0 {
		return models.Configuration{}, rep, false
	}
	return cfg, rep, true
}

func decodeLegacy(raw []byte, d Defaults) (models.Configuration, Report, bool) {
	rep := Report{Source: SourceLegacy}
	if len(raw) == 0 {
		return models.Configuration{}, rep, false
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return models.Configuration{}, rep, false
	}

	p := models.Plate{
		ID:       uuid.NewString(),
		WidthCm:  dimension(fields, "widthCm", d.Plate.WidthCm, d.Width, 0, &rep),
		HeightCm: dimension(fields, "heightCm", d.Plate.HeightCm, d.Height, 0, &rep),
	}
	return models.Configuration{
		Plates: []models.Plate{p},
		Motif:  motif(fields, d.Motif, 0, &rep),
	}, rep, true
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func dimension(fields map[string]any, key string, fallback float64, b units.Bounds, index int, rep *Report) float64 {
	var v float64
	switch raw := fields[key].(type) {
	case float64:
		v = raw
	case string:
		n, err := units.ParseLocaleNumber(raw)
		if err != nil {
			rep.add(index, key, "not a number, using %s", units.FormatNumber(fallback))
			return fallback
		}
		v = n
	default:
		rep.add(index, key, "missing, using %s", units.FormatNumber(fallback))
		return fallback
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		rep.add(index, key, "not finite, using %s", units.FormatNumber(fallback))
		return fallback
	}
	if !b.Contains(v) {
		clamped := b.Clamp(v)
		rep.add(index, key, "%s outside %s, clamped to %s", units.FormatNumber(v), b.Range(units.Centimeter), units.FormatNumber(clamped))
		return clamped
	}
	return v
}

func motif(fields map[string]any, fallback string, index int, rep *Report) string {
	s := stringField(fields, "motifUrl")
	if ValidMotifRef(s) {
		return s
	}
	if s != "" {
		rep.add(index, "motifUrl", "unsupported reference, using default motif")
	}
	return fallback
}

// ValidMotifRef reports whether ref looks like a motif the renderer can
// resolve: an http(s) URL, an embedded data: image or an uploaded motif:<id>.
func ValidMotifRef(ref string) bool {
	return strings.HasPrefix(ref, "http") ||
		strings.HasPrefix(ref, "data:") ||
		strings.HasPrefix(ref, MotifRefPrefix)
}

// MotifRefPrefix marks references to motifs uploaded to this server.
const MotifRefPrefix = "motif:"
