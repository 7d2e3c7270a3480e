package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/persistence"
	"gopkg.in/yaml.v3"
)

// errNoPlates is returned when a file holds nothing usable as plates.
var errNoPlates = errors.New("no usable plates in file")

// readPlatesFile loads path ("-" for stdin) and repairs it field by field
// through the storage decoder.
func readPlatesFile(path string, d persistence.Defaults) (models.Configuration, persistence.Report, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.Configuration{}, persistence.Report{}, fmt.Errorf("read plates file: %w", err)
	}
	return parsePlates(data, d)
}

// parsePlates accepts the plates file format or a browser storage dump.
func parsePlates(data []byte, d persistence.Defaults) (models.Configuration, persistence.Report, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return models.Configuration{}, persistence.Report{}, fmt.Errorf("parse plates file: %w", err)
	}

	var current, legacy []byte
	switch v := doc.(type) {
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return models.Configuration{}, persistence.Report{}, err
		}
		current = raw

	case map[string]any:
		if s, ok := v[persistence.StorageKeyPlates].(string); ok {
			current = []byte(s)
		}
		if s, ok := v[persistence.StorageKeyLegacy].(string); ok {
			legacy = []byte(s)
		}
		if current == nil && legacy == nil {
			raw, err := platesEntries(v)
			if err != nil {
				return models.Configuration{}, persistence.Report{}, err
			}
			current = raw
		}
	}

	// Anything unusable ends up as the defaults, reported as such.
	cfg, rep := persistence.Decode(current, legacy, d)
	if rep.Source == persistence.SourceDefaults {
		return cfg, rep, errNoPlates
	}
	return cfg, rep, nil
}

// platesEntries turns {motif, plates} into the stored array format, where
// every entry carries the motif. Plates without an id are numbered.
func platesEntries(doc map[string]any) ([]byte, error) {
	list, ok := doc["plates"].([]any)
	if !ok {
		return nil, nil
	}
	motif, _ := doc["motif"].(string)

	entries := make([]any, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			entries = append(entries, item)
			continue
		}
		if _, set := entry["id"]; !set {
			entry["id"] = fmt.Sprintf("plate-%d", i+1)
		}
		if _, set := entry["motifUrl"]; !set && motif != "" {
			entry["motifUrl"] = motif
		}
		entries = append(entries, entry)
	}
	return json.Marshal(entries)
}
