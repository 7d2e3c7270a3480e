package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rueckwand/configurator/internal/config"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const samplePlates = `motif: https://example.com/kitchen.jpg
plates:
  - widthCm: 250
    heightCm: 128
  - widthCm: "30,5"
    heightCm: 30
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	root := NewRootCommand(&out, &logs)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), logs.String(), err
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.0.0", "abc123", "2024-01-01")
	defer SetVersion("", "", "")

	if version != "1.0.0" {
		t.Errorf("version = %q, want %q", version, "1.0.0")
	}
	if commit != "abc123" {
		t.Errorf("commit = %q, want %q", commit, "abc123")
	}
}

func TestParsePlates(t *testing.T) {
	d := persistence.StandardDefaults("https://example.com/default.jpg")

	tests := []struct {
		name       string
		input      string
		wantSource string
		wantWidths []float64
		wantMotif  string
		wantErr    error
	}{
		{
			name:       "plates file",
			input:      samplePlates,
			wantSource: persistence.SourceCurrent,
			wantWidths: []float64{250, 30.5},
			wantMotif:  "https://example.com/kitchen.jpg",
		},
		{
			name:       "json plates file without motif",
			input:      `{"plates":[{"widthCm":100,"heightCm":60}]}`,
			wantSource: persistence.SourceCurrent,
			wantWidths: []float64{100},
			wantMotif:  "https://example.com/default.jpg",
		},
		{
			name:       "storage array",
			input:      `[{"id":"x","widthCm":80,"heightCm":40,"motifUrl":"motif:abc"}]`,
			wantSource: persistence.SourceCurrent,
			wantWidths: []float64{80},
			wantMotif:  "motif:abc",
		},
		{
			name:       "storage dump with legacy key",
			input:      `{"plate-gen-step1@2":"{\"widthCm\":120,\"heightCm\":90}"}`,
			wantSource: persistence.SourceLegacy,
			wantWidths: []float64{120},
			wantMotif:  "https://example.com/default.jpg",
		},
		{
			name:    "no plates",
			input:   `motif: https://example.com/x.jpg`,
			wantErr: errNoPlates,
		},
		{
			name:    "scalar",
			input:   `42`,
			wantErr: errNoPlates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, rep, err := parsePlates([]byte(tt.input), d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSource, rep.Source)
			assert.Equal(t, tt.wantMotif, cfg.Motif)
			require.Len(t, cfg.Plates, len(tt.wantWidths))
			for i, w := range tt.wantWidths {
				assert.Equal(t, w, cfg.Plates[i].WidthCm)
			}
		})
	}
}

func TestParsePlates_NumbersPlatesWithoutID(t *testing.T) {
	cfg, rep, err := parsePlates([]byte(samplePlates), persistence.StandardDefaults(config.DefaultMotifURL))
	require.NoError(t, err)
	assert.Empty(t, rep.Substitutions)
	assert.Equal(t, "plate-1", cfg.Plates[0].ID)
	assert.Equal(t, "plate-2", cfg.Plates[1].ID)
}

func TestLayoutCommand(t *testing.T) {
	path := writeFile(t, "plates.yaml", samplePlates)

	out, _, err := run(t, "layout", path, "--width", "1000", "--height", "400")
	require.NoError(t, err)

	var res layout.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, layout.ModeSlice, res.Mode)
	require.Len(t, res.Plates, 2)
	assert.Equal(t, 400, res.Plates[0].HeightPx)

	out, _, err = run(t, "layout", path, "--format", "yaml")
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &generic))
	assert.Equal(t, "slice", generic["mode"])
	assert.Contains(t, generic, "totalWidthCm")

	_, _, err = run(t, "layout", path, "--format", "xml")
	assert.Error(t, err)
}

func TestLayoutCommand_Tiled(t *testing.T) {
	path := writeFile(t, "wide.json", `{"plates":[{"widthCm":300,"heightCm":100},{"widthCm":300,"heightCm":100}]}`)

	out, _, err := run(t, "layout", path, "--width", "600", "--height", "128")
	require.NoError(t, err)
	var res layout.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, layout.ModeTiled, res.Mode)
	assert.Equal(t, 2, res.TileCount)
	assert.True(t, res.Tiles[1].Mirrored)
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "broken.json", `[{"id":"a","widthCm":999,"heightCm":"x"},{"id":"a","widthCm":50,"heightCm":50}]`)

	out, logs, err := run(t, "validate", path)
	require.NoError(t, err, logs)
	assert.Contains(t, out, "source: current")
	assert.Contains(t, out, "plates: 2")
	assert.Contains(t, out, "plate 1 widthCm")
	assert.Contains(t, out, "plate 1 heightCm")
	assert.Contains(t, out, "plate 2 id")

	_, _, err = run(t, "validate", "--strict", path)
	assert.True(t, errors.Is(err, errRepaired))

	clean := writeFile(t, "clean.yaml", samplePlates)
	out, _, err = run(t, "validate", "--strict", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "no repairs")

	empty := writeFile(t, "empty.json", `{}`)
	out, _, err = run(t, "validate", empty)
	assert.ErrorIs(t, err, errNoPlates)
	assert.Contains(t, out, "source: defaults")
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	plates := writeFile(t, "plates.yaml", samplePlates)
	motif := filepath.Join(dir, "motif.png")
	require.NoError(t, os.WriteFile(motif, testutil.PNG(testutil.Gradient(300, 128)), 0644))
	out := filepath.Join(dir, "out", "preview.png")

	_, logs, err := run(t, "render", plates, "-o", out, "--motif-file", motif, "--width", "300", "--height", "120", "--ratio", "1")
	require.NoError(t, err, logs)
	assert.Contains(t, logs, "Rendered 2 plate(s)")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestRenderCommand_Errors(t *testing.T) {
	plates := writeFile(t, "plates.yaml", samplePlates)

	_, _, err := run(t, "render", plates, "--motif-file", filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	notImage := writeFile(t, "motif.txt", "hello")
	_, _, err = run(t, "render", plates, "--motif-file", notImage)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a decodable image"))

	_, _, err = run(t, "render", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "configurator.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("layout:\n  max_height_cm: 256\ncache:\n  backend: none\n"), 0644))
	plates := writeFile(t, "plates.yaml", samplePlates)

	out, _, err := run(t, "--config", cfgPath, "layout", plates, "--width", "1000", "--height", "256")
	require.NoError(t, err)
	var res layout.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	// 128 cm of a 256 cm reference fills half the box.
	assert.Equal(t, 128, res.Plates[0].HeightPx)
}
