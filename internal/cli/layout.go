package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rueckwand/configurator/internal/layout"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"

	defaultWidth  = 960 // preview box width in pixels
	defaultHeight = 360 // preview box height in pixels
)

type layoutOpts struct {
	width  float64
	height float64
	format string
}

func newLayoutCmd(a *app) *cobra.Command {
	opts := layoutOpts{width: defaultWidth, height: defaultHeight, format: formatJSON}

	cmd := &cobra.Command{
		Use:   "layout [file]",
		Short: "Print the preview layout of a plates file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, rep, err := readPlatesFile(args[0], a.cfg.PlateDefaults())
			if err != nil {
				return err
			}
			logSubstitutions(logger, rep)

			res := layout.Compute(cfg.Plates, cfg.Motif, layout.Viewport{WidthPx: opts.width, HeightPx: opts.height}, a.cfg.Layout)
			logger.Debug("computed layout", "plates", len(res.Plates), "mode", res.Mode, "scale", res.Scale)

			out, err := encodeResult(res, opts.format)
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}

	cmd.Flags().Float64Var(&opts.width, "width", opts.width, "viewport width in pixels")
	cmd.Flags().Float64Var(&opts.height, "height", opts.height, "viewport height in pixels")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: json or yaml")
	return cmd
}

// encodeResult renders res as indented JSON or as YAML with the same keys.
func encodeResult(res layout.Result, format string) ([]byte, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, err
	}
	switch format {
	case formatJSON:
		return append(data, '\n'), nil
	case formatYAML:
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		return yaml.Marshal(generic)
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
