package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/units"
	"github.com/spf13/cobra"
)

// errRepaired is returned by validate --strict when anything was substituted.
var errRepaired = errors.New("plates file needed repairs")

func newValidateCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a plates file or browser storage dump and list repairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rep, err := readPlatesFile(args[0], a.cfg.PlateDefaults())
			if err != nil && !errors.Is(err, errNoPlates) {
				return err
			}

			fmt.Fprintf(a.out, "source: %s\n", rep.Source)
			sum := cfg.Summarize()
			fmt.Fprintf(a.out, "plates: %d, total width %s cm, max height %s cm\n",
				sum.Count, units.FormatNumber(sum.TotalWidthCm), units.FormatNumber(sum.MaxHeightCm))
			fmt.Fprintf(a.out, "motif: %s\n", cfg.Motif)
			if len(rep.Substitutions) == 0 {
				fmt.Fprintln(a.out, "no repairs")
			}
			for _, s := range rep.Substitutions {
				fmt.Fprintf(a.out, "  plate %d %s: %s\n", s.Index+1, s.Field, s.Reason)
			}

			if err != nil {
				return err
			}
			if strict && len(rep.Substitutions) > 0 {
				return fmt.Errorf("%w: %d substitution(s)", errRepaired, len(rep.Substitutions))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any field had to be repaired")
	return cmd
}

func logSubstitutions(logger *log.Logger, rep persistence.Report) {
	for _, s := range rep.Substitutions {
		logger.Warn("repaired plate", "plate", s.Index+1, "field", s.Field, "reason", s.Reason)
	}
}
