package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/rueckwand/configurator/internal/cache"
	"github.com/rueckwand/configurator/internal/config"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// app carries state shared by all commands.
type app struct {
	out        io.Writer
	logOut     io.Writer
	configPath string
	verbose    bool
	cfg        *config.AppConfig
}

// Execute runs the CLI with the process's standard streams.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Command output goes to out, logs
// to logOut.
func NewRootCommand(out, logOut io.Writer) *cobra.Command {
	a := &app{out: out, logOut: logOut}

	root := &cobra.Command{
		Use:          "rueckwand",
		Short:        "Lay out and render wall plates that share one motif",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := charmlog.InfoLevel
			if a.verbose {
				level = charmlog.DebugLevel
			}
			logger := newLogger(a.logOut, level)
			cmd.SetContext(withLogger(cmd.Context(), logger))

			if a.configPath == "" {
				a.cfg = config.DefaultConfig()
				a.cfg.Cache.Backend = cache.BackendNone
				return nil
			}
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			logger.Debug("loaded config", "path", a.configPath)
			a.cfg = cfg
			return nil
		},
	}

	root.SetOut(out)
	root.SetErr(logOut)
	root.SetVersionTemplate(fmt.Sprintf("rueckwand %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (limits, layout, cache)")

	root.AddCommand(newLayoutCmd(a))
	root.AddCommand(newRenderCmd(a))
	root.AddCommand(newValidateCmd(a))

	return root
}
