// Command invoicectl runs the integrity checks offline against invoice JSON
// files and manages the service database and tokens.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/facturaIA/invoice-integrity-service/internal/config"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
)

// errChecksFailed makes the process exit non-zero without printing twice
var errChecksFailed = errors.New("integrity checks failed")

// rootOptions holds the global flags and what PersistentPreRunE builds from them
type rootOptions struct {
	configPath string
	jsonOutput bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Invoice arithmetic validation and duplicate detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.NewLogger(logging.LogConfig{Level: level, Format: "console", OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: environment only)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newValidateCmd(opts),
		newAnalyzeCmd(opts),
		newReportCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		}
		os.Exit(1)
	}
}
