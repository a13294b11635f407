// Package cli implements the readykit command line.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/readykit/internal/clock"
	"github.com/roach88/readykit/internal/config"
	"github.com/roach88/readykit/internal/report"
)

// RootOptions holds global flags and the resolved configuration for all
// commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is resolved in PersistentPreRunE.
	Config config.Config

	// Logger defaults to a console logger on stderr.
	Logger *zap.Logger

	// Clock, IDs and HTTPClient override the real implementations in tests.
	Clock      clock.Clock
	IDs        report.IDGenerator
	HTTPClient *http.Client

	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the readykit CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	opts.viper = config.New()

	cmd := &cobra.Command{
		Use:   "readykit",
		Short: "readykit - offline-first incident reporting",
		Long: `Offline-first incident reporting, go-bag checklist sync and
geotagged photo capture.

Reports are stored locally before any network attempt and delivered in
order once the service is reachable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := config.ReadFile(opts.viper, opts.ConfigFile); err != nil {
				return WrapExitError(ExitCommandError, "failed to read config", err)
			}
			cfg, err := config.Load(opts.viper)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			if opts.Logger == nil {
				opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")
	pf.String("db", "", "path to the SQLite database (default readykit.db)")
	pf.String("api-url", "", "base URL of the incident service")
	pf.String("token", "", "bearer token for checklist sync")

	_ = opts.viper.BindPFlag(config.KeyDB, pf.Lookup("db"))
	_ = opts.viper.BindPFlag(config.KeyAPIURL, pf.Lookup("api-url"))
	_ = opts.viper.BindPFlag(config.KeyToken, pf.Lookup("token"))

	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newChecklistCommand(opts))
	cmd.AddCommand(newCaptureCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newScenarioCommand(opts))

	return cmd
}

// newLogger writes human-readable logs to w. Warnings and above unless
// verbose.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) clock() clock.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clock.System{}
}

func (o *RootOptions) ids() report.IDGenerator {
	if o.IDs != nil {
		return o.IDs
	}
	return report.UUIDv7Generator{}
}
