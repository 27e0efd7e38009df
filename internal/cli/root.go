// Package cli implements the cobra-based CLI commands for dockstack.
//
// Each subcommand (up, down, status, logs, scale, restart, convert, pull,
// push) is defined in its own file within this package. This file defines
// the root command that serves as the parent for all subcommands and
// handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/logging"
	"github.com/mmr-tortoise/dockstack/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose raises the log level to debug.
	verbose bool

	// configPath is the --config flag. Empty means the per-user default.
	configPath string

	// logger is configured by openSession. Until then it discards output.
	logger = logging.Discard()
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dockstack",
		Short: "Deploy multi-container stacks on a Docker daemon",
		Long: `dockstack deploys the services of a compose file as a named stack of
containers on a Docker daemon, in dependency order.

Every container, network and volume of a stack carries labels, so later
invocations can report status, collect logs, scale services and tear the
stack down without any local state.`,

		// We format errors ourselves (text or JSON based on --json flag).
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	pf.StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/dockstack/config.json)")
	pf.String("host", "", "Docker daemon host (default: DOCKER_HOST or the platform socket)")
	pf.String("log-format", logging.FormatText, "Log format: text or json")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(NewUpCommand())
	rootCmd.AddCommand(NewDownCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewLogsCommand())
	rootCmd.AddCommand(NewScaleCommand())
	rootCmd.AddCommand(NewRestartCommand())
	rootCmd.AddCommand(NewConvertCommand())
	rootCmd.AddCommand(NewPullCommand())
	rootCmd.AddCommand(NewPushCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code mapped from the
// returned error's kind.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(int(model.ExitCodeOf(err)))
	}
}

// printError writes err in the format selected by --json. Errors go to
// stderr even in JSON mode because stdout is reserved for command output.
func printError(w io.Writer, err error) {
	if !jsonOutput {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	errObj := map[string]interface{}{
		"message": err.Error(),
	}
	var e *model.Error
	if errors.As(err, &e) {
		errObj["kind"] = e.Kind.String()
		errObj["exit_code"] = int(e.ExitCode())
	}
	data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
	fmt.Fprintln(w, string(data))
}

// VerboseLog logs a debug message; it is shown only with --verbose or a
// debug log level.
func VerboseLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// setLogger replaces the package logger; --verbose forces debug level.
func setLogger(l *logrus.Logger) {
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	logger = l
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return model.WrapError(model.KindIO, "failed to encode output", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
