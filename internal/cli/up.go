// Package cli — up.go implements the "dockstack up" command.
//
// up imports the compose file, attaches to anything already deployed for
// the stack and deploys every service in dependency order. With
// --preflight, published host ports that are already bound are reported
// before any container is created.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/port"
	"github.com/mmr-tortoise/dockstack/internal/stack"
)

type upFlags struct {
	stackFlags
	preflight bool
}

// NewUpCommand creates the "up" cobra command.
func NewUpCommand() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Deploy a stack",
		Long: `Deploy every service of the compose file as a stack of containers.

Services start in dependency order. A service that fails to start does not
stop services that do not depend on it; services that depend on it are
skipped. Nothing is rolled back: run "dockstack down" to clean up.

Examples:
  dockstack up
  dockstack up -f deploy/compose.yaml -p shop
  dockstack up --preflight --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, flags)
		},
	}

	addStackFlags(cmd, &flags.stackFlags)
	cmd.Flags().BoolVar(&flags.preflight, "preflight", false, "Check published host ports before deploying")

	return cmd
}

// upResult is the JSON output of the up command.
type upResult struct {
	*stack.DeployReport
	Preflight []port.Conflict `json:"preflight,omitempty"`
}

func runUp(cmd *cobra.Command, flags *upFlags) error {
	ctx := cmd.Context()

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.attachStack(ctx)
	if err != nil {
		return err
	}

	var conflicts []port.Conflict
	if flags.preflight {
		conflicts = port.NewScanner().Preflight(st.Services())
		for _, c := range conflicts {
			logger.Warn(c.String())
		}
	}

	report, err := st.Up(ctx)
	if err != nil && len(report.Started)+len(report.Failed)+len(report.Skipped) == 0 {
		// Rejected before any service was attempted.
		return err
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		if jerr := writeJSON(out, upResult{DeployReport: report, Preflight: conflicts}); jerr != nil {
			return jerr
		}
	} else {
		printDeployReport(out, report)
	}
	return err
}

// printDeployReport renders a deploy report as text:
//
//	Stack shop deployed
//	  started: db, web
//	  failed:  worker: image not found
//	  skipped: reporter
func printDeployReport(w io.Writer, r *stack.DeployReport) {
	verb := "deployed"
	if len(r.Failed) > 0 {
		verb = "partially deployed"
	}
	fmt.Fprintf(w, "Stack %s %s\n", r.Stack, verb)
	fmt.Fprintf(w, "  started: %s\n", joinOrDash(r.Started))
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed:  %s: %s\n", f.Service, f.Error)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped: %s\n", strings.Join(r.Skipped, ", "))
	}
}

// joinOrDash joins names with ", ", or returns "-" for an empty list.
func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
