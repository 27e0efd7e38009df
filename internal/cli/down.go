// Package cli — down.go implements the "dockstack down" command.
//
// down removes every container of the stack, found by label, followed by
// the stack networks and, with --volumes, its named volumes. Teardown is
// best effort: every step is attempted and failures are reported together.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/stack"
)

type downFlags struct {
	stackFlags
	volumes bool
	timeout string
}

// NewDownCommand creates the "down" cobra command.
func NewDownCommand() *cobra.Command {
	flags := &downFlags{}

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Tear a stack down",
		Long: `Stop and remove every container of the stack, then its networks.

Named volumes are kept unless --volumes is given.

Examples:
  dockstack down
  dockstack down -p shop --volumes
  dockstack down --timeout 30s`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(cmd, flags)
		},
	}

	addStackFlags(cmd, &flags.stackFlags)
	cmd.Flags().BoolVar(&flags.volumes, "volumes", false, "Also remove the stack's named volumes")
	cmd.Flags().StringVarP(&flags.timeout, "timeout", "t", "", "Stop grace period (default: 10s)")

	return cmd
}

func runDown(cmd *cobra.Command, flags *downFlags) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.attachStack(cmd.Context())
	if err != nil {
		return err
	}

	report, err := st.Down(cmd.Context(), flags.volumes)

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		if jerr := writeJSON(out, report); jerr != nil {
			return jerr
		}
	} else {
		printTeardownReport(out, report)
	}
	return err
}

// printTeardownReport renders a teardown report as text.
func printTeardownReport(w io.Writer, r *stack.TeardownReport) {
	if len(r.Containers)+len(r.Networks)+len(r.Volumes)+len(r.Errors) == 0 {
		fmt.Fprintf(w, "Stack %s is not deployed.\n", r.Stack)
		return
	}

	fmt.Fprintf(w, "Stack %s removed\n", r.Stack)
	fmt.Fprintf(w, "  containers: %s\n", joinOrDash(r.Containers))
	fmt.Fprintf(w, "  networks:   %s\n", joinOrDash(r.Networks))
	if len(r.Volumes) > 0 {
		fmt.Fprintf(w, "  volumes:    %s\n", joinOrDash(r.Volumes))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error:      %s\n", e)
	}
}
