// Package cli — logs.go implements the "dockstack logs" command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/stack"
)

type logsFlags struct {
	stackFlags
	tail       int
	timestamps bool
}

// NewLogsCommand creates the "logs" cobra command.
func NewLogsCommand() *cobra.Command {
	flags := &logsFlags{}

	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Print the logs of a stack",
		Long: `Print the logs of every container of the stack, or of the named services.

Each line is prefixed with its service name. Lines of one container keep
their order; lines of different containers are not interleaved by time.

Examples:
  dockstack logs
  dockstack logs web worker --tail 100
  dockstack logs --timestamps db`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, flags, args)
		},
	}

	addStackFlags(cmd, &flags.stackFlags)
	cmd.Flags().IntVar(&flags.tail, "tail", 0, "Number of lines to show from the end of each container's log (0 = all)")
	cmd.Flags().BoolVar(&flags.timestamps, "timestamps", false, "Show timestamps")

	return cmd
}

func runLogs(cmd *cobra.Command, flags *logsFlags, services []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.attachStack(cmd.Context())
	if err != nil {
		return err
	}

	text, err := st.Logs(cmd.Context(), stack.LogOptions{
		Services:   services,
		Tail:       flags.tail,
		Timestamps: flags.timestamps,
	})

	// Whatever was read is printed even when some containers failed.
	if IsJSONOutput() {
		if jerr := writeJSON(cmd.OutOrStdout(), map[string]string{"stack": st.Name(), "logs": text}); jerr != nil {
			return jerr
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), text)
	}
	return err
}
