// Package cli — restart.go implements the "dockstack restart" command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRestartCommand creates the "restart" cobra command.
func NewRestartCommand() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:   "restart <service>",
		Short: "Restart the replicas of a service",
		Long: `Restart every replica of a deployed service in place.

A replica whose container no longer exists is recreated with the same
replica number.

Examples:
  dockstack restart web
  dockstack restart db -p shop --timeout 30s`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(cmd, args[0])
		},
	}

	addStackFlags(cmd, flags)
	cmd.Flags().StringP("timeout", "t", "", "Stop grace period before the restart (default: 10s)")

	return cmd
}

func runRestart(cmd *cobra.Command, serviceName string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.attachStack(cmd.Context())
	if err != nil {
		return err
	}

	if err := st.RestartService(cmd.Context(), serviceName); err != nil {
		return err
	}

	replicas := len(st.Containers(serviceName))
	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"stack":     st.Name(),
			"service":   serviceName,
			"restarted": replicas,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restarted %d replicas of %s\n", replicas, serviceName)
	return nil
}
