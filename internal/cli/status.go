// Package cli — status.go implements the "dockstack status" command.
//
// status inspects every container of the stack and prints per-service
// replica, running and health counts plus the overall stack status.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"ps"},
		Short:   "Show the status of a stack",
		Long: `Show the status of every service and container of a stack.

The stack is running when every container is running and none is
unhealthy, degraded when any container is not, and not_deployed when it
has no containers.

Examples:
  dockstack status
  dockstack ps -p shop --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}

	addStackFlags(cmd, flags)

	return cmd
}

func runStatus(cmd *cobra.Command) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.attachStack(cmd.Context())
	if err != nil {
		return err
	}

	report, err := st.Status(cmd.Context())
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	printStatusText(cmd.OutOrStdout(), report)
	return nil
}

// printStatusText renders a status report as a service table followed by
// one line per container:
//
//	Stack shop: running (3 containers)
//
//	SERVICE     REPLICAS  RUNNING  HEALTHY  UNHEALTHY
//	db          1         1        1        0
//	web         2         2        0        0
//
//	CONTAINER   SERVICE   STATUS   HEALTH
//	shop_db_1   db        running  healthy
func printStatusText(w io.Writer, r *model.StatusReport) {
	fmt.Fprintf(w, "Stack %s: %s (%d containers)\n", r.Stack, r.Status, r.TotalContainers)
	if len(r.ServiceOrder) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%-20s %-9s %-8s %-8s %s\n", "SERVICE", "REPLICAS", "RUNNING", "HEALTHY", "UNHEALTHY")
	for _, name := range r.ServiceOrder {
		svc := r.Services[name]
		fmt.Fprintf(w, "%-20s %-9d %-8d %-8d %d\n", name, svc.Replicas, svc.Running, svc.Healthy, svc.Unhealthy)
	}

	if r.TotalContainers == 0 {
		return
	}
	fmt.Fprintf(w, "\n%-30s %-20s %-9s %s\n", "CONTAINER", "SERVICE", "STATUS", "HEALTH")
	for _, name := range r.ServiceOrder {
		for _, c := range r.Services[name].Containers {
			health := string(c.Health)
			if c.Error != "" {
				health = "error: " + c.Error
			}
			fmt.Fprintf(w, "%-30s %-20s %-9s %s\n",
				model.ReplicaName(r.Stack, name, c.ReplicaIndex), name, c.Status, health)
		}
	}
}
