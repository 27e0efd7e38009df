// Package cli — scale.go implements the "dockstack scale" command.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// scaleTarget is one parsed "service=N" argument.
type scaleTarget struct {
	Service  string `json:"service"`
	Replicas int    `json:"replicas"`
}

// NewScaleCommand creates the "scale" cobra command.
func NewScaleCommand() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:   "scale service=N [service=N...]",
		Short: "Change the replica count of services",
		Long: `Set the number of running replicas of one or more services.

New replicas take the lowest free replica numbers; surplus replicas are
removed highest number first.

Examples:
  dockstack scale web=3
  dockstack scale web=1 worker=4 -p shop`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScale(cmd, args)
		},
	}

	addStackFlags(cmd, flags)
	cmd.Flags().StringP("timeout", "t", "", "Stop grace period for removed replicas (default: 10s)")

	return cmd
}

func runScale(cmd *cobra.Command, args []string) error {
	// Parse every argument before touching the daemon.
	targets := make([]scaleTarget, 0, len(args))
	for _, arg := range args {
		t, err := parseScaleArg(arg)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.attachStack(cmd.Context())
	if err != nil {
		return err
	}

	for _, t := range targets {
		VerboseLog("Scaling %s to %d", t.Service, t.Replicas)
		if err := st.Scale(cmd.Context(), t.Service, t.Replicas); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"stack": st.Name(), "scaled": targets})
	}
	for _, t := range targets {
		fmt.Fprintf(cmd.OutOrStdout(), "Scaled %s to %d replicas\n", t.Service, t.Replicas)
	}
	return nil
}

// parseScaleArg parses "service=N" with N >= 0.
func parseScaleArg(arg string) (scaleTarget, error) {
	name, count, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return scaleTarget{}, model.Errorf(model.KindValidation, "invalid scale argument %q (want service=N)", arg)
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 0 {
		return scaleTarget{}, model.Errorf(model.KindValidation, "invalid replica count %q for service %q", count, name)
	}
	return scaleTarget{Service: name, Replicas: n}, nil
}
