// Package cli — convert.go implements the "dockstack convert" command.
//
// convert imports the compose file and exports it again, printing the
// canonical form dockstack deploys. It does not contact the daemon.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConvertCommand creates the "convert" cobra command.
func NewConvertCommand() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Print the compose file in canonical form",
		Long: `Parse the compose file and print it back in the canonical form dockstack
uses: services in file order, fields in a fixed order, environment as a
mapping.

Examples:
  dockstack convert
  dockstack convert -f deploy/compose.yml > normalized.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd)
		},
	}

	addStackFlags(cmd, flags)

	return cmd
}

func runConvert(cmd *cobra.Command) error {
	sess, err := loadSession(cmd)
	if err != nil {
		return err
	}

	st, err := sess.importStack()
	if err != nil {
		return err
	}
	VerboseLog("Imported %d services into stack %s", st.ServiceCount(), st.Name())

	data, err := st.ExportYAML()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"stack": st.Name(), "compose": string(data)})
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}
