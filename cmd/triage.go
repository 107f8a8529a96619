// File: cmd/triage.go
package cmd

import (
	"github.com/spf13/cobra"
)

// newTriageCmd creates the `triage` command group.
func newTriageCmd() *cobra.Command {
	triageCmd := &cobra.Command{
		Use:   "triage",
		Short: "Inspects the durable triage state",
	}
	triageCmd.AddCommand(newTriageListCmd())
	return triageCmd
}

// newTriageListCmd prints the rehydrated side collections. The active
// collection is always empty here: an unfinished run does not survive a
// restart.
func newTriageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists snoozed, ignored, and solved findings from the snapshot store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer sess.close()

			printFindings(cmd.OutOrStdout(), sess.console.Findings())
			return nil
		},
	}
}
