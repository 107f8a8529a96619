// File: cmd/export.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nullvane/argus-cli/internal/reporting"
)

// newExportCmd creates the `export` command.
func newExportCmd() *cobra.Command {
	var (
		output string
		format string
	)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Writes the current triage state to a JSON report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer sess.close()

			reporter, err := reporting.New(format, output)
			if err != nil {
				return err
			}

			report := sess.console.Report()
			if err := reporter.Write(&report); err != nil {
				reporter.Close()
				return fmt.Errorf("writing triage report: %w", err)
			}
			return reporter.Close()
		},
	}

	exportCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&format, "format", "json", "report format")
	return exportCmd
}
