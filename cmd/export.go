package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newExportCommand())
}

func newExportCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full history ledger as JSON",
		Long: `Write the complete history ledger, every execution attempt and every
backup record, as a JSON document for audits and external tooling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Export(outPath); err != nil {
				return err
			}
			if outPath != "" && !quiet {
				app.Display().Success("ledger exported to %s", outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	return cmd
}
