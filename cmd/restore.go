package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRestoreCommand())
}

func newRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore the target store from a backup",
		Long: `Retrieve a stored backup, verify its checksum, and replay its restore
statements against the target store. A backup that fails checksum
verification is refused outright: nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			disp := app.Display()
			if handled, err := renderMachine(disp, result, nil); handled {
				return err
			}

			if result.Success {
				disp.Success("restored from %s in %s (%d records affected)", args[0], result.Duration, result.RecordsAffected)
				return nil
			}

			disp.Failure("restore from %s failed: %s", args[0], result.Errors[0].Message)
			return fmt.Errorf("restore failed")
		},
	}
}
