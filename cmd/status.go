package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCommand())
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations and ledger totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			status := app.Status()

			disp := app.Display()
			if handled, err := renderMachine(disp, status, func() string {
				return fmt.Sprintf("%d registered, %d applied, %d pending, %d backups",
					status.Registered, len(status.Applied), len(status.Pending), status.Backups)
			}); handled {
				return err
			}

			disp.Heading("Migration status")
			disp.Printf("Registered: %d\n", status.Registered)
			disp.Printf("Applied:    %d  %s\n", len(status.Applied), strings.Join(status.Applied, ", "))
			disp.Printf("Pending:    %d  %s\n", len(status.Pending), strings.Join(status.Pending, ", "))
			disp.Println("")
			disp.Printf("Ledger: %d entries, %d attempts (%d succeeded, %d failed), %d backups\n",
				status.Ledger.Entries, status.Ledger.Attempts, status.Ledger.Succeeded, status.Ledger.Failed, status.Backups)
			if !status.Ledger.LastUpdated.IsZero() {
				disp.Muted("last updated %s", status.Ledger.LastUpdated.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}
