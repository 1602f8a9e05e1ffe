package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mysql-migrate/internal/confirmation"
)

func init() {
	rootCmd.AddCommand(newRollbackCommand())
}

func newRollbackCommand() *cobra.Command {
	var (
		reason      string
		autoApprove bool
	)

	cmd := &cobra.Command{
		Use:   "rollback <version>",
		Short: "Reverse a previously applied migration set",
		Long: `Execute the whole-set rollback script of an applied version. A protective
backup is always taken first; if it cannot be taken, the rollback does not
run. The attempt is recorded in the history ledger whether it succeeds or
not.

Rollbacks always require interactive confirmation; pass --auto-approve to
skip the prompt in automation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			set, err := app.Registry().Get(args[0])
			if err != nil {
				return err
			}

			confirm := confirmation.NewService(app.Display(), cmd.InOrStdin())
			approved, err := confirm.ConfirmRollback(set, reason, autoApprove)
			if err != nil {
				return err
			}
			if !approved {
				app.Display().Warning("rollback cancelled")
				return nil
			}

			result, err := app.Rollback(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}

			disp := app.Display()
			if handled, err := renderMachine(disp, result, func() string {
				if result.Success {
					return fmt.Sprintf("rolled back %s in %s", args[0], result.Duration)
				}
				return fmt.Sprintf("rollback of %s failed", args[0])
			}); handled {
				return err
			}

			if result.Success {
				disp.Success("rolled back %s in %s", args[0], result.Duration)
				if result.RollbackPoint != "" {
					disp.Muted("pre-rollback backup: %s", result.RollbackPoint)
				}
				return nil
			}

			disp.Failure("rollback of %s failed: %s", args[0], result.Errors[0].Message)
			return fmt.Errorf("rollback failed")
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why this rollback is happening (recorded in history)")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")

	return cmd
}
