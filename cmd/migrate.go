package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mysql-migrate/internal/confirmation"
	"mysql-migrate/internal/migration"
)

func init() {
	rootCmd.AddCommand(newMigrateCommand())
}

func newMigrateCommand() *cobra.Command {
	var (
		dryRun        bool
		force         bool
		skipBackup    bool
		validateAfter bool
		autoApprove   bool
		batchSize     int
	)

	cmd := &cobra.Command{
		Use:   "migrate <version>",
		Short: "Apply every migration needed to reach a target version",
		Long: `Resolve the dependency plan for the target version and apply each
unapplied set in order. Sets that require a backup get one before any
statement runs; a failed backup aborts that set.

Plans whose aggregate risk is high or critical require interactive
confirmation before anything executes; pass --auto-approve to skip the
prompt in automation.

With --dry-run the run is simulated: nothing is executed and nothing is
recorded in the history ledger.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			plan, err := app.Plan(args[0])
			if err != nil {
				return err
			}

			// Dry runs execute nothing, so they never need approval
			if !dryRun {
				confirm := confirmation.NewService(app.Display(), cmd.InOrStdin())
				approved, err := confirm.ConfirmPlan(plan, autoApprove)
				if err != nil {
					return err
				}
				if !approved {
					app.Display().Warning("migration cancelled")
					return nil
				}
			}

			opts := migration.ExecuteOptions{
				DryRun:        dryRun,
				Force:         force,
				ValidateAfter: validateAfter,
				BatchSize:     batchSize,
			}
			if skipBackup {
				disabled := false
				opts.BackupBefore = &disabled
			}

			results, err := app.Migrate(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			disp := app.Display()
			if handled, err := renderMachine(disp, results, func() string {
				applied, failures := 0, 0
				for _, result := range results {
					if result.Success {
						applied++
					} else {
						failures++
					}
				}
				return fmt.Sprintf("%s: %d applied, %d failed", args[0], applied, failures)
			}); handled {
				return err
			}

			if len(results) == 0 {
				disp.Success("Nothing to do: %s is already applied", args[0])
				return nil
			}

			failed := false
			for _, result := range results {
				switch {
				case result.DryRun:
					disp.Muted("dry-run %s: %d warnings", result.ID, len(result.Warnings))
				case result.Success:
					disp.Success("applied %s in %s (%d records affected)", result.ID, result.Duration, result.RecordsAffected)
				default:
					failed = true
					disp.Failure("failed %s: %s", result.ID, result.Errors[0].Message)
					if result.RollbackPoint != "" {
						disp.Muted("pre-migration backup: %s", result.RollbackPoint)
					}
				}
			}

			if failed {
				return fmt.Errorf("migration run stopped on a failed set")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate without executing or recording")
	cmd.Flags().BoolVar(&force, "force", false, "re-apply even if already applied")
	cmd.Flags().BoolVar(&skipBackup, "skip-backup", false, "override the sets' backup requirement")
	cmd.Flags().BoolVar(&validateAfter, "validate", false, "run each set's validation queries after applying")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt for risky plans")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override every step's declared batch size")

	return cmd
}
