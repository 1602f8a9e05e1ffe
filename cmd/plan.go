package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPlanCommand())
}

func newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <version>",
		Short: "Show the dependency-resolved execution plan for a target version",
		Args:  cobra.ExactArgs(1),
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

			disp := app.Display()
			if handled, err := renderMachine(disp, plan, func() string {
				return fmt.Sprintf("%s: %d sets, risk %s, estimated %s",
					plan.Target, len(plan.Migrations), plan.Risk, plan.TotalEstimated)
			}); handled {
				return err
			}

			disp.Heading(fmt.Sprintf("Execution plan for %s", plan.Target))

			rows := make([][]string, 0, len(plan.Migrations))
			for _, set := range plan.Migrations {
				rows = append(rows, []string{
					set.Version,
					string(set.EffectiveRisk()),
					fmt.Sprintf("%d", len(set.Steps)),
					boolMark(set.BackupRequired),
					boolMark(set.RequiresDowntime),
					set.Description,
				})
			}
			disp.Table([]string{"VERSION", "RISK", "STEPS", "BACKUP", "DOWNTIME", "DESCRIPTION"}, rows)

			disp.Println("")
			disp.Printf("Aggregate risk: %s\n", plan.Risk)
			disp.Printf("Estimated duration: %s\n", plan.TotalEstimated)
			if plan.RequiresDowntime {
				disp.Warning("This plan requires downtime")
			}
			if plan.BackupRequired {
				disp.Muted("A backup will be taken before the sets that require one")
			}

			return nil
		},
	}
}

func boolMark(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
