package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newValidateCommand())
}

func newValidateCommand() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run validation rules against the target store",
		Long: `Run the declarative rules in a YAML rule set against the target store
and report pass/fail/warning counts. Critical failures make the command exit
non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.Validate(cmd.Context(), rulesPath)
			if err != nil {
				return err
			}

			disp := app.Display()
			if handled, err := renderMachine(disp, summary, func() string {
				return fmt.Sprintf("%d passed, %d failed, %d warnings",
					summary.Passed, summary.Failed, summary.Warnings)
			}); handled {
				return err
			}

			for _, result := range summary.Results {
				switch {
				case result.Passed:
					disp.Success("pass  %s", result.Rule.Name)
				case result.Rule.Severity == "warning":
					disp.Warning("warn  %s: %s", result.Rule.Name, result.Message)
				default:
					disp.Failure("fail  %s: %s", result.Rule.Name, result.Message)
				}
			}

			disp.Println("")
			disp.Printf("%d passed, %d failed, %d warnings\n", summary.Passed, summary.Failed, summary.Warnings)

			if summary.HasCriticalFailures() {
				return fmt.Errorf("critical validation rules failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "validation-rules.yaml", "YAML rule set file")

	return cmd
}
