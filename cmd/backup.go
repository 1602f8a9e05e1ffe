package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mysql-migrate/internal/backup"
)

func init() {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, verify, and prune backups",
	}
	backupCmd.AddCommand(newBackupCreateCommand())
	backupCmd.AddCommand(newBackupListCommand())
	backupCmd.AddCommand(newBackupVerifyCommand())
	backupCmd.AddCommand(newBackupPruneCommand())
	rootCmd.AddCommand(backupCmd)
}

func newBackupCreateCommand() *cobra.Command {
	var (
		version       string
		label         string
		backupType    string
		description   string
		retentionDays int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Capture a backup of the target store",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			record, err := app.CreateBackup(cmd.Context(), backup.CreateOptions{
				Version:       version,
				Label:         label,
				Type:          backup.BackupType(backupType),
				Description:   description,
				RetentionDays: retentionDays,
			})
			if err != nil {
				return err
			}

			disp := app.Display()
			if handled, err := renderMachine(disp, record, nil); handled {
				return err
			}

			disp.Success("backup %s created (%s, %d bytes stored)", record.ID, record.Type, record.CompressedSize)
			disp.Muted("location: %s", record.Location)
			disp.Muted("checksum: %s", record.Checksum)
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "schema version this backup belongs to")
	cmd.Flags().StringVar(&label, "label", "manual", "label recorded with the backup")
	cmd.Flags().StringVar(&backupType, "type", string(backup.BackupTypeFull), "backup type (full, incremental, schema_only, data_only)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "days to keep this backup (default 30)")
	cmd.MarkFlagRequired("version")

	return cmd
}

func newBackupListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cataloged backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			records := app.ListBackups()

			disp := app.Display()
			if handled, err := renderMachine(disp, records, nil); handled {
				return err
			}

			if len(records) == 0 {
				disp.Muted("no backups recorded")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.ID,
					record.Version,
					string(record.Type),
					record.CreatedAt.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%d", record.CompressedSize),
					record.ExpiresAt().Format("2006-01-02"),
					record.Label,
				})
			}
			disp.Table([]string{"ID", "VERSION", "TYPE", "CREATED", "SIZE", "EXPIRES", "LABEL"}, rows)
			return nil
		},
	}
}

func newBackupVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backup-id>",
		Short: "Verify a stored backup against its recorded checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.VerifyBackup(cmd.Context(), args[0]); err != nil {
				app.Display().Failure("backup %s failed verification", args[0])
				return err
			}

			app.Display().Success("backup %s verified", args[0])
			return nil
		},
	}
}

func newBackupPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups past their retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			pruned, err := app.PruneBackups(cmd.Context())
			if err != nil {
				return err
			}

			disp := app.Display()
			if handled, err := renderMachine(disp, pruned, func() string {
				return fmt.Sprintf("%d backups pruned", len(pruned))
			}); handled {
				return err
			}

			if len(pruned) == 0 {
				disp.Muted("nothing to prune")
				return nil
			}
			for _, id := range pruned {
				disp.Println("pruned " + id)
			}
			disp.Success("%d backups pruned", len(pruned))
			return nil
		},
	}
}
