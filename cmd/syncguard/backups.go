package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/VatsalSy/SyncGuard/internal/app"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/util"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage table backups and rollback points",
	Long: `Create, verify and prune backups of the protected tables, and roll
back to the backup behind a rollback point.

Restore-based recoveries record a rollback point for the backup they
restored. Points expire after backup.rollback_ttl and can be used once.`,
	Example: `  # Back up every table
  syncguard backups create

  # Incremental backup of two tables
  syncguard backups create --type incremental --tables notes,tags

  # Check a backup file against its checksum
  syncguard backups verify 3f2c...

  # Roll back using a rollback point
  syncguard backups rollback <point-id>`,
}

var (
	backupsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE:  runBackupsList,
	}

	backupsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a backup",
		RunE:  runBackupsCreate,
	}

	backupsVerifyCmd = &cobra.Command{
		Use:   "verify <backup-id>",
		Short: "Verify a backup file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupsVerify,
	}

	backupsCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Apply backup retention",
		RunE:  runBackupsCleanup,
	}

	backupsRollbackCmd = &cobra.Command{
		Use:   "rollback [point-id]",
		Short: "List rollback points, or roll back to one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBackupsRollback,
	}
)

var (
	backupType     string
	backupTables   []string
	listBackupType string
	listTable      string
)

func init() {
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsCreateCmd)
	backupsCmd.AddCommand(backupsVerifyCmd)
	backupsCmd.AddCommand(backupsCleanupCmd)
	backupsCmd.AddCommand(backupsRollbackCmd)

	backupsListCmd.Flags().StringVar(&listTable, "table", "", "Only backups covering this table")
	backupsListCmd.Flags().StringVar(&listBackupType, "type", "", "Only backups of this type")

	backupsCreateCmd.Flags().StringVarP(&backupType, "type", "t", "full", "Backup type (full, incremental, schema_only)")
	backupsCreateCmd.Flags().StringSliceVar(&backupTables, "tables", nil, "Tables to back up (default all)")

	backupsRollbackCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation")
}

func parseBackupType(value string) (model.BackupType, error) {
	t := model.BackupType(strings.ToUpper(strings.ReplaceAll(value, "-", "_")))
	if !t.Valid() {
		return "", fmt.Errorf("unknown backup type: %s", value)
	}
	return t, nil
}

func runBackupsList(cmd *cobra.Command, args []string) error {
	filter := model.BackupFilter{Table: listTable}
	if listBackupType != "" {
		t, err := parseBackupType(listBackupType)
		if err != nil {
			return err
		}
		filter.Type = t
	}

	return withApp(func(a *app.App) error {
		list, err := a.Backups().ListBackups(context.Background(), filter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println(color.YellowString("No backups."))
			fmt.Println("\nUse 'syncguard backups create' to take one")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Created", "Type", "Tables", "Size", "Compressed"})
		for _, b := range list {
			tables := "all"
			if len(b.Tables) > 0 {
				tables = strings.Join(b.Tables, ", ")
			}
			t.AppendRow(table.Row{
				b.ID,
				util.FormatAgo(b.Timestamp),
				string(b.Type),
				tables,
				util.FormatBytes(b.Size),
				fmt.Sprintf("%v", b.Compressed),
			})
		}
		t.Render()
		return nil
	})
}

func runBackupsCreate(cmd *cobra.Command, args []string) error {
	t, err := parseBackupType(backupType)
	if err != nil {
		return err
	}

	return withApp(func(a *app.App) error {
		info, err := a.Backups().CreateBackup(context.Background(), t, backupTables)
		if err != nil {
			return err
		}

		fmt.Printf("%s Created %s backup %s\n", color.GreenString("✓"), info.Type, info.ID)
		fmt.Printf("  Tables  : %s\n", strings.Join(info.Tables, ", "))
		fmt.Printf("  Size    : %s\n", util.FormatBytes(info.Size))
		fmt.Printf("  Location: %s\n", info.Location)
		return nil
	})
}

func runBackupsVerify(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		ok, err := a.Backups().VerifyBackup(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("backup %s failed verification", args[0])
		}
		fmt.Printf("%s Backup %s is intact\n", color.GreenString("✓"), args[0])
		return nil
	})
}

func runBackupsCleanup(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		n, err := a.Backups().Cleanup(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%s Removed %d backups\n", color.GreenString("✓"), n)
		return nil
	})
}

func runBackupsRollback(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		ctx := context.Background()

		if len(args) == 0 {
			points, err := a.Rollbacks().List(ctx)
			if err != nil {
				return err
			}
			if len(points) == 0 {
				fmt.Println(color.YellowString("No rollback points."))
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Backup", "Operations", "Created", "Expires"})
			for _, p := range points {
				t.AppendRow(table.Row{
					p.ID,
					p.Name,
					p.BackupID,
					strings.Join(p.OperationIDs, ", "),
					util.FormatAgo(p.CreatedAt),
					formatDuration(time.Until(p.ExpiresAt)),
				})
			}
			t.Render()
			return nil
		}

		point, err := a.Rollbacks().Get(ctx, args[0])
		if err != nil {
			return err
		}

		if !skipConfirm {
			fmt.Println(color.YellowString("⚠️  Warning: This restores every table in backup %s", point.BackupID))
			var confirm bool
			prompt := &survey.Confirm{
				Message: "Roll back?",
				Default: false,
			}
			if err := survey.AskOne(prompt, &confirm); err != nil || !confirm {
				return nil
			}
		}

		if _, err := a.Rollbacks().Rollback(ctx, point.ID, a.Backups()); err != nil {
			return err
		}
		fmt.Printf("%s Rolled back to backup %s\n", color.GreenString("✓"), point.BackupID)
		return nil
	})
}
