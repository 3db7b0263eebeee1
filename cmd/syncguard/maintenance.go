package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/VatsalSy/SyncGuard/internal/app"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Prune old events, compact storage and apply backup retention",
	RunE:  runMaintenance,
}

var eventRetention time.Duration

func init() {
	maintenanceCmd.Flags().DurationVar(&eventRetention, "retention", 30*24*time.Hour,
		"Keep recovery events newer than this (0 keeps all)")
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		removed, err := a.Maintenance(context.Background(), eventRetention)
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓ Maintenance complete"))
		fmt.Printf("  Backups removed: %d\n", removed)
		return nil
	})
}
