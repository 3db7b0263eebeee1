package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VatsalSy/SyncGuard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View SyncGuard configuration",
	Long: `View the effective SyncGuard configuration.

Configuration is read from:
  • The config file ($HOME/.syncguard/config.yaml or --config)
  • Environment variables (SYNCGUARD_*)
  • Built-in defaults`,
	Example: `  # View all configuration
  syncguard config show

  # View one setting
  syncguard config get recovery.max_attempts

  # Write the effective configuration to the config file
  syncguard config save`,
}

var (
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigList()
		},
	}

	configGetCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Get configuration value",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigGet,
	}

	configSaveCmd = &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to the config file",
		RunE:  runConfigSave,
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSaveCmd)

	configCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConfigList()
	}
}

// ConfigItem is one row of the configuration listing.
type ConfigItem struct {
	Key         string
	Description string
	Value       string
}

func runConfigList() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	fmt.Println(color.CyanString("⚙️  SyncGuard Configuration"))
	fmt.Println()
	fmt.Printf("Config file: %s\n\n", config.ConfigPath())

	groups := []struct {
		name  string
		items []ConfigItem
	}{
		{"Classifier", []ConfigItem{
			{"classifier.disk_space_floor", "Low disk threshold", cfg.Classifier.DiskSpaceFloor},
			{"classifier.memory_pressure", "Memory pressure (%)", fmt.Sprintf("%.0f", cfg.Classifier.MemoryPressure)},
			{"classifier.default_max_retries", "Default retry budget", fmt.Sprintf("%d", cfg.Classifier.DefaultMaxRetries)},
		}},
		{"Recovery", []ConfigItem{
			{"recovery.initial_retry_delay", "First retry delay", cfg.Recovery.InitialRetryDelay.String()},
			{"recovery.max_retry_delay", "Retry delay cap", cfg.Recovery.MaxRetryDelay.String()},
			{"recovery.backoff_multiplier", "Backoff multiplier", fmt.Sprintf("%.1f", cfg.Recovery.BackoffMultiplier)},
			{"recovery.retry_cooldown", "Resource retry cooldown", cfg.Recovery.RetryCooldown.String()},
			{"recovery.max_attempts", "Attempts per strategy", fmt.Sprintf("%d", cfg.Recovery.MaxAttempts)},
			{"recovery.retry_rate", "Retries per second", formatRate(cfg.Recovery.RetryRate)},
			{"recovery.workers", "Concurrent recoveries", fmt.Sprintf("%d", cfg.Recovery.Workers)},
		}},
		{"Backups", []ConfigItem{
			{"backup.source_dir", "Protected tables", cfg.Backup.SourceDir},
			{"backup.mirror_dir", "Remote mirror", cfg.Backup.MirrorDir},
			{"backup.directory", "Backup directory", cfg.Backup.Directory},
			{"backup.compress", "Compress backups", fmt.Sprintf("%v", cfg.Backup.Compress)},
			{"backup.max_backups", "Backups kept", fmt.Sprintf("%d", cfg.Backup.MaxBackups)},
			{"backup.max_age", "Backup max age", cfg.Backup.MaxAge.String()},
			{"backup.rollback_ttl", "Rollback point TTL", cfg.Backup.RollbackTTL.String()},
		}},
		{"Error Log", []ConfigItem{
			{"error_log.max_entries", "Entries kept", fmt.Sprintf("%d", cfg.ErrorLog.MaxEntries)},
			{"error_log.dedup_window", "Dedup window", formatWindow(cfg.ErrorLog)},
			{"error_log.persist", "Persist to database", fmt.Sprintf("%v", cfg.ErrorLog.Persist)},
		}},
		{"Advanced", []ConfigItem{
			{"database.path", "State database", cfg.Database.Path},
			{"metrics.enabled", "Prometheus metrics", fmt.Sprintf("%v", cfg.Metrics.Enabled)},
			{"metrics.address", "Metrics listener", cfg.Metrics.Address},
			{"log.level", "Log level", cfg.Log.Level},
			{"log.output", "Log output", cfg.Log.Output},
			{"log.file", "Log file path", cfg.Log.File},
		}},
	}

	for _, group := range groups {
		fmt.Println(color.YellowString(group.name + ":"))

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, AutoMerge: false, WidthMax: 32},
			{Number: 2, AutoMerge: false, WidthMax: 40},
			{Number: 3, AutoMerge: false, WidthMax: 50},
		})

		for _, item := range group.items {
			t.AppendRow(table.Row{item.Key, item.Description, notSet(item.Value)})
		}

		fmt.Println(t.Render())
		fmt.Println()
	}

	if len(cfg.Conflicts) > 0 {
		fmt.Println(color.YellowString("Conflict Policies:"))
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Table", "Strategy", "Field Priority"})
		tables := make([]string, 0, len(cfg.Conflicts))
		for name := range cfg.Conflicts {
			tables = append(tables, name)
		}
		sort.Strings(tables)
		for _, name := range tables {
			c := cfg.Conflicts[name]
			t.AppendRow(table.Row{name, c.Strategy, fmt.Sprintf("%d fields", len(c.FieldPriority))})
		}
		fmt.Println(t.Render())
		fmt.Println()
	}

	fmt.Println("Use 'syncguard config get <key>' to read one setting")
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		settings := flattenMap("", cfg.AllSettings())
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s=%v\n", key, settings[key])
		}
		return nil
	}

	key := args[0]
	if !viper.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	fmt.Println(viper.Get(key))
	return nil
}

func runConfigSave(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(cfgFile); err != nil {
		return err
	}

	path := config.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Overwrite %s?", path),
			Default: false,
		}
		if err := survey.AskOne(prompt, &overwrite); err != nil || !overwrite {
			return nil
		}
	}

	if err := config.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	fmt.Println(color.GreenString("✓ Configuration written to %s", path))
	return nil
}

func formatRate(rate float64) string {
	if rate <= 0 {
		return "(unlimited)"
	}
	return fmt.Sprintf("%.1f", rate)
}

func formatWindow(c config.ErrorLogConfig) string {
	if c.DedupWindow <= 0 {
		return "(session)"
	}
	return c.DedupWindow.String()
}
