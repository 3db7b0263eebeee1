package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VatsalSy/SyncGuard/internal/app"
	"github.com/VatsalSy/SyncGuard/internal/config"
)

var (
	cfgFile string
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "syncguard",
		Short: "Failure classification and recovery for sync operations",
		Long: `SyncGuard classifies failed sync operations and drives them
through recovery strategies.

Features:
  • Rule-based failure classification
  • Retry, backoff, conflict resolution and backup restore
  • Structured error log with statistics and trends
  • Table backups with rollback points
  • Prometheus metrics`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.syncguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(maintenanceCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}

func initConfig() {
	if _, err := os.Stat(config.DataDir()); os.IsNotExist(err) {
		os.MkdirAll(config.DataDir(), 0755)
	}
	if verbose {
		viper.Set("log.level", "debug")
	}
}

// startApp loads the configuration and initializes the application. The
// caller must Stop it.
func startApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", config.ConfigPath())
	}

	application, err := app.New()
	if err != nil {
		return nil, err
	}
	if err := application.Initialize(cfg); err != nil {
		application.Stop()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return application, nil
}

// withApp runs fn against an initialized application.
func withApp(fn func(a *app.App) error) error {
	application, err := startApp()
	if err != nil {
		return err
	}
	defer application.Stop()
	return fn(application)
}
