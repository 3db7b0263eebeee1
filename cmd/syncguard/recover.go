package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/VatsalSy/SyncGuard/internal/app"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/runner"
	"github.com/VatsalSy/SyncGuard/internal/util"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <jobs.yaml>",
	Short: "Classify and recover failed operations",
	Long: `Drive every failed operation in a YAML job file through recovery.

Operations are classified, logged to the error log, and handed to the
recovery strategy that fits their failure type. Operations sharing an id
are recovered one at a time, in file order. Press Ctrl+C to cancel; any
operation not yet started reports the cancellation.`,
	Example: `  # Recover with a backup taken first
  syncguard recover failures.yaml --backup

  # Recover without progress output
  syncguard recover failures.yaml --no-progress`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

var (
	backupFirst bool
	noProgress  bool
)

func init() {
	recoverCmd.Flags().BoolVar(&backupFirst, "backup", false,
		"Take a full backup of every table before recovering")
	recoverCmd.Flags().BoolVar(&noProgress, "no-progress", false,
		"Disable the progress bar")
}

func runRecover(cmd *cobra.Command, args []string) error {
	jobs, err := readJobs(args[0])
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println(color.YellowString("No operations in %s", args[0]))
		return nil
	}

	return withApp(func(a *app.App) error {
		ctx := context.Background()

		fmt.Println(color.CyanString("SyncGuard Recovery"))
		fmt.Printf("Operations: %d | Workers: %d\n\n", len(jobs), a.Config().Recovery.Workers)

		if backupFirst {
			info, err := a.Backups().CreateBackup(ctx, model.BackupFull, nil)
			if err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
			fmt.Printf("%s Backup %s (%s)\n\n", color.GreenString("✓"), info.ID, util.FormatBytes(info.Size))
		}

		var (
			bar *progressbar.ProgressBar
			mu  sync.Mutex
		)
		if !noProgress {
			bar = progressbar.NewOptions(len(jobs),
				progressbar.OptionSetDescription("Recovering"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
		}

		outcomes, runErr := a.RunRecovery(ctx, jobs, func(runner.Outcome) {
			if bar == nil {
				return
			}
			mu.Lock()
			bar.Add(1)
			mu.Unlock()
		})
		if outcomes == nil && runErr != nil {
			return runErr
		}

		printOutcomes(outcomes)

		if runErr != nil {
			fmt.Println(color.YellowString("\nRecovery interrupted: %v", runErr))
		}
		return nil
	})
}

func printOutcomes(outcomes []runner.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Operation", "Failure", "Strategy", "Status", "Duration", "Next", "Message"})

	recovered := 0
	for _, out := range outcomes {
		failure := "-"
		if out.Classification != nil {
			failure = string(out.Classification.FailureType)
		}

		strategy, next, message := "-", "-", ""
		elapsed := "-"
		if r := out.Result; r != nil {
			strategy = r.Strategy
			if r.NextAction != "" {
				next = string(r.NextAction)
			}
			message = r.Message
			if msg := r.ErrorMessage(); msg != "" {
				message = msg
			}
			elapsed = formatDuration(r.Duration)
		}
		if out.Err != nil {
			message = out.Err.Error()
		}

		status := color.RedString("FAILED")
		if out.Recovered() {
			status = color.GreenString("RECOVERED")
			recovered++
		}

		t.AppendRow(table.Row{out.OperationID, failure, strategy, status, elapsed, next, message})
	}

	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d/%d", recovered, len(outcomes)), "", "", ""})
	t.Render()
}
