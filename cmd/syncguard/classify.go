package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/VatsalSy/SyncGuard/internal/app"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/runner"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <jobs.yaml>",
	Short: "Classify failed operations without recovering them",
	Long: `Read failed operations from a YAML job file and show how each one
would be classified: failure type, severity, recoverability and the
recommended recovery action.`,
	Example: `  # Classify every operation in a job file
  syncguard classify failures.yaml

  # Read the job file from stdin
  cat failures.yaml | syncguard classify -`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	jobs, err := readJobs(args[0])
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println(color.YellowString("No operations in %s", args[0]))
		return nil
	}

	return withApp(func(a *app.App) error {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Operation", "Table", "Failure", "Severity", "Recoverable", "Action", "ETA"})

		for _, job := range jobs {
			c, err := a.Classifier().Classify(job.Operation, job.State)
			if err != nil {
				t.AppendRow(table.Row{job.Operation.ID, job.Operation.Table, color.RedString(err.Error()), "", "", "", ""})
				continue
			}
			t.AppendRow(table.Row{
				job.Operation.ID,
				job.Operation.Table,
				string(c.FailureType),
				severityColor(c.Severity),
				yesNo(c.Recoverable),
				string(c.RecommendedAction),
				formatDuration(c.EstimatedRecoveryTime),
			})
		}

		t.Render()
		return nil
	})
}

func readJobs(path string) ([]runner.Job, error) {
	if path == "-" {
		return runner.LoadJobs(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job file: %w", err)
	}
	defer f.Close()
	return runner.LoadJobs(f)
}

func severityColor(s model.FailureSeverity) string {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(s.String())
	case model.SeverityHigh:
		return color.RedString(s.String())
	case model.SeverityMedium:
		return color.YellowString(s.String())
	default:
		return s.String()
	}
}

func yesNo(v bool) string {
	if v {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}
