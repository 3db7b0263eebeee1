package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/VatsalSy/SyncGuard/internal/app"
	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
	"github.com/VatsalSy/SyncGuard/internal/util"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect the application error log",
	Long: `View, search and manage logged application errors.

Repeated errors with the same code, message and component are
deduplicated into one entry with a count.`,
	Example: `  # Show the most recent errors
  syncguard errors list --limit 20

  # Only critical network errors
  syncguard errors list --type network --severity critical

  # Error statistics and the last 24 hours of trend
  syncguard errors stats
  syncguard errors trend

  # Export to CSV
  syncguard errors export --format csv -o errors.csv`,
}

var (
	errorsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List logged errors, newest first",
		RunE:  runErrorsList,
	}

	errorsLogCmd = &cobra.Command{
		Use:   "log <code> <message>",
		Short: "Record an error",
		Args:  cobra.ExactArgs(2),
		RunE:  runErrorsLog,
	}

	errorsSearchCmd = &cobra.Command{
		Use:   "search <text>",
		Short: "Search error messages, codes and components",
		Args:  cobra.ExactArgs(1),
		RunE:  runErrorsSearch,
	}

	errorsResolveCmd = &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an error as recovered",
		Args:  cobra.ExactArgs(1),
		RunE:  runErrorsResolve,
	}

	errorsStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show error statistics",
		RunE:  runErrorsStats,
	}

	errorsTrendCmd = &cobra.Command{
		Use:   "trend",
		Short: "Show error counts over time",
		RunE:  runErrorsTrend,
	}

	errorsExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export the error log as JSON or CSV",
		RunE:  runErrorsExport,
	}

	errorsImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON error export",
		Args:  cobra.ExactArgs(1),
		RunE:  runErrorsImport,
	}

	errorsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every logged error",
		RunE:  runErrorsClear,
	}
)

var (
	errType      string
	errSeverity  string
	errCode      string
	errLimit     int
	errComponent string
	errFunction  string
	errAfter     time.Duration
	trendHours   int
	trendBucket  time.Duration
	exportFormat string
	exportOutput string
	skipConfirm  bool
)

func init() {
	errorsCmd.AddCommand(errorsListCmd)
	errorsCmd.AddCommand(errorsLogCmd)
	errorsCmd.AddCommand(errorsSearchCmd)
	errorsCmd.AddCommand(errorsResolveCmd)
	errorsCmd.AddCommand(errorsStatsCmd)
	errorsCmd.AddCommand(errorsTrendCmd)
	errorsCmd.AddCommand(errorsExportCmd)
	errorsCmd.AddCommand(errorsImportCmd)
	errorsCmd.AddCommand(errorsClearCmd)

	errorsListCmd.Flags().StringVar(&errType, "type", "", "Filter by error type (network, component, validation, state, task, sse)")
	errorsListCmd.Flags().StringVar(&errSeverity, "severity", "", "Filter by severity (low, medium, high, critical)")
	errorsListCmd.Flags().StringVar(&errCode, "code", "", "Filter by error code")
	errorsListCmd.Flags().IntVarP(&errLimit, "limit", "n", 50, "Maximum entries to show (0 for all)")

	errorsLogCmd.Flags().StringVar(&errComponent, "component", "cli", "Component that raised the error")
	errorsLogCmd.Flags().StringVar(&errFunction, "function", "", "Function that raised the error")

	errorsResolveCmd.Flags().DurationVar(&errAfter, "after", 0, "Time the recovery took")

	errorsTrendCmd.Flags().IntVar(&trendHours, "hours", 24, "Hours of history to cover")
	errorsTrendCmd.Flags().DurationVar(&trendBucket, "bucket", time.Hour, "Bucket width")

	errorsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format (json, csv)")
	errorsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")

	errorsClearCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation")
}

func runErrorsList(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		entries, err := filterErrors(a.ErrorLog())
		if err != nil {
			return err
		}
		if errLimit > 0 && len(entries) > errLimit {
			entries = entries[:errLimit]
		}
		printErrors(entries)
		return nil
	})
}

func filterErrors(log *errorlog.Logger) ([]errorlog.ErrorContext, error) {
	entries := log.GetHistory(0)

	if errType != "" {
		t, ok := taxonomy.ParseErrorType(errType)
		if !ok {
			return nil, fmt.Errorf("unknown error type: %s", errType)
		}
		entries = log.GetErrorsByType(t)
	}

	var keep []func(errorlog.ErrorContext) bool
	if errSeverity != "" {
		s, ok := taxonomy.ParseSeverity(errSeverity)
		if !ok {
			return nil, fmt.Errorf("unknown severity: %s", errSeverity)
		}
		keep = append(keep, func(e errorlog.ErrorContext) bool { return e.Severity == s })
	}
	if errCode != "" {
		keep = append(keep, func(e errorlog.ErrorContext) bool { return e.Code == errCode })
	}

	filtered := entries[:0]
	for _, e := range entries {
		ok := true
		for _, fn := range keep {
			ok = ok && fn(e)
		}
		if ok {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func printErrors(entries []errorlog.ErrorContext) {
	if len(entries) == 0 {
		fmt.Println(color.YellowString("No errors logged."))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 50},
	})
	t.AppendHeader(table.Row{"ID", "Last Seen", "Code", "Message", "Severity", "Component", "Count"})

	for _, e := range entries {
		t.AppendRow(table.Row{
			shortID(e.ID),
			util.FormatAgo(e.LastOccurrence),
			e.Code,
			e.Message,
			severityLabel(e.Severity),
			notSet(e.Component()),
			util.FormatCount(e.Count),
		})
	}
	t.Render()
}

func runErrorsLog(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		entry := errorlog.NewErrorContext(args[0], args[1]).WithLocation(errComponent, errFunction)
		stored := a.ErrorLog().Log(entry)
		if stored == nil {
			return fmt.Errorf("error was not recorded")
		}

		fmt.Printf("%s Logged %s (count %d)\n", color.GreenString("✓"), stored.ID, stored.Count)
		if stored.Type == "" {
			fmt.Println(color.YellowString("Code %s is not in the error taxonomy", stored.Code))
		}
		for _, action := range stored.SuggestedActions {
			fmt.Printf("  • %s\n", action)
		}
		return nil
	})
}

func runErrorsSearch(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		printErrors(a.ErrorLog().Search(args[0]))
		return nil
	})
}

func runErrorsResolve(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		log := a.ErrorLog()
		id := args[0]
		if _, ok := log.Get(id); !ok {
			id = expandID(log, id)
		}
		if !log.MarkRecovered(id, errAfter) {
			return fmt.Errorf("error not found: %s", args[0])
		}
		fmt.Printf("%s Marked %s as recovered\n", color.GreenString("✓"), id)
		return nil
	})
}

// expandID resolves the short id printed by list.
func expandID(log *errorlog.Logger, prefix string) string {
	match := ""
	for _, e := range log.GetHistory(0) {
		if strings.HasPrefix(e.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = e.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func runErrorsStats(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		stats := a.ErrorLog().GetStatistics()

		fmt.Println(color.CyanString("Error Statistics"))
		fmt.Println()
		fmt.Printf("  Total        : %s (%s unique)\n", util.FormatCount(stats.Total), util.FormatCount(stats.Unique))
		fmt.Printf("  Critical     : %s\n", util.FormatCount(stats.Critical))
		fmt.Printf("  Recoverable  : %s\n", util.FormatCount(stats.Recoverable))
		fmt.Printf("  Recovery rate: %.1f%%\n", stats.RecoveryRate*100)
		fmt.Printf("  Avg recovery : %s\n", formatDuration(stats.AverageRecoveryTime))
		fmt.Printf("  Last error   : %s\n", util.FormatAgo(stats.LastErrorAt))
		fmt.Println()

		for _, group := range []struct {
			title  string
			counts map[string]int
		}{
			{"By Type", stats.ByType},
			{"By Severity", stats.BySeverity},
		} {
			if len(group.counts) == 0 {
				continue
			}
			fmt.Println(color.YellowString(group.title + ":"))
			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			for _, k := range sortedKeys(group.counts) {
				t.AppendRow(table.Row{k, util.FormatCount(group.counts[k])})
			}
			fmt.Println(t.Render())
			fmt.Println()
		}

		if len(stats.TopErrors) > 0 {
			fmt.Println(color.YellowString("Top Errors:"))
			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Code", "Message", "Count"})
			for _, top := range stats.TopErrors {
				t.AppendRow(table.Row{top.Code, top.Message, util.FormatCount(top.Count)})
			}
			fmt.Println(t.Render())
		}
		return nil
	})
}

func runErrorsTrend(cmd *cobra.Command, args []string) error {
	if trendHours <= 0 || trendBucket <= 0 {
		return fmt.Errorf("--hours and --bucket must be positive")
	}

	return withApp(func(a *app.App) error {
		end := time.Now().UTC().Truncate(trendBucket).Add(trendBucket)
		window := errorlog.TrendWindow{
			Start:  end.Add(-time.Duration(trendHours) * time.Hour),
			End:    end,
			Bucket: trendBucket,
		}
		points := a.ErrorLog().Trend(window)
		if points == nil {
			return fmt.Errorf("trend window needs more than %d buckets; use a wider --bucket", errorlog.MaxTrendBuckets)
		}

		peak := 0
		for _, p := range points {
			if p.Count > peak {
				peak = p.Count
			}
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Bucket", "Count", ""})
		for _, p := range points {
			bar := ""
			if peak > 0 {
				bar = strings.Repeat("█", p.Count*30/peak)
			}
			t.AppendRow(table.Row{p.Start.Local().Format("Jan 2 15:04"), p.Count, color.RedString(bar)})
		}
		t.Render()
		return nil
	})
}

func runErrorsExport(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		var (
			data []byte
			err  error
		)
		switch strings.ToLower(exportFormat) {
		case "json":
			data, err = a.ErrorLog().Export()
		case "csv":
			data = a.ErrorLog().ExportAsCSV()
		default:
			return fmt.Errorf("unsupported format: %s", exportFormat)
		}
		if err != nil {
			return err
		}

		if exportOutput == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s Exported %d errors to %s\n", color.GreenString("✓"), a.ErrorLog().Len(), exportOutput)
		return nil
	})
}

func runErrorsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	return withApp(func(a *app.App) error {
		n, err := a.ErrorLog().Import(data)
		if err != nil {
			return err
		}
		fmt.Printf("%s Imported %d errors\n", color.GreenString("✓"), n)
		return nil
	})
}

func runErrorsClear(cmd *cobra.Command, args []string) error {
	if !skipConfirm {
		fmt.Println(color.YellowString("⚠️  Warning: This removes every logged error"))
		var confirm bool
		prompt := &survey.Confirm{
			Message: "Are you sure?",
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirm); err != nil || !confirm {
			return nil
		}
	}

	return withApp(func(a *app.App) error {
		n := a.ErrorLog().Clear()
		fmt.Printf("%s Removed %d errors\n", color.GreenString("✓"), n)
		return nil
	})
}

func severityLabel(s taxonomy.Severity) string {
	switch s {
	case taxonomy.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(string(s))
	case taxonomy.SeverityHigh:
		return color.RedString(string(s))
	case taxonomy.SeverityMedium:
		return color.YellowString(string(s))
	case "":
		return "-"
	default:
		return string(s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
