package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/VatsalSy/SyncGuard/internal/app"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/state"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the recovery event audit trail",
	Example: `  # Events for one operation
  syncguard events --operation op-42

  # Failed recoveries in the last hour
  syncguard events --type RECOVERY_FAILED --since 1h`,
	RunE: runEvents,
}

var (
	eventOperation string
	eventType      string
	eventSince     time.Duration
	eventLimit     int
)

func init() {
	eventsCmd.Flags().StringVar(&eventOperation, "operation", "", "Only events for this operation id")
	eventsCmd.Flags().StringVar(&eventType, "type", "", "Only events of this type")
	eventsCmd.Flags().DurationVar(&eventSince, "since", 0, "Only events newer than this")
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 50, "Maximum events to show (0 for all)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	filter := state.EventFilter{
		OperationID: eventOperation,
		Type:        events.EventType(eventType),
		Limit:       eventLimit,
	}
	if eventSince > 0 {
		filter.Since = time.Now().Add(-eventSince)
	}

	return withApp(func(a *app.App) error {
		list, err := a.Events().List(context.Background(), filter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println(color.YellowString("No recovery events recorded."))
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Time", "Type", "Operation", "Action", "Result"})
		for _, e := range list {
			t.AppendRow(table.Row{
				formatTime(e.Timestamp),
				eventLabel(e.Type),
				notSet(e.OperationID),
				notSet(string(e.Action)),
				eventResult(e),
			})
		}
		t.Render()
		return nil
	})
}

func eventLabel(t events.EventType) string {
	switch t {
	case events.EventRecoveryCompleted:
		return color.GreenString(string(t))
	case events.EventRecoveryFailed:
		return color.RedString(string(t))
	case events.EventFailureDetected:
		return color.YellowString(string(t))
	default:
		return string(t)
	}
}

func eventResult(e events.Event) string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Result != nil:
		if e.Result.Message != "" {
			return fmt.Sprintf("%s (%s)", e.Result.Message, formatDuration(e.Result.Duration))
		}
		return formatDuration(e.Result.Duration)
	default:
		return ""
	}
}
