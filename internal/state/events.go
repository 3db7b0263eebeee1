/**
 * Recovery Event Audit Trail
 *
 * Persists every event published on the recovery bus so the history
 * survives restarts and can be queried per operation.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-10
 */

package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
)

// EventFilter narrows event queries. Zero values match everything.
type EventFilter struct {
	OperationID string
	Type        events.EventType
	Since       time.Time
	Limit       int
}

// EventStore persists recovery events.
type EventStore struct {
	db DBInterface
}

// NewEventStore creates a new event store.
func NewEventStore(db DBInterface) *EventStore {
	return &EventStore{db: db}
}

// Record stores one event. Recording the same event twice is a no-op.
func (s *EventStore) Record(ctx context.Context, e events.Event) error {
	if e.ID == "" {
		return errors.Configuration("record_event", "event has no id")
	}

	row, err := newEventRow(e)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "record_event", err)
	}

	query := `
    INSERT OR IGNORE INTO recovery_events (
      id, event_type, operation_id, action, success, error, occurred_at, payload
    ) VALUES (
      :id, :event_type, :operation_id, :action, :success, :error, :occurred_at, :payload
    )`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "record_event", fmt.Errorf("failed to record event %s: %w", e.ID, err))
	}
	return nil
}

// List returns matching events, oldest first.
func (s *EventStore) List(ctx context.Context, filter EventFilter) ([]events.Event, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.OperationID != "" {
		where = append(where, "operation_id = ?")
		args = append(args, filter.OperationID)
	}
	if filter.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, dbTime(filter.Since))
	}

	query := `SELECT * FROM recovery_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// Newest first so a limit keeps the latest events.
	query += " ORDER BY occurred_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []EventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "list_events", err)
	}

	out := make([]events.Event, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		e, err := rows[i].Event()
		if err != nil {
			return nil, errors.WrapTyped(errors.ErrorTypeStorage, "list_events",
				fmt.Errorf("corrupt payload for event %s: %w", rows[i].ID, err))
		}
		out = append(out, e)
	}
	return out, nil
}

// CountByType returns the number of stored events per type.
func (s *EventStore) CountByType(ctx context.Context) (map[events.EventType]int, error) {
	var rows []struct {
		EventType string `db:"event_type"`
		Total     int    `db:"total"`
	}
	query := `SELECT event_type, COUNT(*) AS total FROM recovery_events GROUP BY event_type`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "count_events", err)
	}

	out := make(map[events.EventType]int, len(rows))
	for _, r := range rows {
		out[events.EventType(r.EventType)] = r.Total
	}
	return out, nil
}

// Prune deletes events older than cutoff and returns how many were removed.
func (s *EventStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recovery_events WHERE occurred_at < ?`, dbTime(cutoff))
	if err != nil {
		return 0, errors.WrapTyped(errors.ErrorTypeStorage, "prune_events", err)
	}
	return res.RowsAffected()
}

// Handler returns a bus handler that records events. Failures are logged
// and dropped so publishing never blocks on storage.
func (s *EventStore) Handler(log *logger.Logger) events.Handler {
	if log == nil {
		log = logger.Global()
	}
	return func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.Record(ctx, e); err != nil {
			log.Warn("Failed to record recovery event",
				"event_id", e.ID,
				"event_type", string(e.Type),
				"error", err.Error(),
			)
		}
	}
}
