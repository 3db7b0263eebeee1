/**
 * Row Models for SyncGuard State Management
 *
 * Features:
 * - Struct definitions matching database schema
 * - Conversion to and from domain types
 *
 * Author: SyncGuard Team
 * Update History:
 * - 2026-10-10: Error log, recovery event and backup rows
 */

package state

import (
	"database/sql"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// ErrorRow is one persisted error log entry. Indexed columns duplicate the
// fields used for filtering; Payload holds the full entry as JSON.
type ErrorRow struct {
	ID             string    `db:"id"`
	Seq            int64     `db:"seq"`
	Code           string    `db:"code"`
	Message        string    `db:"message"`
	ErrorType      string    `db:"error_type"`
	Severity       string    `db:"severity"`
	Component      string    `db:"component"`
	Recoverable    bool      `db:"recoverable"`
	Count          int       `db:"count"`
	OccurredAt     time.Time `db:"occurred_at"`
	LastOccurrence time.Time `db:"last_occurrence"`
	RecoveryTimeMS int64     `db:"recovery_time_ms"`
	Payload        string    `db:"payload"`
}

func newErrorRow(e *errorlog.ErrorContext) (*ErrorRow, error) {
	payload, err := encodeJSON(e)
	if err != nil {
		return nil, err
	}
	return &ErrorRow{
		ID:             e.ID,
		Code:           e.Code,
		Message:        e.Message,
		ErrorType:      string(e.Type),
		Severity:       string(e.Severity),
		Component:      e.Component(),
		Recoverable:    e.Recoverable,
		Count:          e.Count,
		OccurredAt:     dbTime(e.Timestamp),
		LastOccurrence: dbTime(e.LastOccurrence),
		RecoveryTimeMS: e.RecoveryTime.Milliseconds(),
		Payload:        payload,
	}, nil
}

// Entry decodes the stored error entry.
func (r *ErrorRow) Entry() (*errorlog.ErrorContext, error) {
	var e errorlog.ErrorContext
	if err := decodeJSON(r.Payload, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventRow is one persisted recovery event.
type EventRow struct {
	ID          string       `db:"id"`
	EventType   string       `db:"event_type"`
	OperationID string       `db:"operation_id"`
	Action      string       `db:"action"`
	Success     sql.NullBool `db:"success"`
	Error       string       `db:"error"`
	OccurredAt  time.Time    `db:"occurred_at"`
	Payload     string       `db:"payload"`
}

func newEventRow(e events.Event) (*EventRow, error) {
	payload, err := encodeJSON(e)
	if err != nil {
		return nil, err
	}

	row := &EventRow{
		ID:          e.ID,
		EventType:   string(e.Type),
		OperationID: e.OperationID,
		Action:      string(e.Action),
		Error:       e.Error,
		OccurredAt:  dbTime(e.Timestamp),
		Payload:     payload,
	}
	if e.Result != nil {
		row.Success = NewNullBool(e.Result.Success, true)
	}
	return row, nil
}

// Event decodes the stored event.
func (r *EventRow) Event() (events.Event, error) {
	var e events.Event
	err := decodeJSON(r.Payload, &e)
	return e, err
}

// BackupRow is one catalog entry.
type BackupRow struct {
	model.BackupInfo
	TablesJSON  string `db:"tables"`
	BaseIDsJSON string `db:"base_ids"`
}

func newBackupRow(b *model.BackupInfo) (*BackupRow, error) {
	tables := b.Tables
	if tables == nil {
		tables = []string{}
	}
	encoded, err := encodeJSON(tables)
	if err != nil {
		return nil, err
	}
	bases := b.BaseIDs
	if bases == nil {
		bases = []string{}
	}
	encodedBases, err := encodeJSON(bases)
	if err != nil {
		return nil, err
	}
	row := &BackupRow{BackupInfo: *b, TablesJSON: encoded, BaseIDsJSON: encodedBases}
	row.Timestamp = dbTime(b.Timestamp)
	return row, nil
}

// Info converts the row to a BackupInfo.
func (r *BackupRow) Info() (*model.BackupInfo, error) {
	info := r.BackupInfo
	info.Tables = nil
	if r.TablesJSON != "" {
		var tables []string
		if err := decodeJSON(r.TablesJSON, &tables); err != nil {
			return nil, err
		}
		if len(tables) > 0 {
			info.Tables = tables
		}
	}
	info.BaseIDs = nil
	if r.BaseIDsJSON != "" {
		var bases []string
		if err := decodeJSON(r.BaseIDsJSON, &bases); err != nil {
			return nil, err
		}
		if len(bases) > 0 {
			info.BaseIDs = bases
		}
	}
	return &info, nil
}
