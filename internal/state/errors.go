package state

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/errors"
)

// ErrorStore persists the error log. It implements errorlog.Store.
type ErrorStore struct {
	db DBInterface
}

var _ errorlog.Store = (*ErrorStore)(nil)

// NewErrorStore creates a new error store.
func NewErrorStore(db DBInterface) *ErrorStore {
	return &ErrorStore{db: db}
}

// SaveError upserts an entry and marks it most recent.
func (s *ErrorStore) SaveError(ctx context.Context, e *errorlog.ErrorContext) error {
	row, err := newErrorRow(e)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "save_error", err)
	}

	query := `
    INSERT INTO error_log (
      id, seq, code, message, error_type, severity, component, recoverable,
      count, occurred_at, last_occurrence, recovery_time_ms, payload
    ) VALUES (
      :id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM error_log), :code, :message,
      :error_type, :severity, :component, :recoverable,
      :count, :occurred_at, :last_occurrence, :recovery_time_ms, :payload
    )
    ON CONFLICT(id) DO UPDATE SET
      seq = (SELECT COALESCE(MAX(seq), 0) + 1 FROM error_log),
      count = excluded.count,
      last_occurrence = excluded.last_occurrence,
      recovery_time_ms = excluded.recovery_time_ms,
      payload = excluded.payload`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "save_error", fmt.Errorf("failed to save error %s: %w", e.ID, err))
	}
	return nil
}

// UpdateError rewrites an existing entry without changing its position.
func (s *ErrorStore) UpdateError(ctx context.Context, e *errorlog.ErrorContext) error {
	row, err := newErrorRow(e)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "update_error", err)
	}

	query := `
    UPDATE error_log SET
      count = :count,
      last_occurrence = :last_occurrence,
      recovery_time_ms = :recovery_time_ms,
      payload = :payload
    WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "update_error", fmt.Errorf("failed to update error %s: %w", e.ID, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrorTypeStorage, "update_error", e.ID, fmt.Errorf("error entry not found"))
	}
	return nil
}

// DeleteErrors removes entries by ID.
func (s *ErrorStore) DeleteErrors(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM error_log WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "delete_errors", err)
	}
	return nil
}

// ClearErrors removes every entry.
func (s *ErrorStore) ClearErrors(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM error_log`); err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "clear_errors", err)
	}
	return nil
}

// LoadErrors returns up to limit entries, most recently saved first.
// limit <= 0 returns every entry.
func (s *ErrorStore) LoadErrors(ctx context.Context, limit int) ([]*errorlog.ErrorContext, error) {
	var rows []ErrorRow
	query := `SELECT * FROM error_log ORDER BY seq DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "load_errors", err)
	}

	out := make([]*errorlog.ErrorContext, 0, len(rows))
	for i := range rows {
		e, err := rows[i].Entry()
		if err != nil {
			return nil, errors.WrapTyped(errors.ErrorTypeStorage, "load_errors",
				fmt.Errorf("corrupt payload for error %s: %w", rows[i].ID, err))
		}
		out = append(out, e)
	}
	return out, nil
}

// CountByCode returns how many occurrences were persisted per code.
func (s *ErrorStore) CountByCode(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Code  string `db:"code"`
		Total int    `db:"total"`
	}
	query := `SELECT code, SUM(count) AS total FROM error_log GROUP BY code`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "count_errors", err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Code] = r.Total
	}
	return out, nil
}
