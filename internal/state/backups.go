package state

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// ErrBackupNotFound is returned when a backup id is not in the catalog.
var ErrBackupNotFound = stderrors.New("backup not found")

// BackupStore is the backup catalog.
type BackupStore struct {
	db DBInterface
}

// NewBackupStore creates a new backup store.
func NewBackupStore(db DBInterface) *BackupStore {
	return &BackupStore{db: db}
}

// Save inserts or replaces a catalog entry.
func (s *BackupStore) Save(ctx context.Context, b *model.BackupInfo) error {
	if b == nil || b.ID == "" {
		return errors.Configuration("save_backup", "backup id is required")
	}
	if !b.Type.Valid() {
		return errors.Configuration("save_backup", "unknown backup type %q", b.Type)
	}

	row, err := newBackupRow(b)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeBackup, "save_backup", err)
	}

	query := `
    INSERT OR REPLACE INTO backups (
      id, created_at, backup_type, size, location, checksum, tables, compressed, encrypted, base_ids
    ) VALUES (
      :id, :created_at, :backup_type, :size, :location, :checksum, :tables, :compressed, :encrypted, :base_ids
    )`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.WrapTyped(errors.ErrorTypeBackup, "save_backup", fmt.Errorf("failed to save backup %s: %w", b.ID, err))
	}
	return nil
}

// Get retrieves a backup by ID.
func (s *BackupStore) Get(ctx context.Context, id string) (*model.BackupInfo, error) {
	var row BackupRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM backups WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return nil, errors.WrapTyped(errors.ErrorTypeBackup, "get_backup", err)
	}
	return row.Info()
}

// List returns catalog entries matching filter, newest first.
func (s *BackupStore) List(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error) {
	query := `SELECT * FROM backups`
	var args []interface{}
	if filter.Type != "" {
		query += ` WHERE backup_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var rows []BackupRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeBackup, "list_backups", err)
	}

	out := make([]*model.BackupInfo, 0, len(rows))
	for i := range rows {
		info, err := rows[i].Info()
		if err != nil {
			return nil, errors.WrapTyped(errors.ErrorTypeBackup, "list_backups", err)
		}
		// Table coverage lives in a JSON column, so it is matched here.
		if !filter.Match(info) {
			continue
		}
		out = append(out, info)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Delete removes a catalog entry.
func (s *BackupStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeBackup, "delete_backup", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	return nil
}
