package recovery

import (
	"context"

	"github.com/VatsalSy/SyncGuard/internal/model"
)

// BackupManager owns backup snapshots. The dispatcher only verifies and
// restores; creation is scheduled elsewhere.
type BackupManager interface {
	CreateBackup(ctx context.Context, backupType model.BackupType, tables []string) (*model.BackupInfo, error)
	RestoreFromBackup(ctx context.Context, backupID string, tables []string) (bool, error)
	VerifyBackup(ctx context.Context, backupID string) (bool, error)
	ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error)
	Cleanup(ctx context.Context) (int, error)
}

// RollbackRecorder creates rollback points before risky recoveries.
type RollbackRecorder interface {
	Create(ctx context.Context, name, backupID string, operationIDs []string) (*model.RollbackPoint, error)
}

// Resyncer resets local table state and pulls it again from the remote.
type Resyncer interface {
	ResetTable(ctx context.Context, table string) error
	Resync(ctx context.Context, table string) error
}

// PolicyLookup returns the conflict policy for a table.
type PolicyLookup interface {
	PolicyFor(table string) (model.ConflictPolicy, bool)
}

// ResolutionApplier writes a resolved record back to the store.
type ResolutionApplier interface {
	ApplyResolution(ctx context.Context, table, recordID string, record *model.Record) error
}
