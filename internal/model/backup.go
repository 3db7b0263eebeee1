/**
 * Backup and Rollback Model
 *
 * Author: SyncGuard Team
 * Created: 2026-10-03
 */

package model

import "time"

// BackupType is the scope of one backup snapshot.
type BackupType string

const (
	BackupFull        BackupType = "FULL"
	BackupIncremental BackupType = "INCREMENTAL"
	BackupSchemaOnly  BackupType = "SCHEMA_ONLY"
)

// Valid reports whether t is a known backup type.
func (t BackupType) Valid() bool {
	return t == BackupFull || t == BackupIncremental || t == BackupSchemaOnly
}

// BackupInfo is the metadata for one backup snapshot.
type BackupInfo struct {
	ID         string     `json:"id" db:"id"`
	Timestamp  time.Time  `json:"timestamp" db:"created_at"`
	Type       BackupType `json:"type" db:"backup_type"`
	Size       int64      `json:"size" db:"size"`
	Location   string     `json:"location" db:"location"`
	Checksum   string     `json:"checksum" db:"checksum"`
	Tables     []string   `json:"tables" db:"-"`
	Compressed bool       `json:"compressed" db:"compressed"`
	Encrypted  bool       `json:"encrypted" db:"encrypted"`

	// BaseIDs lists the backups an incremental backup builds on, one per
	// table chain. Restoring needs every base.
	BaseIDs []string `json:"baseIds,omitempty" db:"-"`
}

// Covers reports whether the backup includes the given table.
// A backup with no table list covers every table.
func (b *BackupInfo) Covers(table string) bool {
	if b == nil {
		return false
	}
	if len(b.Tables) == 0 {
		return true
	}
	for _, t := range b.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// HasData reports whether restoring the backup brings back row data.
func (b *BackupInfo) HasData() bool {
	return b != nil && b.Type != BackupSchemaOnly
}

// BackupFilter narrows ListBackups results. Zero values match everything.
type BackupFilter struct {
	Type  BackupType
	Table string
	Since time.Time
	Limit int
}

// Match reports whether b satisfies the filter, ignoring Limit.
func (f BackupFilter) Match(b *BackupInfo) bool {
	if f.Type != "" && b.Type != f.Type {
		return false
	}
	if f.Table != "" && !b.Covers(f.Table) {
		return false
	}
	if !f.Since.IsZero() && b.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// RollbackPoint ties a backup to the operations that would be undone by
// rolling back to it.
type RollbackPoint struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BackupID     string    `json:"backupId"`
	OperationIDs []string  `json:"operationIds"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the point is past its expiry. Points without an
// expiry never expire.
func (p *RollbackPoint) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}
