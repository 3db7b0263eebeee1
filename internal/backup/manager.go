/**
 * Backup Manager
 *
 * On-disk table snapshots with a sqlite catalog.
 *
 * Features:
 * - FULL, INCREMENTAL and SCHEMA_ONLY snapshots
 * - Incremental chains restored from their FULL base
 * - Optional gzip compression
 * - SHA-256 checksums verified before every restore
 * - Retention by count and age
 *
 * Author: SyncGuard Team
 * Created: 2026-10-11
 */

package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/recovery"
)

// Catalog stores backup metadata.
type Catalog interface {
	Save(ctx context.Context, b *model.BackupInfo) error
	Get(ctx context.Context, id string) (*model.BackupInfo, error)
	List(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error)
	Delete(ctx context.Context, id string) error
}

// Config configures a Manager.
type Config struct {
	Directory  string
	Compress   bool
	MaxBackups int           // 0 = unlimited
	MaxAge     time.Duration // 0 = unlimited
}

// snapshotFile is the on-disk document.
type snapshotFile struct {
	ID        string           `json:"id"`
	Type      model.BackupType `json:"type"`
	CreatedAt time.Time        `json:"createdAt"`
	Tables    []*TableSnapshot `json:"tables"`
}

func (d *snapshotFile) table(name string) *TableSnapshot {
	for _, snap := range d.Tables {
		if snap.Table == name {
			return snap
		}
	}
	return nil
}

// Manager implements recovery.BackupManager.
type Manager struct {
	source    Source
	catalog   Catalog
	publisher events.Publisher
	logger    *logger.Logger
	cfg       Config
	now       func() time.Time
}

var _ recovery.BackupManager = (*Manager)(nil)

// NewManager creates a backup manager.
func NewManager(cfg Config, source Source, catalog Catalog, publisher events.Publisher, log *logger.Logger) (*Manager, error) {
	if source == nil || catalog == nil {
		return nil, errors.Configuration("new_backup_manager", "source and catalog are required")
	}
	if cfg.Directory == "" {
		return nil, errors.Configuration("new_backup_manager", "backup directory is required")
	}
	if err := os.MkdirAll(cfg.Directory, 0750); err != nil {
		return nil, errors.New(errors.ErrorTypeBackup, "new_backup_manager", cfg.Directory, err)
	}
	if log == nil {
		log = logger.Global()
	}

	return &Manager{
		source:    source,
		catalog:   catalog,
		publisher: publisher,
		logger:    log,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// CreateBackup snapshots the given tables, or every table when none are
// given. Incremental backups capture rows changed since the newest backup
// holding data for each table and record that backup as the table's base.
// A table with no earlier data backup is captured in full.
func (m *Manager) CreateBackup(ctx context.Context, backupType model.BackupType, tables []string) (*model.BackupInfo, error) {
	if !backupType.Valid() {
		return nil, errors.Configuration("create_backup", "unknown backup type %q", backupType)
	}

	if len(tables) == 0 {
		all, err := m.source.Tables(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list tables")
		}
		tables = all
	}

	createdAt := m.now().UTC().Round(0)
	doc := snapshotFile{
		ID:        uuid.NewString(),
		Type:      backupType,
		CreatedAt: createdAt,
	}

	var bases []string
	for _, table := range tables {
		opts := SnapshotOptions{SchemaOnly: backupType == model.BackupSchemaOnly}
		var base *model.BackupInfo
		if backupType == model.BackupIncremental {
			var err error
			if base, err = m.lastDataBackup(ctx, table); err != nil {
				return nil, err
			}
			if base != nil {
				opts.Since = base.Timestamp
			}
		}

		snap, err := m.source.Snapshot(ctx, table, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot table %s", table)
		}
		if snap.Incremental && base != nil {
			snap.Base = base.ID
			bases = appendUnique(bases, base.ID)
		}
		doc.Tables = append(doc.Tables, snap)
	}

	data, err := m.encode(&doc)
	if err != nil {
		return nil, err
	}

	info := &model.BackupInfo{
		ID:         doc.ID,
		Timestamp:  createdAt,
		Type:       backupType,
		Size:       int64(len(data)),
		Location:   m.location(doc.ID),
		Checksum:   checksum(data),
		Tables:     append([]string(nil), tables...),
		Compressed: m.cfg.Compress,
		BaseIDs:    bases,
	}

	if err := os.WriteFile(info.Location, data, 0640); err != nil {
		return nil, errors.New(errors.ErrorTypeBackup, "create_backup", info.Location, err)
	}
	if err := m.catalog.Save(ctx, info); err != nil {
		os.Remove(info.Location)
		return nil, err
	}

	m.logger.Info("Backup created",
		"backup_id", info.ID,
		"type", string(info.Type),
		"tables", len(info.Tables),
		"size", info.Size,
	)
	if m.publisher != nil {
		m.publisher.Publish(events.Event{
			Type: events.EventBackupCreated,
			Metadata: map[string]interface{}{
				"backup_id": info.ID,
				"type":      string(info.Type),
				"size":      info.Size,
				"tables":    info.Tables,
			},
		})
	}

	return info, nil
}

func (m *Manager) lastDataBackup(ctx context.Context, table string) (*model.BackupInfo, error) {
	backups, err := m.catalog.List(ctx, model.BackupFilter{Table: table})
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		if b.HasData() {
			return b, nil
		}
	}
	return nil, nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func (m *Manager) location(id string) string {
	name := id + ".json"
	if m.cfg.Compress {
		name += ".gz"
	}
	return filepath.Join(m.cfg.Directory, name)
}

func (m *Manager) encode(doc *snapshotFile) ([]byte, error) {
	raw, err := sonic.ConfigStd.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	if !m.cfg.Compress {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, errors.Wrap(err, "compress snapshot")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "compress snapshot")
	}
	return buf.Bytes(), nil
}

func decode(info *model.BackupInfo, data []byte) (*snapshotFile, error) {
	if info.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, err
		}
	}

	var doc snapshotFile
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// load reads a backup file and checks it against the catalog.
func (m *Manager) load(ctx context.Context, id string) (*model.BackupInfo, *snapshotFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	info, err := m.catalog.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(info.Location)
	if err != nil {
		return info, nil, errors.New(errors.ErrorTypeBackup, "load_backup", info.Location, err)
	}
	if got := checksum(data); got != info.Checksum {
		return info, nil, errors.New(errors.ErrorTypeCorruption, "load_backup", info.Location,
			errors.Errorf("checksum mismatch: have %s, want %s", got, info.Checksum))
	}

	doc, err := decode(info, data)
	if err != nil {
		return info, nil, errors.New(errors.ErrorTypeCorruption, "load_backup", info.Location, err)
	}
	if doc.ID != info.ID {
		return info, nil, errors.New(errors.ErrorTypeCorruption, "load_backup", info.Location,
			errors.Errorf("snapshot id %s does not match catalog id %s", doc.ID, info.ID))
	}
	return info, doc, nil
}

// VerifyBackup reports whether the backup file exists, matches its
// checksum and decodes. Only lookup and cancellation failures are errors.
func (m *Manager) VerifyBackup(ctx context.Context, backupID string) (bool, error) {
	_, _, err := m.load(ctx, backupID)
	if err == nil {
		return true, nil
	}
	if errors.IsContextError(err) || !errors.IsType(err, errors.ErrorTypeBackup) && !errors.IsType(err, errors.ErrorTypeCorruption) {
		return false, err
	}

	m.logger.Warn("Backup failed verification", "backup_id", backupID, "error", err.Error())
	return false, nil
}

// RestoreFromBackup verifies the backup and restores the given tables, or
// every table in it when none are given. Incremental tables are rebuilt
// from their FULL base and every increment after it. It returns false
// without restoring anything when verification fails, a requested table is
// not in the backup, or an incremental chain is incomplete.
func (m *Manager) RestoreFromBackup(ctx context.Context, backupID string, tables []string) (bool, error) {
	_, doc, err := m.load(ctx, backupID)
	if err != nil {
		if errors.IsContextError(err) {
			return false, err
		}
		m.logger.Warn("Refusing to restore unverified backup", "backup_id", backupID, "error", err.Error())
		return false, nil
	}

	byTable := make(map[string]*TableSnapshot, len(doc.Tables))
	for _, snap := range doc.Tables {
		byTable[snap.Table] = snap
	}

	selected := doc.Tables
	if len(tables) > 0 {
		selected = make([]*TableSnapshot, 0, len(tables))
		for _, table := range tables {
			snap, ok := byTable[table]
			if !ok {
				m.logger.Warn("Backup does not contain table", "backup_id", backupID, "table", table)
				return false, nil
			}
			selected = append(selected, snap)
		}
	}

	resolved := make([]*TableSnapshot, 0, len(selected))
	for _, snap := range selected {
		full, ok, err := m.materialize(ctx, backupID, snap)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		resolved = append(resolved, full)
	}

	for _, snap := range resolved {
		if err := m.source.Restore(ctx, snap); err != nil {
			return false, errors.Wrapf(err, "restore table %s", snap.Table)
		}
	}

	m.logger.Info("Backup restored", "backup_id", backupID, "tables", len(selected))
	return true, nil
}

// materialize folds an incremental table snapshot onto its base chain and
// returns a full snapshot. It reports false when a base is missing, fails
// verification, or does not hold the table.
func (m *Manager) materialize(ctx context.Context, backupID string, snap *TableSnapshot) (*TableSnapshot, bool, error) {
	if !snap.Incremental {
		return snap, true, nil
	}

	chain := []*TableSnapshot{snap}
	seen := map[string]bool{backupID: true}
	cur := snap
	for cur.Incremental {
		if cur.Base == "" || seen[cur.Base] {
			m.logger.Warn("Incremental backup has no usable base",
				"backup_id", backupID, "table", snap.Table, "base", cur.Base)
			return nil, false, nil
		}
		seen[cur.Base] = true

		_, doc, err := m.load(ctx, cur.Base)
		if err != nil {
			if errors.IsContextError(err) {
				return nil, false, err
			}
			m.logger.Warn("Incremental chain is broken",
				"backup_id", backupID, "table", snap.Table, "base", cur.Base, "error", err.Error())
			return nil, false, nil
		}
		base := doc.table(snap.Table)
		if base == nil || base.SchemaOnly {
			m.logger.Warn("Base backup does not hold table data",
				"backup_id", backupID, "table", snap.Table, "base", cur.Base)
			return nil, false, nil
		}
		chain = append(chain, base)
		cur = base
	}

	rows := cur.Rows
	for i := len(chain) - 2; i >= 0; i-- {
		rows = mergeRows(rows, chain[i].Rows)
	}
	return &TableSnapshot{
		Table:      snap.Table,
		Schema:     columns(rows),
		Rows:       rows,
		CapturedAt: snap.CapturedAt,
	}, true, nil
}

// ListBackups returns catalog entries matching filter, newest first.
func (m *Manager) ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error) {
	return m.catalog.List(ctx, filter)
}

// Latest returns the newest backup holding data for table, or nil.
func (m *Manager) Latest(ctx context.Context, table string) (*model.BackupInfo, error) {
	backups, err := m.catalog.List(ctx, model.BackupFilter{Table: table})
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		if b.HasData() {
			return b, nil
		}
	}
	return nil, nil
}

// Cleanup removes backups beyond MaxBackups or older than MaxAge and
// returns how many were removed. A backup that a kept incremental backup
// builds on is kept too, so the count can exceed MaxBackups.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	backups, err := m.catalog.List(ctx, model.BackupFilter{})
	if err != nil {
		return 0, err
	}

	cutoff := time.Time{}
	if m.cfg.MaxAge > 0 {
		cutoff = m.now().Add(-m.cfg.MaxAge)
	}

	expired := make(map[string]bool)
	for i, b := range backups {
		overCount := m.cfg.MaxBackups > 0 && i >= m.cfg.MaxBackups
		tooOld := !cutoff.IsZero() && b.Timestamp.Before(cutoff)
		if overCount || tooOld {
			expired[b.ID] = true
		}
	}

	// Keep every base a surviving backup depends on, transitively.
	for changed := true; changed; {
		changed = false
		for _, b := range backups {
			if expired[b.ID] {
				continue
			}
			for _, base := range b.BaseIDs {
				if expired[base] {
					delete(expired, base)
					changed = true
					m.logger.Debug("Keeping base of incremental backup", "backup_id", base, "dependent", b.ID)
				}
			}
		}
	}

	removed := 0
	for _, b := range backups {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !expired[b.ID] {
			continue
		}

		if err := os.Remove(b.Location); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("Failed to remove backup file", "backup_id", b.ID, "error", err.Error())
			continue
		}
		if err := m.catalog.Delete(ctx, b.ID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("Backups cleaned up", "removed", removed)
	}
	return removed, nil
}
