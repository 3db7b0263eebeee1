/**
 * State Manager for SyncGuard
 *
 * Features:
 * - Unified access to the error, event and backup stores
 * - Bus attachment for the event audit trail
 * - Retention maintenance
 *
 * Author: SyncGuard Team
 * Update History:
 * - 2026-10-10: Rebuilt around the recovery stores
 */

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
)

// Manager provides a unified interface for state management.
type Manager struct {
	db      *DB
	errors  *ErrorStore
	events  *EventStore
	backups *BackupStore
	logger  *logger.Logger
}

// NewManager opens the database and creates the stores.
func NewManager(cfg DBConfig, log *logger.Logger) (*Manager, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if log == nil {
		log = logger.Global()
	}

	return &Manager{
		db:      db,
		errors:  NewErrorStore(db),
		events:  NewEventStore(db),
		backups: NewBackupStore(db),
		logger:  log,
	}, nil
}

// Close closes the state manager.
func (m *Manager) Close() error {
	return m.db.Close()
}

// DB returns the underlying database connection.
func (m *Manager) DB() *DB {
	return m.db
}

// Errors returns the error log store.
func (m *Manager) Errors() *ErrorStore {
	return m.errors
}

// Events returns the event store.
func (m *Manager) Events() *EventStore {
	return m.events
}

// Backups returns the backup catalog.
func (m *Manager) Backups() *BackupStore {
	return m.backups
}

// AttachBus records every event published on bus. The returned func
// detaches the store.
func (m *Manager) AttachBus(bus *events.Bus) func() {
	return bus.Subscribe(m.events.Handler(m.logger))
}

// Maintenance checks the connection, prunes events older than retention
// inside a transaction and compacts the file. Failures are storage errors,
// so callers may retry them.
func (m *Manager) Maintenance(ctx context.Context, retention time.Duration) error {
	if err := m.db.HealthCheck(ctx); err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "maintenance", err)
	}

	if retention > 0 {
		var removed int64
		err := m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			removed, err = NewEventStore(WrapTx(tx)).Prune(ctx, time.Now().Add(-retention))
			return err
		})
		if err != nil {
			if errors.IsContextError(err) {
				return err
			}
			return errors.WrapTyped(errors.ErrorTypeStorage, "prune_events", err)
		}
		m.logger.Debug("Pruned recovery events", "removed", removed)
	}

	if err := m.db.Vacuum(ctx); err != nil {
		return errors.WrapTyped(errors.ErrorTypeStorage, "vacuum", fmt.Errorf("failed to vacuum database: %w", err))
	}
	return nil
}
