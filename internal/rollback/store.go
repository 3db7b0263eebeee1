/**
 * Rollback Point Store
 *
 * Time-limited rollback points kept in BadgerDB. Each point names the
 * backup to return to and the operations that a rollback would undo.
 * Expiry is enforced by badger entry TTLs.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-12
 */

package rollback

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// DefaultTTL is used when a Config has none.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "rollback/"

// ErrPointNotFound is returned for unknown or expired rollback points.
var ErrPointNotFound = stderrors.New("rollback point not found")

// Config configures a Store.
type Config struct {
	// Dir is the badger directory. Empty keeps everything in memory.
	Dir string
	TTL time.Duration
}

// Restorer brings tables back from a backup.
type Restorer interface {
	RestoreFromBackup(ctx context.Context, backupID string, tables []string) (bool, error)
}

// Store persists rollback points.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *logger.Logger
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// Open opens or creates a rollback store.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, "open_rollback_store", cfg.Dir, err)
	}
	opts = opts.WithLogger(&badgerLogger{log: log.WithField("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, "open_rollback_store", cfg.Dir, err)
	}

	return &Store{db: db, ttl: cfg.TTL, logger: log, now: time.Now}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return errors.InvalidState(op, "rollback store is closed")
	}
	return nil
}

// Create records a rollback point for backupID that expires after the
// store TTL.
func (s *Store) Create(ctx context.Context, name, backupID string, operationIDs []string) (*model.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "create_rollback_point"); err != nil {
		return nil, err
	}
	if backupID == "" {
		return nil, errors.Configuration("create_rollback_point", "backup id is required")
	}

	now := s.now().UTC().Round(0)
	point := &model.RollbackPoint{
		ID:           uuid.NewString(),
		Name:         name,
		BackupID:     backupID,
		OperationIDs: append([]string(nil), operationIDs...),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	data, err := sonic.ConfigStd.Marshal(point)
	if err != nil {
		return nil, errors.Wrap(err, "encode rollback point")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(keyPrefix+point.ID), data).WithTTL(s.ttl))
	})
	if err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "create_rollback_point", err)
	}

	s.logger.Debug("Rollback point created",
		"rollback_id", point.ID,
		"name", name,
		"backup_id", backupID,
	)
	return point, nil
}

func decodePoint(item *badger.Item) (*model.RollbackPoint, error) {
	var point model.RollbackPoint
	err := item.Value(func(val []byte) error {
		return sonic.ConfigStd.Unmarshal(val, &point)
	})
	if err != nil {
		return nil, err
	}
	return &point, nil
}

// Get returns a live rollback point.
func (s *Store) Get(ctx context.Context, id string) (*model.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "get_rollback_point"); err != nil {
		return nil, err
	}

	var point *model.RollbackPoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		point, err = decodePoint(item)
		return err
	})
	return s.result(point, id, err)
}

func (s *Store) result(point *model.RollbackPoint, id string, err error) (*model.RollbackPoint, error) {
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	if err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "get_rollback_point", err)
	}
	// Badger drops expired keys lazily; the stored expiry is authoritative.
	if point.Expired(s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	return point, nil
}

// List returns live rollback points, newest first.
func (s *Store) List(ctx context.Context) ([]*model.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "list_rollback_points"); err != nil {
		return nil, err
	}

	now := s.now()
	var points []*model.RollbackPoint
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			point, err := decodePoint(it.Item())
			if err != nil {
				s.logger.Warn("Skipping unreadable rollback point",
					"key", string(it.Item().Key()), "error", err.Error())
				continue
			}
			if point.Expired(now) {
				continue
			}
			points = append(points, point)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapTyped(errors.ErrorTypeStorage, "list_rollback_points", err)
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].CreatedAt.Equal(points[j].CreatedAt) {
			return points[i].ID > points[j].ID
		}
		return points[i].CreatedAt.After(points[j].CreatedAt)
	})
	return points, nil
}

// Consume removes a live rollback point and returns it. A point can be
// consumed once.
func (s *Store) Consume(ctx context.Context, id string) (*model.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "consume_rollback_point"); err != nil {
		return nil, err
	}

	var point *model.RollbackPoint
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(keyPrefix + id)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if point, err = decodePoint(item); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	return s.result(point, id, err)
}

// Rollback consumes the point and restores every table in its backup.
func (s *Store) Rollback(ctx context.Context, id string, restorer Restorer) (*model.RollbackPoint, error) {
	point, err := s.Consume(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := restorer.RestoreFromBackup(ctx, point.BackupID, nil)
	if err != nil {
		return point, err
	}
	if !ok {
		return point, errors.New(errors.ErrorTypeBackup, "rollback", point.BackupID,
			errors.Errorf("backup %s could not be restored", point.BackupID))
	}

	s.logger.Info("Rolled back",
		"rollback_id", point.ID,
		"backup_id", point.BackupID,
		"operations", len(point.OperationIDs),
	)
	return point, nil
}

// RunGC runs badger value log garbage collection once.
func (s *Store) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.InvalidState("rollback_gc", "rollback store is closed")
	}
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite || err == badger.ErrGCInMemoryMode {
		return nil
	}
	return err
}

// badgerLogger routes badger output to the application logger.
type badgerLogger struct {
	log *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(nil, fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Trace(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace(fmt.Sprintf(format, args...))
}
