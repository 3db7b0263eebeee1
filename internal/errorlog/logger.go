/**
 * Application Error Logger
 *
 * Bounded, deduplicating in-memory error history with an optional
 * write-through persisted mirror.
 *
 * Features:
 * - O(1) dedup on (code, component, normalized message)
 * - Oldest-first eviction once the history is full
 * - Newest-first reads, copies only
 * - Best-effort persistence: store failures are logged, never returned
 *
 * Author: SyncGuard Team
 * Created: 2026-10-08
 * Update History:
 * - 2026-10-11: Persisted mirror and Restore
 * - 2026-10-12: Observers for metrics
 */

package errorlog

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

// DefaultMaxEntries bounds the history when no size is configured.
const DefaultMaxEntries = 1000

// Store is the persisted mirror of the history. SaveError upserts by ID
// and moves the entry to the head; UpdateError rewrites it in place.
type Store interface {
	SaveError(ctx context.Context, entry *ErrorContext) error
	UpdateError(ctx context.Context, entry *ErrorContext) error
	DeleteErrors(ctx context.Context, ids []string) error
	ClearErrors(ctx context.Context) error
	LoadErrors(ctx context.Context, limit int) ([]*ErrorContext, error)
}

// Observer is notified after every Log call with a copy of the stored entry.
type Observer interface {
	ObserveError(entry ErrorContext, deduplicated bool)
}

// Options configures a Logger.
type Options struct {
	// MaxEntries bounds the history; <= 0 uses DefaultMaxEntries.
	MaxEntries int

	// DedupWindow limits deduplication to entries seen within the window.
	// Zero deduplicates for the whole session.
	DedupWindow time.Duration

	Store    Store
	Registry *taxonomy.Registry
	Logger   *logger.Logger
}

// Logger stores application errors.
type Logger struct {
	store     Store
	registry  *taxonomy.Registry
	log       *logger.Logger
	entries   *list.List
	byKey     map[string]*list.Element
	byID      map[string]*list.Element
	observers []Observer
	max       int
	window    time.Duration
	now       func() time.Time
	mu        sync.RWMutex
}

// NewLogger creates an error logger.
func NewLogger(opts Options) *Logger {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Registry == nil {
		opts.Registry = taxonomy.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}

	return &Logger{
		store:    opts.Store,
		registry: opts.Registry,
		log:      opts.Logger,
		entries:  list.New(),
		byKey:    make(map[string]*list.Element),
		byID:     make(map[string]*list.Element),
		max:      opts.MaxEntries,
		window:   opts.DedupWindow,
		now:      time.Now,
	}
}

// AddObserver registers an observer for logged errors.
func (l *Logger) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Log stores an entry and returns a copy of the stored record, which is
// the existing record when the entry was deduplicated. A nil entry is
// ignored and returns nil.
func (l *Logger) Log(entry *ErrorContext) *ErrorContext {
	if entry == nil {
		l.log.Warn("Ignoring nil error context")
		return nil
	}

	in := entry.clone()
	l.prepare(in)

	l.mu.Lock()
	stored, deduplicated, evicted := l.insert(in)
	out := stored.clone()
	l.persist(stored, evicted)
	observers := l.observers
	l.mu.Unlock()

	for _, o := range observers {
		o.ObserveError(*out.clone(), deduplicated)
	}
	return out
}

func (l *Logger) prepare(e *ErrorContext) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.Timestamp = normalizeTime(e.Timestamp)
	if e.LastOccurrence.IsZero() || e.LastOccurrence.Before(e.Timestamp) {
		e.LastOccurrence = e.Timestamp
	}
	e.LastOccurrence = normalizeTime(e.LastOccurrence)
	if e.Count <= 0 {
		e.Count = 1
	}
	fillFromTaxonomy(l.registry, e)
}

// insert adds or merges e. It must be called with the lock held.
func (l *Logger) insert(e *ErrorContext) (stored *ErrorContext, deduplicated bool, evicted []string) {
	key := dedupKey(e)

	if elem, ok := l.byKey[key]; ok {
		existing := elem.Value.(*ErrorContext)
		if l.window <= 0 || e.LastOccurrence.Sub(existing.LastOccurrence) <= l.window {
			existing.Count += e.Count
			if e.LastOccurrence.After(existing.LastOccurrence) {
				existing.LastOccurrence = e.LastOccurrence
			}
			l.entries.MoveToFront(elem)
			return existing, true, nil
		}
	}

	elem := l.entries.PushFront(e)
	l.byKey[key] = elem
	l.byID[e.ID] = elem

	for l.entries.Len() > l.max {
		oldest := l.entries.Back()
		old := l.entries.Remove(oldest).(*ErrorContext)
		if l.byKey[dedupKey(old)] == oldest {
			delete(l.byKey, dedupKey(old))
		}
		delete(l.byID, old.ID)
		evicted = append(evicted, old.ID)
	}
	if len(evicted) > 0 {
		l.log.Debug("Evicted oldest error entries", "count", len(evicted))
	}

	return e, false, evicted
}

func (l *Logger) persist(e *ErrorContext, evicted []string) {
	if l.store == nil {
		return
	}
	ctx := context.Background()
	if err := l.store.SaveError(ctx, e); err != nil {
		l.log.Warn("Failed to persist error entry", "id", e.ID, "code", e.Code, "error", err.Error())
	}
	if len(evicted) > 0 {
		if err := l.store.DeleteErrors(ctx, evicted); err != nil {
			l.log.Warn("Failed to delete evicted error entries", "count", len(evicted), "error", err.Error())
		}
	}
}

// snapshot returns copies of entries matching keep, newest first.
func (l *Logger) snapshot(limit int, keep func(*ErrorContext) bool) []ErrorContext {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ErrorContext, 0, l.entries.Len())
	for elem := l.entries.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*ErrorContext)
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, *e.clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// GetHistory returns up to limit entries, newest first. limit <= 0 returns
// every entry.
func (l *Logger) GetHistory(limit int) []ErrorContext {
	return l.snapshot(limit, nil)
}

// Len returns the number of stored entries.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Len()
}

// Get returns a copy of the entry with the given ID.
func (l *Logger) Get(id string) (*ErrorContext, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	elem, ok := l.byID[id]
	if !ok {
		return nil, false
	}
	return elem.Value.(*ErrorContext).clone(), true
}

// GetErrorsByType returns entries of one family, newest first.
func (l *Logger) GetErrorsByType(t taxonomy.ErrorType) []ErrorContext {
	return l.snapshot(0, func(e *ErrorContext) bool { return e.Type == t })
}

// GetErrorsBySeverity returns entries of one severity, newest first.
func (l *Logger) GetErrorsBySeverity(s taxonomy.Severity) []ErrorContext {
	return l.snapshot(0, func(e *ErrorContext) bool { return e.Severity == s })
}

// GetErrorsByCode returns entries with the given code, newest first.
func (l *Logger) GetErrorsByCode(code string) []ErrorContext {
	code = strings.ToUpper(strings.TrimSpace(code))
	return l.snapshot(0, func(e *ErrorContext) bool { return strings.ToUpper(e.Code) == code })
}

// Search returns entries whose code, message, location or original error
// contains text, case-insensitively. Empty text matches nothing.
func (l *Logger) Search(text string) []ErrorContext {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return []ErrorContext{}
	}

	return l.snapshot(0, func(e *ErrorContext) bool {
		fields := []string{e.Code, e.Message, e.OriginalError}
		if e.Location != nil {
			fields = append(fields, e.Location.Component, e.Location.Function)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), needle) {
				return true
			}
		}
		return false
	})
}

// MarkRecovered records how long the entry took to recover from.
func (l *Logger) MarkRecovered(id string, d time.Duration) bool {
	if d <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.byID[id]
	if !ok {
		return false
	}
	e := elem.Value.(*ErrorContext)
	e.RecoveryTime = d
	if l.store != nil {
		if err := l.store.UpdateError(context.Background(), e); err != nil {
			l.log.Warn("Failed to persist recovery time", "id", e.ID, "error", err.Error())
		}
	}
	return true
}

// Clear removes every entry and returns how many were removed.
func (l *Logger) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.entries.Len()
	l.entries.Init()
	l.byKey = make(map[string]*list.Element)
	l.byID = make(map[string]*list.Element)

	if l.store != nil {
		if err := l.store.ClearErrors(context.Background()); err != nil {
			l.log.Warn("Failed to clear persisted errors", "error", err.Error())
		}
	}

	l.log.Info("Error history cleared", "removed", n)
	return n
}

// Restore reloads the history from the persisted mirror, replacing what
// is in memory. Entries are not written back.
func (l *Logger) Restore(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}

	loaded, err := l.store.LoadErrors(ctx, l.max)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.Init()
	l.byKey = make(map[string]*list.Element)
	l.byID = make(map[string]*list.Element)

	// Loaded newest first; push oldest first so the newest ends at the front.
	for i := len(loaded) - 1; i >= 0; i-- {
		e := loaded[i]
		if e == nil {
			continue
		}
		l.prepare(e)
		l.insert(e)
	}

	l.log.Debug("Error history restored", "entries", l.entries.Len())
	return l.entries.Len(), nil
}
