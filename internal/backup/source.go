package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// Row is one table record.
type Row map[string]interface{}

// TableSnapshot is the captured state of one table.
type TableSnapshot struct {
	Table      string    `json:"table"`
	Schema     []string  `json:"schema"`
	Rows       []Row     `json:"rows,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`

	// Incremental snapshots hold only rows changed since the backup named
	// by Base.
	Incremental bool   `json:"incremental,omitempty"`
	Base        string `json:"base,omitempty"`
	SchemaOnly  bool `json:"schemaOnly,omitempty"`
}

// SnapshotOptions narrows what a Source captures.
type SnapshotOptions struct {
	SchemaOnly bool

	// Since limits rows to those changed after the given time. Zero means
	// every row.
	Since time.Time
}

// Source is the local data store being protected.
type Source interface {
	Tables(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context, table string, opts SnapshotOptions) (*TableSnapshot, error)
	Restore(ctx context.Context, snapshot *TableSnapshot) error
}

// FileSource keeps each table as a JSON array of rows in <dir>/<table>.json.
// Rows may carry an "updated_at" RFC 3339 timestamp used for incremental
// snapshots.
type FileSource struct {
	dir string
}

// NewFileSource creates a source over dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Tables lists the table files in the directory.
func (s *FileSource) Tables(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, "list_tables", s.dir, err)
	}

	var tables []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		tables = append(tables, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(tables)
	return tables, nil
}

func (s *FileSource) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

// ReadTable loads every row of a table.
func (s *FileSource) ReadTable(table string) ([]Row, error) {
	data, err := os.ReadFile(s.path(table))
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, "read_table", s.path(table), err)
	}
	var rows []Row
	if err := sonic.ConfigStd.Unmarshal(data, &rows); err != nil {
		return nil, errors.New(errors.ErrorTypeCorruption, "read_table", s.path(table), err)
	}
	return rows, nil
}

// WriteTable replaces every row of a table.
func (s *FileSource) WriteTable(table string, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(rows, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode table %s", table)
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return errors.New(errors.ErrorTypeStorage, "write_table", s.dir, err)
	}

	tmp := s.path(table) + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return errors.New(errors.ErrorTypeStorage, "write_table", tmp, err)
	}
	return os.Rename(tmp, s.path(table))
}

// Snapshot captures a table. The schema is the sorted union of row keys.
func (s *FileSource) Snapshot(ctx context.Context, table string, opts SnapshotOptions) (*TableSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.ReadTable(table)
	if err != nil {
		return nil, err
	}

	snap := &TableSnapshot{Table: table, Schema: columns(rows), CapturedAt: time.Now().UTC()}
	if opts.SchemaOnly {
		snap.SchemaOnly = true
		return snap, nil
	}

	snap.Incremental = !opts.Since.IsZero()
	for _, r := range rows {
		if snap.Incremental && !changedSince(r, opts.Since) {
			continue
		}
		snap.Rows = append(snap.Rows, r)
	}
	return snap, nil
}

// Restore writes the snapshot rows back. Incremental snapshots are merged
// by "id" into the current table and fail when it cannot be read; full
// snapshots replace the table. Schema-only snapshots leave rows untouched.
func (s *FileSource) Restore(ctx context.Context, snap *TableSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil {
		return errors.Configuration("restore_table", "snapshot is required")
	}
	if snap.SchemaOnly {
		return nil
	}
	if !snap.Incremental {
		return s.WriteTable(snap.Table, snap.Rows)
	}

	current, err := s.ReadTable(snap.Table)
	if err != nil {
		return errors.Wrapf(err, "merge increment into %s", snap.Table)
	}
	return s.WriteTable(snap.Table, mergeRows(current, snap.Rows))
}

// ApplyResolution writes a resolved record into the table, replacing the
// row with the same id or appending it.
func (s *FileSource) ApplyResolution(ctx context.Context, table, recordID string, record *model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil {
		return errors.Configuration("apply_resolution", "record is required")
	}

	current, err := s.ReadTable(table)
	if err != nil && !errors.IsType(err, errors.ErrorTypeStorage) {
		return err
	}

	row := make(Row, len(record.Data)+2)
	for k, v := range record.Data {
		row[k] = v
	}
	row["id"] = recordID
	if !record.UpdatedAt.IsZero() {
		row["updated_at"] = record.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	return s.WriteTable(table, mergeRows(current, []Row{row}))
}

func mergeRows(current, changed []Row) []Row {
	index := make(map[string]int, len(current))
	merged := make([]Row, 0, len(current)+len(changed))
	for _, r := range current {
		if id, ok := rowID(r); ok {
			index[id] = len(merged)
		}
		merged = append(merged, r)
	}
	for _, r := range changed {
		if id, ok := rowID(r); ok {
			if i, exists := index[id]; exists {
				merged[i] = r
				continue
			}
		}
		merged = append(merged, r)
	}
	return merged
}

func rowID(r Row) (string, bool) {
	switch id := r["id"].(type) {
	case string:
		return id, true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	}
	return "", false
}

func columns(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func changedSince(r Row, since time.Time) bool {
	raw, ok := r["updated_at"].(string)
	if !ok {
		return true
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true
	}
	return at.After(since)
}

// Mirror resets local tables and pulls them again from a second FileSource
// holding the remote copy.
type Mirror struct {
	local  *FileSource
	remote *FileSource
}

// NewMirror creates a resyncer from remote into local.
func NewMirror(local, remote *FileSource) *Mirror {
	return &Mirror{local: local, remote: remote}
}

// ResetTable empties the local table.
func (m *Mirror) ResetTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.local.WriteTable(table, nil)
}

// Resync copies every remote row into the local table.
func (m *Mirror) Resync(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, err := m.remote.ReadTable(table)
	if err != nil {
		return errors.WrapTyped(errors.ErrorTypeNetwork, "resync_table", err)
	}
	return m.local.WriteTable(table, rows)
}
