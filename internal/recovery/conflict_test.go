package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

func record(at time.Time, kv ...interface{}) *model.Record {
	data := make(map[string]interface{})
	for i := 0; i+1 < len(kv); i += 2 {
		data[kv[i].(string)] = kv[i+1]
	}
	return &model.Record{Data: data, UpdatedAt: at}
}

func TestResolveWholeRecordStrategies(t *testing.T) {
	older := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	conflict := &model.Conflict{
		Table:    "notes",
		RecordID: "n-1",
		Local:    record(newer, "title", "local"),
		Remote:   record(older, "title", "remote"),
	}

	tests := []struct {
		name     string
		strategy model.ConflictStrategy
		winner   model.Side
		title    string
	}{
		{"local wins", model.ConflictLocalWins, model.SideLocal, "local"},
		{"remote wins", model.ConflictRemoteWins, model.SideRemote, "remote"},
		{"last write wins", model.ConflictLastWriteWins, model.SideLocal, "local"},
	}

	resolver := NewConflictResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolver.Resolve(conflict, model.ConflictPolicy{Table: "notes", Strategy: tt.strategy})
			require.NoError(t, err)
			assert.Equal(t, tt.winner, res.Winner)
			assert.Equal(t, tt.title, res.Record.Data["title"])
			assert.False(t, res.RequiresManual)
		})
	}

	// The resolved record is a copy
	res, err := resolver.Resolve(conflict, model.ConflictPolicy{Strategy: model.ConflictLocalWins})
	require.NoError(t, err)
	res.Record.Data["title"] = "changed"
	assert.Equal(t, "local", conflict.Local.Data["title"])
}

func TestResolveLastWriteTieGoesRemote(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	conflict := &model.Conflict{
		Local:  record(at, "v", 1),
		Remote: record(at, "v", 2),
	}

	res, err := NewConflictResolver().Resolve(conflict, model.ConflictPolicy{Strategy: model.ConflictLastWriteWins})
	require.NoError(t, err)
	assert.Equal(t, model.SideRemote, res.Winner)
	assert.Equal(t, 2, res.Record.Data["v"])
}

func TestResolveThreeWayMerge(t *testing.T) {
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	conflict := &model.Conflict{
		Table: "tasks",
		Base:  record(base, "title", "a", "status", "open", "owner", "ann", "tag", "x"),
		Local: record(base.Add(2*time.Minute),
			"title", "a-local", "status", "open", "owner", "bob", "tag", "x"),
		Remote: record(base.Add(time.Minute),
			"title", "a", "status", "done", "owner", "cat"),
	}

	res, err := NewConflictResolver().Resolve(conflict, model.ConflictPolicy{
		Table:         "tasks",
		Strategy:      model.ConflictMerge,
		FieldPriority: map[string]model.Side{"owner": model.SideRemote},
	})
	require.NoError(t, err)

	data := res.Record.Data
	assert.Equal(t, "a-local", data["title"], "changed only locally")
	assert.Equal(t, "done", data["status"], "changed only remotely")
	assert.Equal(t, "cat", data["owner"], "field priority settles the conflict")
	assert.NotContains(t, data, "tag", "remote deletion applies")
	assert.Equal(t, []string{"owner"}, res.ConflictingFields)
	assert.Equal(t, conflict.Local.UpdatedAt, res.Record.UpdatedAt)
}

func TestResolveTwoWayMerge(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	conflict := &model.Conflict{
		Local:  record(at, "a", 1, "b", "local", "c", true),
		Remote: record(at.Add(time.Second), "a", 1, "b", "remote", "d", 4.5),
	}

	res, err := NewConflictResolver().Resolve(conflict, model.ConflictPolicy{Strategy: model.ConflictMerge})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"a": 1,
		"b": "remote",
		"c": true,
		"d": 4.5,
	}, res.Record.Data)
	assert.Equal(t, []string{"b"}, res.ConflictingFields)
}

func TestResolveManualAndInvalid(t *testing.T) {
	at := time.Now()
	conflict := &model.Conflict{Local: record(at), Remote: record(at)}
	resolver := NewConflictResolver()

	res, err := resolver.Resolve(conflict, model.ConflictPolicy{Strategy: model.ConflictManual})
	require.NoError(t, err)
	assert.True(t, res.RequiresManual)
	assert.Nil(t, res.Record)

	_, err = resolver.Resolve(conflict, model.ConflictPolicy{Strategy: "COIN_FLIP"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	_, err = resolver.Resolve(&model.Conflict{Local: record(at)}, model.ConflictPolicy{Strategy: model.ConflictLocalWins})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	_, err = resolver.Resolve(nil, model.ConflictPolicy{Strategy: model.ConflictLocalWins})
	assert.Error(t, err)
}
