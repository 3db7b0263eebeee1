package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/model"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 30m", formatDuration(150*time.Minute))
}

func TestParseBackupType(t *testing.T) {
	got, err := parseBackupType("schema-only")
	require.NoError(t, err)
	assert.Equal(t, model.BackupSchemaOnly, got)

	got, err = parseBackupType("full")
	require.NoError(t, err)
	assert.Equal(t, model.BackupFull, got)

	_, err = parseBackupType("weekly")
	assert.Error(t, err)
}

func TestFlattenMap(t *testing.T) {
	flat := flattenMap("", map[string]interface{}{
		"backup": map[string]interface{}{"compress": true, "max_backups": 10},
		"version": "1.0.0",
	})
	assert.Equal(t, map[string]interface{}{
		"backup.compress":    true,
		"backup.max_backups": 10,
		"version":            "1.0.0",
	}, flat)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"network", "state", "task"},
		sortedKeys(map[string]int{"task": 1, "network": 5, "state": 1}))
}
