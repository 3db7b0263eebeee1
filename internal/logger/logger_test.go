package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(&Config{Level: level, Output: buf}), buf
}

// lines decodes every JSON line written to buf.
func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestNewDefaults(t *testing.T) {
	assert.Equal(t, os.Stderr, DefaultConfig.Output, "stdout is kept for command output")

	log := New(nil)
	assert.Same(t, DefaultConfig, log.config)

	buf := &bytes.Buffer{}
	log = New(&Config{Level: "chatty", Output: buf, Fields: map[string]interface{}{"component": "runner"}})
	log.Debug("hidden")
	log.Info("shown")

	entries := lines(t, buf)
	require.Len(t, entries, 1, "an unknown level falls back to info")
	assert.Equal(t, "shown", entries[0]["message"])
	assert.Equal(t, "runner", entries[0]["component"])
	assert.NotEmpty(t, entries[0]["time"])
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level string
		emit  func(*Logger)
	}{
		{"trace", func(l *Logger) { l.Trace("m", "table", "orders", "attempt", 2) }},
		{"debug", func(l *Logger) { l.Debug("m", "table", "orders", "attempt", 2) }},
		{"info", func(l *Logger) { l.Info("m", "table", "orders", "attempt", 2) }},
		{"warn", func(l *Logger) { l.Warn("m", "table", "orders", "attempt", 2) }},
		{"error", func(l *Logger) { l.Error(errors.New("disk full"), "m", "table", "orders", "attempt", 2) }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, buf := capture("trace")
			tt.emit(log)

			entries := lines(t, buf)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0]["level"])
			assert.Equal(t, "orders", entries[0]["table"])
			assert.Equal(t, float64(2), entries[0]["attempt"])
			if tt.level == "error" {
				assert.Equal(t, "disk full", entries[0]["error"])
			}
		})
	}
}

func TestMalformedFields(t *testing.T) {
	log, buf := capture("info")
	log.Info("odd", 42, "skipped", "backup_id", "b-1", "dangling")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "b-1", entries[0]["backup_id"])
	assert.NotContains(t, entries[0], "dangling")
	assert.NotContains(t, entries[0], "42")

	buf.Reset()
	log.Error(nil, "no cause")
	assert.NotContains(t, lines(t, buf)[0], "error")
}

func TestChildLoggers(t *testing.T) {
	parent, buf := capture("debug")

	t.Run("Pairs", func(t *testing.T) {
		buf.Reset()
		parent.With("strategy", "restore_backup", "attempt", 1).Info("child")
		entry := lines(t, buf)[0]
		assert.Equal(t, "restore_backup", entry["strategy"])
		assert.Equal(t, float64(1), entry["attempt"])
	})

	t.Run("Map", func(t *testing.T) {
		buf.Reset()
		parent.With(map[string]interface{}{"backup_id": "b-9", "compressed": true}).Info("child")
		entry := lines(t, buf)[0]
		assert.Equal(t, "b-9", entry["backup_id"])
		assert.Equal(t, true, entry["compressed"])
	})

	t.Run("Field", func(t *testing.T) {
		buf.Reset()
		parent.WithField("worker_id", 3).Info("child")
		assert.Equal(t, float64(3), lines(t, buf)[0]["worker_id"])
	})

	t.Run("Operation", func(t *testing.T) {
		buf.Reset()
		parent.WithOperation("op-7", "orders").Warn("classified")
		parent.WithOperation("op-8", "").Warn("classified")

		entries := lines(t, buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "op-7", entries[0]["operation_id"])
		assert.Equal(t, "orders", entries[0]["table"])
		assert.Equal(t, "op-8", entries[1]["operation_id"])
		assert.NotContains(t, entries[1], "table")
	})

	buf.Reset()
	parent.Info("parent")
	assert.NotContains(t, lines(t, buf)[0], "operation_id", "children do not leak fields into the parent")
}

func TestFromContext(t *testing.T) {
	scoped, buf := capture("info")
	scoped = scoped.WithOperation("op-1", "notes")
	fallback := Nop()

	ctx := scoped.WithContext(context.Background())
	FromContext(ctx, fallback).Info("from job")
	assert.Equal(t, "op-1", lines(t, buf)[0]["operation_id"])

	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.Same(t, Global(), FromContext(context.Background(), nil))
}

func TestLogOperation(t *testing.T) {
	log, buf := capture("debug")

	require.NoError(t, log.LogOperation("maintenance", func() error { return nil }))
	entries := lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "Operation started", entries[0]["message"])
	assert.Equal(t, "maintenance", entries[1]["operation"])
	assert.Contains(t, entries[1], "duration")

	buf.Reset()
	cause := errors.New("database is locked")
	err := log.LogOperation("maintenance", func() error { return cause })
	assert.Same(t, cause, err)

	entries = lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "Operation failed", entries[1]["message"])
	assert.Equal(t, "database is locked", entries[1]["error"])
}

func TestLogRecovery(t *testing.T) {
	for _, success := range []bool{true, false} {
		log, buf := capture("info")
		log.LogRecovery("op-1", "backoff_retry", "BACKOFF_RETRY", success, 250*time.Millisecond)

		entry := lines(t, buf)[0]
		level := "info"
		if !success {
			level = "warn"
		}
		assert.Equal(t, level, entry["level"])
		assert.Equal(t, "Recovery finished", entry["message"])
		assert.Equal(t, "op-1", entry["operation_id"])
		assert.Equal(t, "backoff_retry", entry["strategy"])
		assert.Equal(t, "BACKOFF_RETRY", entry["action"])
		assert.Equal(t, success, entry["success"])
		assert.Equal(t, float64(250), entry["duration"])
	}
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		log := Nop().WithOperation("op-1", "t")
		log.Error(errors.New("ignored"), "nothing", "k", "v")
		log.LogRecovery("op-1", "skip", "SKIP", true, 0)
	})
}

func TestInitReplacesGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(&Config{Level: "warn", Output: buf})
	t.Cleanup(func() { Init(&Config{Level: "info", Output: os.Stderr}) })

	Global().Info("dropped")
	Global().Warn("kept")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["message"])
}

func TestPrettyOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "info", Output: buf, Pretty: true}).Info("restored", "table", "notes")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "restored")
	assert.Contains(t, out, "table=notes")
}

func TestFileWriterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "syncguard.log")
	fw, err := NewFileWriter(path, 40, 2)
	require.NoError(t, err)
	defer fw.Close()

	first := []byte("recovery run started with 3 jobs\n")
	n, err := fw.Write(first)
	require.NoError(t, err)
	assert.Equal(t, len(first), n)

	// Each further write exceeds the limit and rotates
	_, err = fw.Write([]byte("recovery run finished\n"))
	require.NoError(t, err)
	_, err = fw.Write([]byte("maintenance complete\n"))
	require.NoError(t, err)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "maintenance complete\n", string(current))

	newest, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "recovery run finished\n", string(newest))

	oldest, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(oldest))
}
