package rollback

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/logger"
)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store, err := Open(Config{TTL: ttl}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type fakeRestorer struct {
	ok       bool
	err      error
	restored []string
}

func (f *fakeRestorer) RestoreFromBackup(ctx context.Context, backupID string, tables []string) (bool, error) {
	f.restored = append(f.restored, backupID)
	return f.ok, f.err
}

func TestCreateGetList(t *testing.T) {
	store := openTestStore(t, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	first, err := store.Create(ctx, "restore-op-1", "backup-1", []string{"op-1"})
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), first.ExpiresAt)

	store.now = func() time.Time { return base.Add(time.Minute) }
	second, err := store.Create(ctx, "resync-op-2", "backup-2", []string{"op-2", "op-3"})
	require.NoError(t, err)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	points, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, second.ID, points[0].ID, "newest first")
	assert.Equal(t, []string{"op-2", "op-3"}, points[0].OperationIDs)

	_, err = store.Create(ctx, "no-backup", "", nil)
	assert.Error(t, err)
}

func TestPointsExpire(t *testing.T) {
	store := openTestStore(t, time.Hour)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }
	point, err := store.Create(ctx, "restore-op-1", "backup-1", nil)
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(2 * time.Hour) }

	_, err = store.Get(ctx, point.ID)
	assert.True(t, stderrors.Is(err, ErrPointNotFound))

	points, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = store.Consume(ctx, point.ID)
	assert.True(t, stderrors.Is(err, ErrPointNotFound))
}

func TestConsumeOnce(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	point, err := store.Create(ctx, "restore-op-1", "backup-1", []string{"op-1"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, point.ExpiresAt.Sub(point.CreatedAt))

	consumed, err := store.Consume(ctx, point.ID)
	require.NoError(t, err)
	assert.Equal(t, point.ID, consumed.ID)

	_, err = store.Consume(ctx, point.ID)
	assert.True(t, stderrors.Is(err, ErrPointNotFound))

	_, err = store.Get(ctx, "missing")
	assert.True(t, stderrors.Is(err, ErrPointNotFound))
}

func TestRollbackRestoresBackup(t *testing.T) {
	store := openTestStore(t, time.Hour)
	ctx := context.Background()

	point, err := store.Create(ctx, "restore-op-1", "backup-1", []string{"op-1"})
	require.NoError(t, err)

	restorer := &fakeRestorer{ok: true}
	done, err := store.Rollback(ctx, point.ID, restorer)
	require.NoError(t, err)
	assert.Equal(t, point.ID, done.ID)
	assert.Equal(t, []string{"backup-1"}, restorer.restored)

	_, err = store.Rollback(ctx, point.ID, restorer)
	assert.Error(t, err, "a point cannot be rolled back twice")
	assert.Len(t, restorer.restored, 1)

	failing, err := store.Create(ctx, "restore-op-2", "backup-2", nil)
	require.NoError(t, err)
	_, err = store.Rollback(ctx, failing.ID, &fakeRestorer{ok: false})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	store, err := Open(Config{Dir: t.TempDir()}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, store.RunGC())
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Create(context.Background(), "x", "backup-1", nil)
	assert.Error(t, err)
	assert.Error(t, store.RunGC())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	open := openTestStore(t, time.Hour)
	_, err = open.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
