package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/classifier"
	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/recovery"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

func failedOp(id, table, code, message string) *model.SyncOperation {
	return &model.SyncOperation{
		ID:         id,
		Direction:  model.DirectionLocalToRemote,
		Table:      table,
		Status:     model.StatusFailed,
		MaxRetries: 3,
		Error:      model.NewSyncError(code, message, nil),
	}
}

func onlineState() *model.SystemState {
	return &model.SystemState{NetworkStatus: model.NetworkOnline, DiskSpace: 10 << 30, MemoryUsage: 40}
}

type staticBackups struct {
	backups []*model.BackupInfo
}

func (s *staticBackups) ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error) {
	var out []*model.BackupInfo
	for _, b := range s.backups {
		if filter.Match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fixedClassifier struct{}

func (fixedClassifier) Classify(op *model.SyncOperation, state *model.SystemState) (*model.FailureClassification, error) {
	return &model.FailureClassification{
		OperationID:       op.ID,
		FailureType:       model.FailureNetwork,
		Recoverable:       true,
		RecommendedAction: model.ActionRetry,
	}, nil
}

// recordingRecoverer tracks call order and overlapping calls per operation.
type recordingRecoverer struct {
	mu      sync.Mutex
	order   []string
	active  map[string]int
	overlap int32
	delay   time.Duration
}

func (r *recordingRecoverer) Recover(ctx context.Context, rc *recovery.Context) (*model.RecoveryResult, error) {
	id := rc.Operation.ID
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]int)
	}
	r.active[id]++
	if r.active[id] > 1 {
		atomic.AddInt32(&r.overlap, 1)
	}
	r.order = append(r.order, id+":"+rc.Operation.Table)
	r.mu.Unlock()

	time.Sleep(r.delay)

	r.mu.Lock()
	r.active[id]--
	r.mu.Unlock()

	rc.PreviousAttempts = append(rc.PreviousAttempts, recovery.Attempt{Strategy: "retry", Success: true})
	return &model.RecoveryResult{Success: true, Action: model.ActionRetry, Strategy: "retry"}, nil
}

func TestRunRecoversWithRealDispatcher(t *testing.T) {
	bus := events.NewBus(100, logger.Nop())
	errLog := errorlog.NewLogger(errorlog.Options{Logger: logger.Nop()})

	registry, err := recovery.NewRegistry(recovery.DefaultStrategies(recovery.Deps{
		Backoff: &errors.BackoffConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2},
	})...)
	require.NoError(t, err)
	dispatcher := recovery.NewDispatcher(recovery.Options{Registry: registry, Publisher: bus, Logger: logger.Nop()})

	backup := &model.BackupInfo{ID: "b-1", Type: model.BackupFull, Timestamp: time.Now()}
	r, err := New(Config{Workers: 2}, Options{
		Classifier: classifier.New(classifier.Options{}),
		Recoverer:  dispatcher,
		Backups:    &staticBackups{backups: []*model.BackupInfo{backup}},
		Publisher:  bus,
		Errors:     errLog,
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	op := failedOp("op-1", "orders", "NETWORK_TIMEOUT", "request timed out")
	var seen int32
	r.cfg.OnOutcome = func(Outcome) { atomic.AddInt32(&seen, 1) }

	outcomes, err := r.Run(context.Background(), []Job{{Operation: op, State: onlineState()}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	require.NoError(t, out.Err)
	assert.True(t, out.Recovered())
	assert.Equal(t, model.FailureTimeout, out.Classification.FailureType)
	assert.Equal(t, "b-1", out.Backup.ID)
	assert.Equal(t, model.StatusInProgress, out.Status)
	assert.Equal(t, 1, op.RetryCount)
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, recovery.StrategyBackoffRetry, out.Attempts[0].Strategy)
	assert.EqualValues(t, 1, atomic.LoadInt32(&seen))

	history := bus.HistoryFor("op-1")
	require.Len(t, history, 3)
	assert.Equal(t, events.EventFailureDetected, history[0].Type)
	assert.Equal(t, string(model.FailureTimeout), history[0].Metadata["failure_type"])
	assert.Equal(t, events.EventRecoveryStarted, history[1].Type)
	assert.Equal(t, events.EventRecoveryCompleted, history[2].Type)

	logged := errLog.GetHistory(0)
	require.Len(t, logged, 1)
	assert.Equal(t, "sync", logged[0].Component())
	assert.True(t, logged[0].Recoverable)
	assert.Equal(t, taxonomy.ErrNetworkTimeout, logged[0].Code)
	assert.Equal(t, taxonomy.TypeNetwork, logged[0].Type)
	assert.Equal(t, taxonomy.SeverityForFailure(out.Classification.Severity), logged[0].Severity)
	assert.Equal(t, "NETWORK_TIMEOUT", logged[0].AppState["sync_code"])

	logStats := errLog.GetStatistics()
	assert.Equal(t, 1, logStats.ByType[string(taxonomy.TypeNetwork)])

	// The operation fails again; the attempt history carries over.
	require.NoError(t, op.Fail(model.NewSyncError("NETWORK_TIMEOUT", "request timed out", nil)))
	outcomes, err = r.Run(context.Background(), []Job{{Operation: op, State: onlineState()}})
	require.NoError(t, err)
	assert.Len(t, outcomes[0].Attempts, 2)
	assert.Len(t, r.Attempts("op-1"), 2)

	stats := r.GetStats()
	assert.EqualValues(t, 2, stats.Processed)
	assert.EqualValues(t, 2, stats.Recovered)

	r.Forget("op-1")
	assert.Empty(t, r.Attempts("op-1"))
}

func TestSameOperationRunsSequentially(t *testing.T) {
	rec := &recordingRecoverer{delay: 5 * time.Millisecond}
	r, err := New(Config{Workers: 4}, Options{Classifier: fixedClassifier{}, Recoverer: rec, Logger: logger.Nop()})
	require.NoError(t, err)

	var jobs []Job
	for _, table := range []string{"t1", "t2", "t3"} {
		jobs = append(jobs, Job{Operation: failedOp("shared", table, "X", "x")})
	}
	jobs = append(jobs, Job{Operation: failedOp("other", "t1", "X", "x")})

	outcomes, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	for i, out := range outcomes {
		assert.NoError(t, out.Err, "job %d", i)
		assert.Equal(t, jobs[i].Operation.ID, out.OperationID)
	}

	assert.Zero(t, atomic.LoadInt32(&rec.overlap))

	var shared []string
	for _, entry := range rec.order {
		if entry[:6] == "shared" {
			shared = append(shared, entry)
		}
	}
	assert.Equal(t, []string{"shared:t1", "shared:t2", "shared:t3"}, shared)
	assert.Len(t, outcomes[2].Attempts, 3, "attempts accumulate across same-operation jobs")
}

func TestRunCancelled(t *testing.T) {
	rec := &recordingRecoverer{}
	r, err := New(Config{Workers: 2}, Options{Classifier: fixedClassifier{}, Recoverer: rec, Logger: logger.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := r.Run(ctx, []Job{
		{Operation: failedOp("a", "t", "X", "x")},
		{Operation: failedOp("b", "t", "X", "x")},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.ErrorIs(t, out.Err, context.Canceled)
	}
	assert.Empty(t, rec.order)
}

func TestRunReportsBadJobs(t *testing.T) {
	r, err := New(Config{}, Options{
		Classifier: classifier.New(classifier.Options{}),
		Recoverer:  &recordingRecoverer{},
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	pending := failedOp("p", "t", "X", "x")
	pending.Status = model.StatusPending

	outcomes, err := r.Run(context.Background(), []Job{{}, {Operation: pending, State: onlineState()}})
	require.NoError(t, err)
	assert.True(t, errors.IsType(outcomes[0].Err, errors.ErrorTypeConfiguration))
	assert.True(t, errors.IsType(outcomes[1].Err, errors.ErrorTypeInvalidState))
	assert.False(t, outcomes[1].Recovered())
	assert.EqualValues(t, 1, r.GetStats().Failed)

	empty, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = New(Config{}, Options{})
	assert.Error(t, err)
}
