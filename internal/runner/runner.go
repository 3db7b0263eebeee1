/**
 * Recovery Runner
 *
 * Bounded worker pool that drives failed sync operations through
 * classification and recovery.
 *
 * Features:
 * - Configurable worker count
 * - Same-operation jobs run one at a time, in submission order
 * - Per-operation attempt history across runs
 * - Newest covering backup attached to each recovery
 * - Cancellation stops the pool and marks unprocessed jobs
 *
 * Author: SyncGuard Team
 * Created: 2026-10-14
 */

package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/metrics"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/recovery"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

// Classifier diagnoses a failed operation.
type Classifier interface {
	Classify(op *model.SyncOperation, state *model.SystemState) (*model.FailureClassification, error)
}

// Recoverer runs one recovery.
type Recoverer interface {
	Recover(ctx context.Context, rc *recovery.Context) (*model.RecoveryResult, error)
}

// BackupLister finds backups for a table.
type BackupLister interface {
	ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.BackupInfo, error)
}

// ErrorRecorder receives one entry per detected failure.
type ErrorRecorder interface {
	Log(entry *errorlog.ErrorContext) *errorlog.ErrorContext
}

// Job is one failed operation to recover.
type Job struct {
	Operation *model.SyncOperation
	State     *model.SystemState
	Conflict  *model.Conflict
}

// Outcome is the result of one job.
type Outcome struct {
	OperationID    string
	Classification *model.FailureClassification
	Result         *model.RecoveryResult
	Backup         *model.BackupInfo
	Attempts       []recovery.Attempt
	Status         model.OperationStatus
	WorkerID       int
	Err            error
}

// Recovered reports whether the recovery succeeded.
func (o *Outcome) Recovered() bool {
	return o.Err == nil && o.Result != nil && o.Result.Success
}

// Config configures a Runner.
type Config struct {
	Workers int

	// OnOutcome is called from worker goroutines as each job finishes.
	OnOutcome func(Outcome)
}

// Options carries the collaborators.
type Options struct {
	Classifier Classifier
	Recoverer  Recoverer
	Backups    BackupLister
	Publisher  events.Publisher
	Errors     ErrorRecorder
	Logger     *logger.Logger
}

// Runner drives recoveries.
type Runner struct {
	cfg        Config
	classifier Classifier
	recoverer  Recoverer
	backups    BackupLister
	publisher  events.Publisher
	errors     ErrorRecorder
	logger     *logger.Logger

	mu       sync.Mutex
	attempts map[string][]recovery.Attempt
	locks    map[string]*sync.Mutex

	processed   int64
	recovered   int64
	failedCount int64
}

// Stats contains runner counters.
type Stats struct {
	Workers   int
	Processed int64
	Recovered int64
	Failed    int64
}

// New creates a runner.
func New(cfg Config, opts Options) (*Runner, error) {
	if opts.Classifier == nil || opts.Recoverer == nil {
		return nil, errors.Configuration("new_runner", "classifier and recoverer are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}

	return &Runner{
		cfg:        cfg,
		classifier: opts.Classifier,
		recoverer:  opts.Recoverer,
		backups:    opts.Backups,
		publisher:  opts.Publisher,
		errors:     opts.Errors,
		logger:     opts.Logger,
		attempts:   make(map[string][]recovery.Attempt),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

type lane struct {
	indexes []int
}

// Run processes jobs on the worker pool and returns one outcome per job in
// submission order. Jobs for the same operation run sequentially. When ctx
// is cancelled, jobs that never started carry the context error and Run
// returns it.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	return r.RunNotify(ctx, jobs, r.cfg.OnOutcome)
}

// RunNotify is Run with a per-call outcome callback.
func (r *Runner) RunNotify(ctx context.Context, jobs []Job, onOutcome func(Outcome)) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	if len(jobs) == 0 {
		return outcomes, nil
	}

	lanes := r.lanes(jobs, outcomes)
	queue := make(chan *lane, len(lanes))
	for _, l := range lanes {
		queue <- l
	}
	close(queue)

	workers := r.cfg.Workers
	if workers > len(lanes) {
		workers = len(lanes)
	}

	r.logger.Info("Recovery run started", "jobs", len(jobs), "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for l := range queue {
				for _, idx := range l.indexes {
					if err := ctx.Err(); err != nil {
						outcomes[idx].Err = err
						continue
					}
					outcomes[idx] = r.process(ctx, jobs[idx], workerID)
					if onOutcome != nil {
						onOutcome(outcomes[idx])
					}
				}
			}
		}(i + 1)
	}
	wg.Wait()

	stats := r.GetStats()
	r.logger.Info("Recovery run finished",
		"processed", stats.Processed,
		"recovered", stats.Recovered,
		"failed", stats.Failed,
	)
	return outcomes, ctx.Err()
}

// lanes groups job indexes by operation id, keeping submission order.
func (r *Runner) lanes(jobs []Job, outcomes []Outcome) []*lane {
	byID := make(map[string]*lane)
	var ordered []*lane
	for i, job := range jobs {
		if job.Operation == nil {
			outcomes[i].Err = errors.Configuration("run_recovery", "job %d has no operation", i)
			continue
		}
		outcomes[i].OperationID = job.Operation.ID
		l, ok := byID[job.Operation.ID]
		if !ok {
			l = &lane{}
			byID[job.Operation.ID] = l
			ordered = append(ordered, l)
		}
		l.indexes = append(l.indexes, i)
	}
	return ordered
}

func (r *Runner) lockFor(opID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[opID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[opID] = l
	}
	return l
}

// process classifies and recovers one job.
func (r *Runner) process(ctx context.Context, job Job, workerID int) Outcome {
	op := job.Operation
	lock := r.lockFor(op.ID)
	lock.Lock()
	defer lock.Unlock()

	atomic.AddInt64(&r.processed, 1)
	log := r.logger.WithOperation(op.ID, op.Table).WithField("worker_id", workerID)
	out := Outcome{OperationID: op.ID, WorkerID: workerID}

	classification, err := r.classifier.Classify(op, job.State)
	if err != nil {
		return r.failed(log, out, op, err)
	}
	out.Classification = classification

	r.detected(op, classification)

	backup, err := r.latestBackup(ctx, op.Table)
	if err != nil {
		log.Warn("Backup lookup failed", "error", err.Error())
	}
	out.Backup = backup

	rc := &recovery.Context{
		Operation:        op,
		Classification:   classification,
		PreviousAttempts: r.history(op.ID),
		BackupInfo:       backup,
		SystemState:      job.State,
		Conflict:         job.Conflict,
	}

	start := time.Now()
	result, err := r.recoverer.Recover(log.WithContext(ctx), rc)
	r.remember(op.ID, rc.PreviousAttempts)

	out.Result = result
	out.Attempts = append([]recovery.Attempt(nil), rc.PreviousAttempts...)
	if err != nil {
		return r.failed(log, out, op, err)
	}

	out.Status = op.Status
	if result.Success {
		atomic.AddInt64(&r.recovered, 1)
	} else {
		atomic.AddInt64(&r.failedCount, 1)
	}

	log.Debug("Job finished",
		"success", result.Success,
		"strategy", result.Strategy,
		"status", string(op.Status),
		"duration", time.Since(start),
	)
	return out
}

func (r *Runner) failed(log *logger.Logger, out Outcome, op *model.SyncOperation, err error) Outcome {
	atomic.AddInt64(&r.failedCount, 1)
	log.Warn("Recovery job failed",
		"error_type", errors.GetErrorType(err).String(),
		"error", err.Error(),
	)
	out.Err = err
	out.Status = op.Status
	return out
}

// detected records the failure in the error log and on the bus.
func (r *Runner) detected(op *model.SyncOperation, c *model.FailureClassification) {
	if r.errors != nil && op.Error != nil {
		entry := errorlog.NewErrorContext(taxonomy.AppCodeForFailure(c.FailureType), op.Error.Message).
			WithLocation("sync", op.Table)
		entry.Severity = taxonomy.SeverityForFailure(c.Severity)
		entry.Recoverable = c.Recoverable
		entry.AppState = map[string]interface{}{
			"sync_code":    op.Error.Code,
			"failure_type": string(c.FailureType),
			"operation_id": op.ID,
		}
		if op.Error.Original != nil {
			entry = entry.WithOriginal(op.Error.Original)
		}
		r.errors.Log(entry)
	}

	if r.publisher == nil {
		return
	}
	r.publisher.Publish(events.Event{
		Type:        events.EventFailureDetected,
		OperationID: op.ID,
		Action:      c.RecommendedAction,
		Metadata: map[string]interface{}{
			metrics.MetaFailureType: string(c.FailureType),
			metrics.MetaSeverity:    c.Severity.String(),
			"recoverable":           c.Recoverable,
			"table":                 op.Table,
		},
	})
}

func (r *Runner) latestBackup(ctx context.Context, table string) (*model.BackupInfo, error) {
	if r.backups == nil || table == "" {
		return nil, nil
	}
	backups, err := r.backups.ListBackups(ctx, model.BackupFilter{Table: table})
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		if b.HasData() {
			return b, nil
		}
	}
	if len(backups) > 0 {
		// A schema-only backup still lets the restore strategy decide.
		return backups[0], nil
	}
	return nil, nil
}

func (r *Runner) history(opID string) []recovery.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recovery.Attempt(nil), r.attempts[opID]...)
}

func (r *Runner) remember(opID string, attempts []recovery.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[opID] = append([]recovery.Attempt(nil), attempts...)
}

// Attempts returns the recorded attempts for an operation.
func (r *Runner) Attempts(opID string) []recovery.Attempt {
	return r.history(opID)
}

// Forget drops the attempt history for an operation.
func (r *Runner) Forget(opID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, opID)
	delete(r.locks, opID)
}

// GetStats returns runner counters.
func (r *Runner) GetStats() Stats {
	return Stats{
		Workers:   r.cfg.Workers,
		Processed: atomic.LoadInt64(&r.processed),
		Recovered: atomic.LoadInt64(&r.recovered),
		Failed:    atomic.LoadInt64(&r.failedCount),
	}
}
