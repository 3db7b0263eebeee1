package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// Built-in strategy names.
const (
	StrategyBackoffRetry       = "backoff_retry"
	StrategyRetry              = "retry"
	StrategyFallback           = "conflict_fallback"
	StrategyRestoreFromBackup  = "restore_from_backup"
	StrategyResetAndResync     = "reset_and_resync"
	StrategyEscalate           = "escalate"
	StrategySkip               = "skip"
	StrategyManualIntervention = "manual_intervention"
)

// Metadata keys set by built-in strategies.
const (
	MetaDelay         = "delay"
	MetaAttempt       = "attempt"
	MetaFlagged       = "flagged"
	MetaBackupID      = "backup_id"
	MetaRollbackPoint = "rollback_point"
	MetaResolution    = "resolution"
)

// Deps are the collaborators and settings used by DefaultStrategies.
type Deps struct {
	Backoff       *errors.BackoffConfig
	RetryCooldown time.Duration
	MaxAttempts   int

	// ResourcesFreed reports whether a resource-exhausted operation may run
	// again. Nil means always.
	ResourcesFreed func(*model.SystemState) bool

	Policies  PolicyLookup
	Resolver  *ConflictResolver
	Applier   ResolutionApplier
	Backups   BackupManager
	Rollbacks RollbackRecorder
	Resyncer  Resyncer
}

// DefaultStrategies builds the standard catalog. Reset-and-resync is only
// included when a Resyncer is supplied.
func DefaultStrategies(deps Deps) []Strategy {
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = 3
	}

	strategies := []Strategy{
		NewBackoffRetry(deps.Backoff, deps.MaxAttempts),
		NewRetry(deps.RetryCooldown, deps.MaxAttempts, deps.ResourcesFreed),
		NewFallback(deps.Policies, deps.Resolver, deps.Applier),
		NewRestoreFromBackup(deps.Backups, deps.Rollbacks),
	}
	if deps.Resyncer != nil {
		strategies = append(strategies, NewResetAndResync(deps.Resyncer, deps.Rollbacks))
	}
	strategies = append(strategies, NewEscalate())
	return strategies
}

// BackoffRetry schedules another attempt after an exponential delay. The
// dispatcher performs the wait.
type BackoffRetry struct {
	policy  Policy
	backoff errors.BackoffConfig
}

// NewBackoffRetry creates the network/timeout retry strategy.
func NewBackoffRetry(backoff *errors.BackoffConfig, maxAttempts int) *BackoffRetry {
	if backoff == nil {
		backoff = errors.DefaultBackoffConfig
	}
	return &BackoffRetry{
		policy: Policy{
			Name:              StrategyBackoffRetry,
			Action:            model.ActionBackoffRetry,
			FailureTypes:      []model.FailureType{model.FailureNetwork, model.FailureTimeout},
			MaxAttempts:       maxAttempts,
			BackoffMultiplier: backoff.Multiplier,
			Priority:          10,
		},
		backoff: *backoff,
	}
}

func (s *BackoffRetry) Policy() Policy { return s.policy }

func (s *BackoffRetry) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	cfg := s.backoff
	if s.policy.BackoffMultiplier > 0 {
		cfg.Multiplier = s.policy.BackoffMultiplier
	}

	attempt := rc.Operation.RetryCount
	delay := errors.BackoffDelay(&cfg, attempt)

	return &model.RecoveryResult{
		Success: true,
		Action:  model.ActionBackoffRetry,
		Message: fmt.Sprintf("retry scheduled in %s", delay),
		Metadata: map[string]interface{}{
			MetaDelay:   delay,
			MetaAttempt: attempt,
		},
	}, nil
}

// Retry re-runs the operation after a fixed cooldown.
type Retry struct {
	freed    func(*model.SystemState) bool
	policy   Policy
	cooldown time.Duration
}

// NewRetry creates the cooldown retry strategy.
func NewRetry(cooldown time.Duration, maxAttempts int, freed func(*model.SystemState) bool) *Retry {
	return &Retry{
		policy: Policy{
			Name:   StrategyRetry,
			Action: model.ActionRetry,
			FailureTypes: []model.FailureType{
				model.FailureResourceExhaustion,
				model.FailureAuthentication,
				model.FailureUnknown,
			},
			MaxAttempts: maxAttempts,
			Priority:    20,
		},
		cooldown: cooldown,
		freed:    freed,
	}
}

func (s *Retry) Policy() Policy { return s.policy }

func (s *Retry) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	if rc.Classification.FailureType == model.FailureResourceExhaustion &&
		s.freed != nil && rc.SystemState != nil && !s.freed(rc.SystemState) {
		return &model.RecoveryResult{
			Success:    false,
			Action:     model.ActionRetry,
			Message:    "resources still exhausted",
			NextAction: model.ActionEscalate,
		}, nil
	}

	return &model.RecoveryResult{
		Success:  true,
		Action:   model.ActionRetry,
		Message:  fmt.Sprintf("retry after %s cooldown", s.cooldown),
		Metadata: map[string]interface{}{MetaDelay: s.cooldown},
	}, nil
}

// Fallback resolves a conflict with the table's configured policy.
type Fallback struct {
	policies PolicyLookup
	resolver *ConflictResolver
	applier  ResolutionApplier
	policy   Policy
}

// NewFallback creates the conflict resolution strategy.
func NewFallback(policies PolicyLookup, resolver *ConflictResolver, applier ResolutionApplier) *Fallback {
	if policies == nil {
		policies = model.PolicySet{}
	}
	if resolver == nil {
		resolver = NewConflictResolver()
	}
	return &Fallback{
		policy: Policy{
			Name:         StrategyFallback,
			Action:       model.ActionFallbackStrategy,
			FailureTypes: []model.FailureType{model.FailureConflict},
			MaxAttempts:  2,
			Priority:     10,
		},
		policies: policies,
		resolver: resolver,
		applier:  applier,
	}
}

func (s *Fallback) Policy() Policy { return s.policy }

func (s *Fallback) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	manual := func(msg string) *model.RecoveryResult {
		return &model.RecoveryResult{
			Success:    false,
			Action:     model.ActionFallbackStrategy,
			Message:    msg,
			NextAction: model.ActionManualIntervention,
		}
	}

	policy, ok := s.policies.PolicyFor(rc.Operation.Table)
	if !ok {
		return manual(fmt.Sprintf("no conflict policy for table %s", rc.Operation.Table)), nil
	}
	if rc.Conflict == nil {
		return manual("conflict details unavailable"), nil
	}

	resolution, err := s.resolver.Resolve(rc.Conflict, policy)
	if err != nil {
		return nil, err
	}
	if resolution.RequiresManual {
		result := manual("policy requires manual resolution")
		result.SetMeta(MetaResolution, resolution)
		return result, nil
	}

	if s.applier != nil {
		if err := s.applier.ApplyResolution(ctx, rc.Conflict.Table, rc.Conflict.RecordID, resolution.Record); err != nil {
			return nil, errors.Wrap(err, "apply conflict resolution")
		}
	}

	return &model.RecoveryResult{
		Success:  true,
		Action:   model.ActionFallbackStrategy,
		Message:  fmt.Sprintf("conflict resolved with %s", resolution.Strategy),
		Metadata: map[string]interface{}{MetaResolution: resolution},
	}, nil
}

// RestoreFromBackup restores the operation's table from a verified backup.
// It never restores from a backup that failed verification.
type RestoreFromBackup struct {
	backups   BackupManager
	rollbacks RollbackRecorder
	policy    Policy
}

// NewRestoreFromBackup creates the corruption restore strategy.
func NewRestoreFromBackup(backups BackupManager, rollbacks RollbackRecorder) *RestoreFromBackup {
	return &RestoreFromBackup{
		policy: Policy{
			Name:         StrategyRestoreFromBackup,
			Action:       model.ActionRestoreFromBackup,
			FailureTypes: []model.FailureType{model.FailureDataCorruption},
			MaxAttempts:  1,
			Priority:     10,
		},
		backups:   backups,
		rollbacks: rollbacks,
	}
}

func (s *RestoreFromBackup) Policy() Policy { return s.policy }

func (s *RestoreFromBackup) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	backup := rc.BackupInfo
	table := rc.Operation.Table

	if backup == nil {
		return &model.RecoveryResult{
			Success: false,
			Action:  model.ActionManualIntervention,
			Message: "no backup available to restore from",
			Metadata: map[string]interface{}{
				MetaFlagged: true,
			},
		}, nil
	}

	if !backup.HasData() || !backup.Covers(table) {
		return &model.RecoveryResult{
			Success:    false,
			Action:     model.ActionRestoreFromBackup,
			Message:    fmt.Sprintf("backup %s does not hold data for table %s", backup.ID, table),
			Metadata:   map[string]interface{}{MetaBackupID: backup.ID},
			NextAction: model.ActionManualIntervention,
		}, nil
	}

	escalate := func(msg string, cause error) *model.RecoveryResult {
		return &model.RecoveryResult{
			Success:    false,
			Action:     model.ActionRestoreFromBackup,
			Message:    msg,
			Metadata:   map[string]interface{}{MetaBackupID: backup.ID},
			NextAction: model.ActionEscalate,
			Err:        cause,
		}
	}

	if s.backups == nil {
		return escalate("no backup manager configured to verify backup", nil), nil
	}

	verified, err := s.backups.VerifyBackup(ctx, backup.ID)
	if errors.IsContextError(err) {
		return nil, err
	}
	if err != nil || !verified {
		return escalate(fmt.Sprintf("backup %s failed verification", backup.ID), err), nil
	}

	result := &model.RecoveryResult{
		Action:   model.ActionRestoreFromBackup,
		Metadata: map[string]interface{}{MetaBackupID: backup.ID},
	}

	if s.rollbacks != nil {
		point, err := s.rollbacks.Create(ctx, "restore-"+rc.Operation.ID, backup.ID, []string{rc.Operation.ID})
		if err != nil {
			return nil, errors.Wrap(err, "create rollback point")
		}
		result.SetMeta(MetaRollbackPoint, point.ID)
	}

	restored, err := s.backups.RestoreFromBackup(ctx, backup.ID, []string{table})
	if err != nil {
		return nil, errors.Wrapf(err, "restore %s from backup %s", table, backup.ID)
	}
	if !restored {
		result.Message = fmt.Sprintf("restore of %s from backup %s reported no changes", table, backup.ID)
		result.NextAction = model.ActionEscalate
		return result, nil
	}

	result.Success = true
	result.Message = fmt.Sprintf("restored %s from backup %s", table, backup.ID)
	return result, nil
}

// ResetAndResync discards local table state and pulls it again.
type ResetAndResync struct {
	resyncer  Resyncer
	rollbacks RollbackRecorder
	policy    Policy
}

// NewResetAndResync creates the reset strategy.
func NewResetAndResync(resyncer Resyncer, rollbacks RollbackRecorder) *ResetAndResync {
	return &ResetAndResync{
		policy: Policy{
			Name:         StrategyResetAndResync,
			Action:       model.ActionResetAndResync,
			FailureTypes: []model.FailureType{model.FailureDataCorruption},
			MaxAttempts:  1,
			Priority:     20,
		},
		resyncer:  resyncer,
		rollbacks: rollbacks,
	}
}

func (s *ResetAndResync) Policy() Policy { return s.policy }

func (s *ResetAndResync) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	table := rc.Operation.Table
	result := &model.RecoveryResult{Action: model.ActionResetAndResync}

	if s.rollbacks != nil && rc.BackupInfo != nil {
		point, err := s.rollbacks.Create(ctx, "resync-"+rc.Operation.ID, rc.BackupInfo.ID, []string{rc.Operation.ID})
		if err != nil {
			return nil, errors.Wrap(err, "create rollback point")
		}
		result.SetMeta(MetaRollbackPoint, point.ID)
	}

	if err := s.resyncer.ResetTable(ctx, table); err != nil {
		return nil, errors.Wrapf(err, "reset table %s", table)
	}
	if err := s.resyncer.Resync(ctx, table); err != nil {
		return nil, errors.Wrapf(err, "resync table %s", table)
	}

	result.Success = true
	result.Message = fmt.Sprintf("table %s reset and resynced", table)
	return result, nil
}

// flagStrategy hands a failure to an operator. It never reports success.
type flagStrategy struct {
	policy  Policy
	message string
}

func (s *flagStrategy) Policy() Policy { return s.policy }

func (s *flagStrategy) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	meta := map[string]interface{}{MetaFlagged: true}
	if rc.Classification != nil {
		meta["failure_type"] = string(rc.Classification.FailureType)
		meta["severity"] = rc.Classification.Severity.String()
	}
	return &model.RecoveryResult{
		Success:  false,
		Action:   s.policy.Action,
		Message:  s.message,
		Metadata: meta,
	}, nil
}

// NewEscalate creates the escalation strategy. It applies to every failure
// type an operator can act on directly.
func NewEscalate() Strategy {
	return &flagStrategy{
		policy: Policy{
			Name:   StrategyEscalate,
			Action: model.ActionEscalate,
			FailureTypes: []model.FailureType{
				model.FailureNetwork,
				model.FailureTimeout,
				model.FailureAuthentication,
				model.FailurePermission,
				model.FailureDataCorruption,
				model.FailureConflict,
				model.FailureResourceExhaustion,
			},
			Priority: 100,
		},
		message: "failure escalated to an operator",
	}
}

// NewManualIntervention creates the catch-all strategy used when nothing
// else qualifies.
func NewManualIntervention() Strategy {
	return &flagStrategy{
		policy: Policy{
			Name:     StrategyManualIntervention,
			Action:   model.ActionManualIntervention,
			Priority: 1000,
		},
		message: "operation flagged for manual intervention",
	}
}

// NewSkip creates a strategy that drops the operation for the given types.
func NewSkip(types ...model.FailureType) Strategy {
	return NewCustomStrategy(Policy{
		Name:         StrategySkip,
		Action:       model.ActionSkip,
		FailureTypes: types,
		Priority:     50,
	}, func(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
		return &model.RecoveryResult{
			Success: true,
			Action:  model.ActionSkip,
			Message: "operation skipped",
		}, nil
	})
}
