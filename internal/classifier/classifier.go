/**
 * Failure Classifier for SyncGuard
 *
 * Turns a failed sync operation plus a system snapshot into a structured
 * classification: failure type, severity, recoverability, recommended action
 * and an estimated recovery time.
 *
 * Classification is pure. It reads only the injected registry, policy set
 * and thresholds, all of which are read-only after construction.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-04
 */

package classifier

import (
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

// Fixed recovery time estimates for non-retry actions.
const (
	FallbackEstimate = 2 * time.Second
	RestoreEstimate  = 5 * time.Minute
	ResetEstimate    = 10 * time.Minute
)

// PolicyLookup reports whether a conflict policy exists for a table.
type PolicyLookup interface {
	PolicyFor(table string) (model.ConflictPolicy, bool)
}

// Options configures a Classifier. Zero values fall back to defaults.
type Options struct {
	Registry *taxonomy.Registry
	Policies PolicyLookup
	Backoff  *errors.BackoffConfig

	// DiskSpaceFloor is the free-byte threshold below which resource
	// failures are escalated and not retried.
	DiskSpaceFloor int64

	// MemoryPressure is the memory usage percent at or above which resources
	// are not considered freed.
	MemoryPressure float64

	RetryCooldown time.Duration
}

// DefaultOptions returns the built-in thresholds.
func DefaultOptions() Options {
	return Options{
		Registry:       taxonomy.DefaultRegistry(),
		Policies:       model.PolicySet{},
		Backoff:        errors.DefaultBackoffConfig,
		DiskSpaceFloor: 512 * 1000 * 1000,
		MemoryPressure: 90,
		RetryCooldown:  30 * time.Second,
	}
}

// Classifier diagnoses failed sync operations.
type Classifier struct {
	registry       *taxonomy.Registry
	policies       PolicyLookup
	backoff        errors.BackoffConfig
	diskSpaceFloor int64
	memoryPressure float64
	retryCooldown  time.Duration
}

// New creates a classifier.
func New(opts Options) *Classifier {
	defaults := DefaultOptions()
	if opts.Registry == nil {
		opts.Registry = defaults.Registry
	}
	if opts.Policies == nil {
		opts.Policies = defaults.Policies
	}
	if opts.Backoff == nil {
		opts.Backoff = defaults.Backoff
	}
	if opts.DiskSpaceFloor <= 0 {
		opts.DiskSpaceFloor = defaults.DiskSpaceFloor
	}
	if opts.MemoryPressure <= 0 {
		opts.MemoryPressure = defaults.MemoryPressure
	}
	if opts.RetryCooldown <= 0 {
		opts.RetryCooldown = defaults.RetryCooldown
	}

	// Estimates must be deterministic, so the schedule copy drops jitter.
	backoff := *opts.Backoff
	backoff.RandomizationFactor = 0

	return &Classifier{
		registry:       opts.Registry,
		policies:       opts.Policies,
		backoff:        backoff,
		diskSpaceFloor: opts.DiskSpaceFloor,
		memoryPressure: opts.MemoryPressure,
		retryCooldown:  opts.RetryCooldown,
	}
}

// Classify diagnoses one failed operation against the current system state.
// Malformed input returns a configuration error; an operation that has not
// failed returns an invalid state error.
func (c *Classifier) Classify(op *model.SyncOperation, state *model.SystemState) (*model.FailureClassification, error) {
	if err := validateInput(op, state); err != nil {
		return nil, err
	}

	syncErr := op.Error
	exhausted := op.RetriesExhausted()

	failureType, rule := c.detectFailureType(syncErr)

	ctx := map[string]interface{}{
		"code":           syncErr.Code,
		"rule":           rule,
		"table":          op.Table,
		"retry_count":    op.RetryCount,
		"max_retries":    op.MaxRetries,
		"network_status": string(state.NetworkStatus),
	}
	if status := httpStatus(syncErr); status > 0 {
		ctx["http_status"] = status
	}

	severity := c.severity(failureType, state, ctx)

	policy, hasPolicy := c.policies.PolicyFor(op.Table)
	if failureType == model.FailureConflict && hasPolicy {
		ctx["conflict_strategy"] = string(policy.Strategy)
	}

	recoverable := c.recoverable(failureType, op, hasPolicy)
	if exhausted {
		recoverable = false
		ctx["retries_exhausted"] = true
	}

	action := c.action(failureType, recoverable, exhausted, hasPolicy, state, ctx)

	classification := &model.FailureClassification{
		OperationID:           op.ID,
		FailureType:           failureType,
		Severity:              severity,
		Recoverable:           recoverable,
		RecommendedAction:     action,
		EstimatedRecoveryTime: c.estimate(action, op.RetryCount),
		Context:               ctx,
	}

	return classification, nil
}

func validateInput(op *model.SyncOperation, state *model.SystemState) error {
	if op == nil {
		return errors.Configuration("classify", "operation is required")
	}
	if err := state.Validate(); err != nil {
		return errors.Wrapf(err, "classify %s", op.ID)
	}
	if op.MaxRetries < 0 || op.RetryCount < 0 {
		return errors.Configuration("classify", "operation %s has negative retry bounds", op.ID)
	}
	if op.Error == nil {
		return errors.InvalidState("classify", "operation %s has no attached error", op.ID)
	}
	if op.Status != model.StatusFailed && op.Status != model.StatusRecovering {
		return errors.InvalidState("classify", "operation %s is %s, not failed", op.ID, op.Status)
	}
	return nil
}

// severity starts from the static table and only ever moves upward.
func (c *Classifier) severity(ft model.FailureType, state *model.SystemState, ctx map[string]interface{}) model.FailureSeverity {
	base := c.registry.BaseSeverity(ft)
	ctx["base_severity"] = base.String()

	switch {
	case state.IsOffline() && ft.IsNetworkRelated():
		ctx["escalation_reason"] = "offline"
		return base.Escalate()
	case state.DiskSpace < c.diskSpaceFloor && ft == model.FailureResourceExhaustion:
		ctx["escalation_reason"] = "low_disk_space"
		return base.Escalate()
	}
	return base
}

func (c *Classifier) recoverable(ft model.FailureType, op *model.SyncOperation, hasPolicy bool) bool {
	switch ft {
	case model.FailureDataCorruption, model.FailureSchemaMismatch, model.FailurePermission:
		return false
	case model.FailureNetwork, model.FailureTimeout, model.FailureResourceExhaustion:
		return true
	case model.FailureConflict:
		return hasPolicy
	case model.FailureAuthentication:
		// One credential refresh, never a retry storm.
		return op.RetryCount == 0
	default:
		return op.Error.Recoverable
	}
}

func (c *Classifier) resourcesFreed(state *model.SystemState) bool {
	return state.DiskSpace >= c.diskSpaceFloor && state.MemoryUsage < c.memoryPressure
}

// ResourcesFreed reports whether disk and memory are back above the
// configured thresholds. A nil state counts as not freed.
func (c *Classifier) ResourcesFreed(state *model.SystemState) bool {
	return state != nil && c.resourcesFreed(state)
}

func (c *Classifier) action(
	ft model.FailureType,
	recoverable, exhausted, hasPolicy bool,
	state *model.SystemState,
	ctx map[string]interface{},
) model.RecoveryAction {
	action := c.baseAction(ft, recoverable, exhausted, hasPolicy, state, ctx)

	if !recoverable && !action.IsTerminal() {
		action = model.ActionManualIntervention
	}
	return action
}

func (c *Classifier) baseAction(
	ft model.FailureType,
	recoverable, exhausted, hasPolicy bool,
	state *model.SystemState,
	ctx map[string]interface{},
) model.RecoveryAction {
	if ft == model.FailureDataCorruption {
		ctx["remediation"] = string(model.ActionRestoreFromBackup)
	}

	if exhausted {
		if ft == model.FailureSchemaMismatch {
			return model.ActionManualIntervention
		}
		return model.ActionEscalate
	}

	switch ft {
	case model.FailureNetwork, model.FailureTimeout:
		return model.ActionBackoffRetry
	case model.FailureConflict:
		if hasPolicy {
			return model.ActionFallbackStrategy
		}
		return model.ActionManualIntervention
	case model.FailureDataCorruption, model.FailureSchemaMismatch:
		return model.ActionManualIntervention
	case model.FailureResourceExhaustion:
		if c.resourcesFreed(state) {
			return model.ActionRetry
		}
		return model.ActionEscalate
	case model.FailureAuthentication:
		if recoverable {
			return model.ActionRetry
		}
		return model.ActionEscalate
	case model.FailurePermission:
		return model.ActionEscalate
	default:
		if recoverable {
			return model.ActionRetry
		}
		return model.ActionManualIntervention
	}
}

func (c *Classifier) estimate(action model.RecoveryAction, retryCount int) time.Duration {
	switch action {
	case model.ActionBackoffRetry:
		return errors.BackoffDelay(&c.backoff, retryCount)
	case model.ActionRetry:
		return c.retryCooldown
	case model.ActionFallbackStrategy:
		return FallbackEstimate
	case model.ActionRestoreFromBackup:
		return RestoreEstimate
	case model.ActionResetAndResync:
		return ResetEstimate
	default:
		return 0
	}
}
