/**
 * Recovery Dispatcher
 *
 * Selects a strategy for a classified failure, executes it, follows at
 * most one chained action and publishes exactly one start and one terminal
 * event per recovery.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-07
 * Update History:
 * - 2026-10-09: Retry admission through a shared rate limiter
 */

package recovery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// Options configures a Dispatcher.
type Options struct {
	Registry  *Registry
	Publisher events.Publisher
	Logger    *logger.Logger

	// Limiter throttles retry actions across all operations. Nil disables it.
	Limiter *rate.Limiter
}

// NewRetryLimiter builds the shared retry limiter. A non-positive rate
// means unlimited.
func NewRetryLimiter(perSecond float64, burst int) *rate.Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}

// Dispatcher runs recoveries against a strategy registry.
type Dispatcher struct {
	registry  *Registry
	publisher events.Publisher
	logger    *logger.Logger
	limiter   *rate.Limiter
	manual    Strategy
	escalate  Strategy
}

// NewDispatcher creates a dispatcher. A nil registry starts empty.
func NewDispatcher(opts Options) *Dispatcher {
	registry := opts.Registry
	if registry == nil {
		registry, _ = NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}

	return &Dispatcher{
		registry:  registry,
		publisher: opts.Publisher,
		logger:    log,
		limiter:   opts.Limiter,
		manual:    NewManualIntervention(),
		escalate:  NewEscalate(),
	}
}

// RegisterStrategy adds a strategy to the dispatcher's registry.
func (d *Dispatcher) RegisterStrategy(s Strategy) error {
	return d.registry.Register(s)
}

// GetAvailableStrategies lists strategies for a failure type by priority.
func (d *Dispatcher) GetAvailableStrategies(ft model.FailureType) []Strategy {
	return d.registry.ForFailureType(ft)
}

// Recover runs one recovery for a failed operation.
//
// Strategy failures are reported in the result and the RECOVERY_FAILED
// event, not as an error. The returned error is non-nil only for malformed
// input, an operation in the wrong state, or cancellation.
func (d *Dispatcher) Recover(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	start := time.Now()

	if err := d.validate(rc); err != nil {
		return nil, err
	}

	op := rc.Operation
	if op.Status == model.StatusFailed {
		if err := op.Transition(model.StatusRecovering); err != nil {
			return nil, err
		}
	}

	log := logger.FromContext(ctx, d.logger.WithOperation(op.ID, op.Table))
	strategy := d.selectStrategy(rc)
	policy := strategy.Policy()

	d.publish(events.Event{
		Type:        events.EventRecoveryStarted,
		OperationID: op.ID,
		Action:      policy.Action,
		Metadata: map[string]interface{}{
			"strategy":     policy.Name,
			"failure_type": string(rc.Classification.FailureType),
			"attempt":      rc.AttemptsFor(policy.Name) + 1,
		},
	})

	if policy.Action.IsRetry() && d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return d.cancelled(ctx, rc, policy, start, err)
		}
	}

	result, err := d.run(ctx, rc, strategy)
	if err != nil && isCancellation(ctx, err) {
		return d.cancelled(ctx, rc, policy, start, err)
	}

	if err == nil && result.NextAction != "" && result.NextAction != result.Action {
		next := d.chainTarget(result.NextAction)
		log.Debug("Following chained recovery action",
			"from", policy.Name,
			"to", next.Policy().Name,
		)

		chained, chainErr := d.run(ctx, rc, next)
		if chainErr != nil && isCancellation(ctx, chainErr) {
			return d.cancelled(ctx, rc, next.Policy(), start, chainErr)
		}
		chained.SetMeta("chained_from", policy.Name)
		result, err = chained, chainErr
		policy = next.Policy()
	}

	result.Duration = time.Since(start)
	d.finish(rc, result)

	log.LogRecovery(op.ID, result.Strategy, string(result.Action), result.Success, result.Duration)
	if err != nil {
		log.Warn("Recovery strategy failed", "strategy", policy.Name, "error", err.Error())
	}

	return result, nil
}

func (d *Dispatcher) validate(rc *Context) error {
	if rc == nil || rc.Operation == nil {
		return errors.Configuration("recover", "recovery context requires an operation")
	}
	if rc.Classification == nil {
		return errors.Configuration("recover", "operation %s has no classification", rc.Operation.ID)
	}
	if rc.Classification.OperationID != "" && rc.Classification.OperationID != rc.Operation.ID {
		return errors.Configuration("recover", "classification for %s does not match operation %s",
			rc.Classification.OperationID, rc.Operation.ID)
	}

	status := rc.Operation.Status
	if status != model.StatusFailed && status != model.StatusRecovering {
		return errors.InvalidState("recover", "operation %s is %s, not failed", rc.Operation.ID, status)
	}
	return nil
}

// selectStrategy prefers the candidate taking the recommended action, then
// the first eligible one by priority. Strategies whose attempt budget is
// spent are skipped, as are retries for unrecoverable failures.
func (d *Dispatcher) selectStrategy(rc *Context) Strategy {
	cls := rc.Classification
	noRetry := !cls.Recoverable || cls.RecommendedAction.IsTerminal()

	var first Strategy
	for _, s := range d.registry.ForFailureType(cls.FailureType) {
		p := s.Policy()
		if p.MaxAttempts > 0 && rc.AttemptsFor(p.Name) >= p.MaxAttempts {
			continue
		}
		if noRetry && p.Action.IsRetry() {
			continue
		}
		if p.Action == cls.RecommendedAction {
			return s
		}
		if first == nil {
			first = s
		}
	}

	if first != nil {
		return first
	}
	return d.manual
}

func (d *Dispatcher) chainTarget(action model.RecoveryAction) Strategy {
	if s, ok := d.registry.ForAction(action); ok {
		return s
	}
	if action == model.ActionEscalate {
		return d.escalate
	}
	return d.manual
}

// run executes one strategy, records the attempt and performs any delay the
// strategy asked for. The returned result is never nil.
func (d *Dispatcher) run(ctx context.Context, rc *Context, s Strategy) (*model.RecoveryResult, error) {
	policy := s.Policy()
	startedAt := time.Now()

	result, err := execute(ctx, rc, s)
	if err == nil && result == nil {
		err = errors.InvalidState("recover", "strategy %s returned no result", policy.Name)
	}
	if err != nil {
		result = &model.RecoveryResult{
			Action:  policy.Action,
			Message: err.Error(),
			Err:     err,
		}
	}
	if result.Action == "" {
		result.Action = policy.Action
	}
	result.Strategy = policy.Name

	if err == nil && result.Success {
		if delay, ok := result.Metadata[MetaDelay].(time.Duration); ok && delay > 0 {
			if waitErr := errors.Wait(ctx, delay); waitErr != nil {
				err = waitErr
				result.Success = false
				result.Err = waitErr
			}
		}
	}

	rc.PreviousAttempts = append(rc.PreviousAttempts, Attempt{
		Strategy:  policy.Name,
		Action:    result.Action,
		Success:   result.Success,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Error:     result.ErrorMessage(),
	})

	return result, err
}

func execute(ctx context.Context, rc *Context, s Strategy) (result *model.RecoveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("strategy %s panicked: %v", s.Policy().Name, r)
		}
	}()
	return s.Execute(ctx, rc)
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.IsContextError(err)
}

func (d *Dispatcher) cancelled(ctx context.Context, rc *Context, policy Policy, start time.Time, cause error) (*model.RecoveryResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = ctxErr
	}

	result := &model.RecoveryResult{
		Action:   policy.Action,
		Strategy: policy.Name,
		Duration: time.Since(start),
		Message:  "recovery cancelled",
		Err:      cause,
	}

	op := rc.Operation
	if op.Status != model.StatusFailed {
		_ = op.Transition(model.StatusFailed)
	}

	d.publish(events.Event{
		Type:        events.EventRecoveryFailed,
		OperationID: op.ID,
		Action:      policy.Action,
		Result:      result,
		Error:       cause.Error(),
	})

	d.logger.WithOperation(op.ID, op.Table).Warn("Recovery cancelled", "strategy", policy.Name)
	return result, errors.Cancelled("recover", cause)
}

// finish applies the outcome to the operation and publishes the terminal
// event.
func (d *Dispatcher) finish(rc *Context, result *model.RecoveryResult) {
	op := rc.Operation

	switch {
	case result.Success && result.Action == model.ActionSkip:
		_ = op.Transition(model.StatusCompleted)
	case result.Success:
		if op.Transition(model.StatusInProgress) == nil {
			op.RetryCount++
		}
	default:
		_ = op.Transition(model.StatusFailed)
	}

	event := events.Event{
		OperationID: op.ID,
		Action:      result.Action,
		Result:      result,
		Metadata:    map[string]interface{}{"strategy": result.Strategy},
	}
	if result.Success {
		event.Type = events.EventRecoveryCompleted
	} else {
		event.Type = events.EventRecoveryFailed
		event.Error = result.ErrorMessage()
		if event.Error == "" {
			event.Error = result.Message
		}
	}
	d.publish(event)
}

func (d *Dispatcher) publish(event events.Event) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(event)
}
