/**
 * Recovery Strategy Catalog
 *
 * Defines the strategy contract, the per-call recovery context and the
 * explicit registry a dispatcher selects from.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-06
 */

package recovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// Policy describes when and how often a strategy applies.
type Policy struct {
	Name         string
	Action       model.RecoveryAction
	FailureTypes []model.FailureType

	// MaxAttempts bounds executions per operation; 0 means unbounded.
	MaxAttempts int

	// BackoffMultiplier overrides the schedule multiplier for backoff retries.
	BackoffMultiplier float64

	// Priority orders candidates; lower values are tried first.
	Priority int
}

// Applies reports whether the policy lists the failure type.
func (p Policy) Applies(ft model.FailureType) bool {
	for _, t := range p.FailureTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// Strategy is a named, stateless recovery policy.
type Strategy interface {
	Policy() Policy
	Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error)
}

// Attempt records one strategy execution for an operation.
type Attempt struct {
	Strategy  string               `json:"strategy"`
	Action    model.RecoveryAction `json:"action"`
	Success   bool                 `json:"success"`
	StartedAt time.Time            `json:"startedAt"`
	Duration  time.Duration        `json:"duration"`
	Error     string               `json:"error,omitempty"`
}

// Context bundles everything a strategy needs for one recovery.
type Context struct {
	Operation        *model.SyncOperation
	Classification   *model.FailureClassification
	PreviousAttempts []Attempt
	BackupInfo       *model.BackupInfo
	SystemState      *model.SystemState
	Conflict         *model.Conflict
}

// AttemptsFor counts previous executions of the named strategy.
func (c *Context) AttemptsFor(name string) int {
	n := 0
	for _, a := range c.PreviousAttempts {
		if a.Strategy == name {
			n++
		}
	}
	return n
}

// ExecuteFunc is the signature of a custom strategy body.
type ExecuteFunc func(ctx context.Context, rc *Context) (*model.RecoveryResult, error)

type customStrategy struct {
	policy Policy
	fn     ExecuteFunc
}

// NewCustomStrategy adapts a function into a Strategy.
func NewCustomStrategy(policy Policy, fn ExecuteFunc) Strategy {
	return &customStrategy{policy: policy, fn: fn}
}

func (s *customStrategy) Policy() Policy { return s.policy }

func (s *customStrategy) Execute(ctx context.Context, rc *Context) (*model.RecoveryResult, error) {
	return s.fn(ctx, rc)
}

// Registry holds the strategy catalog for one dispatcher.
type Registry struct {
	byName     map[string]Strategy
	strategies []Strategy
	mu         sync.RWMutex
}

// NewRegistry creates a registry pre-loaded with strategies.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{byName: make(map[string]Strategy)}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a strategy. Names must be unique.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return errors.Configuration("register_strategy", "strategy is required")
	}
	p := s.Policy()
	if p.Name == "" {
		return errors.Configuration("register_strategy", "strategy name is required")
	}
	if p.Action == "" {
		return errors.Configuration("register_strategy", "strategy %s has no action", p.Name)
	}
	if p.MaxAttempts < 0 {
		return errors.Configuration("register_strategy", "strategy %s has negative max attempts", p.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name]; exists {
		return errors.Configuration("register_strategy", "strategy %s already registered", p.Name)
	}
	r.byName[p.Name] = s
	r.strategies = append(r.strategies, s)
	return nil
}

// Strategies returns the catalog in registration order.
func (r *Registry) Strategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	return s, ok
}

// ForFailureType returns applicable strategies by ascending priority.
// Ties keep registration order.
func (r *Registry) ForFailureType(ft model.FailureType) []Strategy {
	var out []Strategy
	for _, s := range r.Strategies() {
		if s.Policy().Applies(ft) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Policy().Priority < out[j].Policy().Priority
	})
	return out
}

// ForAction returns the lowest-priority strategy taking the action.
func (r *Registry) ForAction(action model.RecoveryAction) (Strategy, bool) {
	var best Strategy
	for _, s := range r.Strategies() {
		p := s.Policy()
		if p.Action != action {
			continue
		}
		if best == nil || p.Priority < best.Policy().Priority {
			best = s
		}
	}
	return best, best != nil
}
