/**
 * Failure Classification Model
 *
 * Closed enumerations for failure types, severities and recovery actions,
 * plus the classification and recovery result values built from them.
 *
 * Author: SyncGuard Team
 * Update History:
 * - 2026-10-03: Initial implementation
 */

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errors"
)

// FailureType describes why a sync operation failed.
type FailureType string

const (
	FailureNetwork            FailureType = "NETWORK_ERROR"
	FailureTimeout            FailureType = "TIMEOUT_ERROR"
	FailureAuthentication     FailureType = "AUTHENTICATION_ERROR"
	FailurePermission         FailureType = "PERMISSION_ERROR"
	FailureDataCorruption     FailureType = "DATA_CORRUPTION"
	FailureSchemaMismatch     FailureType = "SCHEMA_MISMATCH"
	FailureConflict           FailureType = "CONFLICT_ERROR"
	FailureResourceExhaustion FailureType = "RESOURCE_EXHAUSTION"
	FailureUnknown            FailureType = "UNKNOWN_ERROR"
)

// FailureTypes lists every failure type in declaration order.
var FailureTypes = []FailureType{
	FailureNetwork,
	FailureTimeout,
	FailureAuthentication,
	FailurePermission,
	FailureDataCorruption,
	FailureSchemaMismatch,
	FailureConflict,
	FailureResourceExhaustion,
	FailureUnknown,
}

// IsNetworkRelated reports whether connectivity affects this failure type.
func (ft FailureType) IsNetworkRelated() bool {
	return ft == FailureNetwork || ft == FailureTimeout
}

// Valid reports whether ft is one of the declared failure types.
func (ft FailureType) Valid() bool {
	for _, known := range FailureTypes {
		if ft == known {
			return true
		}
	}
	return false
}

// FailureSeverity is ordered: Low < Medium < High < Critical.
type FailureSeverity int

const (
	SeverityLow FailureSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of FailureSeverity
func (s FailureSeverity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Escalate returns the next severity level, capped at Critical.
func (s FailureSeverity) Escalate() FailureSeverity {
	if s >= SeverityCritical {
		return SeverityCritical
	}
	return s + 1
}

// ParseSeverity parses LOW/MEDIUM/HIGH/CRITICAL case-insensitively.
func ParseSeverity(value string) (FailureSeverity, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", value)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s FailureSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *FailureSeverity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RecoveryAction is what the recovery layer does about a failure.
type RecoveryAction string

const (
	ActionRetry              RecoveryAction = "RETRY"
	ActionBackoffRetry       RecoveryAction = "BACKOFF_RETRY"
	ActionFallbackStrategy   RecoveryAction = "FALLBACK_STRATEGY"
	ActionRestoreFromBackup  RecoveryAction = "RESTORE_FROM_BACKUP"
	ActionResetAndResync     RecoveryAction = "RESET_AND_RESYNC"
	ActionEscalate           RecoveryAction = "ESCALATE"
	ActionManualIntervention RecoveryAction = "MANUAL_INTERVENTION"
	ActionSkip               RecoveryAction = "SKIP"
)

// IsRetry reports whether the action re-runs the operation as-is.
func (a RecoveryAction) IsRetry() bool {
	return a == ActionRetry || a == ActionBackoffRetry
}

// IsTerminal reports whether the action hands the failure to an operator.
func (a RecoveryAction) IsTerminal() bool {
	return a == ActionEscalate || a == ActionManualIntervention
}

// FailureClassification is the structured diagnosis of one failed operation.
type FailureClassification struct {
	OperationID           string                 `json:"operationId"`
	FailureType           FailureType            `json:"failureType"`
	Severity              FailureSeverity        `json:"severity"`
	Recoverable           bool                   `json:"recoverable"`
	RecommendedAction     RecoveryAction         `json:"recommendedAction"`
	EstimatedRecoveryTime time.Duration          `json:"estimatedRecoveryTime"`
	Context               map[string]interface{} `json:"context,omitempty"`
}

// Validate enforces the recoverable/action invariant: an unrecoverable
// failure may only be escalated or handed to manual intervention.
func (c *FailureClassification) Validate() error {
	if c == nil {
		return errors.Configuration("validate_classification", "classification is required")
	}
	if !c.FailureType.Valid() {
		return errors.Configuration("validate_classification", "unknown failure type %q", c.FailureType)
	}
	if !c.Recoverable && !c.RecommendedAction.IsTerminal() {
		return errors.Configuration("validate_classification",
			"unrecoverable %s cannot recommend %s", c.FailureType, c.RecommendedAction)
	}
	return nil
}

// RecoveryResult is the outcome of one strategy execution.
type RecoveryResult struct {
	Success    bool                   `json:"success"`
	Action     RecoveryAction         `json:"action"`
	Strategy   string                 `json:"strategy,omitempty"`
	Duration   time.Duration          `json:"duration"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	NextAction RecoveryAction         `json:"nextAction,omitempty"`
	Err        error                  `json:"-"`
}

// ErrorMessage returns the strategy error text, or "" when there is none.
func (r *RecoveryResult) ErrorMessage() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// SetMeta records a metadata value, allocating the map on first use.
func (r *RecoveryResult) SetMeta(key string, value interface{}) *RecoveryResult {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
	return r
}
