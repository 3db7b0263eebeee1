/**
 * Sync Operation Model for SyncGuard
 *
 * Features:
 * - Sync operation lifecycle with guarded status transitions
 * - Immutable sync error values attached at failure time
 * - System state snapshot consumed by the classifier
 *
 * Author: SyncGuard Team
 * Update History:
 * - 2026-10-03: Initial implementation
 */

package model

import (
	"encoding/json"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/errors"
)

// SyncDirection is the direction data flows for one operation.
type SyncDirection string

const (
	DirectionLocalToRemote SyncDirection = "LOCAL_TO_REMOTE"
	DirectionRemoteToLocal SyncDirection = "REMOTE_TO_LOCAL"
	DirectionBidirectional SyncDirection = "BIDIRECTIONAL"
)

// OperationStatus is the lifecycle state of a sync operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "PENDING"
	StatusInProgress OperationStatus = "IN_PROGRESS"
	StatusCompleted  OperationStatus = "COMPLETED"
	StatusFailed     OperationStatus = "FAILED"
	StatusRecovering OperationStatus = "RECOVERING"
)

// transitions lists the legal next states for each status.
var transitions = map[OperationStatus][]OperationStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusRecovering, StatusFailed},
	StatusRecovering: {StatusInProgress, StatusFailed, StatusCompleted},
}

// CanTransition reports whether an operation may move from one status to another.
func CanTransition(from, to OperationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states no recovery will leave on its own.
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SyncError describes one failure instance. It is never edited after being
// attached to an operation; a new attempt produces a fresh value.
type SyncError struct {
	Code        string                 `json:"code" yaml:"code"`
	Message     string                 `json:"message" yaml:"message"`
	Details     map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp" yaml:"timestamp"`
	Stack       string                 `json:"stack,omitempty" yaml:"stack,omitempty"`
	Recoverable bool                   `json:"recoverable" yaml:"recoverable"`
	HTTPStatus  int                    `json:"httpStatus,omitempty" yaml:"http_status,omitempty"`

	// Original is the raw error that caused the failure, when available.
	Original error `json:"-" yaml:"-"`
}

// NewSyncError creates a sync error stamped with the current time.
func NewSyncError(code, message string, original error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Original:  original,
	}
}

// SyncOperation is one pending or completed synchronization unit.
type SyncOperation struct {
	ID         string          `json:"id" yaml:"id"`
	Direction  SyncDirection   `json:"direction" yaml:"direction"`
	Table      string          `json:"table" yaml:"table"`
	RecordID   string          `json:"recordId,omitempty" yaml:"record_id,omitempty"`
	Status     OperationStatus `json:"status" yaml:"status"`
	RetryCount int             `json:"retryCount" yaml:"retry_count"`
	MaxRetries int             `json:"maxRetries" yaml:"max_retries"`
	Payload    json.RawMessage `json:"payload,omitempty" yaml:"-"`
	Error      *SyncError      `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt  time.Time       `json:"createdAt" yaml:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" yaml:"updated_at"`
}

// RetriesExhausted reports whether the retry budget is spent.
func (op *SyncOperation) RetriesExhausted() bool {
	return op.RetryCount >= op.MaxRetries
}

// HasFailed reports whether the operation carries a failure to classify.
func (op *SyncOperation) HasFailed() bool {
	return op.Error != nil && (op.Status == StatusFailed || op.Status == StatusRecovering)
}

// Transition moves the operation to a new status.
func (op *SyncOperation) Transition(to OperationStatus) error {
	if !CanTransition(op.Status, to) {
		return errors.InvalidState("transition",
			"operation %s cannot move from %s to %s", op.ID, op.Status, to)
	}
	op.Status = to
	op.UpdatedAt = time.Now()
	return nil
}

// Fail marks an in-progress operation failed and attaches the error.
func (op *SyncOperation) Fail(err *SyncError) error {
	if err == nil {
		return errors.Configuration("fail", "operation %s: sync error is required", op.ID)
	}
	if err := op.Transition(StatusFailed); err != nil {
		return err
	}
	op.Error = err
	return nil
}

// NetworkStatus is the connectivity reported by the host.
type NetworkStatus string

const (
	NetworkOnline   NetworkStatus = "ONLINE"
	NetworkOffline  NetworkStatus = "OFFLINE"
	NetworkDegraded NetworkStatus = "DEGRADED"
)

// SystemState is a point-in-time snapshot of host conditions.
type SystemState struct {
	NetworkStatus     NetworkStatus `json:"networkStatus" yaml:"network_status"`
	DiskSpace         int64         `json:"diskSpace" yaml:"disk_space"` // free bytes
	MemoryUsage       float64       `json:"memoryUsage" yaml:"memory_usage"` // percent
	CPUUsage          float64       `json:"cpuUsage" yaml:"cpu_usage"` // percent
	ActiveConnections int           `json:"activeConnections" yaml:"active_connections"`
	QueueSize         int           `json:"queueSize" yaml:"queue_size"`
}

// Validate checks that the snapshot carries the fields the classifier reads.
func (s *SystemState) Validate() error {
	if s == nil {
		return errors.Configuration("validate_system_state", "system state is required")
	}
	switch s.NetworkStatus {
	case NetworkOnline, NetworkOffline, NetworkDegraded:
	case "":
		return errors.Configuration("validate_system_state", "network status is required")
	default:
		return errors.Configuration("validate_system_state", "unknown network status %q", s.NetworkStatus)
	}
	if s.DiskSpace < 0 {
		return errors.Configuration("validate_system_state", "disk space cannot be negative")
	}
	if s.MemoryUsage < 0 || s.MemoryUsage > 100 || s.CPUUsage < 0 || s.CPUUsage > 100 {
		return errors.Configuration("validate_system_state", "usage percentages must be within 0-100")
	}
	return nil
}

// IsOffline reports whether the host has no connectivity.
func (s *SystemState) IsOffline() bool {
	return s.NetworkStatus == NetworkOffline
}
