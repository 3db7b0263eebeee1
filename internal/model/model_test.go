package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/errors"
)

func TestOperationTransitions(t *testing.T) {
	tests := []struct {
		from    OperationStatus
		to      OperationStatus
		allowed bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusRecovering, false},
		{StatusFailed, StatusRecovering, true},
		{StatusFailed, StatusInProgress, false},
		{StatusRecovering, StatusInProgress, true},
		{StatusRecovering, StatusFailed, true},
		{StatusCompleted, StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			op := &SyncOperation{ID: "op-1", Status: tt.from}
			err := op.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, op.Status)
				assert.False(t, op.UpdatedAt.IsZero())
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
				assert.Equal(t, tt.from, op.Status)
			}
		})
	}
}

func TestOperationFail(t *testing.T) {
	op := &SyncOperation{ID: "op-1", Status: StatusInProgress, MaxRetries: 3}

	err := op.Fail(nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	syncErr := NewSyncError("NETWORK_ERROR", "connection reset", nil)
	require.NoError(t, op.Fail(syncErr))
	assert.Equal(t, StatusFailed, op.Status)
	assert.True(t, op.HasFailed())
	assert.False(t, op.RetriesExhausted())

	op.RetryCount = 3
	assert.True(t, op.RetriesExhausted())
}

func TestSystemStateValidate(t *testing.T) {
	valid := SystemState{NetworkStatus: NetworkOnline, DiskSpace: 1 << 30, MemoryUsage: 40, CPUUsage: 10}
	require.NoError(t, valid.Validate())

	var nilState *SystemState
	assert.Error(t, nilState.Validate())

	tests := []struct {
		name  string
		state SystemState
	}{
		{"MissingNetwork", SystemState{}},
		{"UnknownNetwork", SystemState{NetworkStatus: "FLAKY"}},
		{"NegativeDisk", SystemState{NetworkStatus: NetworkOnline, DiskSpace: -1}},
		{"MemoryOverflow", SystemState{NetworkStatus: NetworkOnline, MemoryUsage: 120}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityHigh < SeverityCritical)
	assert.Equal(t, SeverityHigh, SeverityMedium.Escalate())
	assert.Equal(t, SeverityCritical, SeverityCritical.Escalate())

	parsed, err := ParseSeverity(" critical ")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, parsed)

	_, err = ParseSeverity("severe")
	assert.Error(t, err)

	data, err := json.Marshal(struct {
		Severity FailureSeverity `json:"severity"`
	}{SeverityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"severity":"HIGH"}`, string(data))

	var decoded struct {
		Severity FailureSeverity `json:"severity"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"severity":"LOW"}`), &decoded))
	assert.Equal(t, SeverityLow, decoded.Severity)
}

func TestClassificationValidate(t *testing.T) {
	ok := &FailureClassification{FailureType: FailureNetwork, Recoverable: true, RecommendedAction: ActionBackoffRetry}
	assert.NoError(t, ok.Validate())

	escalated := &FailureClassification{FailureType: FailurePermission, RecommendedAction: ActionEscalate}
	assert.NoError(t, escalated.Validate())

	bad := &FailureClassification{FailureType: FailureSchemaMismatch, RecommendedAction: ActionRetry}
	assert.Error(t, bad.Validate())

	unknownType := &FailureClassification{FailureType: "BOGUS", Recoverable: true, RecommendedAction: ActionRetry}
	assert.Error(t, unknownType.Validate())
}

func TestRecoveryActionHelpers(t *testing.T) {
	assert.True(t, ActionRetry.IsRetry())
	assert.True(t, ActionBackoffRetry.IsRetry())
	assert.False(t, ActionFallbackStrategy.IsRetry())
	assert.True(t, ActionEscalate.IsTerminal())
	assert.True(t, ActionManualIntervention.IsTerminal())
	assert.False(t, ActionSkip.IsTerminal())

	result := &RecoveryResult{}
	result.SetMeta("delay", time.Second)
	assert.Equal(t, time.Second, result.Metadata["delay"])
	assert.Equal(t, "", result.ErrorMessage())
}

func TestBackupInfo(t *testing.T) {
	all := &BackupInfo{ID: "b-1", Type: BackupFull}
	assert.True(t, all.Covers("orders"))
	assert.True(t, all.HasData())

	scoped := &BackupInfo{ID: "b-2", Type: BackupSchemaOnly, Tables: []string{"users"}}
	assert.True(t, scoped.Covers("users"))
	assert.False(t, scoped.Covers("orders"))
	assert.False(t, scoped.HasData())

	var missing *BackupInfo
	assert.False(t, missing.Covers("users"))
	assert.False(t, missing.HasData())

	now := time.Now()
	filter := BackupFilter{Type: BackupFull, Since: now.Add(-time.Hour)}
	assert.False(t, filter.Match(&BackupInfo{Type: BackupFull, Timestamp: now.Add(-2 * time.Hour)}))
	assert.True(t, filter.Match(&BackupInfo{Type: BackupFull, Timestamp: now}))
	assert.False(t, filter.Match(&BackupInfo{Type: BackupIncremental, Timestamp: now}))
}

func TestRollbackPointExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&RollbackPoint{}).Expired(now))
	assert.False(t, (&RollbackPoint{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&RollbackPoint{ExpiresAt: now}).Expired(now))
}

func TestParseConflictStrategy(t *testing.T) {
	s, ok := ParseConflictStrategy("last-write-wins")
	assert.True(t, ok)
	assert.Equal(t, ConflictLastWriteWins, s)

	_, ok = ParseConflictStrategy("coin_flip")
	assert.False(t, ok)
}

func TestPolicySet(t *testing.T) {
	set := PolicySet{"orders": {Table: "orders", Strategy: ConflictMerge}}

	p, ok := set.PolicyFor("Orders")
	assert.True(t, ok)
	assert.Equal(t, ConflictMerge, p.Strategy)

	_, ok = set.PolicyFor("users")
	assert.False(t, ok)

	var empty PolicySet
	_, ok = empty.PolicyFor("orders")
	assert.False(t, ok)
}
