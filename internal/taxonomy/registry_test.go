package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/model"
)

func TestLookupSyncCode(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		code     string
		expected model.FailureType
	}{
		{"NETWORK_TIMEOUT", model.FailureTimeout},
		{"network-timeout", model.FailureTimeout},
		{"CONNECTION_RESET", model.FailureNetwork},
		{"AUTH_EXPIRED", model.FailureAuthentication},
		{"FORBIDDEN", model.FailurePermission},
		{"CHECKSUM_MISMATCH", model.FailureDataCorruption},
		{"SCHEMA_VERSION_MISMATCH", model.FailureSchemaMismatch},
		{"VERSION_CONFLICT", model.FailureConflict},
		{"DISK_FULL", model.FailureResourceExhaustion},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			info, ok := r.LookupSyncCode(tt.code)
			require.True(t, ok)
			assert.Equal(t, tt.expected, info.FailureType)
			assert.NotEmpty(t, info.I18nKey)
			assert.NotEmpty(t, info.DefaultActions)
		})
	}

	_, ok := r.LookupSyncCode("SOMETHING_ELSE")
	assert.False(t, ok)
}

func TestLookupReturnsCopies(t *testing.T) {
	r := NewRegistry()

	info, ok := r.LookupSyncCode("NETWORK_ERROR")
	require.True(t, ok)
	info.DefaultActions[0] = model.ActionSkip

	again, _ := r.LookupSyncCode("NETWORK_ERROR")
	assert.Equal(t, model.ActionBackoffRetry, again.DefaultActions[0])

	app, ok := r.LookupAppCode(ErrNetworkConnection)
	require.True(t, ok)
	app.SuggestedActions[0] = "mutated"

	appAgain, _ := r.LookupAppCode(ErrNetworkConnection)
	assert.NotEqual(t, "mutated", appAgain.SuggestedActions[0])
}

func TestAppCodes(t *testing.T) {
	r := DefaultRegistry()
	codes := r.AppCodes()
	assert.Len(t, codes, 14)

	families := make(map[ErrorType]int)
	for _, code := range codes {
		info, ok := r.LookupAppCode(code)
		require.True(t, ok)
		families[info.Type]++

		_, validSeverity := ParseSeverity(string(info.Severity))
		assert.True(t, validSeverity, code)
		assert.True(t, strings.HasPrefix(code, "ERR_"+strings.ToUpper(string(info.Type))), code)
	}
	assert.Len(t, families, 6)
	assert.Equal(t, 3, families[TypeNetwork])
	assert.Equal(t, 3, families[TypeTask])

	_, ok := r.LookupAppCode("ERR_UNKNOWN_9999")
	assert.False(t, ok)
}

func TestBaseSeverity(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, model.SeverityMedium, r.BaseSeverity(model.FailureNetwork))
	assert.Equal(t, model.SeverityCritical, r.BaseSeverity(model.FailureDataCorruption))
	assert.Equal(t, model.SeverityHigh, r.BaseSeverity(model.FailureResourceExhaustion))

	for _, ft := range model.FailureTypes {
		assert.GreaterOrEqual(t, r.BaseSeverity(ft), model.SeverityLow, string(ft))
	}
	assert.Equal(t, model.SeverityMedium, r.BaseSeverity("BOGUS"))
}

func TestParseHelpers(t *testing.T) {
	et, ok := ParseErrorType(" SSE ")
	assert.True(t, ok)
	assert.Equal(t, TypeSSE, et)

	_, ok = ParseErrorType("disk")
	assert.False(t, ok)

	sev, ok := ParseSeverity("HIGH")
	assert.True(t, ok)
	assert.Equal(t, SeverityHigh, sev)
}

func TestFailureMapping(t *testing.T) {
	r := NewRegistry()
	for _, ft := range model.FailureTypes {
		_, ok := r.LookupAppCode(AppCodeForFailure(ft))
		assert.True(t, ok, string(ft))
	}
	assert.Equal(t, ErrStateCorrupted, AppCodeForFailure(model.FailureDataCorruption))
	assert.Equal(t, ErrStateSync, AppCodeForFailure("BOGUS"))

	assert.Equal(t, SeverityLow, SeverityForFailure(model.SeverityLow))
	assert.Equal(t, SeverityHigh, SeverityForFailure(model.SeverityHigh))
	assert.Equal(t, SeverityCritical, SeverityForFailure(model.SeverityCritical))
}
