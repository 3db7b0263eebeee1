/**
 * Error Taxonomy Registry
 *
 * Static lookup tables for the two error taxonomies:
 * - Sync failure codes mapped to failure types and default recovery actions
 * - Application error codes (network, component, validation, state, task, sse)
 *   mapped to type, severity and suggested actions
 *
 * A Registry is built once and injected. It is never mutated after
 * construction, so concurrent readers need no locking.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-03
 */

package taxonomy

import (
	"sort"
	"strings"

	"github.com/VatsalSy/SyncGuard/internal/model"
)

// SyncCodeInfo describes one sync failure code.
type SyncCodeInfo struct {
	Code           string
	FailureType    model.FailureType
	I18nKey        string
	DefaultActions []model.RecoveryAction
}

// ErrorType is the application error family.
type ErrorType string

const (
	TypeNetwork    ErrorType = "network"
	TypeComponent  ErrorType = "component"
	TypeValidation ErrorType = "validation"
	TypeState      ErrorType = "state"
	TypeTask       ErrorType = "task"
	TypeSSE        ErrorType = "sse"
)

// ErrorTypes lists the application error families in display order.
var ErrorTypes = []ErrorType{TypeNetwork, TypeComponent, TypeValidation, TypeState, TypeTask, TypeSSE}

// Severity is the application error severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists application severities from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Application error codes.
const (
	ErrNetworkConnection  = "ERR_NETWORK_1000"
	ErrNetworkTimeout     = "ERR_NETWORK_1001"
	ErrNetworkServer      = "ERR_NETWORK_1002"
	ErrComponentRender    = "ERR_COMPONENT_2000"
	ErrComponentLifecycle = "ERR_COMPONENT_2001"
	ErrValidationInput    = "ERR_VALIDATION_3000"
	ErrValidationSchema   = "ERR_VALIDATION_3001"
	ErrStateCorrupted     = "ERR_STATE_4000"
	ErrStateSync          = "ERR_STATE_4001"
	ErrTaskExecution      = "ERR_TASK_5000"
	ErrTaskTimeout        = "ERR_TASK_5001"
	ErrTaskCancelled      = "ERR_TASK_5002"
	ErrSSEConnection      = "ERR_SSE_6000"
	ErrSSEParse           = "ERR_SSE_6001"
)

// AppCodeInfo describes one application error code.
type AppCodeInfo struct {
	Code             string
	Type             ErrorType
	Severity         Severity
	I18nKey          string
	Recoverable      bool
	SuggestedActions []string
}

// Registry is the immutable code catalog shared by the classifier and the
// error logger.
type Registry struct {
	syncCodes      map[string]SyncCodeInfo
	appCodes       map[string]AppCodeInfo
	baseSeverities map[model.FailureType]model.FailureSeverity
}

// NewRegistry builds a registry from the built-in tables.
func NewRegistry() *Registry {
	r := &Registry{
		syncCodes:      make(map[string]SyncCodeInfo, len(syncCodeTable)),
		appCodes:       make(map[string]AppCodeInfo, len(appCodeTable)),
		baseSeverities: make(map[model.FailureType]model.FailureSeverity, len(baseSeverityTable)),
	}
	for _, info := range syncCodeTable {
		r.syncCodes[info.Code] = info
	}
	for _, info := range appCodeTable {
		r.appCodes[info.Code] = info
	}
	for ft, sev := range baseSeverityTable {
		r.baseSeverities[ft] = sev
	}
	return r
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the shared built-in registry. It is read-only.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// normalizeCode upper-cases a code and maps spaces and dashes to underscores.
func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "_", " ", "_").Replace(code)
}

// LookupSyncCode returns the entry for a sync failure code.
func (r *Registry) LookupSyncCode(code string) (SyncCodeInfo, bool) {
	info, ok := r.syncCodes[normalizeCode(code)]
	if !ok {
		return SyncCodeInfo{}, false
	}
	info.DefaultActions = append([]model.RecoveryAction(nil), info.DefaultActions...)
	return info, true
}

// LookupAppCode returns the entry for an application error code.
func (r *Registry) LookupAppCode(code string) (AppCodeInfo, bool) {
	info, ok := r.appCodes[normalizeCode(code)]
	if !ok {
		return AppCodeInfo{}, false
	}
	info.SuggestedActions = append([]string(nil), info.SuggestedActions...)
	return info, true
}

// BaseSeverity returns the static severity for a failure type.
func (r *Registry) BaseSeverity(ft model.FailureType) model.FailureSeverity {
	if sev, ok := r.baseSeverities[ft]; ok {
		return sev
	}
	return model.SeverityMedium
}

var failureAppCodes = map[model.FailureType]string{
	model.FailureNetwork:            ErrNetworkConnection,
	model.FailureTimeout:            ErrNetworkTimeout,
	model.FailureAuthentication:     ErrNetworkServer,
	model.FailurePermission:         ErrNetworkServer,
	model.FailureDataCorruption:     ErrStateCorrupted,
	model.FailureSchemaMismatch:     ErrValidationSchema,
	model.FailureConflict:           ErrStateSync,
	model.FailureResourceExhaustion: ErrTaskExecution,
	model.FailureUnknown:            ErrStateSync,
}

// AppCodeForFailure returns the application code that sync failures of
// the given type are filed under in the error log.
func AppCodeForFailure(ft model.FailureType) string {
	if code, ok := failureAppCodes[ft]; ok {
		return code
	}
	return ErrStateSync
}

// SeverityForFailure maps a failure severity onto the application scale.
func SeverityForFailure(s model.FailureSeverity) Severity {
	switch {
	case s <= model.SeverityLow:
		return SeverityLow
	case s == model.SeverityMedium:
		return SeverityMedium
	case s == model.SeverityHigh:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// SyncCodes returns every sync code, sorted.
func (r *Registry) SyncCodes() []string {
	return sortedKeys(r.syncCodes)
}

// AppCodes returns every application code, sorted.
func (r *Registry) AppCodes() []string {
	return sortedKeys(r.appCodes)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseErrorType maps a family name to its ErrorType.
func ParseErrorType(value string) (ErrorType, bool) {
	t := ErrorType(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range ErrorTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// ParseSeverity maps a severity name to its Severity.
func ParseSeverity(value string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Severities {
		if s == known {
			return s, true
		}
	}
	return "", false
}
