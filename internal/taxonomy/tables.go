package taxonomy

import "github.com/VatsalSy/SyncGuard/internal/model"

var (
	retryActions   = []model.RecoveryAction{model.ActionBackoffRetry, model.ActionRetry}
	authActions    = []model.RecoveryAction{model.ActionRetry, model.ActionEscalate}
	escalateOnly   = []model.RecoveryAction{model.ActionEscalate}
	restoreActions = []model.RecoveryAction{model.ActionRestoreFromBackup, model.ActionResetAndResync, model.ActionManualIntervention}
	schemaActions  = []model.RecoveryAction{model.ActionManualIntervention}
	mergeActions   = []model.RecoveryAction{model.ActionFallbackStrategy, model.ActionManualIntervention}
	cooldown       = []model.RecoveryAction{model.ActionRetry, model.ActionEscalate}
)

var syncCodeTable = []SyncCodeInfo{
	{"NETWORK_ERROR", model.FailureNetwork, "sync.error.network", retryActions},
	{"CONNECTION_REFUSED", model.FailureNetwork, "sync.error.network.refused", retryActions},
	{"CONNECTION_RESET", model.FailureNetwork, "sync.error.network.reset", retryActions},
	{"DNS_FAILURE", model.FailureNetwork, "sync.error.network.dns", retryActions},
	{"NETWORK_TIMEOUT", model.FailureTimeout, "sync.error.timeout", retryActions},
	{"REQUEST_TIMEOUT", model.FailureTimeout, "sync.error.timeout.request", retryActions},
	{"GATEWAY_TIMEOUT", model.FailureTimeout, "sync.error.timeout.gateway", retryActions},
	{"AUTH_EXPIRED", model.FailureAuthentication, "sync.error.auth.expired", authActions},
	{"AUTH_INVALID", model.FailureAuthentication, "sync.error.auth.invalid", authActions},
	{"UNAUTHORIZED", model.FailureAuthentication, "sync.error.auth.unauthorized", authActions},
	{"FORBIDDEN", model.FailurePermission, "sync.error.permission.forbidden", escalateOnly},
	{"PERMISSION_DENIED", model.FailurePermission, "sync.error.permission.denied", escalateOnly},
	{"CHECKSUM_MISMATCH", model.FailureDataCorruption, "sync.error.corruption.checksum", restoreActions},
	{"DATA_CORRUPTED", model.FailureDataCorruption, "sync.error.corruption", restoreActions},
	{"SCHEMA_MISMATCH", model.FailureSchemaMismatch, "sync.error.schema", schemaActions},
	{"SCHEMA_VERSION_MISMATCH", model.FailureSchemaMismatch, "sync.error.schema.version", schemaActions},
	{"CONFLICT", model.FailureConflict, "sync.error.conflict", mergeActions},
	{"VERSION_CONFLICT", model.FailureConflict, "sync.error.conflict.version", mergeActions},
	{"DISK_FULL", model.FailureResourceExhaustion, "sync.error.resource.disk", cooldown},
	{"QUOTA_EXCEEDED", model.FailureResourceExhaustion, "sync.error.resource.quota", cooldown},
	{"OUT_OF_MEMORY", model.FailureResourceExhaustion, "sync.error.resource.memory", cooldown},
	{"RATE_LIMITED", model.FailureResourceExhaustion, "sync.error.resource.rate_limit", cooldown},
}

var baseSeverityTable = map[model.FailureType]model.FailureSeverity{
	model.FailureNetwork:            model.SeverityMedium,
	model.FailureTimeout:            model.SeverityMedium,
	model.FailureAuthentication:     model.SeverityHigh,
	model.FailurePermission:         model.SeverityHigh,
	model.FailureDataCorruption:     model.SeverityCritical,
	model.FailureSchemaMismatch:     model.SeverityHigh,
	model.FailureConflict:           model.SeverityMedium,
	model.FailureResourceExhaustion: model.SeverityHigh,
	model.FailureUnknown:            model.SeverityMedium,
}

var appCodeTable = []AppCodeInfo{
	{ErrNetworkConnection, TypeNetwork, SeverityHigh, "errors.network.connection", true,
		[]string{"Check your internet connection", "Retry the request"}},
	{ErrNetworkTimeout, TypeNetwork, SeverityMedium, "errors.network.timeout", true,
		[]string{"Retry the request", "Try again when the connection is stable"}},
	{ErrNetworkServer, TypeNetwork, SeverityHigh, "errors.network.server", true,
		[]string{"Retry later", "Contact support if the problem persists"}},
	{ErrComponentRender, TypeComponent, SeverityHigh, "errors.component.render", false,
		[]string{"Reload the view"}},
	{ErrComponentLifecycle, TypeComponent, SeverityMedium, "errors.component.lifecycle", true,
		[]string{"Reload the view"}},
	{ErrValidationInput, TypeValidation, SeverityLow, "errors.validation.input", true,
		[]string{"Correct the highlighted fields"}},
	{ErrValidationSchema, TypeValidation, SeverityMedium, "errors.validation.schema", false,
		[]string{"Update the client", "Contact support"}},
	{ErrStateCorrupted, TypeState, SeverityCritical, "errors.state.corrupted", false,
		[]string{"Restore from backup", "Reset local data"}},
	{ErrStateSync, TypeState, SeverityHigh, "errors.state.sync", true,
		[]string{"Retry synchronization"}},
	{ErrTaskExecution, TypeTask, SeverityMedium, "errors.task.execution", true,
		[]string{"Retry the task"}},
	{ErrTaskTimeout, TypeTask, SeverityMedium, "errors.task.timeout", true,
		[]string{"Retry the task", "Increase the task timeout"}},
	{ErrTaskCancelled, TypeTask, SeverityLow, "errors.task.cancelled", true,
		[]string{"Start the task again"}},
	{ErrSSEConnection, TypeSSE, SeverityHigh, "errors.sse.connection", true,
		[]string{"Reconnect the event stream"}},
	{ErrSSEParse, TypeSSE, SeverityMedium, "errors.sse.parse", false,
		[]string{"Report the malformed event"}},
}
