/**
 * Application Error Context
 *
 * The record type stored by the error logger, independent of the sync
 * failure taxonomy.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-08
 */

package errorlog

import (
	"strings"
	"time"

	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

// Location pinpoints where an error was raised.
type Location struct {
	Component string `json:"component,omitempty"`
	Function  string `json:"function,omitempty"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
}

// ErrorContext is one logged application error. Count and LastOccurrence
// are maintained by the logger's deduplication.
type ErrorContext struct {
	ID               string                 `json:"id"`
	Code             string                 `json:"code"`
	Message          string                 `json:"message"`
	Severity         taxonomy.Severity      `json:"severity,omitempty"`
	Type             taxonomy.ErrorType     `json:"type,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	Location         *Location              `json:"location,omitempty"`
	OriginalError    string                 `json:"originalError,omitempty"`
	Stack            string                 `json:"stack,omitempty"`
	AppState         map[string]interface{} `json:"appState,omitempty"`
	RequestState     map[string]interface{} `json:"requestState,omitempty"`
	ResponseState    map[string]interface{} `json:"responseState,omitempty"`
	Recoverable      bool                   `json:"recoverable"`
	SuggestedActions []string               `json:"suggestedActions,omitempty"`
	Environment      map[string]string      `json:"environment,omitempty"`
	Count            int                    `json:"count"`
	LastOccurrence   time.Time              `json:"lastOccurrence"`

	// RecoveryTime is how long the error took to recover from; zero means
	// no recovery was recorded.
	RecoveryTime time.Duration `json:"recoveryTime,omitempty"`
}

// NewErrorContext creates an entry for a known application code, filling
// type, severity, recoverability and suggested actions from the taxonomy.
// Unknown codes are kept with those fields empty.
func NewErrorContext(code, message string) *ErrorContext {
	entry := &ErrorContext{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
	fillFromTaxonomy(taxonomy.DefaultRegistry(), entry)
	return entry
}

// WithLocation sets the component and function that raised the error.
func (e *ErrorContext) WithLocation(component, function string) *ErrorContext {
	e.Location = &Location{Component: component, Function: function}
	return e
}

// WithOriginal records the underlying Go error.
func (e *ErrorContext) WithOriginal(err error) *ErrorContext {
	if err != nil {
		e.OriginalError = err.Error()
	}
	return e
}

// Component returns the raising component, or "" when no location is set.
func (e *ErrorContext) Component() string {
	if e.Location == nil {
		return ""
	}
	return e.Location.Component
}

// IsCritical reports whether the entry should be surfaced proactively.
func (e *ErrorContext) IsCritical() bool {
	return e.Severity == taxonomy.SeverityCritical
}

func fillFromTaxonomy(registry *taxonomy.Registry, e *ErrorContext) {
	info, ok := registry.LookupAppCode(e.Code)
	if !ok {
		return
	}
	// Recoverable is only filled for an entry with no classification at all.
	unclassified := e.Type == "" && e.Severity == "" && !e.Recoverable

	e.Code = info.Code
	if e.Type == "" {
		e.Type = info.Type
	}
	if e.Severity == "" {
		e.Severity = info.Severity
	}
	if unclassified {
		e.Recoverable = info.Recoverable
	}
	if len(e.SuggestedActions) == 0 && len(info.SuggestedActions) > 0 {
		e.SuggestedActions = append([]string(nil), info.SuggestedActions...)
	}
}

// dedupKey identifies entries that are the same error.
func dedupKey(e *ErrorContext) string {
	return e.Code + "\x00" + e.Component() + "\x00" + normalizeMessage(e.Message)
}

func normalizeMessage(msg string) string {
	return strings.ToLower(strings.Join(strings.Fields(msg), " "))
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Round(0)
}

// clone copies an entry so callers never share the logger's maps.
func (e *ErrorContext) clone() *ErrorContext {
	c := *e
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	c.AppState = cloneMap(e.AppState)
	c.RequestState = cloneMap(e.RequestState)
	c.ResponseState = cloneMap(e.ResponseState)
	if e.SuggestedActions != nil {
		c.SuggestedActions = append([]string(nil), e.SuggestedActions...)
	}
	if e.Environment != nil {
		c.Environment = make(map[string]string, len(e.Environment))
		for k, v := range e.Environment {
			c.Environment[k] = v
		}
	}
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
