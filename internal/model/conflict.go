// Conflict model for per-table resolution policies.

package model

import (
	"strings"
	"time"
)

// ConflictStrategy decides which side wins when local and remote diverge.
type ConflictStrategy string

const (
	ConflictLocalWins     ConflictStrategy = "LOCAL_WINS"
	ConflictRemoteWins    ConflictStrategy = "REMOTE_WINS"
	ConflictLastWriteWins ConflictStrategy = "LAST_WRITE_WINS"
	ConflictMerge         ConflictStrategy = "MERGE"
	ConflictManual        ConflictStrategy = "MANUAL"
)

// ParseConflictStrategy accepts any casing and '-' or '_' separators.
func ParseConflictStrategy(value string) (ConflictStrategy, bool) {
	normalized := ConflictStrategy(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), "-", "_")))
	switch normalized {
	case ConflictLocalWins, ConflictRemoteWins, ConflictLastWriteWins, ConflictMerge, ConflictManual:
		return normalized, true
	}
	return "", false
}

// Side names one half of a conflict.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// ConflictPolicy is the configured resolution for one table.
type ConflictPolicy struct {
	Table    string           `json:"table"`
	Strategy ConflictStrategy `json:"strategy"`

	// FieldPriority names the side that wins a MERGE conflict on a field.
	FieldPriority map[string]Side `json:"fieldPriority,omitempty"`
}

// Record is one side of a conflicting row.
type Record struct {
	Data      map[string]interface{} `json:"data"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Conflict holds both diverged versions of a row, plus the common ancestor
// when the sync layer tracked one.
type Conflict struct {
	Table    string  `json:"table"`
	RecordID string  `json:"recordId"`
	Local    *Record `json:"local"`
	Remote   *Record `json:"remote"`
	Base     *Record `json:"base,omitempty"`
}

// PolicySet is a table-keyed set of conflict policies.
type PolicySet map[string]ConflictPolicy

// PolicyFor returns the policy for table, matching case-insensitively.
func (ps PolicySet) PolicyFor(table string) (ConflictPolicy, bool) {
	if p, ok := ps[table]; ok {
		return p, true
	}
	p, ok := ps[strings.ToLower(table)]
	return p, ok
}
