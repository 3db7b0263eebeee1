// Helper Functions for SyncGuard State Package
//
// Features:
// - Null type helpers for database operations
// - JSON column encoding
//
// Author: SyncGuard Team
// Updated: 2026-10-10

package state

import (
	"database/sql"
	"time"

	"github.com/bytedance/sonic"
)

// NewNullBool creates a sql.NullBool that is valid only when set is true.
func NewNullBool(b, set bool) sql.NullBool {
	return sql.NullBool{Bool: b, Valid: set}
}

// dbTime normalizes a timestamp for storage.
func dbTime(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func encodeJSON(v interface{}) (string, error) {
	return sonic.ConfigStd.MarshalToString(v)
}

func decodeJSON(data string, v interface{}) error {
	return sonic.ConfigStd.UnmarshalFromString(data, v)
}
