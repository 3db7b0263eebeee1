package recovery

import (
	"reflect"
	"sort"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Strategy model.ConflictStrategy `json:"strategy"`

	// Winner is set when one side was taken whole.
	Winner model.Side `json:"winner,omitempty"`

	Record            *model.Record `json:"record,omitempty"`
	ConflictingFields []string      `json:"conflictingFields,omitempty"`
	RequiresManual    bool          `json:"requiresManual"`
}

// ConflictResolver applies per-table conflict policies.
type ConflictResolver struct{}

// NewConflictResolver creates a resolver.
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Resolve applies policy to conflict. Last-write ties go to the remote side.
func (r *ConflictResolver) Resolve(conflict *model.Conflict, policy model.ConflictPolicy) (*Resolution, error) {
	if conflict == nil || conflict.Local == nil || conflict.Remote == nil {
		return nil, errors.Configuration("resolve_conflict", "conflict requires both local and remote records")
	}

	res := &Resolution{Strategy: policy.Strategy}

	switch policy.Strategy {
	case model.ConflictLocalWins:
		res.Winner = model.SideLocal
		res.Record = copyRecord(conflict.Local)
	case model.ConflictRemoteWins:
		res.Winner = model.SideRemote
		res.Record = copyRecord(conflict.Remote)
	case model.ConflictLastWriteWins:
		res.Winner = newerSide(conflict)
		if res.Winner == model.SideLocal {
			res.Record = copyRecord(conflict.Local)
		} else {
			res.Record = copyRecord(conflict.Remote)
		}
	case model.ConflictMerge:
		res.Record, res.ConflictingFields = merge(conflict, policy.FieldPriority)
	case model.ConflictManual:
		res.RequiresManual = true
	default:
		return nil, errors.Configuration("resolve_conflict", "unknown conflict strategy %q", policy.Strategy)
	}

	return res, nil
}

func newerSide(c *model.Conflict) model.Side {
	if c.Local.UpdatedAt.After(c.Remote.UpdatedAt) {
		return model.SideLocal
	}
	return model.SideRemote
}

func copyRecord(rec *model.Record) *model.Record {
	data := make(map[string]interface{}, len(rec.Data))
	for k, v := range rec.Data {
		data[k] = v
	}
	return &model.Record{Data: data, UpdatedAt: rec.UpdatedAt}
}

type fieldValue struct {
	value   interface{}
	present bool
}

func lookup(rec *model.Record, key string) fieldValue {
	if rec == nil {
		return fieldValue{}
	}
	v, ok := rec.Data[key]
	return fieldValue{value: v, present: ok}
}

func (f fieldValue) equal(other fieldValue) bool {
	return f.present == other.present && reflect.DeepEqual(f.value, other.value)
}

// merge combines both sides field by field. With a base record it is a
// three-way merge: a field changed on one side only takes that side.
// Fields changed differently on both sides are conflicts, settled by field
// priority and then by last write.
func merge(c *model.Conflict, priority map[string]model.Side) (*model.Record, []string) {
	keys := make(map[string]struct{})
	for _, rec := range []*model.Record{c.Local, c.Remote, c.Base} {
		if rec == nil {
			continue
		}
		for k := range rec.Data {
			keys[k] = struct{}{}
		}
	}

	fallback := newerSide(c)
	merged := make(map[string]interface{}, len(keys))
	var conflicting []string

	for key := range keys {
		local := lookup(c.Local, key)
		remote := lookup(c.Remote, key)

		var chosen fieldValue
		switch {
		case local.equal(remote):
			chosen = local
		case c.Base != nil:
			base := lookup(c.Base, key)
			switch {
			case local.equal(base):
				chosen = remote
			case remote.equal(base):
				chosen = local
			default:
				conflicting = append(conflicting, key)
				chosen = pick(key, local, remote, priority, fallback)
			}
		case !local.present:
			chosen = remote
		case !remote.present:
			chosen = local
		default:
			conflicting = append(conflicting, key)
			chosen = pick(key, local, remote, priority, fallback)
		}

		if chosen.present {
			merged[key] = chosen.value
		}
	}

	sort.Strings(conflicting)

	updated := c.Local.UpdatedAt
	if c.Remote.UpdatedAt.After(updated) {
		updated = c.Remote.UpdatedAt
	}
	return &model.Record{Data: merged, UpdatedAt: updated}, conflicting
}

func pick(key string, local, remote fieldValue, priority map[string]model.Side, fallback model.Side) fieldValue {
	side, ok := priority[key]
	if !ok {
		side = fallback
	}
	if side == model.SideLocal {
		return local
	}
	return remote
}
