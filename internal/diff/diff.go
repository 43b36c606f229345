// Package diff classifies entities between two snapshots by identity.
package diff

import (
	"github.com/thraizz/battlescene/internal/battle"
	"github.com/thraizz/battlescene/internal/layout"
)

// Change is the classification of one entity.
type Change int

const (
	Unchanged Change = iota
	Added
	Moved
	Removed
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "UNCHANGED"
	case Added:
		return "ADDED"
	case Moved:
		return "MOVED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Result lists entity ids per classification. Added, Moved and Unchanged
// follow the order of the new snapshot; Removed follows the previous one.
type Result struct {
	Added     []string
	Moved     []string
	Removed   []string
	Unchanged []string

	changes map[string]Change
}

// Of returns the classification of id and whether id appeared in either snapshot.
func (r Result) Of(id string) (Change, bool) {
	c, ok := r.changes[id]
	return c, ok
}

// Len is the number of distinct identities seen across both snapshots.
func (r Result) Len() int {
	return len(r.changes)
}

// Empty reports whether nothing was added, moved or removed.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Moved) == 0 && len(r.Removed) == 0
}

// PositionFunc reports the resolved position of an entity in its snapshot.
type PositionFunc func(id string) (layout.Coordinates, bool)

// Diff compares location descriptors only.
func Diff(prev, next []battle.Entity) Result {
	return DiffPositions(prev, next, nil, nil)
}

// DiffPositions compares location descriptors and, when both position
// functions are given, resolved coordinates. An entity whose zone index is
// unchanged but whose resolved position shifted (a hand row recentred) is
// reported as moved.
func DiffPositions(prev, next []battle.Entity, prevPos, nextPos PositionFunc) Result {
	res := Result{changes: make(map[string]Change, len(prev)+len(next))}

	before := make(map[string]battle.Location, len(prev))
	for _, e := range prev {
		before[e.ID] = e.Location
	}

	for _, e := range next {
		if _, dup := res.changes[e.ID]; dup {
			// ids are unique per snapshot; a repeat keeps its first classification
			continue
		}
		old, existed := before[e.ID]
		switch {
		case !existed:
			res.Added = append(res.Added, e.ID)
			res.changes[e.ID] = Added
		case !old.Equal(e.Location) || positionShifted(e.ID, prevPos, nextPos):
			res.Moved = append(res.Moved, e.ID)
			res.changes[e.ID] = Moved
		default:
			res.Unchanged = append(res.Unchanged, e.ID)
			res.changes[e.ID] = Unchanged
		}
	}

	for _, e := range prev {
		if _, seen := res.changes[e.ID]; seen {
			continue
		}
		res.Removed = append(res.Removed, e.ID)
		res.changes[e.ID] = Removed
	}

	return res
}

func positionShifted(id string, prevPos, nextPos PositionFunc) bool {
	if prevPos == nil || nextPos == nil {
		return false
	}
	a, okA := prevPos(id)
	b, okB := nextPos(id)
	if !okA || !okB {
		return okA != okB
	}
	return a != b
}
