// Package layout maps location descriptors to screen coordinates.
//
// Resolution is pure: a Resolver holds only its geometry and every call with
// the same descriptor, side and sibling context yields the same Placement.
// Malformed descriptors resolve to the configured fallback coordinate and are
// flagged on the Placement instead of failing.
package layout

import (
	"fmt"
	"math"

	"github.com/thraizz/battlescene/internal/battle"
)

// Coordinates is a point in scene space.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Offset returns c moved by (dx, dy).
func (c Coordinates) Offset(dx, dy float64) Coordinates {
	return Coordinates{X: c.X + dx, Y: c.Y + dy}
}

// Placement is the result of resolving one entity.
type Placement struct {
	Position Coordinates
	// Visible is false for entities that are positionally suppressed, such as
	// deck cards and every discard card except the top one.
	Visible bool
	// Badge is the count shown on a representative entity of a stacked zone.
	Badge int
	// Fallback is set when the descriptor could not be resolved; Reason says why.
	Fallback bool
	Reason   string
}

// SiblingContext carries what a resolution needs to know about the rest of
// the snapshot.
type SiblingContext struct {
	// ZoneCount is the number of entities sharing the owner and zone.
	ZoneCount int
	// TopIndex is the highest index present in that zone.
	TopIndex int
	// Shadowed marks an entity that shares TopIndex with a later entity of
	// the same zone, which represents the pile instead.
	Shadowed bool
	// RowCount and RowRank place a hand entity within its row: how many
	// entities occupy the row and how many of them come before it. A zero
	// RowCount derives both from the index and ZoneCount.
	RowCount int
	RowRank  int
	// Parent is the location of the referenced parent for attached entities,
	// nil when the parent is not part of the snapshot.
	Parent *battle.Location
	// ParentIsLocal reports the side of the parent's owner.
	ParentIsLocal bool
	// AttachOrder is the position among the parent's attached entities.
	AttachOrder int
}

// Resolver turns descriptors into coordinates.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver for the given geometry.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg.withDefaults()}
}

// Config returns the geometry the resolver was built with.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve places a single descriptor.
func (r *Resolver) Resolve(loc battle.Location, ownerIsLocal bool, siblings SiblingContext) Placement {
	a := r.cfg.anchors(ownerIsLocal)

	switch loc.Zone {
	case battle.ZoneActive:
		return visible(a.active)

	case battle.ZoneBench:
		if loc.Index < 0 {
			return r.fallback("negative bench index %d", loc.Index)
		}
		return visible(a.bench.Offset(float64(loc.Index)*r.cfg.BenchSpacing, 0))

	case battle.ZoneHand:
		if loc.Index < 0 {
			return r.fallback("negative hand index %d", loc.Index)
		}
		return visible(r.handPosition(a, loc.Index, siblings))

	case battle.ZonePrize:
		if loc.Index < 0 {
			return r.fallback("negative prize index %d", loc.Index)
		}
		col := loc.Index % r.cfg.PrizeColumns
		row := loc.Index / r.cfg.PrizeColumns
		return visible(a.prize.Offset(float64(col)*r.cfg.PrizeSpacingX, float64(row)*r.cfg.PrizeSpacingY*a.rowDirection))

	case battle.ZoneDeck:
		// the deck is drawn as a single back-face placeholder
		return Placement{Position: a.deck}

	case battle.ZoneDiscard:
		p := Placement{Position: a.discard}
		if loc.Index == siblings.TopIndex && !siblings.Shadowed {
			p.Visible = true
			p.Badge = siblings.ZoneCount
		}
		return p

	case battle.ZoneAttached:
		return r.resolveAttached(loc, siblings)

	case battle.ZoneBoard:
		if math.IsNaN(loc.X) || math.IsNaN(loc.Y) || math.IsInf(loc.X, 0) || math.IsInf(loc.Y, 0) {
			return r.fallback("non-finite board position")
		}
		return visible(Coordinates{X: loc.X, Y: loc.Y})

	default:
		return r.fallback("unknown zone %q", string(loc.Zone))
	}
}

// DeckPlaceholder is the placement of the back-face card standing in for a
// whole deck.
func (r *Resolver) DeckPlaceholder(ownerIsLocal bool, count int) Placement {
	return Placement{
		Position: r.cfg.anchors(ownerIsLocal).deck,
		Visible:  count > 0,
		Badge:    count,
	}
}

func (r *Resolver) resolveAttached(loc battle.Location, siblings SiblingContext) Placement {
	if loc.ParentID == "" {
		return r.fallback("attached without parent")
	}
	if siblings.Parent == nil {
		return r.fallback("parent %s not in snapshot", loc.ParentID)
	}
	if siblings.Parent.Zone == battle.ZoneAttached {
		return r.fallback("parent %s is itself attached", loc.ParentID)
	}
	parent := r.Resolve(*siblings.Parent, siblings.ParentIsLocal, SiblingContext{TopIndex: -1})
	if parent.Fallback {
		return r.fallback("parent %s unresolvable: %s", loc.ParentID, parent.Reason)
	}
	step := float64(siblings.AttachOrder + 1)
	return Placement{
		Position: parent.Position.Offset(r.cfg.AttachOffsetX*step, r.cfg.AttachOffsetY*step),
		Visible:  parent.Visible,
	}
}

// handPosition wraps hand entities into rows of HandRowCapacity and centres
// each row on the number of entities that actually occupy it.
func (r *Resolver) handPosition(a sideAnchors, index int, siblings SiblingContext) Coordinates {
	capacity := r.cfg.HandRowCapacity
	row := index / capacity
	col := index % capacity

	var occupants int
	if siblings.RowCount > 0 {
		col = siblings.RowRank
		occupants = siblings.RowCount
	} else {
		// dense indices assumed
		occupants = siblings.ZoneCount - row*capacity
		if occupants > capacity {
			occupants = capacity
		}
	}
	if occupants < col+1 {
		occupants = col + 1
	}

	x := a.hand.X + (float64(col)-float64(occupants-1)/2)*r.cfg.HandSpacing
	y := a.hand.Y + float64(row)*r.cfg.HandRowSpacing*a.rowDirection
	return Coordinates{X: x, Y: y}
}

func (r *Resolver) fallback(format string, args ...interface{}) Placement {
	return Placement{
		Position: r.cfg.Fallback,
		Visible:  true,
		Fallback: true,
		Reason:   fmt.Sprintf(format, args...),
	}
}

func visible(c Coordinates) Placement {
	return Placement{Position: c, Visible: true}
}
