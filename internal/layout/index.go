package layout

import (
	"sort"

	"github.com/thraizz/battlescene/internal/battle"
)

type zoneKey struct {
	owner string
	zone  battle.Zone
}

type zoneStats struct {
	count int
	top   int
	// topID is the representative of the zone: the last entity in snapshot
	// order holding the top index.
	topID string
}

type rowKey struct {
	owner string
	row   int
}

type handSlot struct {
	id    string
	index int
	order int
}

// Index precomputes the sibling context of every entity in one snapshot.
type Index struct {
	localPlayer string
	zones       map[zoneKey]*zoneStats
	locations   map[string]battle.Location
	owners      map[string]string
	attachOrder map[string]int
	rowCount    map[string]int
	rowRank     map[string]int
}

// NewIndex scans a snapshot's entities once. It carries no hand row
// context; ResolveAll builds one with the resolver's row capacity.
func NewIndex(entities []battle.Entity, localPlayer string) *Index {
	return newIndex(entities, localPlayer, 0)
}

func newIndex(entities []battle.Entity, localPlayer string, rowCapacity int) *Index {
	idx := &Index{
		localPlayer: localPlayer,
		zones:       make(map[zoneKey]*zoneStats),
		locations:   make(map[string]battle.Location, len(entities)),
		owners:      make(map[string]string, len(entities)),
		attachOrder: make(map[string]int),
		rowCount:    make(map[string]int),
		rowRank:     make(map[string]int),
	}
	perParent := make(map[string]int)
	rows := make(map[rowKey][]handSlot)
	for i, e := range entities {
		idx.locations[e.ID] = e.Location
		idx.owners[e.ID] = e.OwnerID

		key := zoneKey{owner: e.OwnerID, zone: e.Location.Zone}
		stats, ok := idx.zones[key]
		if !ok {
			stats = &zoneStats{top: e.Location.Index, topID: e.ID}
			idx.zones[key] = stats
		}
		stats.count++
		if e.Location.Index >= stats.top {
			stats.top = e.Location.Index
			stats.topID = e.ID
		}

		switch e.Location.Zone {
		case battle.ZoneAttached:
			idx.attachOrder[e.ID] = perParent[e.Location.ParentID]
			perParent[e.Location.ParentID]++
		case battle.ZoneHand:
			if rowCapacity > 0 && e.Location.Index >= 0 {
				rk := rowKey{owner: e.OwnerID, row: e.Location.Index / rowCapacity}
				rows[rk] = append(rows[rk], handSlot{id: e.ID, index: e.Location.Index, order: i})
			}
		}
	}

	// gaps and repeated indices collapse: a row is laid out by rank
	for _, slots := range rows {
		sort.Slice(slots, func(a, b int) bool {
			if slots[a].index != slots[b].index {
				return slots[a].index < slots[b].index
			}
			return slots[a].order < slots[b].order
		})
		for rank, s := range slots {
			idx.rowCount[s.id] = len(slots)
			idx.rowRank[s.id] = rank
		}
	}
	return idx
}

// IsLocal reports whether the owner is the local player.
func (idx *Index) IsLocal(ownerID string) bool {
	return ownerID == idx.localPlayer
}

// Count returns how many entities an owner has in a zone.
func (idx *Index) Count(ownerID string, zone battle.Zone) int {
	if stats, ok := idx.zones[zoneKey{owner: ownerID, zone: zone}]; ok {
		return stats.count
	}
	return 0
}

// Siblings builds the context Resolve needs for e.
func (idx *Index) Siblings(e battle.Entity) SiblingContext {
	ctx := SiblingContext{TopIndex: -1}
	if stats, ok := idx.zones[zoneKey{owner: e.OwnerID, zone: e.Location.Zone}]; ok {
		ctx.ZoneCount = stats.count
		ctx.TopIndex = stats.top
		ctx.Shadowed = e.Location.Index == stats.top && e.ID != stats.topID
	}
	if n, ok := idx.rowCount[e.ID]; ok {
		ctx.RowCount = n
		ctx.RowRank = idx.rowRank[e.ID]
	}
	if e.Location.Zone == battle.ZoneAttached {
		if parent, ok := idx.locations[e.Location.ParentID]; ok && e.Location.ParentID != e.ID {
			p := parent
			ctx.Parent = &p
			ctx.ParentIsLocal = idx.IsLocal(idx.owners[e.Location.ParentID])
		}
		ctx.AttachOrder = idx.attachOrder[e.ID]
	}
	return ctx
}

// ResolveAll places every entity of a snapshot, keyed by id.
func (r *Resolver) ResolveAll(entities []battle.Entity, localPlayer string) map[string]Placement {
	idx := newIndex(entities, localPlayer, r.cfg.HandRowCapacity)
	out := make(map[string]Placement, len(entities))
	for _, e := range entities {
		out[e.ID] = r.Resolve(e.Location, idx.IsLocal(e.OwnerID), idx.Siblings(e))
	}
	return out
}
