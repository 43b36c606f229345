package battle

import (
	"fmt"
	"sort"
)

// Zone identifies where on the board an entity resides.
type Zone string

const (
	ZoneHand     Zone = "hand"
	ZoneDeck     Zone = "deck"
	ZoneDiscard  Zone = "discard"
	ZonePrize    Zone = "prize"
	ZoneActive   Zone = "active"
	ZoneBench    Zone = "bench"
	ZoneAttached Zone = "attached"
	ZoneBoard    Zone = "board"
)

// Known reports whether z is one of the zones the resolver understands.
func (z Zone) Known() bool {
	switch z {
	case ZoneHand, ZoneDeck, ZoneDiscard, ZonePrize, ZoneActive, ZoneBench, ZoneAttached, ZoneBoard:
		return true
	default:
		return false
	}
}

// Ordered reports whether entities in z carry a meaningful index.
func (z Zone) Ordered() bool {
	switch z {
	case ZoneHand, ZoneDeck, ZoneDiscard, ZonePrize, ZoneBench:
		return true
	default:
		return false
	}
}

// Location is the tagged location descriptor of an entity. Which fields are
// meaningful depends on Zone: Index for ordered zones, ParentID for
// ZoneAttached, X and Y for ZoneBoard.
type Location struct {
	Zone     Zone    `json:"zone"`
	Index    int     `json:"index,omitempty"`
	ParentID string  `json:"parent_id,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
}

// Equal compares two descriptors on the fields their zone uses.
func (l Location) Equal(other Location) bool {
	if l.Zone != other.Zone {
		return false
	}
	switch l.Zone {
	case ZoneAttached:
		return l.ParentID == other.ParentID
	case ZoneBoard:
		return l.X == other.X && l.Y == other.Y
	case ZoneActive:
		return true
	default:
		return l.Index == other.Index
	}
}

func (l Location) String() string {
	switch l.Zone {
	case ZoneAttached:
		return fmt.Sprintf("attached(%s)", l.ParentID)
	case ZoneBoard:
		return fmt.Sprintf("board(%g,%g)", l.X, l.Y)
	case ZoneActive:
		return string(ZoneActive)
	default:
		if l.Zone.Ordered() {
			return fmt.Sprintf("%s[%d]", l.Zone, l.Index)
		}
		return fmt.Sprintf("unknown(%q)", string(l.Zone))
	}
}

// CardKind is the card category printed on the card.
type CardKind string

const (
	KindPokemon CardKind = "pokemon"
	KindEnergy  CardKind = "energy"
	KindTrainer CardKind = "trainer"
)

// Condition is a special condition tag on an active Pokémon.
type Condition string

const (
	ConditionAsleep    Condition = "asleep"
	ConditionBurned    Condition = "burned"
	ConditionConfused  Condition = "confused"
	ConditionParalyzed Condition = "paralyzed"
	ConditionPoisoned  Condition = "poisoned"
)

// AttachmentRef is a lightweight reference to a card attached to an entity.
type AttachmentRef struct {
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Kind CardKind `json:"kind,omitempty"`
}

// Entity is one card record of a snapshot.
type Entity struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Name        string          `json:"name,omitempty"`
	Kind        CardKind        `json:"kind,omitempty"`
	Location    Location        `json:"location"`
	Damage      int             `json:"damage,omitempty"`
	Conditions  []Condition     `json:"conditions,omitempty"`
	Attached    []AttachmentRef `json:"attached,omitempty"`
	EnteredTurn int             `json:"entered_turn,omitempty"`
}

// HasCondition reports whether the condition tag is set.
func (e Entity) HasCondition(c Condition) bool {
	for _, existing := range e.Conditions {
		if existing == c {
			return true
		}
	}
	return false
}

// normalize enforces the record invariants that can be fixed without
// rejecting the snapshot: conditions form a sorted set and damage is only
// tracked for Pokémon.
func (e *Entity) normalize() {
	if len(e.Conditions) > 0 {
		seen := make(map[Condition]bool, len(e.Conditions))
		set := e.Conditions[:0]
		for _, c := range e.Conditions {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			set = append(set, c)
		}
		sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
		e.Conditions = set
	}
	if e.Damage < 0 || (e.Kind != "" && e.Kind != KindPokemon) {
		e.Damage = 0
	}
}
