package battle

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedSnapshot is returned when a frame cannot be decoded into a snapshot.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrDuplicateEntity is returned when two records of a snapshot share an id.
	ErrDuplicateEntity = errors.New("duplicate entity id")
)

// Snapshot is a complete description of the battle at one instant. It
// replaces any previous snapshot wholesale.
type Snapshot struct {
	BattleID      string   `json:"battle_id,omitempty"`
	LocalPlayerID string   `json:"local_player_id,omitempty"`
	Turn          int      `json:"turn"`
	Entities      []Entity `json:"entities"`
	Events        []Event  `json:"events"`
}

// DecodeSnapshot parses one inbound frame. Any error is fatal for this
// update only; callers keep their previous snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if err := snap.Prepare(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Prepare assigns log offsets and normalizes entity records. It rejects
// snapshots whose ids collide, since the differ keys everything by id.
func (s *Snapshot) Prepare() error {
	seen := make(map[string]struct{}, len(s.Entities))
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.ID == "" {
			return fmt.Errorf("%w: entity at position %d has no id", ErrMalformedSnapshot, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ID)
		}
		seen[e.ID] = struct{}{}
		e.normalize()
	}
	for i := range s.Events {
		s.Events[i].Seq = i
		if s.Events[i].Payload == nil {
			s.Events[i].Payload = MessagePayload{}
		}
	}
	return nil
}

// Entity returns the record with the given id.
func (s *Snapshot) Entity(id string) (Entity, bool) {
	if s == nil {
		return Entity{}, false
	}
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Index builds an id lookup over the snapshot's entities.
func (s *Snapshot) Index() map[string]Entity {
	if s == nil {
		return map[string]Entity{}
	}
	index := make(map[string]Entity, len(s.Entities))
	for _, e := range s.Entities {
		index[e.ID] = e
	}
	return index
}
