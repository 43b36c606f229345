package battle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFrame = `{
	"battle_id": "b-1",
	"local_player_id": "p1",
	"turn": 3,
	"entities": [
		{"id": "card-active-p1", "owner_id": "p1", "kind": "pokemon", "location": {"zone": "active"}, "damage": 30,
		 "conditions": ["poisoned", "asleep", "poisoned"], "attached": [{"id": "energy-1", "kind": "energy"}]},
		{"id": "card-bench-p1-1", "owner_id": "p1", "kind": "pokemon", "location": {"zone": "bench", "index": 1}},
		{"id": "energy-1", "owner_id": "p1", "kind": "energy", "location": {"zone": "attached", "parent_id": "card-active-p1"}, "damage": 10}
	],
	"events": [
		{"type": "turn_start", "player_id": "p1", "turn": 3, "text": "Turn 3"},
		{"type": "coin_flip", "player_id": "p1", "turn": 3, "text": "Heads, tails", "payload": {"results": [true, false]}},
		{"type": "heal", "player_id": "p1", "turn": 3, "text": "Healed 20", "payload": {"target_id": "card-active-p1", "amount": 20}},
		{"type": "shuffle", "player_id": "p2", "turn": 3, "text": "Deck shuffled", "hidden": true}
	]
}`

func TestDecodeSnapshot(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(sampleFrame))
	require.NoError(t, err)

	assert.Equal(t, "b-1", snap.BattleID)
	assert.Equal(t, "p1", snap.LocalPlayerID)
	require.Len(t, snap.Entities, 3)
	require.Len(t, snap.Events, 4)

	active := snap.Entities[0]
	assert.Equal(t, ZoneActive, active.Location.Zone)
	assert.Equal(t, 30, active.Damage)
	assert.Equal(t, []Condition{ConditionAsleep, ConditionPoisoned}, active.Conditions, "conditions form a sorted set")
	assert.True(t, active.HasCondition(ConditionPoisoned))

	bench := snap.Entities[1]
	assert.Equal(t, Location{Zone: ZoneBench, Index: 1}, bench.Location)

	energy := snap.Entities[2]
	assert.Equal(t, "card-active-p1", energy.Location.ParentID)
	assert.Equal(t, 0, energy.Damage, "damage is only tracked for pokemon")

	for i, ev := range snap.Events {
		assert.Equal(t, i, ev.Seq)
	}
}

func TestDecodeSnapshotPayloadVariants(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(sampleFrame))
	require.NoError(t, err)

	assert.IsType(t, TurnStartPayload{}, snap.Events[0].Payload)

	flip, ok := snap.Events[1].Payload.(CoinFlipPayload)
	require.True(t, ok)
	assert.Equal(t, 1, flip.Heads())

	heal, ok := snap.Events[2].Payload.(HealPayload)
	require.True(t, ok)
	assert.Equal(t, 20, heal.Amount)
	assert.Equal(t, []string{"card-active-p1"}, snap.Events[2].AffectedEntities())

	unknown := snap.Events[3]
	assert.Equal(t, EventKind("shuffle"), unknown.Kind, "unknown kinds keep their discriminator")
	assert.IsType(t, MessagePayload{}, unknown.Payload)
	assert.True(t, unknown.Hidden)
}

func TestDecodeSnapshotRejectsMalformedFrames(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"entities": [`))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	_, err = DecodeSnapshot([]byte(`{"entities": [{"owner_id": "p1"}]}`))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	_, err = DecodeSnapshot([]byte(`{"entities": [{"id": "a"}, {"id": "a"}]}`))
	assert.ErrorIs(t, err, ErrDuplicateEntity)

	_, err = DecodeSnapshot([]byte(`{"events": [{"type": "damage", "payload": {"amount": "lots"}}]}`))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestDecodeSnapshotKeepsUnknownZones(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"entities": [{"id": "x", "location": {"zone": "lost_zone", "index": 2}}]}`))
	require.NoError(t, err, "unknown zones are resolved to a fallback later, not rejected")
	assert.False(t, snap.Entities[0].Location.Zone.Known())
}

func TestEventMarshalRoundTripKeepsPayload(t *testing.T) {
	original := Event{
		Kind:    EventAttack,
		Turn:    4,
		Text:    "Pikachu used Thunder Shock",
		Payload: AttackPayload{AttackerID: "a", MoveID: "thunder-shock", TargetID: "b", Damage: 20},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Payload, decoded.Payload)
	assert.Equal(t, []string{"a", "b"}, decoded.AffectedEntities())
}

func TestLocationEqual(t *testing.T) {
	assert.True(t, Location{Zone: ZoneActive, Index: 3}.Equal(Location{Zone: ZoneActive}))
	assert.False(t, Location{Zone: ZoneBench, Index: 1}.Equal(Location{Zone: ZoneBench, Index: 2}))
	assert.False(t, Location{Zone: ZoneAttached, ParentID: "a"}.Equal(Location{Zone: ZoneAttached, ParentID: "b"}))
	assert.True(t, Location{Zone: ZoneBoard, X: 1, Y: 2}.Equal(Location{Zone: ZoneBoard, X: 1, Y: 2}))
}
