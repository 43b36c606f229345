package battle

import (
	"encoding/json"
	"fmt"
)

// EventKind is the discriminator of an event record.
type EventKind string

const (
	EventTurnStart  EventKind = "turn_start"
	EventDraw       EventKind = "draw"
	EventAttack     EventKind = "attack"
	EventDamage     EventKind = "damage"
	EventHeal       EventKind = "heal"
	EventStatus     EventKind = "status"
	EventKnockout   EventKind = "knockout"
	EventCoinFlip   EventKind = "coin_flip"
	EventZoneChange EventKind = "zone_change"
	EventMessage    EventKind = "message"
)

// Payload is the kind-specific part of an event. Each kind has exactly one
// payload type; unknown kinds decode to MessagePayload.
type Payload interface {
	Kind() EventKind
}

type TurnStartPayload struct{}

type DrawPayload struct {
	Count int `json:"count"`
}

type AttackPayload struct {
	AttackerID string `json:"attacker_id"`
	MoveID     string `json:"move_id"`
	MoveName   string `json:"move_name,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Damage     int    `json:"damage,omitempty"`
}

type DamagePayload struct {
	TargetID string `json:"target_id"`
	Amount   int    `json:"amount"`
}

type HealPayload struct {
	TargetID string `json:"target_id"`
	Amount   int    `json:"amount"`
}

type StatusPayload struct {
	TargetID  string    `json:"target_id"`
	Condition Condition `json:"condition"`
	Applied   bool      `json:"applied"`
}

type KnockoutPayload struct {
	EntityID string `json:"entity_id"`
}

type CoinFlipPayload struct {
	Results []bool `json:"results"`
}

// Heads counts the heads among the flip results.
func (p CoinFlipPayload) Heads() int {
	n := 0
	for _, r := range p.Results {
		if r {
			n++
		}
	}
	return n
}

type ZoneChangePayload struct {
	EntityIDs []string `json:"entity_ids"`
	From      Zone     `json:"from"`
	To        Zone     `json:"to"`
}

// MessagePayload carries no data beyond the event text. It also stands in
// for kinds this build does not know about.
type MessagePayload struct {
	Original EventKind `json:"-"`
}

func (TurnStartPayload) Kind() EventKind  { return EventTurnStart }
func (DrawPayload) Kind() EventKind       { return EventDraw }
func (AttackPayload) Kind() EventKind     { return EventAttack }
func (DamagePayload) Kind() EventKind     { return EventDamage }
func (HealPayload) Kind() EventKind       { return EventHeal }
func (StatusPayload) Kind() EventKind     { return EventStatus }
func (KnockoutPayload) Kind() EventKind   { return EventKnockout }
func (CoinFlipPayload) Kind() EventKind   { return EventCoinFlip }
func (ZoneChangePayload) Kind() EventKind { return EventZoneChange }
func (MessagePayload) Kind() EventKind    { return EventMessage }

// Event is one entry of the append-only battle log.
type Event struct {
	// Seq is the zero-based offset of the event in the authoritative log.
	Seq      int       `json:"-"`
	Kind     EventKind `json:"type"`
	PlayerID string    `json:"player_id,omitempty"`
	Turn     int       `json:"turn"`
	Text     string    `json:"text"`
	Hidden   bool      `json:"hidden,omitempty"`
	Payload  Payload   `json:"-"`
}

type eventWire struct {
	Kind     EventKind       `json:"type"`
	PlayerID string          `json:"player_id,omitempty"`
	Turn     int             `json:"turn"`
	Text     string          `json:"text"`
	Hidden   bool            `json:"hidden,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// UnmarshalJSON decodes the envelope and selects the payload type from the
// discriminator.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire eventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := decodePayload(wire.Kind, wire.Payload)
	if err != nil {
		return fmt.Errorf("event %q payload: %w", wire.Kind, err)
	}
	*e = Event{
		Seq:      e.Seq,
		Kind:     payload.Kind(),
		PlayerID: wire.PlayerID,
		Turn:     wire.Turn,
		Text:     wire.Text,
		Hidden:   wire.Hidden,
		Payload:  payload,
	}
	if m, ok := payload.(MessagePayload); ok && m.Original != "" {
		e.Kind = m.Original
	}
	return nil
}

// MarshalJSON writes the envelope with the payload nested under "payload".
func (e Event) MarshalJSON() ([]byte, error) {
	wire := eventWire{
		Kind:     e.Kind,
		PlayerID: e.PlayerID,
		Turn:     e.Turn,
		Text:     e.Text,
		Hidden:   e.Hidden,
	}
	if e.Payload != nil {
		if _, isMessage := e.Payload.(MessagePayload); !isMessage {
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				return nil, err
			}
			wire.Payload = raw
		}
	}
	return json.Marshal(wire)
}

func decodePayload(kind EventKind, raw json.RawMessage) (Payload, error) {
	var target Payload
	switch kind {
	case EventTurnStart:
		return TurnStartPayload{}, nil
	case EventDraw:
		target = &DrawPayload{}
	case EventAttack:
		target = &AttackPayload{}
	case EventDamage:
		target = &DamagePayload{}
	case EventHeal:
		target = &HealPayload{}
	case EventStatus:
		target = &StatusPayload{}
	case EventKnockout:
		target = &KnockoutPayload{}
	case EventCoinFlip:
		target = &CoinFlipPayload{}
	case EventZoneChange:
		target = &ZoneChangePayload{}
	case EventMessage:
		return MessagePayload{}, nil
	default:
		return MessagePayload{Original: kind}, nil
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, err
		}
	}
	switch p := target.(type) {
	case *DrawPayload:
		return *p, nil
	case *AttackPayload:
		return *p, nil
	case *DamagePayload:
		return *p, nil
	case *HealPayload:
		return *p, nil
	case *StatusPayload:
		return *p, nil
	case *KnockoutPayload:
		return *p, nil
	case *CoinFlipPayload:
		return *p, nil
	case *ZoneChangePayload:
		return *p, nil
	}
	return MessagePayload{Original: kind}, nil
}

// AffectedEntities lists the entity ids an event's payload refers to, in
// payload order.
func (e Event) AffectedEntities() []string {
	switch p := e.Payload.(type) {
	case AttackPayload:
		ids := []string{}
		if p.AttackerID != "" {
			ids = append(ids, p.AttackerID)
		}
		if p.TargetID != "" {
			ids = append(ids, p.TargetID)
		}
		return ids
	case DamagePayload:
		return nonEmpty(p.TargetID)
	case HealPayload:
		return nonEmpty(p.TargetID)
	case StatusPayload:
		return nonEmpty(p.TargetID)
	case KnockoutPayload:
		return nonEmpty(p.EntityID)
	case ZoneChangePayload:
		return append([]string(nil), p.EntityIDs...)
	default:
		return nil
	}
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
