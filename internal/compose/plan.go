package compose

import (
	"time"

	"github.com/thraizz/battlescene/internal/anim"
	"github.com/thraizz/battlescene/internal/layout"
)

// ItemKind tells the renderer what an item places.
type ItemKind string

const (
	ItemEntity      ItemKind = "entity"
	ItemPlaceholder ItemKind = "placeholder"
	ItemEvent       ItemKind = "event"
	ItemHighlight   ItemKind = "highlight"
)

// AnimationSpec describes the transition attached to an item. A queued spec
// starts later; a partial plan announces it when it does.
type AnimationSpec struct {
	Handle     string              `json:"handle"`
	Transition anim.Transition     `json:"transition"`
	Channel    anim.Channel        `json:"channel"`
	Duration   time.Duration       `json:"duration"`
	From       *layout.Coordinates `json:"from,omitempty"`
	Queued     bool                `json:"queued,omitempty"`
}

// Item places one entity, placeholder, log entry or highlight.
type Item struct {
	Kind     ItemKind           `json:"kind"`
	ID       string             `json:"id"`
	Position layout.Coordinates `json:"position"`
	Visible  bool               `json:"visible"`
	Badge    int                `json:"badge,omitempty"`
	Text     string             `json:"text,omitempty"`
	Fallback bool               `json:"fallback,omitempty"`
	// Removed marks an entity that left the snapshot. It stays at Position
	// until its exit animation completes.
	Removed bool `json:"removed,omitempty"`
	// Deferred marks an entity whose previous slide is still playing; a
	// correcting slide follows when it settles.
	Deferred  bool           `json:"deferred,omitempty"`
	Animation *AnimationSpec `json:"animation,omitempty"`
}

// Plan is the ordered output of one update cycle, or of an animation
// milestone when Partial is set.
type Plan struct {
	Cycle          uint64 `json:"cycle"`
	BattleID       string `json:"battle_id,omitempty"`
	Partial        bool   `json:"partial,omitempty"`
	Items          []Item `json:"items"`
	ScrollToBottom bool   `json:"scroll_to_bottom,omitempty"`
	Follow         string `json:"follow"`
	LogExpanded    bool   `json:"log_expanded"`
	Checksum       string `json:"checksum,omitempty"`
}

// Item returns the first item with the given kind and id.
func (p Plan) Item(kind ItemKind, id string) (Item, bool) {
	for _, it := range p.Items {
		if it.Kind == kind && it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Has reports whether any item of kind names id.
func (p Plan) Has(kind ItemKind, id string) bool {
	_, ok := p.Item(kind, id)
	return ok
}

func specOf(j anim.Job, from *layout.Coordinates) *AnimationSpec {
	return &AnimationSpec{
		Handle:     j.Handle,
		Transition: j.Kind,
		Channel:    j.Channel,
		Duration:   j.Duration,
		From:       from,
		Queued:     j.State == anim.StateQueued,
	}
}
