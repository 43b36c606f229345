// Package eventlog keeps a capped, filtered view over the append-only battle
// log and decides which entries are new since the last render.
package eventlog

import (
	"fmt"

	"github.com/thraizz/battlescene/internal/battle"
)

// DefaultMaxVisible is the window size used when none is configured.
const DefaultMaxVisible = 15

// Config controls filtering and capacity.
type Config struct {
	MaxVisible  int                `mapstructure:"max_visible"`
	HiddenKinds []battle.EventKind `mapstructure:"hidden_kinds"`
}

// Key identifies a log entry for animation tracking. Offset is the entry's
// position in the filtered log, which never changes as the window slides.
type Key struct {
	Turn   int
	Offset int
}

func (k Key) String() string {
	return fmt.Sprintf("log:%d:%d", k.Turn, k.Offset)
}

// Entry is one visible event.
type Entry struct {
	Key   Key
	Event battle.Event
	New   bool
}

// Result is the outcome of one window update.
type Result struct {
	// Entries is the visible window, oldest first.
	Entries []Entry
	// New is the tail of Entries that was not rendered before.
	New []Entry
	// Total counts every non-hidden event in the log, including those that
	// slid out of the window. Feed it back as previouslyRendered next cycle.
	Total int
	// Reset is set when the log got shorter than what was already rendered.
	Reset bool
}

// Window filters and slices the event log.
type Window struct {
	maxVisible int
	hidden     map[battle.EventKind]bool
}

// NewWindow creates a window. A non-positive MaxVisible falls back to the default.
func NewWindow(cfg Config) *Window {
	max := cfg.MaxVisible
	if max <= 0 {
		max = DefaultMaxVisible
	}
	hidden := make(map[battle.EventKind]bool, len(cfg.HiddenKinds))
	for _, k := range cfg.HiddenKinds {
		hidden[k] = true
	}
	return &Window{maxVisible: max, hidden: hidden}
}

// MaxVisible returns the window capacity.
func (w *Window) MaxVisible() int {
	return w.maxVisible
}

// Shows reports whether e passes the presentation filter.
func (w *Window) Shows(e battle.Event) bool {
	return !e.Hidden && !w.hidden[e.Kind]
}

// Update computes the window over all and the suffix added since
// previouslyRendered visible events were shown.
//
// Events that arrive and age out within the same update are never marked
// new. A log shorter than previouslyRendered is treated as a fresh log with
// nothing to animate.
func (w *Window) Update(all []battle.Event, previouslyRendered int) Result {
	var filtered []battle.Event
	for _, e := range all {
		if w.Shows(e) {
			filtered = append(filtered, e)
		}
	}

	total := len(filtered)
	start := 0
	if total > w.maxVisible {
		start = total - w.maxVisible
	}

	res := Result{Total: total}
	if previouslyRendered < 0 {
		previouslyRendered = 0
	}
	fresh := total - previouslyRendered
	if fresh < 0 {
		res.Reset = true
		fresh = 0
	}

	window := filtered[start:]
	if fresh > len(window) {
		fresh = len(window)
	}

	res.Entries = make([]Entry, len(window))
	for i, e := range window {
		offset := start + i
		res.Entries[i] = Entry{
			Key:   Key{Turn: e.Turn, Offset: offset},
			Event: e,
			New:   i >= len(window)-fresh,
		}
	}
	res.New = res.Entries[len(window)-fresh:]
	return res
}
