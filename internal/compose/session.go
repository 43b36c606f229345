package compose

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/thraizz/battlescene/internal/logpanel"
	"github.com/thraizz/battlescene/internal/prefs"
)

// IntentKind names a semantic user intent.
type IntentKind string

const (
	IntentScroll      IntentKind = "scroll"
	IntentToggleLog   IntentKind = "toggle_log"
	IntentMovePanel   IntentKind = "move_panel"
	IntentResizePanel IntentKind = "resize_panel"
	IntentClick       IntentKind = "click"
	IntentAction      IntentKind = "action"
)

// Intent is one user intent as emitted by the input layer.
type Intent struct {
	Kind IntentKind `json:"type"`

	// scroll: Offset counts back from the newest entry unless FromTop is set
	Offset  float64 `json:"offset,omitempty"`
	Max     float64 `json:"max,omitempty"`
	FromTop bool    `json:"from_top,omitempty"`

	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"w,omitempty"`
	Height float64 `json:"h,omitempty"`

	EntityID string `json:"entity_id,omitempty"`
	Action   string `json:"kind,omitempty"`
	MoveID   string `json:"move_id,omitempty"`
}

// Session is the explicit view state of a battle session.
type Session struct {
	Follow      logpanel.FollowState
	Preferences prefs.Preferences
	Selected    string
	Cycle       uint64
}

// Session returns the current view state.
func (c *Composer) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked()
}

func (c *Composer) sessionLocked() Session {
	return Session{
		Follow:      c.follow.State(),
		Preferences: c.panel.Preferences(),
		Selected:    c.selected,
		Cycle:       c.cycle,
	}
}

// Intent applies a user intent and returns the resulting session. Panel
// changes publish NotifyPreferencesChanged; clicks and actions publish
// NotifySelectionMade. Actions are forwarded without any legality check.
func (c *Composer) Intent(in Intent) (Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Session{}, ErrClosed
	}

	preferences := func(p prefs.Preferences) {
		c.outbox = append(c.outbox, Notification{Type: NotifyPreferencesChanged, Preferences: &p})
	}

	switch in.Kind {
	case IntentScroll:
		before := c.follow.State()
		var after logpanel.FollowState
		if in.FromTop {
			after = c.follow.ReportFromTop(in.Offset, in.Max)
		} else {
			after = c.follow.Report(in.Offset, in.Max)
		}
		if before != after {
			c.logger.Debug("log follow mode changed",
				zap.String("from", before.String()),
				zap.String("to", after.String()),
			)
		}

	case IntentToggleLog:
		preferences(c.panel.Toggle())

	case IntentMovePanel:
		if p, changed := c.panel.Move(in.X, in.Y); changed {
			preferences(p)
		}

	case IntentResizePanel:
		if p, changed := c.panel.Resize(in.Width, in.Height); changed {
			preferences(p)
		}

	case IntentClick:
		if _, ok := c.prev.Entity(in.EntityID); !ok {
			s := c.sessionLocked()
			c.mu.Unlock()
			return s, fmt.Errorf("%w: %q", ErrUnknownEntity, in.EntityID)
		}
		c.selected = in.EntityID
		c.outbox = append(c.outbox, Notification{
			Type:      NotifySelectionMade,
			Selection: &Selection{Kind: string(IntentClick), EntityID: in.EntityID},
		})

	case IntentAction:
		c.outbox = append(c.outbox, Notification{
			Type:      NotifySelectionMade,
			Selection: &Selection{Kind: in.Action, EntityID: in.EntityID, MoveID: in.MoveID},
		})

	default:
		s := c.sessionLocked()
		c.mu.Unlock()
		return s, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Kind)
	}

	s := c.sessionLocked()
	c.mu.Unlock()

	c.drain()
	return s, nil
}
