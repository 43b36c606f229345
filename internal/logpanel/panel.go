package logpanel

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/thraizz/battlescene/internal/prefs"
)

// Minimum panel size after a resize.
const (
	MinWidth  = 160.0
	MinHeight = 120.0
)

// Panel holds the log panel preferences. Mutators return the new value and
// whether anything changed; callers publish the change.
type Panel struct {
	prefs prefs.Preferences
}

// NewPanel starts from p.
func NewPanel(p prefs.Preferences) *Panel {
	return &Panel{prefs: clampSize(p)}
}

// Restore loads saved preferences, falling back to prefs.Default when none
// exist or the store fails.
func Restore(ctx context.Context, store prefs.Store, key string, logger *zap.Logger) *Panel {
	p, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, prefs.ErrNotFound):
		p = prefs.Default()
	case err != nil:
		logger.Warn("failed to load panel preferences, using defaults",
			zap.String("key", key),
			zap.Error(err),
		)
		p = prefs.Default()
	}
	return NewPanel(p)
}

func (p *Panel) Preferences() prefs.Preferences {
	return p.prefs
}

func (p *Panel) Expanded() bool {
	return p.prefs.Expanded
}

// Toggle flips collapsed/expanded.
func (p *Panel) Toggle() prefs.Preferences {
	p.prefs.Expanded = !p.prefs.Expanded
	return p.prefs
}

// Move places the panel at x, y.
func (p *Panel) Move(x, y float64) (prefs.Preferences, bool) {
	if p.prefs.X == x && p.prefs.Y == y {
		return p.prefs, false
	}
	p.prefs.X, p.prefs.Y = x, y
	return p.prefs, true
}

// Resize sets width and height, clamped to the minimum size.
func (p *Panel) Resize(width, height float64) (prefs.Preferences, bool) {
	next := clampSize(prefs.Preferences{X: p.prefs.X, Y: p.prefs.Y, Width: width, Height: height, Expanded: p.prefs.Expanded})
	if next == p.prefs {
		return p.prefs, false
	}
	p.prefs = next
	return p.prefs, true
}

func clampSize(p prefs.Preferences) prefs.Preferences {
	if p.Width < MinWidth {
		p.Width = MinWidth
	}
	if p.Height < MinHeight {
		p.Height = MinHeight
	}
	return p
}

// Persister returns a change handler that saves preferences under key.
// Failures are logged; the in-memory panel state stays authoritative.
func Persister(store prefs.Store, key string, timeout time.Duration, logger *zap.Logger) func(prefs.Preferences) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return func(p prefs.Preferences) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := store.Save(ctx, key, p); err != nil {
			logger.Warn("failed to persist panel preferences",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}
