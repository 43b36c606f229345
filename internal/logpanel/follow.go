// Package logpanel holds the event log panel's view state: scroll-follow
// mode and the persisted display preferences.
package logpanel

// DefaultThreshold is the distance from the bottom still counted as following.
const DefaultThreshold = 10.0

// FollowState tells whether the log view tracks the newest entry.
type FollowState int

const (
	Following FollowState = iota
	Detached
)

func (s FollowState) String() string {
	switch s {
	case Following:
		return "FOLLOWING"
	case Detached:
		return "DETACHED"
	default:
		return "UNKNOWN"
	}
}

// Follow re-evaluates follow mode on every scroll report. Not safe for
// concurrent use; the composer serializes access.
type Follow struct {
	threshold float64
	state     FollowState
}

// NewFollow starts in Following. A non-positive threshold uses the default.
func NewFollow(threshold float64) *Follow {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Follow{threshold: threshold, state: Following}
}

// Report applies a scroll report. offset is how far the view is scrolled
// back from the newest entry, clamped to [0, max].
func (f *Follow) Report(offset, max float64) FollowState {
	if offset > max {
		offset = max
	}
	if offset < 0 {
		offset = 0
	}
	if offset <= f.threshold {
		f.state = Following
	} else {
		f.state = Detached
	}
	return f.state
}

// ReportFromTop applies a position measured from the top of the content, as
// most scroll containers report it.
func (f *Follow) ReportFromTop(position, max float64) FollowState {
	return f.Report(max-position, max)
}

// State returns the current mode.
func (f *Follow) State() FollowState {
	return f.state
}

// ShouldAutoScroll reports whether new content may scroll the view.
func (f *Follow) ShouldAutoScroll() bool {
	return f.state == Following
}
