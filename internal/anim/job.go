package anim

import (
	"time"

	"github.com/thraizz/battlescene/internal/layout"
)

// Channel is an independent playback lane. Jobs on one channel play strictly
// one after another; different channels play concurrently.
type Channel string

const (
	ChannelCards     Channel = "cards"
	ChannelEventLog  Channel = "event_log"
	ChannelHighlight Channel = "highlight"
)

// MotionChannel is the lane carrying slides of a single entity, so slides of
// different cards overlap while one card never slides twice at once.
func MotionChannel(entityID string) Channel {
	return Channel("motion:" + entityID)
}

// Transition is the kind of visual change a job plays.
type Transition string

const (
	TransitionEnter     Transition = "enter"
	TransitionExit      Transition = "exit"
	TransitionSlide     Transition = "slide"
	TransitionHighlight Transition = "highlight"
	TransitionLogEnter  Transition = "log_enter"
)

// State is the lifecycle position of a job.
type State int

const (
	StateQueued State = iota
	StatePlaying
	StateDone
	StateCancelled
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StatePlaying:
		return "PLAYING"
	case StateDone:
		return "DONE"
	case StateCancelled:
		return "CANCELLED"
	case StateDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// Job is one atomic visual transition.
type Job struct {
	Handle    string
	Target    string
	Channel   Channel
	Kind      Transition
	Duration  time.Duration
	From      layout.Coordinates
	To        layout.Coordinates
	State     State
	StartedAt time.Time
}

// EndsAt is when a playing job completes.
func (j Job) EndsAt() time.Time {
	return j.StartedAt.Add(j.Duration)
}

// NoticeKind tells what happened to a job during Advance.
type NoticeKind int

const (
	NoticeStarted NoticeKind = iota
	NoticeCompleted
	NoticeDropped
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeStarted:
		return "STARTED"
	case NoticeCompleted:
		return "COMPLETED"
	case NoticeDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// Notice reports a job transition. At is the scheduled time of the
// transition, which can lie before the Advance call that observed it.
type Notice struct {
	Kind NoticeKind
	Job  Job
	At   time.Time
}

// Handler receives notices after the sequencer lock is released.
type Handler func(Notice)

// ValidateFunc reports whether a queued job's target still resolves when the
// job is about to start. It runs under the sequencer lock and must not call
// back into the sequencer.
type ValidateFunc func(Job) bool

type jobKey struct {
	channel Channel
	target  string
	kind    Transition
}

func keyOf(j Job) jobKey {
	return jobKey{channel: j.Channel, target: j.Target, kind: j.Kind}
}
