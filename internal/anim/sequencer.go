// Package anim schedules visual transitions on independent FIFO channels.
//
// The sequencer holds plain job records keyed by target identity and is
// advanced by whatever clock the host provides: a ticker (Run), an engine
// frame callback, or a test calling Advance with synthetic times.
package anim

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type lane struct {
	playing *Job
	queue   []*Job
}

func (l *lane) idle() bool {
	return l.playing == nil && len(l.queue) == 0
}

// Sequencer plays at most one job per channel at a time.
type Sequencer struct {
	mu       sync.Mutex
	logger   *zap.Logger
	now      func() time.Time
	handler  Handler
	validate ValidateFunc

	lanes    map[Channel]*lane
	order    []Channel
	inflight map[jobKey]*Job
	handles  map[string]*Job
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithHandler sets the notice handler.
func WithHandler(h Handler) Option {
	return func(s *Sequencer) { s.handler = h }
}

// WithValidator sets the start-time target check.
func WithValidator(v ValidateFunc) Option {
	return func(s *Sequencer) { s.validate = v }
}

// NewSequencer creates an empty sequencer.
func NewSequencer(logger *zap.Logger, opts ...Option) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sequencer{
		logger:   logger,
		now:      time.Now,
		lanes:    make(map[Channel]*lane),
		inflight: make(map[jobKey]*Job),
		handles:  make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler replaces the notice handler.
func (s *Sequencer) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetValidator replaces the start-time target check.
func (s *Sequencer) SetValidator(v ValidateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validate = v
}

// Now reads the sequencer clock.
func (s *Sequencer) Now() time.Time {
	return s.now()
}

// Enqueue appends a job to its channel. A job whose (channel, target, kind)
// is already queued or playing is ignored: the existing job is returned with
// false. A job on an idle channel starts immediately and comes back in
// StatePlaying; no Started notice is emitted for it.
func (s *Sequencer) Enqueue(job Job) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(job)
	if existing, ok := s.inflight[key]; ok {
		s.logger.Debug("animation already in flight",
			zap.String("channel", string(job.Channel)),
			zap.String("target", job.Target),
			zap.String("kind", string(job.Kind)),
		)
		return *existing, false
	}
	if job.Duration < 0 {
		job.Duration = 0
	}

	j := job
	j.Handle = uuid.NewString()
	j.State = StateQueued
	j.StartedAt = time.Time{}

	l := s.lane(j.Channel)
	if l.idle() {
		j.State = StatePlaying
		j.StartedAt = s.now()
		l.playing = &j
	} else {
		l.queue = append(l.queue, &j)
	}
	s.inflight[key] = &j
	s.handles[j.Handle] = &j
	return j, true
}

// Advance retires every job whose duration has elapsed by now and starts the
// next queued job of each freed channel. A follow-up job starts at the
// completion time of its predecessor, so a late Advance replays the chain
// deterministically. Notices are returned and passed to the handler after
// the lock is released.
func (s *Sequencer) Advance(now time.Time) []Notice {
	s.mu.Lock()
	var notices []Notice
	channels := append([]Channel(nil), s.order...)
	for _, ch := range channels {
		l := s.lanes[ch]
		if l == nil {
			continue
		}
		if l.playing == nil {
			s.startNext(l, now, &notices)
		}
		for l.playing != nil {
			end := l.playing.EndsAt()
			if now.Before(end) {
				break
			}
			done := *l.playing
			done.State = StateDone
			s.forget(l.playing)
			l.playing = nil
			notices = append(notices, Notice{Kind: NoticeCompleted, Job: done, At: end})
			s.startNext(l, end, &notices)
		}
		if l.idle() {
			s.removeLane(ch)
		}
	}
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		for _, n := range notices {
			handler(n)
		}
	}
	return notices
}

// startNext pops queued jobs until one passes validation and starts it at.
func (s *Sequencer) startNext(l *lane, at time.Time, notices *[]Notice) {
	for len(l.queue) > 0 {
		next := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]

		if s.validate != nil && !s.validate(*next) {
			dropped := *next
			dropped.State = StateDropped
			s.forget(next)
			s.logger.Debug("dropping animation with unresolvable target",
				zap.String("channel", string(next.Channel)),
				zap.String("target", next.Target),
			)
			*notices = append(*notices, Notice{Kind: NoticeDropped, Job: dropped, At: at})
			continue
		}

		next.State = StatePlaying
		next.StartedAt = at
		l.playing = next
		*notices = append(*notices, Notice{Kind: NoticeStarted, Job: *next, At: at})
		return
	}
}

// Cancel removes every queued or playing job for target, optionally limited
// to the given kinds. Cancelled jobs fire no notices. A channel freed by
// cancelling its playing job resumes on the next Advance.
func (s *Sequencer) Cancel(target string, kinds ...Transition) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := func(j *Job) bool {
		if j.Target != target {
			return false
		}
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if j.Kind == k {
				return true
			}
		}
		return false
	}

	var cancelled []Job
	for _, ch := range s.order {
		l := s.lanes[ch]
		if l.playing != nil && match(l.playing) {
			c := *l.playing
			c.State = StateCancelled
			cancelled = append(cancelled, c)
			s.forget(l.playing)
			l.playing = nil
		}
		kept := l.queue[:0]
		for _, j := range l.queue {
			if match(j) {
				c := *j
				c.State = StateCancelled
				cancelled = append(cancelled, c)
				s.forget(j)
				continue
			}
			kept = append(kept, j)
		}
		for i := len(kept); i < len(l.queue); i++ {
			l.queue[i] = nil
		}
		l.queue = kept
	}
	return cancelled
}

// CancelChannel drops every queued or playing job on ch without notices.
func (s *Sequencer) CancelChannel(ch Channel) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[ch]
	if !ok {
		return nil
	}
	var cancelled []Job
	drop := func(j *Job) {
		c := *j
		c.State = StateCancelled
		cancelled = append(cancelled, c)
		s.forget(j)
	}
	if l.playing != nil {
		drop(l.playing)
	}
	for _, j := range l.queue {
		drop(j)
	}
	s.removeLane(ch)
	return cancelled
}

// Flush drops every channel without firing notices. Used on session teardown.
func (s *Sequencer) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.inflight)
	s.lanes = make(map[Channel]*lane)
	s.order = nil
	s.inflight = make(map[jobKey]*Job)
	s.handles = make(map[string]*Job)
	return n
}

// InFlight reports whether a job for (channel, target, kind) is queued or playing.
func (s *Sequencer) InFlight(channel Channel, target string, kind Transition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[jobKey{channel: channel, target: target, kind: kind}]
	return ok
}

// Animating reports whether any queued or playing job targets id.
func (s *Sequencer) Animating(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.inflight {
		if key.target == target {
			return true
		}
	}
	return false
}

// Lookup returns a queued or playing job by handle.
func (s *Sequencer) Lookup(handle string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.handles[handle]; ok {
		return *j, true
	}
	return Job{}, false
}

// Pending is the number of queued or playing jobs.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// NextDeadline is the earliest time Advance has work to do.
func (s *Sequencer) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	found := false
	for _, l := range s.lanes {
		var at time.Time
		switch {
		case l.playing != nil:
			at = l.playing.EndsAt()
		case len(l.queue) > 0:
			at = s.now()
		default:
			continue
		}
		if !found || at.Before(next) {
			next = at
			found = true
		}
	}
	return next, found
}

func (s *Sequencer) lane(ch Channel) *lane {
	l, ok := s.lanes[ch]
	if !ok {
		l = &lane{}
		s.lanes[ch] = l
		s.order = append(s.order, ch)
	}
	return l
}

func (s *Sequencer) removeLane(ch Channel) {
	delete(s.lanes, ch)
	for i, existing := range s.order {
		if existing == ch {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Sequencer) forget(j *Job) {
	delete(s.inflight, keyOf(*j))
	delete(s.handles, j.Handle)
}
