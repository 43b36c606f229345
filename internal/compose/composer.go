// Package compose turns battle snapshots into render plans.
//
// A Composer owns the previous snapshot, the rendered event count and the
// log panel session. Each Apply runs one update cycle: resolve, diff,
// schedule transitions and emit an ordered plan. Animation milestones that
// change what is on screen arrive later as partial plans on the Bus.
package compose

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thraizz/battlescene/internal/anim"
	"github.com/thraizz/battlescene/internal/battle"
	"github.com/thraizz/battlescene/internal/diff"
	"github.com/thraizz/battlescene/internal/eventlog"
	"github.com/thraizz/battlescene/internal/layout"
	"github.com/thraizz/battlescene/internal/logpanel"
	"github.com/thraizz/battlescene/internal/prefs"
)

var (
	// ErrClosed is returned once the session was torn down.
	ErrClosed = errors.New("composer closed")
	// ErrUnknownEntity is returned for a click on an id missing from the current snapshot.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrUnknownIntent is returned for an intent kind the composer does not handle.
	ErrUnknownIntent = errors.New("unknown intent")
)

// Durations per transition kind.
type Durations struct {
	Enter     time.Duration `mapstructure:"enter"`
	Exit      time.Duration `mapstructure:"exit"`
	Slide     time.Duration `mapstructure:"slide"`
	Highlight time.Duration `mapstructure:"highlight"`
	LogEnter  time.Duration `mapstructure:"log_enter"`
}

// DefaultDurations returns the stock timings.
func DefaultDurations() Durations {
	return Durations{
		Enter:     300 * time.Millisecond,
		Exit:      250 * time.Millisecond,
		Slide:     350 * time.Millisecond,
		Highlight: 600 * time.Millisecond,
		LogEnter:  250 * time.Millisecond,
	}
}

// Config configures a Composer.
type Config struct {
	// LocalPlayerID is used when a snapshot does not name the local player.
	LocalPlayerID   string
	Layout          layout.Config
	EventLog        eventlog.Config
	ScrollThreshold float64
	LogRowHeight    float64
	Durations       Durations
}

// DefaultConfig returns stock geometry, window and timings.
func DefaultConfig() Config {
	return Config{
		Layout:          layout.DefaultConfig(),
		EventLog:        eventlog.Config{MaxVisible: eventlog.DefaultMaxVisible},
		ScrollThreshold: logpanel.DefaultThreshold,
		LogRowHeight:    24,
		Durations:       DefaultDurations(),
	}
}

type targetSet map[string]struct{}

// Composer runs update cycles for one battle session.
type Composer struct {
	mu       sync.Mutex
	logger   *zap.Logger
	cfg      Config
	resolver *layout.Resolver
	window   *eventlog.Window
	seq      *anim.Sequencer
	bus      *Bus
	follow   *logpanel.Follow
	panel    *logpanel.Panel

	prev       *battle.Snapshot
	placements map[string]layout.Placement
	rendered   int
	// held entities have a queued entrance and stay out of plans until it starts
	held map[string]bool
	// exiting entities left the snapshot and sit at their old coordinate
	exiting  map[string]layout.Coordinates
	logItems map[string]Item
	selected string
	checksum string
	lastPlan Plan
	cycle    uint64
	closed   bool

	// outbox holds notifications in the order their state changes happened.
	// One goroutine at a time drains it, so subscribers never see a partial
	// plan ahead of the full plan that scheduled its job.
	outbox   []Notification
	draining bool

	targets atomic.Pointer[targetSet]
}

// NewComposer wires a composer to seq, installing its notice handler and
// target validator. A nil seq or panel gets a default one.
func NewComposer(logger *zap.Logger, cfg Config, seq *anim.Sequencer, panel *logpanel.Panel) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LogRowHeight <= 0 {
		cfg.LogRowHeight = 24
	}
	if seq == nil {
		seq = anim.NewSequencer(logger)
	}
	if panel == nil {
		panel = logpanel.NewPanel(prefs.Default())
	}

	c := &Composer{
		logger:     logger,
		cfg:        cfg,
		resolver:   layout.NewResolver(cfg.Layout),
		window:     eventlog.NewWindow(cfg.EventLog),
		seq:        seq,
		bus:        NewBus(),
		follow:     logpanel.NewFollow(cfg.ScrollThreshold),
		panel:      panel,
		placements: make(map[string]layout.Placement),
		held:       make(map[string]bool),
		exiting:    make(map[string]layout.Coordinates),
		logItems:   make(map[string]Item),
	}
	empty := targetSet{}
	c.targets.Store(&empty)
	seq.SetValidator(c.resolvable)
	seq.SetHandler(c.handleNotice)
	return c
}

// Bus returns the notification bus.
func (c *Composer) Bus() *Bus {
	return c.bus
}

// Sequencer returns the animation sequencer the composer schedules on.
func (c *Composer) Sequencer() *anim.Sequencer {
	return c.seq
}

// LastPlan returns the plan of the latest full cycle.
func (c *Composer) LastPlan() Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPlan
}

// ApplyFrame decodes one transport frame and applies it. A frame that does
// not decode leaves the composer on its last good snapshot.
func (c *Composer) ApplyFrame(data []byte) (Plan, error) {
	snap, err := battle.DecodeSnapshot(data)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", zap.Int("bytes", len(data)), zap.Error(err))
		return Plan{}, err
	}
	return c.Apply(snap)
}

// Apply runs one update cycle. The composer keeps snap as its previous
// snapshot; callers must not modify it afterwards. A snapshot with the same
// checksum as the previous one returns the previous plan unchanged.
func (c *Composer) Apply(snap *battle.Snapshot) (Plan, error) {
	if snap == nil {
		return Plan{}, fmt.Errorf("%w: nil snapshot", battle.ErrMalformedSnapshot)
	}
	if err := snap.Prepare(); err != nil {
		c.logger.Warn("rejecting snapshot", zap.String("battle_id", snap.BattleID), zap.Error(err))
		return Plan{}, err
	}
	sum, err := snap.ComputeChecksum()
	if err != nil {
		return Plan{}, fmt.Errorf("failed to checksum snapshot: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Plan{}, ErrClosed
	}
	if c.cycle > 0 && sum.Hash == c.checksum {
		plan := c.lastPlan
		c.mu.Unlock()
		c.logger.Debug("snapshot unchanged", zap.Uint64("cycle", plan.Cycle))
		return plan, nil
	}
	plan := c.runCycle(snap, sum.Hash)
	c.outbox = append(c.outbox, Notification{Type: NotifyPlanReady, Plan: &plan})
	c.mu.Unlock()

	c.drain()
	return plan, nil
}

func (c *Composer) runCycle(snap *battle.Snapshot, checksum string) Plan {
	local := snap.LocalPlayerID
	if local == "" {
		local = c.cfg.LocalPlayerID
	}

	next := c.resolver.ResolveAll(snap.Entities, local)
	for _, e := range snap.Entities {
		if p := next[e.ID]; p.Fallback {
			c.logger.Warn("location resolved to fallback",
				zap.String("entity_id", e.ID),
				zap.String("location", e.Location.String()),
				zap.String("reason", p.Reason),
			)
		}
	}

	var prevEntities []battle.Entity
	if c.prev != nil {
		prevEntities = c.prev.Entities
	}
	changes := diff.DiffPositions(prevEntities, snap.Entities, positions(c.placements), positions(next))

	win := c.window.Update(snap.Events, c.rendered)
	if win.Reset {
		// keys restart at offset zero and would collide with old jobs
		dropped := c.seq.CancelChannel(anim.ChannelEventLog)
		c.logger.Info("event log shrank, starting over",
			zap.Int("rendered", c.rendered),
			zap.Int("total", win.Total),
			zap.Int("dropped_jobs", len(dropped)),
		)
	}

	c.storeTargets(next, changes, win)

	c.cycle++
	plan := Plan{Cycle: c.cycle, BattleID: snap.BattleID, Checksum: checksum}

	for _, e := range snap.Entities {
		change, _ := changes.Of(e.ID)
		if item, ok := c.entityItem(e, change, next[e.ID]); ok {
			plan.Items = append(plan.Items, item)
		}
	}
	for _, id := range changes.Removed {
		if item, ok := c.removedItem(id); ok {
			plan.Items = append(plan.Items, item)
		}
	}
	plan.Items = append(plan.Items, c.placeholders(snap, local)...)
	plan.Items = append(plan.Items, c.logEntries(win)...)
	plan.Items = append(plan.Items, c.highlights(win.New, next)...)

	c.rendered = win.Total
	c.prev = snap
	c.placements = next
	c.checksum = checksum

	plan.ScrollToBottom = len(win.New) > 0 && c.follow.ShouldAutoScroll() && c.panel.Expanded()
	plan.Follow = c.follow.State().String()
	plan.LogExpanded = c.panel.Expanded()
	c.lastPlan = plan

	c.logger.Debug("cycle composed",
		zap.Uint64("cycle", plan.Cycle),
		zap.Int("added", len(changes.Added)),
		zap.Int("moved", len(changes.Moved)),
		zap.Int("removed", len(changes.Removed)),
		zap.Int("new_events", len(win.New)),
	)
	return plan
}

func positions(placements map[string]layout.Placement) diff.PositionFunc {
	return func(id string) (layout.Coordinates, bool) {
		p, ok := placements[id]
		return p.Position, ok
	}
}

// storeTargets publishes the set of ids a queued job may still start on.
// It runs before any job of the cycle is enqueued.
func (c *Composer) storeTargets(next map[string]layout.Placement, changes diff.Result, win eventlog.Result) {
	set := make(targetSet, len(next)+len(win.Entries))
	for id, p := range next {
		if p.Visible {
			set[id] = struct{}{}
		}
	}
	for id := range c.exiting {
		set[id] = struct{}{}
	}
	for _, id := range changes.Removed {
		if p, ok := c.placements[id]; ok && p.Visible {
			set[id] = struct{}{}
		}
	}
	for _, entry := range win.Entries {
		set[entry.Key.String()] = struct{}{}
	}
	c.targets.Store(&set)
}

func (c *Composer) resolvable(j anim.Job) bool {
	set := c.targets.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[j.Target]
	return ok
}

func placementItem(id string, p layout.Placement) Item {
	return Item{
		Kind:     ItemEntity,
		ID:       id,
		Position: p.Position,
		Visible:  p.Visible,
		Badge:    p.Badge,
		Fallback: p.Fallback,
	}
}

func (c *Composer) entityItem(e battle.Entity, change diff.Change, p layout.Placement) (Item, bool) {
	item := placementItem(e.ID, p)

	switch change {
	case diff.Added:
		if _, leaving := c.exiting[e.ID]; leaving {
			c.seq.Cancel(e.ID, anim.TransitionExit)
			delete(c.exiting, e.ID)
		}
		if !p.Visible {
			return item, true
		}
		job, _ := c.seq.Enqueue(anim.Job{
			Target:   e.ID,
			Channel:  anim.ChannelCards,
			Kind:     anim.TransitionEnter,
			Duration: c.cfg.Durations.Enter,
			To:       p.Position,
		})
		if job.State == anim.StateQueued {
			c.held[e.ID] = true
			return Item{}, false
		}
		item.Animation = specOf(job, nil)
		return item, true

	case diff.Moved:
		if c.held[e.ID] {
			return Item{}, false
		}
		if !p.Visible {
			return item, true
		}
		slide := anim.MotionChannel(e.ID)
		if c.seq.InFlight(slide, e.ID, anim.TransitionSlide) {
			item.Deferred = true
			return item, true
		}
		from := c.placements[e.ID].Position
		job, _ := c.seq.Enqueue(anim.Job{
			Target:   e.ID,
			Channel:  slide,
			Kind:     anim.TransitionSlide,
			Duration: c.cfg.Durations.Slide,
			From:     from,
			To:       p.Position,
		})
		item.Animation = specOf(job, &from)
		return item, true

	default:
		if c.held[e.ID] {
			return Item{}, false
		}
		if c.seq.InFlight(anim.MotionChannel(e.ID), e.ID, anim.TransitionSlide) {
			item.Deferred = true
		}
		return item, true
	}
}

func (c *Composer) removedItem(id string) (Item, bool) {
	if c.held[id] {
		c.seq.Cancel(id)
		delete(c.held, id)
		c.logger.Debug("cancelled queued entrance of removed entity", zap.String("entity_id", id))
		return Item{}, false
	}

	prev, known := c.placements[id]
	entering := c.seq.InFlight(anim.ChannelCards, id, anim.TransitionEnter)
	c.seq.Cancel(id)

	item := Item{Kind: ItemEntity, ID: id, Position: prev.Position, Removed: true}
	if entering || !known || !prev.Visible {
		return item, true
	}

	job, _ := c.seq.Enqueue(anim.Job{
		Target:   id,
		Channel:  anim.ChannelCards,
		Kind:     anim.TransitionExit,
		Duration: c.cfg.Durations.Exit,
		From:     prev.Position,
		To:       prev.Position,
	})
	c.exiting[id] = prev.Position
	item.Visible = true
	item.Animation = specOf(job, nil)
	return item, true
}

func (c *Composer) placeholders(snap *battle.Snapshot, local string) []Item {
	idx := layout.NewIndex(snap.Entities, local)
	seen := make(map[string]bool)
	var items []Item
	for _, e := range snap.Entities {
		if seen[e.OwnerID] {
			continue
		}
		seen[e.OwnerID] = true
		p := c.resolver.DeckPlaceholder(idx.IsLocal(e.OwnerID), idx.Count(e.OwnerID, battle.ZoneDeck))
		items = append(items, Item{
			Kind:     ItemPlaceholder,
			ID:       "deck:" + e.OwnerID,
			Position: p.Position,
			Visible:  p.Visible,
			Badge:    p.Badge,
		})
	}
	return items
}

func (c *Composer) logEntries(win eventlog.Result) []Item {
	panel := c.panel.Preferences()
	items := make([]Item, 0, len(win.Entries))
	c.logItems = make(map[string]Item, len(win.Entries))

	for i, entry := range win.Entries {
		key := entry.Key.String()
		pos := layout.Coordinates{X: panel.X, Y: panel.Y + float64(i)*c.cfg.LogRowHeight}
		item := Item{
			Kind:     ItemEvent,
			ID:       key,
			Position: pos,
			Visible:  panel.Expanded,
			Text:     entry.Event.Text,
		}
		c.logItems[key] = item

		if entry.New {
			from := pos.Offset(0, c.cfg.LogRowHeight)
			job, added := c.seq.Enqueue(anim.Job{
				Target:   key,
				Channel:  anim.ChannelEventLog,
				Kind:     anim.TransitionLogEnter,
				Duration: c.cfg.Durations.LogEnter,
				From:     from,
				To:       pos,
			})
			if added {
				item.Animation = specOf(job, &from)
			}
		}
		items = append(items, item)
	}
	return items
}

func (c *Composer) highlights(fresh []eventlog.Entry, next map[string]layout.Placement) []Item {
	var items []Item
	for _, entry := range fresh {
		for _, id := range highlightTargets(entry.Event.Payload) {
			p, ok := next[id]
			if !ok || !p.Visible || c.held[id] {
				continue
			}
			job, added := c.seq.Enqueue(anim.Job{
				Target:   id,
				Channel:  anim.ChannelHighlight,
				Kind:     anim.TransitionHighlight,
				Duration: c.cfg.Durations.Highlight,
				To:       p.Position,
			})
			if !added {
				continue
			}
			items = append(items, Item{
				Kind:      ItemHighlight,
				ID:        id,
				Position:  p.Position,
				Visible:   true,
				Animation: specOf(job, nil),
			})
		}
	}
	return items
}

// highlightTargets lists the entities an event flashes. Zone changes are
// animated by the snapshot diff instead.
func highlightTargets(p battle.Payload) []string {
	switch v := p.(type) {
	case battle.AttackPayload:
		var ids []string
		if v.AttackerID != "" {
			ids = append(ids, v.AttackerID)
		}
		if v.TargetID != "" && v.TargetID != v.AttackerID {
			ids = append(ids, v.TargetID)
		}
		return ids
	case battle.DamagePayload:
		return single(v.TargetID)
	case battle.HealPayload:
		return single(v.TargetID)
	case battle.StatusPayload:
		return single(v.TargetID)
	case battle.KnockoutPayload:
		return single(v.EntityID)
	case battle.TurnStartPayload, battle.DrawPayload, battle.CoinFlipPayload,
		battle.ZoneChangePayload, battle.MessagePayload:
		return nil
	default:
		return nil
	}
}

func single(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

// handleNotice turns animation milestones into partial plans. It runs on
// the goroutine advancing the sequencer.
func (c *Composer) handleNotice(n anim.Notice) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	item, ok := c.noticeItem(n)
	if !ok {
		c.mu.Unlock()
		return
	}
	plan := Plan{
		Cycle:       c.cycle,
		BattleID:    c.lastPlan.BattleID,
		Partial:     true,
		Items:       []Item{item},
		Follow:      c.follow.State().String(),
		LogExpanded: c.panel.Expanded(),
	}
	c.outbox = append(c.outbox, Notification{Type: NotifyPlanReady, Plan: &plan})
	c.mu.Unlock()

	c.drain()
}

// drain publishes queued notifications outside the composer lock. A caller
// that finds another goroutine draining leaves its notifications to it.
// Listeners may call back into the composer.
func (c *Composer) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		n := c.outbox[0]
		c.outbox[0] = Notification{}
		c.outbox = c.outbox[1:]
		c.mu.Unlock()
		c.publish(n)
		c.mu.Lock()
	}
	c.outbox = nil
	c.draining = false
	c.mu.Unlock()
}

func (c *Composer) publish(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification listener panicked",
				zap.String("type", string(n.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	c.bus.Publish(n)
}

func (c *Composer) noticeItem(n anim.Notice) (Item, bool) {
	j := n.Job
	switch n.Kind {
	case anim.NoticeDropped:
		delete(c.held, j.Target)
		if j.Kind == anim.TransitionExit {
			delete(c.exiting, j.Target)
		}
		c.logger.Debug("animation dropped",
			zap.String("target", j.Target),
			zap.String("kind", string(j.Kind)),
		)
		return Item{}, false

	case anim.NoticeStarted:
		switch j.Kind {
		case anim.TransitionEnter:
			if !c.held[j.Target] {
				return Item{}, false
			}
			delete(c.held, j.Target)
			p, ok := c.placements[j.Target]
			if !ok {
				return Item{}, false
			}
			item := placementItem(j.Target, p)
			item.Animation = specOf(j, nil)
			return item, true
		case anim.TransitionExit:
			pos, ok := c.exiting[j.Target]
			if !ok {
				return Item{}, false
			}
			return Item{Kind: ItemEntity, ID: j.Target, Position: pos, Visible: true, Removed: true, Animation: specOf(j, nil)}, true
		case anim.TransitionLogEnter:
			item, ok := c.logItems[j.Target]
			if !ok {
				return Item{}, false
			}
			from := j.From
			item.Animation = specOf(j, &from)
			return item, true
		case anim.TransitionHighlight:
			p, ok := c.placements[j.Target]
			if !ok || !p.Visible {
				return Item{}, false
			}
			return Item{Kind: ItemHighlight, ID: j.Target, Position: p.Position, Visible: true, Animation: specOf(j, nil)}, true
		}

	case anim.NoticeCompleted:
		switch j.Kind {
		case anim.TransitionExit:
			pos, ok := c.exiting[j.Target]
			if !ok {
				return Item{}, false
			}
			delete(c.exiting, j.Target)
			return Item{Kind: ItemEntity, ID: j.Target, Position: pos, Removed: true}, true
		case anim.TransitionSlide:
			return c.correctSlide(j)
		}
	}
	return Item{}, false
}

// correctSlide starts a follow-up slide when the target moved again while
// the finished slide was playing.
func (c *Composer) correctSlide(j anim.Job) (Item, bool) {
	p, ok := c.placements[j.Target]
	if !ok || !p.Visible || p.Position == j.To {
		return Item{}, false
	}
	from := j.To
	job, added := c.seq.Enqueue(anim.Job{
		Target:   j.Target,
		Channel:  anim.MotionChannel(j.Target),
		Kind:     anim.TransitionSlide,
		Duration: c.cfg.Durations.Slide,
		From:     from,
		To:       p.Position,
	})
	if !added {
		return Item{}, false
	}
	item := placementItem(j.Target, p)
	item.Animation = specOf(job, &from)
	return item, true
}

// Close tears the session down. Every pending job is dropped without
// notices and later cycles fail with ErrClosed.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	dropped := c.seq.Flush()
	c.held = make(map[string]bool)
	c.exiting = make(map[string]layout.Coordinates)
	c.logger.Info("scene session closed",
		zap.Uint64("cycles", c.cycle),
		zap.Int("dropped_jobs", dropped),
	)
}
